/*
Package ring implements the shared byte ring buffer that carries candidate
solutions from generator processes to the supervisor.

# Layout

The region is one shared memory segment: a fixed header followed by the
circular storage. The header holds a magic number, the capacity, the write
and read cursors, the supervisor liveness flag, the pid of the current
write-lock holder and the best removal count published by the supervisor.

Three named semaphores live next to the region:

  - sem.<name>.free  counts free bytes (starts at capacity)
  - sem.<name>.used  counts unread bytes (starts at zero)
  - sem.<name>.write serialises whole messages between writers (starts at one)

# Framing

Every message is written as START payload END, with START '[' and END ']'.
A writer that dies mid-message leaves a fragment without END. The reader
drops such a fragment as soon as it sees the START of the next message, so a
crashed writer costs one message and never corrupts the next one.

# Lifecycle

The supervisor calls Create and, on exit, Shutdown, which clears the
liveness flag, nudges one blocked writer and unlinks every name. Generators
call Attach and Shutdown. Put returns ErrSupervisorGone once the supervisor
has left; callers treat it like io.EOF.

Blocking waits are sliced by the poll interval so writers also notice
cancellation, the liveness flag and a write-lock holder that died.
*/
package ring
