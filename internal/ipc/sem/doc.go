// Package sem provides named counting semaphores shared between processes.
//
// A semaphore is a tiny shared memory segment named "sem.<name>" (the layout
// glibc uses for sem_open) holding a 32-bit counter and a waiter count.
// Blocked waiters sleep on the counter with the Linux futex syscall, which
// works across processes for MAP_SHARED mappings.
//
// Waits are sliced: a waiter wakes at least once per poll interval to check
// its context, so cancellation never depends on somebody posting.
//
// Example Usage:
//
//	s, err := sem.Create(dir, "jobs", 0)
//	// producer
//	s.Post()
//	// consumer
//	if err := s.Wait(ctx); err != nil {
//		return err
//	}
package sem
