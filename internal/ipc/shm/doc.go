// Package shm manages named shared memory segments.
//
// A segment is a file under a shared directory (normally the tmpfs at
// /dev/shm, the same place shm_open puts its objects) that every participant
// maps with MAP_SHARED. Exactly one process creates a segment, exclusively;
// any number of processes open it by name afterwards. The creator is also the
// one that unlinks it, after which no process can open it again, while
// existing mappings stay valid until they are closed.
package shm
