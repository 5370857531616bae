// Package supervisor runs the read loop of the supervisor process.
//
// The supervisor reads framed candidates from the ring buffer, reports each
// one and stops as soon as a candidate with no removed edges arrives. Frames
// that do not decode are logged and skipped; warnings about them are rate
// limited so a misbehaving writer cannot flood the log.
package supervisor
