// Package protocol owns the error kinds shared by the wire layers.
//
// Ownership boundary:
// - frame: header codec and message types
// - stream: exact reads and bounded-wait writes
// - meta: fixed-size metadata carried in data frames
// - session: out-of-band queue, demux, rpc client
package protocol
