// Package session drives one connection to a remote radio interface.
//
// Ownership boundary:
// - out-of-band frame queue and its slot pool
// - demultiplexing of data frames and replies
// - rpc command/reply state machine, frame read/write paths
// - connect retry backoff
//
// One connection carries both rpc replies and unsolicited data frames. The
// protocol has no request id, so a Client allows one operation at a time
// and trusts the next reply to answer the last command.
package session
