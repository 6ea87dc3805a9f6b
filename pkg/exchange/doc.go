// Package exchange holds the per-request values passed between the gate,
// the dispatcher and the call logger: the captured inbound Request and the
// Envelope that is written back to the client.
//
// A Request is built once by Capture and then only read. An Envelope is
// produced by exactly one handling path and is tagged with the Mode that
// produced it.
package exchange
