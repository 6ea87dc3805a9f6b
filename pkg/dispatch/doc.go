// Package dispatch answers a matched request according to its rule's mode.
//
//   - MOCK synthesizes a response from the API definition for the request.
//   - PROXY forwards the request to the rule's upstream target.
//   - AUTO mocks when a definition exists and proxies otherwise.
//
// The dispatcher always produces a complete envelope for a known mode;
// failures inside a mode become error envelopes tagged with that mode.
package dispatch
