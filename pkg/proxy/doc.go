// Package proxy forwards matched requests to a rule's upstream target and
// turns the upstream reply, or the failure to get one, into an Envelope.
//
// Forward never returns an error: network failures become 502 envelopes
// tagged PROXY. Upstream 4xx and 5xx responses are relayed as they are.
package proxy
