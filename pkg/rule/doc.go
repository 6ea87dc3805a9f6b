// Package rule defines routing rules and the snapshot store that serves them
// to the interception gate.
//
// A Rule maps a path pattern to a dispatch Mode (MOCK, PROXY or AUTO) and,
// for modes that forward traffic, an upstream target. Rules are evaluated in
// the store's natural order, which is creation order; the first enabled rule
// whose pattern matches a request path wins.
//
// # Concurrency
//
// Store publishes an immutable snapshot through an atomic pointer on every
// mutation. Readers (one per eligible request) load the current snapshot
// without taking a lock. Rule values inside a published snapshot are never
// modified; updates replace them with a fresh copy.
package rule
