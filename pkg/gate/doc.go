// Package gate is the interception middleware in front of the host handler.
//
// For each request the gate decides whether the path is eligible at all,
// finds the first enabled rule whose pattern matches, and hands the request
// to the dispatcher. The envelope it gets back is written verbatim and one
// call-log record is produced. Requests that are ineligible, match no rule
// or fail before anything reaches the client continue to the wrapped
// handler unchanged.
//
//	g := gate.New(store, dispatcher, recorder, gate.WithLogger(log))
//	http.ListenAndServe(":8080", g.Wrap(adminHandler))
package gate
