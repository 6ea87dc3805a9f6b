// Package requestlog records one call-log Record per request handled by the
// interception gate, for users who need to see what came in, which rule
// matched and what was sent back.
//
// It is distinct from operational logging, which uses log/slog.
//
// # Stores
//
// MemoryStore keeps the most recent records in a bounded FIFO buffer.
// SQLiteStore persists records to the mock_call_logs table with buffered,
// batched writes; records are dropped (and counted) when the buffer is full.
//
// # Recording
//
// Recorder turns a captured request and its envelope into a Record and hands
// it to a Sink. Recording is fire-and-forget: sink failures and panics are
// logged and never reach the caller.
//
//	store := requestlog.NewMemoryStore(1000)
//	rec := requestlog.NewRecorder(store, requestlog.WithLogger(log))
//	rec.Record(ctx, req, env, elapsed)
package requestlog
