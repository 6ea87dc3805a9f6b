package gate

import "net/http"

// commitWriter records whether anything has reached the client, which
// decides whether a failure can still fall through to the host handler.
type commitWriter struct {
	http.ResponseWriter
	status    int
	committed bool
}

func newCommitWriter(w http.ResponseWriter) *commitWriter {
	return &commitWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *commitWriter) WriteHeader(code int) {
	if !w.committed {
		w.status = code
		w.committed = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	w.committed = true
	return w.ResponseWriter.Write(b)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it.
func (w *commitWriter) Flush() {
	w.committed = true
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *commitWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
