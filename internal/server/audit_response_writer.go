package server

import (
	"bytes"
	"net/http"
)

const maxBufferedBody = 4 << 10

// responseWriterWrapper records the status and size of a response. Only error
// bodies are buffered; CSV payloads pass straight through.
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode   int
	wroteHeader  bool
	bytesWritten int
	buffer       bytes.Buffer
}

func newResponseWriterWrapper(w http.ResponseWriter) *responseWriterWrapper {
	return &responseWriterWrapper{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.statusCode = statusCode
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriterWrapper) Write(b []byte) (int, error) {
	w.wroteHeader = true
	if w.statusCode >= http.StatusBadRequest && w.buffer.Len() < maxBufferedBody {
		w.buffer.Write(b[:min(len(b), maxBufferedBody-w.buffer.Len())])
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}

func (w *responseWriterWrapper) GetStatusCode() int {
	return w.statusCode
}

func (w *responseWriterWrapper) GetBytesWritten() int {
	return w.bytesWritten
}

func (w *responseWriterWrapper) GetBody() []byte {
	return w.buffer.Bytes()
}
