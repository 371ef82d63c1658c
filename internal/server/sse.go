package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
)

var (
	errStreamingUnsupported = errors.New("response writer does not support streaming")
	errStreamClosed         = errors.New("event stream closed")
)

// eventStream writes server-sent events to one client. It reports itself
// closed once a write fails or Close is called, which makes it a
// watch.Sink.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu     sync.Mutex
	closed atomic.Bool
}

// newEventStream sends the SSE response headers.
func newEventStream(w http.ResponseWriter) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &eventStream{w: w, flusher: flusher}, nil
}

// Send writes one event. An empty name sends an unnamed message event.
func (s *eventStream) Send(name string, data []byte) error {
	var buf bytes.Buffer
	if name != "" {
		fmt.Fprintf(&buf, "event: %s\n", name)
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return s.write(buf.Bytes())
}

// SendJSON writes one event with a JSON encoded payload.
func (s *eventStream) SendJSON(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode event %q: %w", name, err)
	}
	return s.Send(name, data)
}

// Ping writes a comment line, which clients ignore. A failing ping marks the
// stream closed.
func (s *eventStream) Ping() error {
	return s.write([]byte(": ping\n\n"))
}

func (s *eventStream) write(p []byte) error {
	if s.closed.Load() {
		return errStreamClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.Write(p); err != nil {
		s.closed.Store(true)
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close marks the stream as closed.
func (s *eventStream) Close() {
	s.closed.Store(true)
}

// Closed reports whether the client is gone.
func (s *eventStream) Closed() bool {
	return s.closed.Load()
}
