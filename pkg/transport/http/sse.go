package http

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/wire"
)

// writerState tracks the state of an SSE writer.
type writerState int

const (
	writerIdle      writerState = iota // no event written yet
	writerStreaming                    // at least one partial event sent
	writerCompleted                    // terminal event sent
)

// sseWriter delivers a streamed exchange as server-sent events. Each
// partial response becomes one "partial" event; the terminal response
// becomes a "complete" or "error" event followed by the [DONE] marker.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
	id string

	mu    sync.Mutex
	state writerState
	seq   int
}

func newSSEWriter(w http.ResponseWriter, id string) *sseWriter {
	return &sseWriter{
		w:  w,
		rc: http.NewResponseController(w),
		id: id,
	}
}

// Send writes resp as the next event. The event is formatted as:
//
//	event: {type}\n
//	data: {json}\n
//	\n
//
// After a terminal event, it also sends:
//
//	data: [DONE]\n
//	\n
func (s *sseWriter) Send(resp *api.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errors.New("cannot write event: stream is completed")
	}

	if s.state == writerIdle {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Request-ID", s.id)
		s.w.WriteHeader(http.StatusOK)
		s.state = writerStreaming
	}

	ev := api.StreamEventFor(resp, s.seq)
	s.seq++
	payload := map[string]any{
		"type":     string(ev.Type),
		"sequence": ev.Sequence,
		"status":   ev.Status,
	}
	if ev.Data != nil {
		payload["data"] = ev.Data
	}
	data, err := wire.Marshal(wire.JSON, payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	if ev.Type != api.EventPartial {
		if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
			return fmt.Errorf("failed to write [DONE]: %w", err)
		}
		if err := s.rc.Flush(); err != nil {
			return fmt.Errorf("failed to flush [DONE]: %w", err)
		}
		s.state = writerCompleted
	}
	return nil
}

// started reports whether at least one event has been written.
func (s *sseWriter) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != writerIdle
}
