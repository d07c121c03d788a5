package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Event is one record of the gateway's SSE wire format: one of the four
// typed event kinds below, plus its JSON payload.
type Event struct {
	Kind    string
	Payload any
}

const (
	eventProgress  = "progress"
	eventComplete  = "complete"
	eventCancelled = "cancelled"
	eventError     = "error"
)

// writeSSEHeaders writes the SSE response headers and flushes them.
func writeSSEHeaders(w http.ResponseWriter, flusher http.Flusher) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx proxy compatibility
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
}

// writeEvent encodes ev as one SSE record, with id as the optional `id:`
// line (empty skips it), and flushes immediately so observers see
// progress as it happens rather than buffered.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, id string, ev Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// streamOutcome is what the background Submit goroutine reports back to
// the request handler once the cache call returns.
type streamOutcome struct {
	result any
	err    error
}

// runStream is the SOLE writer of w for the lifetime of one observer's SSE
// response — it drains queued progress events, writes exactly one terminal
// event once outcome fires, and emits a periodic `: ping` comment on its own
// ticker so a proxy's idle timeout never fires on a slow build. Disconnect
// detection is just another case on the same select — r.Context().Done(),
// passed in as reqDone — rather than a second goroutine polling the
// transport, since only one goroutine may ever write to w. It returns when
// the terminal event has been written or the client disconnects, whichever
// happens first.
func runStream(w http.ResponseWriter, flusher http.Flusher, id string, q *progressQueue, outcome <-chan streamOutcome, reqDone <-chan struct{}, pingInterval time.Duration) {
	// drain reports whether it drained cleanly; a write error means the
	// connection is gone and the loop should stop touching w.
	drain := func() bool {
		for {
			ev, ok := q.pop()
			if !ok {
				return true
			}
			if err := writeEvent(w, flusher, id, Event{Kind: eventProgress, Payload: map[string]any{
				"message":  ev.message,
				"progress": ev.percent,
			}}); err != nil {
				return false
			}
		}
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-reqDone:
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-q.notify:
			if !drain() {
				return
			}
		case out := <-outcome:
			if !drain() {
				return
			}
			writeTerminal(w, flusher, id, out)
			return
		}
	}
}

func writeTerminal(w http.ResponseWriter, flusher http.Flusher, id string, out streamOutcome) {
	switch {
	case out.err == nil:
		_ = writeEvent(w, flusher, id, Event{Kind: eventComplete, Payload: out.result})
	case isCancelled(out.err):
		_ = writeEvent(w, flusher, id, Event{Kind: eventCancelled, Payload: map[string]string{
			"message": "build was replaced by a newer request",
		}})
	default:
		_ = writeEvent(w, flusher, id, Event{Kind: eventError, Payload: map[string]string{
			"error": out.err.Error(),
		}})
	}
}
