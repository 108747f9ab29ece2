package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
)

const sseKeepalive = 15 * time.Second

// streamResults is the push view of the progress channel: Server-Sent
// Events delivering progress from attach time forward, with a terminal
// "end" event carrying the full snapshot before the stream closes. It is an
// independent read view over the same event sequence the poll endpoint
// snapshots.
func (s *Server) streamResults(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid job id"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	// Subscribe before the terminal check so no event can slip between.
	events, unsubscribe := s.hub.Subscribe(id)
	defer unsubscribe()

	snap, err := s.analyzer.Snapshot(r.Context(), id)
	if errors.Is(err, domain.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if snap.Job.Terminal() {
		s.writeEnd(w, flusher, id, r)
		return
	}

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				// Hub closed the stream at a terminal stage.
				s.writeEnd(w, flusher, id, r)
				return
			}
			writeSSE(w, "update", ev)
			flusher.Flush()
			if ev.Stage.Terminal() {
				s.writeEnd(w, flusher, id, r)
				return
			}
		}
	}
}

func (s *Server) writeEnd(w http.ResponseWriter, flusher http.Flusher, id uuid.UUID, r *http.Request) {
	snap, err := s.analyzer.Snapshot(r.Context(), id)
	if err != nil {
		writeSSE(w, "end", map[string]string{"error": err.Error()})
		flusher.Flush()
		return
	}
	writeSSE(w, "end", snap)
	flusher.Flush()
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
