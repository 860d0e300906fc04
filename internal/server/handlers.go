package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/corvino/jamq/internal/fairplay"
	"github.com/corvino/jamq/internal/protocol"
	"github.com/corvino/jamq/internal/session"
)

// Handlers holds references needed by HTTP handlers.
type Handlers struct {
	Host      *session.Host
	StartTime time.Time
}

// Health handles GET /api/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.StartTime)
	q := h.Host.Queue()
	resp := protocol.HealthResponse{
		Status:    "ok",
		Uptime:    uptime.Round(time.Second).String(),
		UptimeSec: uptime.Seconds(),
		State:     h.Host.State().String(),
		Endpoints: len(h.Host.Endpoints()),
		Queued:    len(q.Upcoming()),
	}
	if h.Host.State() == session.HostClosed {
		resp.Status = "closed"
	}
	writeJSON(w, http.StatusOK, resp)
}

// Session handles GET /api/session.
func (h *Handlers) Session(w http.ResponseWriter, r *http.Request) {
	info := h.Host.Info()
	writeJSON(w, http.StatusOK, protocol.SessionView{
		SessionID: info.SessionID,
		Title:     info.QueueTitle,
		Owner:     info.OwnerName,
		FairPlay:  info.FairPlay,
		State:     h.Host.State().String(),
	})
}

// GetQueue handles GET /api/queue.
func (h *Handlers) GetQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, queueView(h.Host.Queue()))
}

// Enqueue handles POST /api/queue. The request is scheduled like any peer
// request; the response carries the queue after scheduling.
func (h *Handlers) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req protocol.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	err := h.Host.Enqueue(r.Context(), req.TrackURI, req.UserID, req.DisplayName)
	switch {
	case errors.Is(err, session.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, session.ErrQueueFull):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, queueView(h.Host.Queue()))
}

// ListEndpoints handles GET /api/endpoints.
func (h *Handlers) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	recs := h.Host.Endpoints()
	out := make([]protocol.EndpointInfo, len(recs))
	for i, rec := range recs {
		out[i] = protocol.EndpointInfo{
			ID:           rec.ID,
			DisplayName:  rec.DisplayName,
			State:        rec.State.String(),
			LastTransfer: rec.LastTransferStatus.String(),
		}
	}
	writeJSON(w, http.StatusOK, protocol.EndpointList{Endpoints: out})
}

// Skip handles POST /api/skip.
func (h *Handlers) Skip(w http.ResponseWriter, r *http.Request) {
	if !h.requireActive(w) {
		return
	}
	h.Host.Skip()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "skipping"})
}

// PlayPause handles POST /api/playpause.
func (h *Handlers) PlayPause(w http.ResponseWriter, r *http.Request) {
	if !h.requireActive(w) {
		return
	}
	h.Host.PlayPause()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "toggled"})
}

// Stop handles POST /api/stop.
func (h *Handlers) Stop(w http.ResponseWriter, r *http.Request) {
	h.Host.Stop()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func (h *Handlers) requireActive(w http.ResponseWriter) bool {
	if s := h.Host.State(); s != session.HostActive {
		writeError(w, http.StatusServiceUnavailable, "session is "+s.String())
		return false
	}
	return true
}

func queueView(q fairplay.Queue) protocol.QueueView {
	return protocol.NewQueueView(protocol.QueueUpdate{Entries: q.Entries, NowPlaying: q.NowPlaying})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
