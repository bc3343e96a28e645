package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/talgya/hybrid-sim/internal/engine"
)

const heartbeatInterval = 15 * time.Second

// wantsCampaign reports whether a stream filtered to campaignID should see n.
// An empty filter passes everything.
func wantsCampaign(filter string, n engine.Notification) bool {
	return filter == "" || n.CampaignID == filter
}

// catchUp returns the latest completed tick of each matching campaign so a
// new subscriber starts from current state.
func (s *Server) catchUp(filter string) []engine.Notification {
	var out []engine.Notification
	for _, st := range s.Sched.Statuses() {
		if filter != "" && st.CampaignID != filter {
			continue
		}
		rep, err := s.Sched.Latest(st.CampaignID)
		if err != nil || rep == nil {
			continue
		}
		out = append(out, engine.Notification{
			Kind:       engine.NotifyTickComplete,
			CampaignID: st.CampaignID,
			Tick:       rep.Tick,
			Time:       rep.CompletedAt,
			Mode:       st.Mode,
			Report:     rep,
		})
	}
	return out
}

// handleStream serves scheduler notifications as Server-Sent Events.
// ?campaign=<id> restricts the stream to one campaign.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	filter := r.URL.Query().Get("campaign")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, ch := s.Sched.Subscribe()
	defer s.Sched.Unsubscribe(id)

	for _, n := range s.catchUp(filter) {
		writeSSEEvent(w, string(n.Kind), n)
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			if !wantsCampaign(filter, n) {
				continue
			}
			writeSSEEvent(w, string(n.Kind), n)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
