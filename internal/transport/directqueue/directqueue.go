// Package directqueue implements collab.NotificationQueue for direct mode:
// presentation notices arrive as HTTP POSTs against a locally-bound
// ingest endpoint rather than over MQTT.
package directqueue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/Will-Luck/sally-agent/internal/collab"
)

// Queue is an http.Handler that accepts POSTed notice bodies and buffers
// them as collab.Notice values for the Notice Intake sweep to drain.
type Queue struct {
	mu      sync.Mutex
	pending []collab.Notice
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{}
}

// ServeHTTP implements http.Handler. It accepts POST requests carrying a
// notice body at any path; the path becomes the notice's Route.
func (q *Queue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	defer r.Body.Close()

	q.mu.Lock()
	q.pending = append(q.pending, collab.Notice{
		ID:    uuid.NewString(),
		Route: r.URL.Path,
		Body:  body,
	})
	q.mu.Unlock()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Next implements collab.NotificationQueue.
func (q *Queue) Next(_ context.Context) (collab.Notice, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return collab.Notice{}, false, nil
	}
	n := q.pending[0]
	q.pending = q.pending[1:]
	return n, true, nil
}

// Ack implements collab.NotificationQueue. The notice was already removed
// from the pending slice by Next, so there is nothing left to acknowledge.
func (q *Queue) Ack(_ context.Context, _ string) error {
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var (
	_ collab.NotificationQueue = (*Queue)(nil)
	_ http.Handler             = (*Queue)(nil)
)
