package http

import (
	"log"
	"net/http"
	"time"

	"contest-service/internal/app"
	"github.com/gorilla/websocket"
)

// deadlineGrace delays the expiry push slightly past the deadline so the
// triggering status query observes the draft as expired.
const deadlineGrace = 100 * time.Millisecond

// StatusFeed pushes contest status over a websocket so clients see the
// "taking contest" to "deadline passed" transition without polling. The
// expiry itself still happens in the core on access; the feed only queries
// status again once the deadline instant has passed.
type StatusFeed struct {
	service  *app.ContestService
	upgrader websocket.Upgrader
}

func NewStatusFeed(service *app.ContestService) *StatusFeed {
	return &StatusFeed{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type statusMessage struct {
	Type    string        `json:"type"`
	Payload statusPayload `json:"payload"`
}

type statusPayload struct {
	Status   string     `json:"status"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// ServeWS upgrades the request and streams status updates for one student.
func (f *StatusFeed) ServeWS(w http.ResponseWriter, r *http.Request) {
	studentID := r.Header.Get(studentHeader)
	if studentID == "" {
		studentID = r.URL.Query().Get("studentId")
	}
	if studentID == "" {
		http.Error(w, "missing student identity", http.StatusForbidden)
		return
	}

	status, deadline, err := f.service.Status(r.Context(), studentID)
	if err != nil {
		http.Error(w, "status unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	msg := statusMessage{Type: "status", Payload: statusPayload{Status: string(status)}}
	if status == app.StatusTaking {
		d := deadline
		msg.Payload.Deadline = &d
	}
	if err := conn.WriteJSON(msg); err != nil {
		return
	}
	if status != app.StatusTaking {
		return
	}

	// Reader goroutine only detects the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	timer := time.NewTimer(time.Until(deadline) + deadlineGrace)
	defer timer.Stop()

	select {
	case <-closed:
		return
	case <-timer.C:
	}

	// This query runs the core's pull-model expiry check, so the draft is
	// auto-finalized here exactly as it would be on any other access.
	status, _, err = f.service.Status(r.Context(), studentID)
	if err != nil {
		log.Printf("ws status refresh failed: %v", err)
		return
	}
	_ = conn.WriteJSON(statusMessage{Type: "status", Payload: statusPayload{Status: string(status)}})
}
