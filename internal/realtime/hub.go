// Package realtime provides the websocket fan-out hub. Connections attach
// to one of three namespaces (project, ai-jobs, notifications), join rooms
// keyed by a subject id, and receive events broadcast to those rooms.
// Room membership lives only as long as the connection; clients rebuild it
// on reconnect.
package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Namespace is an independent realtime channel with its own event
// vocabulary.
type Namespace string

const (
	NamespaceProject       Namespace = "project"
	NamespaceAIJobs        Namespace = "ai-jobs"
	NamespaceNotifications Namespace = "notifications"
)

// ParseNamespace maps a URL path segment to a namespace.
func ParseNamespace(s string) (Namespace, bool) {
	switch Namespace(s) {
	case NamespaceProject, NamespaceAIJobs, NamespaceNotifications:
		return Namespace(s), true
	default:
		return "", false
	}
}

// Room name constructors. Rooms are keyed by a logical subject id.
func ProjectRoom(projectID string) string { return "project-" + projectID }
func JobRoom(jobID string) string         { return "job-" + jobID }
func UserRoom(userID string) string       { return "user-" + userID }

// Message is the wire envelope for both directions.
type Message struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func newMessage(event string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Event: event, Payload: data}, nil
}

// Client->server payloads.
type joinPayload struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
}

type jobPayload struct {
	JobID string `json:"jobId"`
}

type subscribePayload struct {
	UserID string `json:"userId"`
}

// PresencePayload is the server->client body of user:presence events.
type PresencePayload struct {
	UserID   string `json:"userId"`
	Status   string `json:"status"`
	JoinedAt string `json:"joinedAt,omitempty"`
}

// Hub manages connections, room membership, and event broadcast. All
// membership tables are mutex-guarded: jobs completing concurrently
// broadcast from their own goroutines.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[Namespace]map[string]map[*Conn]struct{}
}

// NewHub creates a hub. A nil logger falls back to slog.Default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect cross-origin during development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rooms: make(map[Namespace]map[string]map[*Conn]struct{}),
	}
}

// Handler upgrades HTTP requests into connections bound to ns.
func (h *Hub) Handler(ns Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", "namespace", string(ns), "error", err)
			return
		}

		conn := &Conn{
			id:    uuid.New().String(),
			ns:    ns,
			ws:    ws,
			send:  make(chan Message, sendBuffer),
			rooms: make(map[string]struct{}),
		}

		h.logger.Info("client connected", "namespace", string(ns), "conn_id", conn.id)

		go conn.writePump()
		conn.readPump(h)
	}
}

// handleMessage dispatches one client event according to the namespace's
// vocabulary. Unknown events are ignored.
func (h *Hub) handleMessage(c *Conn, msg Message) {
	switch c.ns {
	case NamespaceProject:
		h.handleProjectEvent(c, msg)
	case NamespaceAIJobs:
		h.handleJobEvent(c, msg)
	case NamespaceNotifications:
		h.handleNotificationEvent(c, msg)
	}
}

func (h *Hub) handleProjectEvent(c *Conn, msg Message) {
	var p joinPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.ProjectID == "" {
		h.logger.Warn("malformed project event", "event", msg.Event, "conn_id", c.id)
		return
	}
	room := ProjectRoom(p.ProjectID)

	switch msg.Event {
	case "user:join":
		c.setUser(p.UserID)
		h.join(c, room)
		h.broadcastEvent(c.ns, room, "user:presence", PresencePayload{
			UserID:   p.UserID,
			Status:   "online",
			JoinedAt: time.Now().UTC().Format(time.RFC3339),
		}, c)
		h.logger.Info("user joined project room", "user_id", p.UserID, "project_id", p.ProjectID)

	case "user:leave":
		h.leave(c, room)
		h.broadcastEvent(c.ns, room, "user:presence", PresencePayload{
			UserID: p.UserID,
			Status: "offline",
		}, c)
	}
}

func (h *Hub) handleJobEvent(c *Conn, msg Message) {
	var p jobPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.JobID == "" {
		h.logger.Warn("malformed job event", "event", msg.Event, "conn_id", c.id)
		return
	}

	switch msg.Event {
	case "job:subscribe":
		h.join(c, JobRoom(p.JobID))
		h.logger.Info("client subscribed to job", "job_id", p.JobID, "conn_id", c.id)
	case "job:unsubscribe":
		h.leave(c, JobRoom(p.JobID))
	}
}

func (h *Hub) handleNotificationEvent(c *Conn, msg Message) {
	if msg.Event != "subscribe" {
		return
	}
	var p subscribePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.UserID == "" {
		h.logger.Warn("malformed subscribe event", "conn_id", c.id)
		return
	}
	h.join(c, UserRoom(p.UserID))
}

// join adds c to a room in its namespace.
func (h *Hub) join(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	nsRooms, ok := h.rooms[c.ns]
	if !ok {
		nsRooms = make(map[string]map[*Conn]struct{})
		h.rooms[c.ns] = nsRooms
	}
	members, ok := nsRooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		nsRooms[room] = members
	}
	members[c] = struct{}{}
	c.addRoom(room)
}

// leave removes c from a room, dropping the room once empty.
func (h *Hub) leave(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
	c.removeRoom(room)
}

func (h *Hub) leaveLocked(c *Conn, room string) {
	nsRooms, ok := h.rooms[c.ns]
	if !ok {
		return
	}
	members, ok := nsRooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(nsRooms, room)
	}
}

// disconnect removes c from every room it joined. For the project
// namespace the remaining members are told the user went offline.
func (h *Hub) disconnect(c *Conn) {
	rooms := c.roomsSnapshot()
	userID := c.user()

	h.mu.Lock()
	for _, room := range rooms {
		h.leaveLocked(c, room)
	}
	h.mu.Unlock()

	if c.ns == NamespaceProject && userID != "" {
		for _, room := range rooms {
			h.broadcastEvent(c.ns, room, "user:presence", PresencePayload{
				UserID: userID,
				Status: "offline",
			}, c)
		}
	}

	c.close()
	h.logger.Info("client disconnected", "namespace", string(c.ns), "conn_id", c.id)
}

// broadcastEvent delivers an event to every member of a room, excluding
// the originating connection when except is non-nil.
func (h *Hub) broadcastEvent(ns Namespace, room, event string, payload any, except *Conn) {
	msg, err := newMessage(event, payload)
	if err != nil {
		h.logger.Error("marshal broadcast payload", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[ns][room]
	if !ok {
		return
	}
	for member := range members {
		if member == except {
			continue
		}
		if !member.trySend(msg) {
			h.logger.Warn("connection send buffer full, dropping event",
				"namespace", string(ns), "room", room, "conn_id", member.id, "event", event)
		}
	}
}

// EmitToJob pushes an event to subscribers of a job room. This is the only
// way job lifecycle events enter the ai-jobs namespace.
func (h *Hub) EmitToJob(jobID, event string, payload any) {
	h.broadcastEvent(NamespaceAIJobs, JobRoom(jobID), event, payload, nil)
}

// EmitToProject pushes an event to everyone in a project room.
func (h *Hub) EmitToProject(projectID, event string, payload any) {
	h.broadcastEvent(NamespaceProject, ProjectRoom(projectID), event, payload, nil)
}

// EmitToUser pushes an out-of-band notification to one user's room.
func (h *Hub) EmitToUser(userID, event string, payload any) {
	h.broadcastEvent(NamespaceNotifications, UserRoom(userID), event, payload, nil)
}

// RoomSize reports the current member count of a room. Used by tests and
// the stats endpoint.
func (h *Hub) RoomSize(ns Namespace, room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[ns][room])
}
