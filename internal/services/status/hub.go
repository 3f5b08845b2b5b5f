// Package status collects runtime events from the monitor, sender and receiver
// and fans them out to the HTTP API, the WebSocket feed and the transfer journal.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/ZerkerEOD/folderport/pkg/debug"
	"github.com/google/uuid"
)

// EventType identifies what happened
type EventType string

const (
	EventSessionStarted     EventType = "session_started"
	EventSessionStopped     EventType = "session_stopped"
	EventScanStarted        EventType = "scan_started"
	EventDirectoryMissing   EventType = "directory_missing"
	EventSendAttempt        EventType = "send_attempt"
	EventSendSucceeded      EventType = "send_succeeded"
	EventSendFailed         EventType = "send_failed"
	EventSourceDeleteFailed EventType = "source_delete_failed"
	EventListenerStarted    EventType = "listener_started"
	EventListenerFailed     EventType = "listener_failed"
	EventReceiveSucceeded   EventType = "receive_succeeded"
	EventReceiveFailed      EventType = "receive_failed"
	EventCycleError         EventType = "cycle_error"
	EventTempCleaned        EventType = "temp_cleaned"
)

// DefaultHistory is the number of events retained for late subscribers
const DefaultHistory = 200

// Event is a single status notification
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Folder     string    `json:"folder,omitempty"`
	Port       int       `json:"port,omitempty"`
	File       string    `json:"file,omitempty"`
	Bytes      int64     `json:"bytes,omitempty"`
	Action     string    `json:"action,omitempty"`
	Digest     string    `json:"digest,omitempty"`
	MIME       string    `json:"mime,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// Publisher accepts events. Components take a Publisher so tests can pass a recorder.
type Publisher interface {
	Publish(Event)
}

// Discard is a Publisher that drops every event
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// Counters aggregates transfer outcomes since the hub was created
type Counters struct {
	FilesSent        int64 `json:"files_sent"`
	BytesSent        int64 `json:"bytes_sent"`
	SendFailures     int64 `json:"send_failures"`
	FilesReceived    int64 `json:"files_received"`
	BytesReceived    int64 `json:"bytes_received"`
	ReceiveFailures  int64 `json:"receive_failures"`
	CycleErrors      int64 `json:"cycle_errors"`
	TempFilesCleaned int64 `json:"temp_files_cleaned"`
}

// FolderState is the last observed state of a monitored folder
type FolderState struct {
	Folder   string    `json:"folder"`
	Port     int       `json:"port"`
	LastScan time.Time `json:"last_scan"`
	Missing  bool      `json:"missing"`
}

// Snapshot is a point-in-time view of the daemon
type Snapshot struct {
	Running   bool          `json:"running"`
	StartedAt time.Time     `json:"started_at,omitempty"`
	Counters  Counters      `json:"counters"`
	Folders   []FolderState `json:"folders"`
	Listeners []int         `json:"listeners"`
}

// Hub stores recent events and broadcasts new ones to subscribers
type Hub struct {
	mu          sync.RWMutex
	history     []Event
	capacity    int
	next        int
	full        bool
	subscribers map[uuid.UUID]chan Event
	counters    Counters
	folders     map[string]FolderState
	listeners   map[int]struct{}
	running     bool
	startedAt   time.Time
	now         func() time.Time
}

// NewHub creates a hub that keeps the last capacity events
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultHistory
	}
	return &Hub{
		history:     make([]Event, capacity),
		capacity:    capacity,
		subscribers: make(map[uuid.UUID]chan Event),
		folders:     make(map[string]FolderState),
		listeners:   make(map[int]struct{}),
		now:         time.Now,
	}
}

// Publish records the event and delivers it to every subscriber. Subscribers
// with a full buffer miss the event rather than block the publisher.
func (h *Hub) Publish(e Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = h.now()
	}

	logEvent(e)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.history[h.next] = e
	h.next = (h.next + 1) % h.capacity
	if h.next == 0 {
		h.full = true
	}
	h.apply(e)

	for _, ch := range h.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

func (h *Hub) apply(e Event) {
	switch e.Type {
	case EventSessionStarted:
		h.running = true
		h.startedAt = e.Timestamp
	case EventSessionStopped:
		h.running = false
		clear(h.listeners)
	case EventScanStarted:
		h.folders[e.Folder] = FolderState{Folder: e.Folder, Port: e.Port, LastScan: e.Timestamp}
	case EventDirectoryMissing:
		h.folders[e.Folder] = FolderState{Folder: e.Folder, Port: e.Port, LastScan: e.Timestamp, Missing: true}
	case EventSendSucceeded:
		h.counters.FilesSent++
		h.counters.BytesSent += e.Bytes
	case EventSendFailed:
		h.counters.SendFailures++
	case EventListenerStarted:
		h.listeners[e.Port] = struct{}{}
	case EventReceiveSucceeded:
		h.counters.FilesReceived++
		h.counters.BytesReceived += e.Bytes
	case EventReceiveFailed:
		h.counters.ReceiveFailures++
	case EventCycleError:
		h.counters.CycleErrors++
	case EventTempCleaned:
		h.counters.TempFilesCleaned++
	}
}

func logEvent(e Event) {
	switch e.Type {
	case EventSendFailed, EventReceiveFailed, EventListenerFailed, EventCycleError, EventSourceDeleteFailed:
		debug.Error("[%s] folder=%q port=%d file=%q %s", e.Type, e.Folder, e.Port, e.File, e.Message)
	case EventDirectoryMissing:
		debug.Warning("[%s] folder=%q port=%d %s", e.Type, e.Folder, e.Port, e.Message)
	default:
		debug.Info("[%s] folder=%q port=%d file=%q bytes=%d %s", e.Type, e.Folder, e.Port, e.File, e.Bytes, e.Message)
	}
}

// Subscribe registers a listener for new events. The returned cancel func
// unregisters it and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	id := uuid.New()
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Recent returns up to limit of the newest events, oldest first
func (h *Hub) Recent(limit int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	size := h.next
	if h.full {
		size = h.capacity
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]Event, 0, limit)
	start := (h.next - limit + h.capacity) % h.capacity
	for i := 0; i < limit; i++ {
		out = append(out, h.history[(start+i)%h.capacity])
	}
	return out
}

// Snapshot returns the current aggregated state
func (h *Hub) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Snapshot{
		Running:   h.running,
		StartedAt: h.startedAt,
		Counters:  h.counters,
		Folders:   make([]FolderState, 0, len(h.folders)),
		Listeners: make([]int, 0, len(h.listeners)),
	}
	for _, f := range h.folders {
		s.Folders = append(s.Folders, f)
	}
	for p := range h.listeners {
		s.Listeners = append(s.Listeners, p)
	}
	sort.Slice(s.Folders, func(i, j int) bool { return s.Folders[i].Folder < s.Folders[j].Folder })
	sort.Ints(s.Listeners)
	return s
}
