package server

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/livetail"
	"github.com/bascanada/logexplorer/pkg/query"
	"github.com/bascanada/logexplorer/pkg/store"
)

// EventType represents the type of SSE event
type EventType string

const (
	EventConfigReloaded EventType = "config-reloaded"
	EventServerError    EventType = "server-error"
)

// Tail stream events.
const (
	tailEventRow   = "row"
	tailEventError = "error"
	tailEventEnd   = "end"
)

// heartbeatInterval keeps idle event streams open through proxies.
var heartbeatInterval = 30 * time.Second

// Event represents a server-sent event
type Event struct {
	Type EventType              `json:"type"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventBroker manages SSE connections and broadcasts events
type EventBroker struct {
	clients      map[chan Event]struct{}
	clientsMutex sync.RWMutex
	logger       *slog.Logger
}

// NewEventBroker creates a new event broker
func NewEventBroker(logger *slog.Logger) *EventBroker {
	return &EventBroker{
		clients: make(map[chan Event]struct{}),
		logger:  logger,
	}
}

// Subscribe adds a new client to receive events
func (b *EventBroker) Subscribe() chan Event {
	b.clientsMutex.Lock()
	defer b.clientsMutex.Unlock()

	client := make(chan Event, 10)
	b.clients[client] = struct{}{}
	b.logger.Debug("client subscribed to events", "total_clients", len(b.clients))
	return client
}

// Unsubscribe removes a client from receiving events
func (b *EventBroker) Unsubscribe(client chan Event) {
	b.clientsMutex.Lock()
	defer b.clientsMutex.Unlock()

	delete(b.clients, client)
	close(client)
	b.logger.Debug("client unsubscribed from events", "total_clients", len(b.clients))
}

// Broadcast sends an event to all subscribed clients. A client whose buffer
// stays full for 100ms misses the event.
func (b *EventBroker) Broadcast(event Event) {
	b.clientsMutex.RLock()
	defer b.clientsMutex.RUnlock()

	b.logger.Debug("broadcasting event", "type", event.Type, "clients", len(b.clients))

	for client := range b.clients {
		select {
		case client <- event:
		case <-time.After(100 * time.Millisecond):
			b.logger.Warn("client not reading events, skipping")
		}
	}
}

// ClientCount returns the number of active clients
func (b *EventBroker) ClientCount() int {
	b.clientsMutex.RLock()
	defer b.clientsMutex.RUnlock()
	return len(b.clients)
}

// eventStream prepares w for server-sent events.
func (s *Server) eventStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher, true
}

// writeEvent writes one named event with a JSON payload.
func (s *Server) writeEvent(w io.Writer, name string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal event", "event", name, "err", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
}

// eventsHandler streams config reloads and server errors.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := s.eventStream(w)
	if !ok {
		return
	}

	eventChan := s.eventBroker.Subscribe()
	defer s.eventBroker.Unsubscribe(eventChan)

	s.writeEvent(w, "connected", map[string]string{"message": "connected"})
	flusher.Flush()

	ctx := r.Context()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("client disconnected")
			return

		case event := <-eventChan:
			s.writeEvent(w, string(event.Type), event)
			flusher.Flush()

		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// tailHandler follows one stream for as long as the client stays, sending
// each matching row as a row event. A transport failure ends the stream
// with an error event; a feed closed by the backend ends it with end.
//
//	GET /tail?view=errors&filter=status>=500
func (s *Server) tailHandler(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	t := Target{View: params.Get("view"), Backend: params.Get("backend"), Stream: params.Get("stream")}
	if err := validateTarget(t); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrCodeValidationError, err.Error())
		return
	}
	res, err := s.resolve(t)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	ctx := r.Context()
	var fields []backend.Field
	exprs := append(append([]string{}, res.view.Filters...), params["filter"]...)
	if len(exprs) > 0 {
		if schema, err := res.backend.Schema(ctx, res.view.Stream); err != nil {
			s.logger.Warn("schema unavailable, tail filters compare as text", "stream", res.view.Stream, "err", err)
		} else {
			fields = schema.Fields
		}
	}
	match, err := query.Matcher(fields, exprs...)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	session := livetail.NewSession(res.backend, res.view.Explorer.TailOptions())
	scope := store.NewScope()
	defer scope.Close()
	changed := make(chan struct{}, 1)
	store.Watch(scope, session.Store(), livetail.Status.Progress, func(livetail.Progress) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, nil)

	if err := session.Start(ctx, res.view.Stream); err != nil {
		s.writeFailure(w, err)
		return
	}
	defer session.Abort()

	flusher, ok := s.eventStream(w)
	if !ok {
		return
	}
	s.writeEvent(w, "connected", map[string]string{"stream": res.view.Stream})
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	var pos int64
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("tail client disconnected", "stream", res.view.Stream)
			return

		case <-changed:
			// Status is read before draining so rows pushed ahead of the
			// stop are written before end or error.
			st := session.Status()
			var rows []backend.Row
			rows, pos = session.Since(pos)
			for _, row := range rows {
				if match == nil || match(row) {
					s.writeEvent(w, tailEventRow, row)
				}
			}
			if st.State == livetail.Stopped {
				if st.Err != nil {
					s.writeEvent(w, tailEventError, APIError{Code: ErrCodeBackendError, Message: st.Err.Error()})
				} else {
					s.writeEvent(w, tailEventEnd, map[string]int64{"received": st.Received})
				}
				flusher.Flush()
				return
			}
			flusher.Flush()

		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
