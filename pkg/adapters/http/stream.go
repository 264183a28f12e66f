package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/ringwire/callflow/pkg/domain"
)

const subscriberBuffer = 16

// StreamManager fans turn results out to the SSE subscribers of each call.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan string]struct{} // call id -> channels
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan string]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a channel for callID. The returned func unsubscribes and is safe to call twice.
func (sm *StreamManager) Subscribe(callID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, subscriberBuffer)
	if _, ok := sm.subscribers[callID]; !ok {
		sm.subscribers[callID] = make(map[chan string]struct{})
	}
	sm.subscribers[callID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		sm.remove(callID, ch)
	}
}

func (sm *StreamManager) remove(callID string, ch chan string) {
	subs, ok := sm.subscribers[callID]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(sm.subscribers, callID)
	}
}

// Broadcast sends msg to every subscriber of callID. Slow subscribers lose the message.
func (sm *StreamManager) Broadcast(callID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[callID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("sse client buffer full, dropping message", "call_id", callID)
		}
	}
}

// Count returns the number of subscribers of callID.
func (sm *StreamManager) Count(callID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[callID])
}

// Close disconnects every subscriber of callID.
func (sm *StreamManager) Close(callID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for ch := range sm.subscribers[callID] {
		sm.remove(callID, ch)
	}
}

// SubscribeEvents handles GET /calls/{callID}/events as a server-sent event stream of turn results.
// The optional watch query (comma separated: node, status, variables, history) drops turns whose
// diff touches none of the listed fields.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	callID, ok := s.pathParam(w, r, "callID")
	if !ok {
		return
	}
	if _, err := s.Engine.GetCall(r.Context(), callID); err != nil {
		s.writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeProblem(w, http.StatusInternalServerError, "streaming not supported", nil)
		return
	}

	var watch []string
	if raw := r.URL.Query().Get("watch"); raw != "" {
		for _, field := range strings.Split(raw, ",") {
			watch = append(watch, strings.TrimSpace(field))
		}
	}

	ch, cancel := s.Streams.Subscribe(callID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Debug("sse subscribed", "call_id", callID, "watch", watch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				fmt.Fprintf(w, "event: closed\ndata: %s\n\n", callID)
				flusher.Flush()
				return
			}
			if len(watch) > 0 && !watched(msg, watch) {
				continue
			}
			fmt.Fprintf(w, "event: turn\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func watched(msg string, fields []string) bool {
	var turn struct {
		Diff *domain.StateDiff `json:"diff"`
	}
	if err := json.Unmarshal([]byte(msg), &turn); err != nil {
		return true
	}
	if turn.Diff == nil {
		return false
	}
	for _, field := range fields {
		switch field {
		case "node":
			if turn.Diff.CurrentNodeID != nil {
				return true
			}
		case "status":
			if turn.Diff.Status != nil {
				return true
			}
		case "variables":
			if len(turn.Diff.Variables) > 0 {
				return true
			}
		case "history":
			if turn.Diff.History != nil {
				return true
			}
		}
	}
	return false
}
