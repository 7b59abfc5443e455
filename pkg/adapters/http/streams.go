package http

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/softbus/internal/logging"
	"github.com/aretw0/softbus/pkg/domain"
)

const streamBuffer = 64

// StreamManager fans channel events out to SSE subscribers by session name.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan []byte]struct{}
	logger      *slog.Logger
}

// NewStreamManager creates an empty manager. A nil logger discards output.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan []byte]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a subscriber for sessionName. The returned func
// unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(sessionName string) (<-chan []byte, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan []byte, streamBuffer)
	if _, ok := sm.subscribers[sessionName]; !ok {
		sm.subscribers[sessionName] = make(map[chan []byte]struct{})
	}
	sm.subscribers[sessionName][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			subs := sm.subscribers[sessionName]
			if _, ok := subs[ch]; !ok {
				return // already closed by Close
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sessionName)
			}
		})
	}
}

// Close ends every subscription of sessionName and returns how many there were.
func (sm *StreamManager) Close(sessionName string) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	subs := sm.subscribers[sessionName]
	for ch := range subs {
		close(ch)
	}
	delete(sm.subscribers, sessionName)
	return len(subs)
}

// Subscribers returns the number of subscribers of sessionName.
func (sm *StreamManager) Subscribers(sessionName string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[sessionName])
}

// Broadcast sends msg to every subscriber of sessionName. Slow subscribers lose messages.
func (sm *StreamManager) Broadcast(sessionName string, msg []byte) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[sessionName] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping message", "session_name", sessionName)
		}
	}
}

// Publish routes ev to the subscribers of its session. It matches the
// event sink signature of memory.TransManager.
func (sm *StreamManager) Publish(ev domain.ChannelEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		sm.logger.Error("encode channel event failed", "err", err)
		return
	}
	sm.logger.Debug("publishing channel event", "type", string(ev.Type),
		"session_name", ev.Info.SessionName, "channel_id", ev.Info.Channel.ID)
	sm.Broadcast(ev.Info.SessionName, data)
}
