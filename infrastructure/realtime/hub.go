package realtime

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"socialops/domain/dto"
)

const subscriberBuffer = 8

// Hub fans publication events out to the open SSE streams of their owner.
type Hub struct {
	mu        sync.RWMutex
	users     map[string]map[chan dto.PublicationEvent]struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewHub() *Hub {
	return &Hub{
		users: make(map[string]map[chan dto.PublicationEvent]struct{}),
		done:  make(chan struct{}),
	}
}

// Close ends every open stream. Streams opened afterwards end immediately.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Serve streams events for the authenticated user (user_id set by middleware).
func (h *Hub) Serve(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.Status(http.StatusUnauthorized)
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ch, unsubscribe := h.subscribe(userID)
	defer unsubscribe()

	_, _ = c.Writer.Write([]byte(":ok\n\n"))
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-h.done:
			return false
		case evt := <-ch:
			c.SSEvent(evt.Type, evt)
			return true
		}
	})
}

// Notify delivers evt to every stream of its user without blocking. Slow
// subscribers miss events.
func (h *Hub) Notify(_ context.Context, evt dto.PublicationEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.users[evt.UserID] {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

// Subscribers returns the number of open streams for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

func (h *Hub) subscribe(userID string) (<-chan dto.PublicationEvent, func()) {
	ch := make(chan dto.PublicationEvent, subscriberBuffer)
	h.mu.Lock()
	if h.users[userID] == nil {
		h.users[userID] = make(map[chan dto.PublicationEvent]struct{})
	}
	h.users[userID][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs := h.users[userID]; subs != nil {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(h.users, userID)
			}
		}
	}
}
