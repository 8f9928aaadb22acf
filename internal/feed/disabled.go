package feed

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Disabled is a no-op source used when no feed is configured; positions
// then arrive only through the HTTP API. Subscriber channels are tracked so
// Close still unblocks readers.
type Disabled struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closing     bool
}

func NewDisabled() *Disabled {
	return &Disabled{subscribers: make(map[string]chan string)}
}

func (d *Disabled) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *Disabled) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *Disabled) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *Disabled) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

func (d *Disabled) LastLine() time.Time { return time.Time{} }

func (d *Disabled) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/feed-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("feed disabled"))
	})
}
