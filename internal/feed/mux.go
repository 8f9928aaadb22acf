// Package feed multiplexes a line-oriented position feed (serial AIS
// receiver, UDP forwarder, capture replay or mock) to any number of
// subscribers, and decodes the lines into vessel reports.
package feed

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"tailscale.com/tsweb"
)

// Porter is the minimal interface a feed source must satisfy.
type Porter interface {
	io.Reader
	io.Closer
}

// Interface is implemented by LineMux and Disabled.
type Interface interface {
	// Subscribe creates a channel receiving every line read from the
	// source. The id is used to unsubscribe.
	Subscribe() (string, chan string)
	// Unsubscribe removes and closes a subscriber channel.
	Unsubscribe(string)
	// Monitor reads lines until the source ends or ctx is done.
	Monitor(context.Context) error
	// Close closes every subscriber channel and the source.
	Close() error
	// LastLine returns when the last line arrived, zero if none has.
	LastLine() time.Time

	// AttachAdminRoutes attaches the live tail under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// LineMux fans the lines of one source out to subscribers. Slow
// subscribers miss lines rather than stall the source.
type LineMux[T Porter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	closing      bool
	closingMu    sync.Mutex
	bufferSize   int

	lines    atomic.Uint64
	lastLine atomic.Int64
}

// NewLineMux creates a LineMux reading from port.
func NewLineMux[T Porter](port T) *LineMux[T] {
	return &LineMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
		bufferSize:  64,
	}
}

func (s *LineMux[T]) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, s.bufferSize)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the mux.
func (s *LineMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Monitor reads the source line by line and hands each line to the
// subscribers.
func (s *LineMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking Scan runs on its own goroutine so the loop below can
	// still notice cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
				}
				return nil
			}
			s.closingMu.Lock()
			closing := s.closing
			s.closingMu.Unlock()
			if closing {
				return nil
			}

			s.lines.Add(1)
			s.lastLine.Store(time.Now().UnixNano())

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- line:
				default:
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *LineMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

// LastLine returns when the last line arrived.
func (s *LineMux[T]) LastLine() time.Time {
	ns := s.lastLine.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Lines returns how many lines have been read.
func (s *LineMux[T]) Lines() uint64 { return s.lines.Load() }

func (s *LineMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("feed", "position feed counters", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		last := "never"
		if t := s.LastLine(); !t.IsZero() {
			last = t.UTC().Format(time.RFC3339)
		}
		s.subscriberMu.Lock()
		subs := len(s.subscribers)
		s.subscriberMu.Unlock()
		fmt.Fprintf(w, "lines: %d\nlast line: %s\nsubscribers: %d\n", s.Lines(), last, subs)
	})

	// Server-sent events of every line read from the source.
	debug.HandleSilentFunc("feed-tail", func(w http.ResponseWriter, r *http.Request) {
		serveTail(w, r, s)
	})
}

func serveTail(w http.ResponseWriter, r *http.Request, s Interface) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, c := s.Subscribe()
	defer s.Unsubscribe(id)

	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case payload, ok := <-c:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
