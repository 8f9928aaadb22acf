// Package api serves the vessel state, bridge text and passage journal over
// HTTP, accepts positions from hosts that push instead of feeding serial
// lines, and streams engine events over a WebSocket.
package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/banshee-data/canal.report/internal/bridges"
	"github.com/banshee-data/canal.report/internal/db"
	"github.com/banshee-data/canal.report/internal/engine"
	"github.com/banshee-data/canal.report/internal/feed"
	"github.com/banshee-data/canal.report/internal/httputil"
	"github.com/banshee-data/canal.report/internal/timeutil"
	"github.com/banshee-data/canal.report/internal/vessel"
	"github.com/banshee-data/canal.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxPositionBody bounds POST /api/positions.
const maxPositionBody = 1 << 20

// Engine is the part of engine.Engine the API uses.
type Engine interface {
	Snapshot() *engine.Snapshot
	Registry() *bridges.Registry
	Submit(ctx context.Context, id string, r vessel.Report, wait bool) error
	Subscribe() (string, <-chan engine.Event)
	Unsubscribe(string)
}

type Server struct {
	engine Engine
	db     *db.DB // nil when the journal is disabled
	clock  timeutil.Clock
	hub    *Hub

	lastPosition atomic.Int64 // unix nanos of the last accepted POST
}

func NewServer(e Engine, journal *db.DB, clock timeutil.Clock) *Server {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &Server{engine: e, db: journal, clock: clock, hub: NewHub()}
	s.hub.SetHello(func() any {
		return helloMessage{Kind: "snapshot", Snapshot: s.engine.Snapshot()}
	})
	return s
}

// helloMessage is the first message on /api/events.
type helloMessage struct {
	Kind     string           `json:"kind"`
	Snapshot *engine.Snapshot `json:"snapshot"`
}

// Hub returns the WebSocket hub; run it with Hub().Run.
func (s *Server) Hub() *Hub { return s.hub }

// LastPosition returns when a position was last accepted over HTTP.
func (s *Server) LastPosition() time.Time {
	ns := s.lastPosition.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter { return lrw.ResponseWriter }

// Hijack is needed by the WebSocket upgrade on /api/events.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/vessels", s.listVessels)
	mux.HandleFunc("/api/bridge_text", s.showBridgeText)
	mux.HandleFunc("/api/bridges", s.listBridges)
	mux.HandleFunc("/api/positions", s.postPositions)
	mux.HandleFunc("/api/passages", s.listPassages)
	mux.HandleFunc("/api/snapshot", s.showSnapshot)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.Handle("/api/events", s.hub)
	mux.HandleFunc("/debug/vessels", s.handleVesselChart)
	return mux
}

func (s *Server) listVessels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	views := s.engine.Snapshot().Vessels
	if views == nil {
		views = []vessel.View{}
	}
	httputil.WriteJSONOK(w, views)
}

type bridgeTextResponse struct {
	Text      string    `json:"text"`
	Vessels   int       `json:"vessels"`
	Published time.Time `json:"published"`
}

func (s *Server) showBridgeText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap := s.engine.Snapshot()
	httputil.WriteJSONOK(w, bridgeTextResponse{
		Text:      snap.Text,
		Vessels:   len(snap.Vessels),
		Published: snap.Published,
	})
}

func (s *Server) listBridges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.engine.Registry().Ordered())
}

func (s *Server) showSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.engine.Snapshot())
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

// positionResult reports what happened to one posted position.
type positionResult struct {
	Index    int    `json:"index"`
	VesselID string `json:"vessel_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

type positionsResponse struct {
	Accepted int              `json:"accepted"`
	Rejected []positionResult `json:"rejected,omitempty"`
}

// postPositions accepts one position object or an array of them, in the
// same JSON shape the line feed carries. Each report is processed before
// the response is written.
func (s *Server) postPositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPositionBody))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("read body: %v", err))
		return
	}

	body = bytes.TrimSpace(body)
	var items []json.RawMessage
	single := len(body) > 0 && body[0] == '{'
	if single {
		items = []json.RawMessage{body}
	} else if err := json.Unmarshal(body, &items); err != nil {
		httputil.BadRequest(w, "body must be a position object or an array of them")
		return
	}

	now := s.clock.Now()
	resp := positionsResponse{}
	for i, raw := range items {
		id, report, err := feed.ParseReport(string(raw), now)
		if err == nil {
			err = s.engine.Submit(r.Context(), id, report, true)
		}
		if err != nil {
			if errors.Is(err, engine.ErrInboxFull) {
				httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
			resp.Rejected = append(resp.Rejected, positionResult{Index: i, VesselID: id, Error: err.Error()})
			continue
		}
		resp.Accepted++
	}
	if resp.Accepted > 0 {
		s.lastPosition.Store(s.clock.Now().UnixNano())
	}

	switch {
	case single && resp.Accepted == 0:
		httputil.BadRequest(w, resp.Rejected[0].Error)
	case single:
		httputil.WriteJSON(w, http.StatusAccepted, resp)
	default:
		httputil.WriteJSONOK(w, resp)
	}
}

func (s *Server) listPassages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "passage journal disabled")
		return
	}

	q := r.URL.Query()
	f := db.PassageFilter{
		BridgeID:     q.Get("bridge"),
		VesselID:     q.Get("vessel"),
		AcceptedOnly: q.Get("accepted") == "true",
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		f.Limit = n
	}
	if sv := q.Get("since"); sv != "" {
		t, err := time.Parse(time.RFC3339, sv)
		if err != nil {
			httputil.BadRequest(w, "invalid 'since' parameter: want RFC3339")
			return
		}
		f.Since = t
	}
	if f.BridgeID != "" {
		if _, ok := s.engine.Registry().Get(f.BridgeID); !ok {
			httputil.NotFound(w, fmt.Sprintf("unknown bridge %q", f.BridgeID))
			return
		}
	}

	rows, err := s.db.Passages(r.Context(), f)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve passages: %v", err))
		return
	}
	httputil.WriteJSONOK(w, rows)
}
