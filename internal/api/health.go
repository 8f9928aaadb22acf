package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/canal.report/internal/httputil"
	"github.com/banshee-data/canal.report/internal/monitoring"
	"github.com/banshee-data/canal.report/internal/timeutil"
)

// FeedService is the health service name that tracks feed liveness. The
// overall ("") service stays SERVING while the process is up.
const FeedService = "canal.report.Feed"

// FeedHealth marks FeedService NOT_SERVING once no position has arrived
// for Silence. Activity sources are polled; the latest one wins.
type FeedHealth struct {
	server  *health.Server
	clock   timeutil.Clock
	silence time.Duration
	sources []func() time.Time
	started time.Time

	mu     sync.Mutex
	status healthpb.HealthCheckResponse_ServingStatus
}

func NewFeedHealth(clock timeutil.Clock, silence time.Duration, sources ...func() time.Time) *FeedHealth {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	h := &FeedHealth{
		server:  health.NewServer(),
		clock:   clock,
		silence: silence,
		sources: sources,
		started: clock.Now(),
		status:  healthpb.HealthCheckResponse_SERVING,
	}
	h.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.server.SetServingStatus(FeedService, healthpb.HealthCheckResponse_SERVING)
	return h
}

// Server returns the gRPC health implementation.
func (h *FeedHealth) Server() *health.Server { return h.server }

// Register adds the health service to s.
func (h *FeedHealth) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// LastActivity returns the latest activity time, or process start when
// nothing has arrived yet.
func (h *FeedHealth) LastActivity() time.Time {
	last := h.started
	for _, f := range h.sources {
		if t := f(); t.After(last) {
			last = t
		}
	}
	return last
}

// Check re-evaluates feed liveness at now and returns the status.
func (h *FeedHealth) Check(now time.Time) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	silentFor := now.Sub(h.LastActivity())
	if h.silence > 0 && silentFor > h.silence {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	h.mu.Lock()
	changed := status != h.status
	h.status = status
	h.mu.Unlock()

	if changed {
		monitoring.Logf("[health] feed %s (silent for %s)", status, silentFor.Round(time.Second))
		h.server.SetServingStatus(FeedService, status)
	}
	return status
}

// Run checks liveness every interval until ctx is done, then shuts the
// health server down so watchers see NOT_SERVING.
func (h *FeedHealth) Run(ctx context.Context, interval time.Duration) error {
	ticker := h.clock.NewTicker(interval)
	defer ticker.Stop()
	defer h.server.Shutdown()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C():
			h.Check(now)
		}
	}
}

// ServeHTTP mirrors the feed status as /healthz for load balancers that
// do not speak gRPC.
func (h *FeedHealth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(h.clock.Now())
	body := map[string]any{
		"status":        status.String(),
		"last_activity": h.LastActivity().UTC(),
	}
	code := http.StatusOK
	if status != healthpb.HealthCheckResponse_SERVING {
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, body)
}

// ServeGRPC serves the health service on addr until ctx is done.
func (h *FeedHealth) ServeGRPC(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s := grpc.NewServer()
	h.Register(s)

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()
	monitoring.Logf("[health] gRPC health listening on %s", lis.Addr())
	if err := s.Serve(lis); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
