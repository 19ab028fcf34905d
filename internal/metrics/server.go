package metrics

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rcrowley/go-metrics"

	"github.com/wizmini/wizmini/internal/logger"
)

var l = logger.DefaultLogger.NewFacility("metrics", "debug and prometheus endpoints")

// DebugEnabled reports whether WIZMINI_DEBUG=1 is set, gating the
// debug HTTP endpoint the way the teacher's cmd/syncthing gates its
// own debug-only REST routes behind a build/runtime flag.
func DebugEnabled() bool {
	return os.Getenv("WIZMINI_DEBUG") == "1"
}

// Server serves /metrics (Prometheus) and, when DebugEnabled, a
// /debug/httpmetrics JSON endpoint mirroring lib/api's
// getSystemHTTPMetrics handler, routed with the teacher's own
// httprouter rather than the bare net/http ServeMux it uses for that
// one handler, to match how the rest of the pack routes REST APIs.
type Server struct {
	addr string
	srv  *http.Server
}

func (s *Server) String() string { return "metrics@" + s.addr }

// NewServer constructs a Server listening on addr (e.g. "127.0.0.1:8081").
func NewServer(addr string) *Server {
	router := httprouter.New()
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	if DebugEnabled() {
		router.GET("/debug/httpmetrics", debugHTTPMetrics)
	}
	return &Server{addr: addr, srv: &http.Server{Addr: addr, Handler: router}}
}

func debugHTTPMetrics(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	stats := make(map[string]interface{})
	metrics.Each(func(name string, intf interface{}) {
		if m, ok := intf.(metrics.Timer); ok {
			pct := m.Percentiles([]float64{0.50, 0.95, 0.99})
			for i := range pct {
				pct[i] /= 1e6 // ns to ms
			}
			stats[name] = map[string]interface{}{
				"count":         m.Count(),
				"sumMs":         float64(m.Sum()) / 1e6,
				"ratesPerS":     []float64{m.Rate1(), m.Rate5(), m.Rate15()},
				"percentilesMs": pct,
			}
		}
	})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

// Serve runs the debug/metrics HTTP server until ctx is cancelled,
// implementing suture.Service so it can be supervised alongside the
// Index Coordinator and Search Worker.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	l.Infof("metrics endpoint listening on %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
