package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/threecolor/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/threecolor/internal/ipc/ring"
	"github.com/GriffinCanCode/threecolor/internal/process/supervisor"
)

type fakeBuffer struct{ stats ring.Stats }

func (f fakeBuffer) Stats() ring.Stats { return f.stats }

type fakeProgress struct{ snap supervisor.Snapshot }

func (f fakeProgress) Snapshot() supervisor.Snapshot { return f.snap }

func newTestServer(t *testing.T, stats ring.Stats, snap supervisor.Snapshot) (*Server, *monitoring.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := monitoring.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	srv := New(Config{
		Gatherer:    reg,
		Metrics:     metrics,
		Development: true,
	}, fakeBuffer{stats}, fakeProgress{snap})
	return srv, metrics
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		stats      ring.Stats
		snap       supervisor.Snapshot
		wantStatus string
		wantBest   *int
	}{
		{
			name:       "no frames yet",
			stats:      ring.Stats{Capacity: 1024, Free: 1024, Alive: true},
			snap:       supervisor.Snapshot{Best: -1},
			wantStatus: "ok",
		},
		{
			name:       "search running",
			stats:      ring.Stats{Capacity: 1024, Used: 10, Free: 1014, Alive: true},
			snap:       supervisor.Snapshot{Best: 2, Frames: 7},
			wantStatus: "ok",
			wantBest:   intPtr(2),
		},
		{
			name:       "shutting down",
			stats:      ring.Stats{Capacity: 1024, Free: 1024},
			snap:       supervisor.Snapshot{Best: 0, Frames: 9},
			wantStatus: "stopping",
			wantBest:   intPtr(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.stats, tt.snap)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			srv.Handler().ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)

			var got Health
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantBest, got.Best)
			assert.Equal(t, tt.snap.Frames, got.Frames)
			assert.Equal(t, Buffer{Capacity: tt.stats.Capacity, Used: tt.stats.Used, Free: tt.stats.Free}, got.Buffer)
		})
	}
}

func intPtr(n int) *int { return &n }

func TestMetricsEndpoint(t *testing.T) {
	srv, metrics := newTestServer(t, ring.Stats{Capacity: 8, Free: 8, Alive: true}, supervisor.Snapshot{Best: -1})
	metrics.RecordFrameRead(5)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "threecolor_ring_frames_read_total 1")
	assert.Contains(t, body, "go_goroutines")
}

func TestRequestsAreCounted(t *testing.T) {
	srv, _ := newTestServer(t, ring.Stats{Alive: true}, supervisor.Snapshot{Best: -1})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	}

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(w.Body.String(), `threecolor_http_requests_total{method="GET",path="/health",status="200"} 3`))
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := New(Config{
		Gatherer:          monitoring.NewRegistry(),
		RequestsPerSecond: 1,
		Burst:             2,
		Development:       true,
	}, fakeBuffer{}, fakeProgress{supervisor.Snapshot{Best: -1}})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestServeStopsWithContext(t *testing.T) {
	srv, _ := newTestServer(t, ring.Stats{Alive: true}, supervisor.Snapshot{Best: -1})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestHealthWithoutProgress(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := New(Config{Gatherer: monitoring.NewRegistry(), Development: true},
		fakeBuffer{ring.Stats{Capacity: 16, Used: 3, Free: 13, Alive: true}}, nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var got Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "ok", got.Status)
	assert.Nil(t, got.Best)
	assert.Equal(t, 3, got.Buffer.Used)
}
