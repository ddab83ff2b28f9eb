package http

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aseptimu/matchup-votes/internal/app/config"
	"github.com/aseptimu/matchup-votes/internal/app/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type helloHandlers struct{}

func (helloHandlers) RegisterRoutes(r *gin.Engine) {
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
}

func TestServer_MiddlewareChain(t *testing.T) {
	cfg := &config.ConfigType{ServerAddress: "localhost:0", CORSOrigins: []string{"https://votes.example"}}
	s, err := NewServer(cfg, zap.NewNop().Sugar(), helloHandlers{}, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://votes.example")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://votes.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServer_CORSPreflight(t *testing.T) {
	cfg := &config.ConfigType{ServerAddress: "localhost:0", CORSOrigins: []string{"*"}}
	s, err := NewServer(cfg, zap.NewNop().Sugar(), helloHandlers{}, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, "/votes", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	cfg := &config.ConfigType{ServerAddress: addr, CORSOrigins: []string{"*"}}
	s, err := NewServer(cfg, zap.NewNop().Sugar(), helloHandlers{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

type limitedHandlers struct{}

func (limitedHandlers) RegisterRoutes(r *gin.Engine) {
	limiter := middleware.NewRateLimiter(0.001, 1)
	r.POST("/votes", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })
}

func postVoteAs(h http.Handler, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/votes", nil)
	req.Header.Set("X-Forwarded-For", forwardedFor)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestServer_ForwardedForIgnoredByDefault(t *testing.T) {
	cfg := &config.ConfigType{ServerAddress: "localhost:0", CORSOrigins: []string{"*"}}
	s, err := NewServer(cfg, zap.NewNop().Sugar(), limitedHandlers{}, nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, postVoteAs(s.Handler(), "203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, postVoteAs(s.Handler(), "203.0.113.2"))
}

func TestServer_ForwardedForFromTrustedProxy(t *testing.T) {
	cfg := &config.ConfigType{
		ServerAddress:  "localhost:0",
		CORSOrigins:    []string{"*"},
		TrustedProxies: []string{"192.0.2.0/24"},
	}
	s, err := NewServer(cfg, zap.NewNop().Sugar(), limitedHandlers{}, nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, postVoteAs(s.Handler(), "203.0.113.1"))
	assert.Equal(t, http.StatusOK, postVoteAs(s.Handler(), "203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, postVoteAs(s.Handler(), "203.0.113.1"))
}

func TestNewServer_InvalidTrustedProxies(t *testing.T) {
	cfg := &config.ConfigType{ServerAddress: "localhost:0", TrustedProxies: []string{"not-an-ip"}}
	_, err := NewServer(cfg, zap.NewNop().Sugar(), helloHandlers{}, nil)
	assert.Error(t, err)
}
