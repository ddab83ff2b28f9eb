package dbhandlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeStore struct {
	err error
}

func (f *fakeStore) Ping(_ context.Context) error {
	return f.err
}

func doPing(t *testing.T, p Pinger) (int, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler := NewPingHandler(p, zap.NewNop().Sugar())
	router := gin.New()
	router.GET("/ping", handler.Ping)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	res := w.Result()
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	return res.StatusCode, string(body)
}

func TestPing_NoStore(t *testing.T) {
	status, body := doPing(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.JSONEq(t, `{"error":"Vote store is not configured"}`, body)
}

func TestPing_StoreFails(t *testing.T) {
	status, body := doPing(t, &fakeStore{err: errors.New("fail ping")})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{"error":"fail ping"}`, body)
}

func TestPing_OK(t *testing.T) {
	status, body := doPing(t, &fakeStore{})
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, body)
}
