// Package http собирает gin-движок с middleware и запускает HTTP-сервер голосования.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aseptimu/matchup-votes/internal/app/config"
	handlers "github.com/aseptimu/matchup-votes/internal/app/handlers/http"
	"github.com/aseptimu/matchup-votes/internal/app/middleware"
	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

type Server struct {
	srv    *http.Server
	logger *zap.SugaredLogger
}

// NewServer навешивает middleware, регистрирует маршруты h и оборачивает
// движок CORS-обработчиком. observer может быть nil.
func NewServer(cfg *config.ConfigType, logger *zap.SugaredLogger, h handlers.Handlers, observer middleware.RequestObserver) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	logger.Debug("Setting up middleware")
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.MiddlewareLogger(logger))
	if observer != nil {
		r.Use(middleware.Metrics(observer))
	}
	r.Use(middleware.GzipMiddleware())
	h.RegisterRoutes(r)

	return &Server{
		srv:    &http.Server{Addr: cfg.ServerAddress, Handler: withCORS(r, cfg.CORSOrigins)},
		logger: logger,
	}, nil
}

func withCORS(next http.Handler, origins []string) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Content-Encoding", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	})(next)
}

// Handler возвращает корневой обработчик сервера (для тестов через httptest).
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run слушает адрес сервера до отмены ctx, затем корректно завершает
// обработку текущих запросов.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Infow("Initializing server", "address", s.srv.Addr)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		s.logger.Infow("Shutting down server", "signal", "signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorw("Error shutting down server", "error", err)
		}
	}()

	s.logger.Infow("Запуск HTTP сервера", "addr", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	wg.Wait()
	return nil
}
