package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/wonny/aegis-rebalance/pkg/config"
	"github.com/wonny/aegis-rebalance/pkg/logger"
)

// drainGrace is added on top of the batch timeout when draining in-flight runs
const drainGrace = 15 * time.Second

// Server serves the stateless rebalance API.
// ⭐ SSOT: API 서버 설정은 이 파일에서만
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
	drain      time.Duration
}

// New creates an API server.
// WriteTimeout and the shutdown drain both cover one full batch run.
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	budget := cfg.BatchTimeout + drainGrace
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: budget,
			IdleTimeout:  60 * time.Second,
		},
		logger: log.WithComponent("api"),
		drain:  budget,
	}
}

// Run listens on the configured address until ctx is done, then drains
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs on an existing listener. A nil return means a clean drain.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.WithField("addr", ln.Addr().String()).Info("rebalance API listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	// 진행 중인 실행은 배치 타임아웃만큼 기다림
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.drain)
	defer cancel()

	s.logger.WithField("drain", s.drain.String()).Info("draining rebalance API")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
