package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"alcyxob/emstore/internal/repository"
)

// Checker exposes liveness and readiness endpoints.
type Checker struct {
	health healthcheck.Handler
	log    *zap.Logger
}

func NewChecker(log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Checker{health: healthcheck.NewHandler(), log: log}
	c.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	return c
}

// AddBackend registers a readiness check that pings p with the given timeout.
func (c *Checker) AddBackend(name string, p repository.Pinger, timeout time.Duration) {
	c.health.AddReadinessCheck(name, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			c.log.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			return err
		}
		return nil
	})
}

func (c *Checker) LiveHandler() http.Handler {
	return http.HandlerFunc(c.health.LiveEndpoint)
}

func (c *Checker) ReadyHandler() http.Handler {
	return http.HandlerFunc(c.health.ReadyEndpoint)
}
