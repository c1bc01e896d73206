package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/agenthands/cbning/internal/config"
	"github.com/agenthands/cbning/internal/logger"
)

// ErrUnavailable is returned while the breaker is open or saturated in half-open state.
var ErrUnavailable = errors.New("llm temporarily unavailable")

// BreakerClient guards an LLMClient with a circuit breaker so a failing provider is
// not hammered on every turn.
type BreakerClient struct {
	next LLMClient
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerClient(name string, next LLMClient, cfg config.BreakerConfig) *BreakerClient {
	log := logger.Get()
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.IntervalSeconds) * time.Second,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// A caller giving up is not the provider's fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &BreakerClient{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerClient) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Generate(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", err
	}
	return out.(string), nil
}

// State exposes the breaker state for health reporting.
func (b *BreakerClient) State() string {
	return b.cb.State().String()
}
