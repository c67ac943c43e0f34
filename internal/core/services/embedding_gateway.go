package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
	"github.com/custodia-labs/librarian/internal/logger"
	"github.com/custodia-labs/librarian/internal/telemetry"
)

// Ensure EmbeddingGateway implements the interface.
var _ driven.EmbeddingService = (*EmbeddingGateway)(nil)

// errMalformed marks a collaborator reply with the wrong shape. It is not retried.
var errMalformed = errors.New("malformed embedding reply")

// GatewayConfig tunes the embedding gateway.
type GatewayConfig struct {
	// BatchSize is the maximum texts per collaborator call.
	BatchSize int

	// MaxRetries bounds retries of one sub-batch after a transient failure.
	MaxRetries int

	// Timeout bounds a single collaborator call.
	Timeout time.Duration

	// RequestsPerSecond limits collaborator calls. Zero disables limiting.
	RequestsPerSecond float64

	// InitialInterval is the first retry delay (default: 250ms).
	InitialInterval time.Duration

	// BreakerFailures is the consecutive failure count that opens the
	// breaker (default: 5).
	BreakerFailures uint32

	// BreakerCooldown is how long the breaker stays open (default: 30s).
	BreakerCooldown time.Duration
}

// GatewayConfigFrom maps the embedding section of the configuration.
func GatewayConfigFrom(cfg domain.EmbeddingConfig) GatewayConfig {
	return GatewayConfig{
		BatchSize:         cfg.BatchSize,
		MaxRetries:        cfg.MaxRetries,
		Timeout:           cfg.Timeout(),
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
}

// EmbeddingGateway wraps an embedding collaborator with sub-batching,
// per-call timeouts, rate limiting, retries and a circuit breaker.
// Failures surface as *domain.EmbeddingError.
type EmbeddingGateway struct {
	svc     driven.EmbeddingService
	cfg     GatewayConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *telemetry.Metrics
}

// NewEmbeddingGateway creates a gateway in front of svc.
// The metrics parameter is optional (can be nil).
func NewEmbeddingGateway(svc driven.EmbeddingService, cfg GatewayConfig, metrics *telemetry.Metrics) *EmbeddingGateway {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 32
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 250 * time.Millisecond
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	g := &EmbeddingGateway{svc: svc, cfg: cfg, metrics: metrics}
	if cfg.RequestsPerSecond > 0 {
		burst := max(1, int(cfg.RequestsPerSecond))
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker %s: %s -> %s", name, from, to)
			g.metrics.RecordBreakerState(name, to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return g
}

// Embed embeds a single query text.
func (g *EmbeddingGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per text in input order. Texts are sent in
// sub-batches of at most BatchSize. If any sub-batch fails after retries,
// the whole batch fails. Cancellation of ctx is returned as is.
func (g *EmbeddingGateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.cfg.BatchSize {
		end := min(start+g.cfg.BatchSize, len(texts))
		vecs, err := g.embedSubBatch(ctx, texts[start:end])
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, classifyEmbeddingError(err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (g *EmbeddingGateway) embedSubBatch(ctx context.Context, texts []string) ([][]float32, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.cfg.InitialInterval

	op := func() ([][]float32, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}
		vecs, err := g.call(ctx, texts)
		switch {
		case err == nil:
			return vecs, nil
		case errors.Is(err, gobreaker.ErrOpenState),
			errors.Is(err, gobreaker.ErrTooManyRequests),
			errors.Is(err, errMalformed),
			errors.Is(err, domain.ErrModelRejected):
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("embedding batch of %d failed, retrying in %s: %v", len(texts), wait, err)
		g.metrics.RecordRetry(ctx, g.svc.ModelName())
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(g.cfg.MaxRetries)+1),
		backoff.WithNotify(notify),
	)
}

// call makes one bounded collaborator call through the breaker and
// validates the reply shape.
func (g *EmbeddingGateway) call(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	started := time.Now()
	res, err := g.breaker.Execute(func() (interface{}, error) {
		vecs, err := g.svc.EmbedBatch(callCtx, texts)
		if err != nil {
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
			}
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("%w: %d vectors for %d texts", errMalformed, len(vecs), len(texts))
		}
		want := g.svc.Dimensions()
		for i, v := range vecs {
			if len(v) != want {
				return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", errMalformed, i, len(v), want)
			}
		}
		return vecs, nil
	})
	g.metrics.RecordEmbedding(ctx, time.Since(started), len(texts), err == nil)
	if err != nil {
		return nil, err
	}
	return res.([][]float32), nil
}

func classifyEmbeddingError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &domain.EmbeddingError{Kind: domain.EmbeddingTimeout, Err: err}
	}
	return &domain.EmbeddingError{Kind: domain.EmbeddingUnavailable, Err: err}
}

// Dimensions returns the collaborator's vector size.
func (g *EmbeddingGateway) Dimensions() int {
	return g.svc.Dimensions()
}

// ModelName returns the collaborator's model name.
func (g *EmbeddingGateway) ModelName() string {
	return g.svc.ModelName()
}

// Ping checks the collaborator is reachable.
func (g *EmbeddingGateway) Ping(ctx context.Context) error {
	return g.svc.Ping(ctx)
}

// Close releases the collaborator.
func (g *EmbeddingGateway) Close() error {
	return g.svc.Close()
}
