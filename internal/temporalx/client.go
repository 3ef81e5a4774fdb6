// Package temporalx connects the podcast run to a Temporal cluster.
package temporalx

import (
	"context"
	"fmt"
	"time"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/killallgit/audiolingu-api/pkg/config"
	"github.com/killallgit/audiolingu-api/pkg/logger"
	"github.com/killallgit/audiolingu-api/pkg/retry"
)

const dialTimeout = 5 * time.Second

// NewClient dials the configured cluster, retrying while it comes up
func NewClient(ctx context.Context, cfg config.TemporalConfig, log *logger.Logger) (temporalsdkclient.Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("temporal.address is not set")
	}
	if log == nil {
		log = logger.Nop()
	}

	opts := temporalsdkclient.Options{
		HostPort:  cfg.Address,
		Namespace: cfg.Namespace,
		Logger:    log.With("component", "temporal"),
	}

	policy := retry.Policy{
		MaxAttempts:    6,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
	}.WithOnRetry(func(err error, wait time.Duration) {
		log.Warn("Temporal not reachable; retrying", "address", cfg.Address, "namespace", cfg.Namespace, "wait", wait.String(), "error", err)
	})

	c, err := retry.Do(ctx, policy, func(ctx context.Context) (temporalsdkclient.Client, error) {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		return temporalsdkclient.DialContext(dialCtx, opts)
	})
	if err != nil {
		return nil, fmt.Errorf("temporal dial failed (address=%s namespace=%s): %w", cfg.Address, cfg.Namespace, err)
	}
	log.Info("Connected to Temporal", "address", cfg.Address, "namespace", cfg.Namespace)
	return c, nil
}
