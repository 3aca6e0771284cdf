package secretstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/systmms/credops/internal/logging"
)

// TargetResult is the per-store outcome of a publish. Each target is written
// independently; there is no atomicity or rollback across targets, and a
// failure in one never prevents the write to another.
type TargetResult struct {
	Store string
	Err   error
}

// Detail renders the result for a rotation record.
func (r TargetResult) Detail() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Store, r.Err)
	}
	return fmt.Sprintf("%s: ok", r.Store)
}

// Publisher pushes freshly rotated values to every configured backend.
type Publisher struct {
	targets []SecretStore
	logger  *logging.Logger
}

// NewPublisher creates a publisher over the given stores.
func NewPublisher(logger *logging.Logger, targets ...SecretStore) *Publisher {
	return &Publisher{targets: targets, logger: logger}
}

// Publish writes the value for service/key to all targets, best effort. The
// returned error is non-nil only when every target failed; individual
// outcomes are always available in the results.
func (p *Publisher) Publish(ctx context.Context, service, key, value string) ([]TargetResult, error) {
	results := make([]TargetResult, 0, len(p.targets))
	failures := 0

	for _, target := range p.targets {
		err := target.Set(ctx, service, key, value)
		if err != nil {
			failures++
			p.logger.Warn("Publish to %s failed for %s/%s: %v", target.Name(), service, key, err)
		} else {
			p.logger.Debug("Published %s/%s to %s (value: %s)", service, key, target.Name(), logging.Secret(value))
		}
		results = append(results, TargetResult{Store: target.Name(), Err: err})
	}

	if len(p.targets) > 0 && failures == len(p.targets) {
		return results, fmt.Errorf("publish failed on all %d targets", failures)
	}
	return results, nil
}

// DetailString flattens target results into a single audit detail.
func DetailString(results []TargetResult) string {
	if len(results) == 0 {
		return "no publish targets configured"
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Detail()
	}
	return strings.Join(parts, "; ")
}
