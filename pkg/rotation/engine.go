package rotation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/systmms/credops/internal/audit"
	"github.com/systmms/credops/internal/logging"
	"github.com/systmms/credops/internal/metrics"
	"github.com/systmms/credops/internal/secure"
	"github.com/systmms/credops/pkg/secretstore"
)

// EngineConfig bounds a cycle's resource usage.
type EngineConfig struct {
	// MaxParallel caps concurrent per-service rotations. Keys within one
	// service always rotate sequentially regardless of this value.
	MaxParallel int

	// RotateTimeout bounds a single provider rotation call.
	RotateTimeout time.Duration
}

type registration struct {
	policy  *Policy
	rotator ServiceRotator
}

// Engine walks all registered (policy, rotator) pairs once per cycle. One
// rotator's failure never aborts or blocks another's work.
type Engine struct {
	mu       sync.RWMutex
	services map[string]*registration
	order    []string

	publisher *secretstore.Publisher
	auditLog  *audit.Log
	logger    *logging.Logger
	state     *StateStore

	maxParallel   int
	rotateTimeout time.Duration
	now           func() time.Time
}

// NewEngine creates a rotation engine publishing through the given
// publisher.
func NewEngine(publisher *secretstore.Publisher, logger *logging.Logger, auditLog *audit.Log, cfg EngineConfig) *Engine {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if cfg.RotateTimeout <= 0 {
		cfg.RotateTimeout = 30 * time.Second
	}
	return &Engine{
		services:      make(map[string]*registration),
		publisher:     publisher,
		auditLog:      auditLog,
		logger:        logger,
		maxParallel:   cfg.MaxParallel,
		rotateTimeout: cfg.RotateTimeout,
		now:           time.Now,
	}
}

// Register adds a service. Registering the same service twice is an error.
func (e *Engine) Register(policy *Policy, rotator ServiceRotator) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.services[policy.Service]; exists {
		return fmt.Errorf("service %q already registered", policy.Service)
	}
	e.services[policy.Service] = &registration{policy: policy, rotator: rotator}
	e.order = append(e.order, policy.Service)
	e.logger.Debug("Registered %s rotator for service %s", rotator.Kind(), policy.Service)
	return nil
}

// Policies returns registered policies in registration order.
func (e *Engine) Policies() []*Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*Policy, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.services[name].policy)
	}
	return out
}

// SetStateStore attaches persistent schedule state. Persisted last-rotation
// timestamps are restored into the registered policies immediately.
func (e *Engine) SetStateStore(store *StateStore) error {
	state, err := store.Load()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = store
	for service, keys := range state {
		reg, ok := e.services[service]
		if !ok {
			continue
		}
		for key, last := range keys {
			reg.policy.RestoreLast(key, last)
		}
	}
	return nil
}

// RunCycle considers every key of every registered service and returns the
// cycle report. Services rotate concurrently up to MaxParallel; a cancelled
// context records remaining due keys as interrupted failures.
func (e *Engine) RunCycle(ctx context.Context, dryRun bool) *Report {
	e.mu.RLock()
	regs := make([]*registration, 0, len(e.order))
	for _, name := range e.order {
		regs = append(regs, e.services[name])
	}
	e.mu.RUnlock()

	report := &Report{StartedAt: e.now(), DryRun: dryRun}

	sem := make(chan struct{}, e.maxParallel)
	var wg sync.WaitGroup
	for _, reg := range regs {
		wg.Add(1)
		go func(reg *registration) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			e.rotateService(ctx, reg, dryRun, report)
		}(reg)
	}
	wg.Wait()

	report.FinishedAt = e.now()
	metrics.RecordCycleDuration(report.FinishedAt.Sub(report.StartedAt).Seconds())

	if e.state != nil && !dryRun {
		if err := e.persistState(); err != nil {
			e.logger.Warn("Failed to persist schedule state: %v", err)
		}
	}
	return report
}

// rotateService walks one service's keys strictly sequentially, so
// interdependent credentials (for example username+password pairs) are
// never invalidated mid-flight.
func (e *Engine) rotateService(ctx context.Context, reg *registration, dryRun bool, report *Report) {
	policy := reg.policy
	for _, key := range policy.Keys {
		now := e.now()
		due := policy.Due(key, now)

		if ctx.Err() != nil {
			if due {
				e.record(report, Record{
					Service: policy.Service, Key: key, RotatedAt: now,
					Outcome: OutcomeFailed, Detail: "interrupted",
				})
			} else {
				e.record(report, e.skippedRecord(policy, key, now))
			}
			continue
		}

		if !due {
			e.record(report, e.skippedRecord(policy, key, now))
			continue
		}

		if dryRun {
			e.record(report, Record{
				Service: policy.Service, Key: key, RotatedAt: now,
				Outcome: OutcomeSkipped, Detail: "due (dry-run)",
			})
			continue
		}

		e.record(report, e.rotateKey(ctx, reg, key, now))
	}
}

// rotateKey performs one bounded rotation attempt and publishes the result.
// A failed attempt leaves the schedule untouched so the next cycle retries.
func (e *Engine) rotateKey(ctx context.Context, reg *registration, key string, now time.Time) Record {
	policy := reg.policy

	rctx, cancel := context.WithTimeout(ctx, e.rotateTimeout)
	value, err := reg.rotator.Rotate(rctx, key)
	cancel()

	if err != nil {
		detail := err.Error()
		if errors.Is(ctx.Err(), context.Canceled) {
			detail = "interrupted"
		} else if KindOf(err) == ErrUpstreamTimeout || errors.Is(err, context.DeadlineExceeded) {
			detail = fmt.Sprintf("%s: %v", ErrUpstreamTimeout, err)
		}
		e.logger.Error("Rotation failed for %s/%s: %v", policy.Service, key, err)
		return Record{
			Service: policy.Service, Key: key, RotatedAt: now,
			Outcome: OutcomeFailed, Detail: detail,
		}
	}

	// Keep the plaintext sealed between generation and publication.
	sealed := secure.NewValue([]byte(value))
	defer sealed.Close()
	value = ""

	var results []secretstore.TargetResult
	publishErr := sealed.Reveal(func(plaintext []byte) error {
		var revealErr error
		results, revealErr = e.publisher.Publish(ctx, policy.Service, key, string(plaintext))
		return revealErr
	})
	if publishErr != nil {
		e.logger.Warn("Publish incomplete for %s/%s: %v", policy.Service, key, publishErr)
	}

	// Publication is best effort per target; the rotation itself succeeded,
	// so bookkeeping advances and the per-target outcomes go in the detail.
	policy.MarkRotated(key, now)
	e.logger.Info("Rotated %s/%s", policy.Service, key)

	return Record{
		Service: policy.Service, Key: key, RotatedAt: now,
		Outcome: OutcomeRotated, Detail: secretstore.DetailString(results),
	}
}

func (e *Engine) skippedRecord(policy *Policy, key string, now time.Time) Record {
	detail := "not due"
	if next, ok := policy.NextRotation(key); ok {
		detail = "not due until " + next.UTC().Format(time.RFC3339)
	}
	return Record{
		Service: policy.Service, Key: key, RotatedAt: now,
		Outcome: OutcomeSkipped, Detail: detail,
	}
}

func (e *Engine) record(report *Report, rec Record) {
	report.append(rec)
	e.auditLog.Record(audit.EventRotation, fmt.Sprintf("%s %s/%s", rec.Outcome, rec.Service, rec.Key), map[string]string{
		"service": rec.Service,
		"key":     rec.Key,
		"outcome": string(rec.Outcome),
		"detail":  rec.Detail,
	})
	metrics.RecordRotation(rec.Service, string(rec.Outcome))
}

func (e *Engine) persistState() error {
	state := make(ScheduleState)
	for _, policy := range e.Policies() {
		last := policy.LastAll()
		if len(last) > 0 {
			state[policy.Service] = last
		}
	}
	return e.state.Save(state)
}
