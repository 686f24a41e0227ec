package validator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/status-im/market-hydrator/config"
	"github.com/status-im/market-hydrator/metrics"
	"github.com/status-im/market-hydrator/models"
	"github.com/status-im/market-hydrator/store"
)

// Reason explains a validation result
type Reason string

const (
	ReasonValid              Reason = "valid"
	ReasonFirstWrite         Reason = "first-write"
	ReasonVersionMismatch    Reason = "version-mismatch"
	ReasonExpired            Reason = "expired"
	ReasonStorageUnavailable Reason = "storage-unavailable"
	// ReasonCancelled means the caller stopped waiting; it says nothing about the store
	ReasonCancelled Reason = "cancelled"
)

// Result of a validation. Valid means persisted data may be read.
type Result struct {
	Valid  bool
	Reason Reason
}

// Validator decides whether the persisted tables can be trusted for a server cache
// version. Stale data is cleared as a side effect; storage failures fail closed.
type Validator struct {
	repo    *store.Repository
	ttl     time.Duration
	timeout time.Duration
	now    func() time.Time
	logger *logrus.Entry

	group singleflight.Group

	mu        sync.RWMutex
	last      Result
	validated bool
	done      chan struct{}
}

// New creates a validator over repo
func New(repo *store.Repository, cfg config.ValidatorConfig, logger *logrus.Logger) *Validator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Validator{
		repo:    repo,
		ttl:     cfg.GetTTL(),
		timeout: cfg.GetTimeout(),
		now:     time.Now,
		logger:  logger.WithField("component", "validator"),
		done:    make(chan struct{}),
	}
}

// WithClock replaces the time source, for tests
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Validate checks the stored GlobalCacheInfo against serverVersion. Concurrent calls
// for the same version share one check, which runs detached from the callers'
// contexts. A caller whose ctx ends first gets ReasonCancelled and leaves the last
// result untouched.
func (v *Validator) Validate(ctx context.Context, serverVersion string) Result {
	if ctx.Err() != nil {
		return Result{Reason: ReasonCancelled}
	}
	ch := v.group.DoChan(serverVersion, func() (interface{}, error) {
		checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
		defer cancel()
		return v.validate(checkCtx, serverVersion), nil
	})

	var result Result
	select {
	case res := <-ch:
		result = res.Val.(Result)
	case <-ctx.Done():
		v.logger.WithError(ctx.Err()).Debugf("Stopped waiting for validation of %s", serverVersion)
		return Result{Reason: ReasonCancelled}
	}

	v.mu.Lock()
	v.last = result
	if !v.validated {
		v.validated = true
		close(v.done)
	}
	v.mu.Unlock()

	metrics.RecordValidation(string(result.Reason))
	return result
}

func (v *Validator) validate(ctx context.Context, serverVersion string) Result {
	if !v.repo.Store().Ready() {
		v.logger.Warn("Persistent store not ready, treating cache as invalid")
		return Result{Reason: ReasonStorageUnavailable}
	}

	info, err := v.repo.CacheInfo(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := v.reset(ctx, serverVersion); err != nil {
			return Result{Reason: ReasonStorageUnavailable}
		}
		v.logger.Infof("No cache metadata, initialised version %s", serverVersion)
		return Result{Valid: true, Reason: ReasonFirstWrite}
	case err != nil:
		v.logger.WithError(err).Warn("Failed to read cache metadata")
		return Result{Reason: ReasonStorageUnavailable}
	}

	var reason Reason
	switch {
	case info.Version != serverVersion:
		reason = ReasonVersionMismatch
	case v.now().Sub(info.LastUpdated) > v.ttl:
		reason = ReasonExpired
	default:
		return Result{Valid: true, Reason: ReasonValid}
	}

	if err := v.reset(ctx, serverVersion); err != nil {
		return Result{Reason: ReasonStorageUnavailable}
	}
	v.logger.Infof("Cache invalidated (%s): stored %s at %s, server %s",
		reason, info.Version, info.LastUpdated.Format(time.RFC3339), serverVersion)
	return Result{Reason: reason}
}

func (v *Validator) reset(ctx context.Context, serverVersion string) error {
	err := v.repo.Reset(ctx, models.GlobalCacheInfo{Version: serverVersion, LastUpdated: v.now()})
	if err != nil {
		v.logger.WithError(err).Warn("Failed to reset persistent store")
	}
	return err
}

// Done is closed once the first validation has completed
func (v *Validator) Done() <-chan struct{} {
	return v.done
}

// Wait blocks until the first validation completed or ctx ends
func (v *Validator) Wait(ctx context.Context) error {
	select {
	case <-v.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trusted reports whether the last validation allows reading persisted data
func (v *Validator) Trusted() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.validated && v.last.Valid
}

// Last returns the most recent result
func (v *Validator) Last() (Result, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.last, v.validated
}
