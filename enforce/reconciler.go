// api/enforce/reconciler.go
package enforce

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/warden-net/warden/api/errors"
	logger "github.com/warden-net/warden/api/logging"
	"github.com/warden-net/warden/api/model"
	"github.com/warden-net/warden/api/telemetry"
)

// Plan is the desired enforcement state: one action per device. A
// device absent from the plan must carry no standing rule.
type Plan map[string]model.Action

// DeviceState is the reconciler's record for one device.
type DeviceState struct {
	Action    model.Action `json:"action"`
	AppliedAt time.Time    `json:"applied_at"`
	LastError string       `json:"last_error,omitempty"`
}

// Reconciler converges the enforcement primitive to a desired plan.
// Reconciliation is idempotent: re-applying an unchanged plan issues
// no directives. Per-device failures are isolated; every other device
// still converges and the failed device keeps its last applied state.
type Reconciler struct {
	enforcer Enforcer

	maxRetries          int
	retryDelay          time.Duration
	perDirectiveTimeout time.Duration
	concurrency         int

	mu      sync.Mutex
	applied map[string]model.Action
	states  map[string]DeviceState
}

func NewReconciler(enforcer Enforcer, maxRetries int, directiveTimeout time.Duration) *Reconciler {
	return &Reconciler{
		enforcer:            enforcer,
		maxRetries:          maxRetries,
		retryDelay:          200 * time.Millisecond,
		perDirectiveTimeout: directiveTimeout,
		concurrency:         8,
		applied:             make(map[string]model.Action),
		states:              make(map[string]DeviceState),
	}
}

// Resync seeds the applied map from whatever the enforcement primitive
// currently holds. Called once at startup so rules surviving a restart
// are adopted instead of blindly reissued.
func (r *Reconciler) Resync(ctx context.Context) error {
	directives, err := r.enforcer.ListDirectives(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = make(map[string]model.Action, len(directives))
	for _, d := range directives {
		r.applied[d.MAC] = d.Action
		r.states[d.MAC] = DeviceState{Action: d.Action, AppliedAt: time.Now()}
	}
	logger.Info("Adopted existing enforcement state", zap.Int("directives", len(directives)))
	return nil
}

// Apply converges enforcement to the plan. It returns the number of
// directives actually issued (changes, not re-affirmations).
func (r *Reconciler) Apply(ctx context.Context, plan Plan) (int, error) {
	toApply, toRemove := r.diff(plan)
	if len(toApply) == 0 && len(toRemove) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	var mu sync.Mutex
	changed := 0

	for _, d := range toApply {
		d := d
		g.Go(func() error {
			err := r.applyWithRetry(gctx, d)
			r.record(d.MAC, d.Action, err)
			if err != nil {
				telemetry.DirectiveFailures.WithLabelValues(string(d.Action)).Inc()
				logger.Error("Directive failed, keeping last applied state",
					zap.String("mac", d.MAC),
					zap.String("action", string(d.Action)),
					zap.Error(err))
				return nil
			}
			telemetry.DirectivesApplied.WithLabelValues(string(d.Action)).Inc()
			mu.Lock()
			changed++
			mu.Unlock()
			return nil
		})
	}

	for _, mac := range toRemove {
		mac := mac
		g.Go(func() error {
			err := r.removeWithRetry(gctx, mac)
			r.recordRemoval(mac, err)
			if err != nil {
				telemetry.DirectiveFailures.WithLabelValues("remove").Inc()
				logger.Error("Directive removal failed",
					zap.String("mac", mac), zap.Error(err))
				return nil
			}
			mu.Lock()
			changed++
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	return changed, err
}

// State returns a copy of the per-device reconciliation records.
func (r *Reconciler) State() map[string]DeviceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]DeviceState, len(r.states))
	for mac, st := range r.states {
		out[mac] = st
	}
	return out
}

// diff computes the directives and removals that separate the current
// applied state from the plan. Unenforceable actions count as absent.
func (r *Reconciler) diff(plan Plan) ([]Directive, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var toApply []Directive
	var toRemove []string

	for mac, action := range plan {
		if !Enforceable(action) {
			continue
		}
		if current, ok := r.applied[mac]; ok && current == action {
			continue
		}
		toApply = append(toApply, Directive{MAC: mac, Action: action})
	}

	for mac := range r.applied {
		action, ok := plan[mac]
		if ok && Enforceable(action) {
			continue
		}
		toRemove = append(toRemove, mac)
	}

	return toApply, toRemove
}

func (r *Reconciler) applyWithRetry(ctx context.Context, d Directive) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		actx, cancel := context.WithTimeout(ctx, r.perDirectiveTimeout)
		lastErr = r.enforcer.ApplyDirective(actx, d)
		cancel()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.DeadlineExceeded) {
			lastErr = apperrors.ErrDirectiveTimeout
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-time.After(r.retryDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return &apperrors.EnforcementApplyError{
		MAC:      d.MAC,
		Action:   string(d.Action),
		Attempts: r.maxRetries,
		Err:      lastErr,
	}
}

func (r *Reconciler) removeWithRetry(ctx context.Context, mac string) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		actx, cancel := context.WithTimeout(ctx, r.perDirectiveTimeout)
		lastErr = r.enforcer.RemoveDirective(actx, mac)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-time.After(r.retryDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (r *Reconciler) record(mac string, action model.Action, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		st := r.states[mac]
		st.LastError = err.Error()
		r.states[mac] = st
		return
	}
	r.applied[mac] = action
	r.states[mac] = DeviceState{Action: action, AppliedAt: time.Now()}
}

func (r *Reconciler) recordRemoval(mac string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		st := r.states[mac]
		st.LastError = err.Error()
		r.states[mac] = st
		return
	}
	delete(r.applied, mac)
	delete(r.states, mac)
}
