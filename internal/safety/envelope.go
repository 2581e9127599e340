// Package safety implements the process-local safety envelope around
// the healing loop: the kill switch, the rolling admission window, the
// single-writer healing lock with cooldown, and the attempt cap.
//
// The envelope is deliberately not persisted. A restart clears it, and
// that is the desired behavior: an operator bouncing the process is the
// manual override of last resort.
package safety

import (
	"fmt"
	"sync"
	"time"

	"github.com/mendhq/mend/internal/config"
)

// DenialReason identifies which admission rule rejected an incident.
type DenialReason string

const (
	DeniedKillSwitch DenialReason = "kill_switch_active"
	DeniedRateLimit  DenialReason = "rate_limit_exceeded"
	DeniedLockHeld   DenialReason = "healing_in_progress"
	DeniedCooldown   DenialReason = "cooldown"
	DeniedAttemptCap DenialReason = "attempt_cap_exhausted"
)

// Denial describes a rejected admission. A DeniedAttemptCap denial is
// the caller's cue to terminally fail the incident; every other reason
// is transient and the producer may re-enqueue later.
type Denial struct {
	Reason     DenialReason
	Message    string
	RetryAfter time.Duration // 0 when no retry hint applies
}

func (d *Denial) Error() string {
	return fmt.Sprintf("admission denied (%s): %s", d.Reason, d.Message)
}

// KillSwitch describes the kill-switch state at a point in time.
type KillSwitch struct {
	Active              bool      `json:"active"`
	Until               time.Time `json:"until"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Status is a point-in-time snapshot of the envelope for the status
// command and the control socket.
type Status struct {
	KillSwitchActive    bool      `json:"kill_switch_active"`
	KillSwitchUntil     time.Time `json:"kill_switch_until"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	SessionsInWindow    int       `json:"sessions_in_window"`
	WindowCapacity      int       `json:"window_capacity"`
	LockHeld            bool      `json:"lock_held"`
	LockHolder          string    `json:"lock_holder,omitempty"`
	CooldownUntil       time.Time `json:"cooldown_until"`
}

// Envelope holds the mutable safety state. All access goes through a
// short-lived internal mutex; no method blocks on anything but it.
type Envelope struct {
	mu  sync.Mutex
	cfg config.SafetyConfig

	killSwitchActive    bool
	killSwitchUntil     time.Time
	consecutiveFailures int

	sessionTimestamps []time.Time

	lockHeld      bool
	lockHolder    string
	cooldownUntil time.Time

	now func() time.Time
}

// New creates an envelope from a validated safety config. A zero-value
// config falls back to the defaults.
func New(cfg config.SafetyConfig) *Envelope {
	if cfg.WindowDuration == 0 {
		cfg = config.DefaultSafetyConfig()
	}
	return &Envelope{cfg: cfg, now: time.Now}
}

// Admit runs the admission rules in order and, if all pass, records the
// session start and takes the healing lock. A nil return means admitted;
// the caller must pair it with exactly one Release.
//
// Rule order: kill switch, rate limit, lock and cooldown, attempt cap.
// A denial leaves the envelope unmodified except for kill-switch expiry,
// which auto-clears on the first admission attempt after its deadline.
func (e *Envelope) Admit(incidentID string, attemptCount int) *Denial {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()

	if e.killSwitchActive {
		if now.Before(e.killSwitchUntil) {
			return &Denial{
				Reason: DeniedKillSwitch,
				Message: fmt.Sprintf("kill switch active until %s (%d consecutive failures)",
					e.killSwitchUntil.UTC().Format(time.RFC3339), e.consecutiveFailures),
				RetryAfter: e.killSwitchUntil.Sub(now),
			}
		}
		e.killSwitchActive = false
		e.killSwitchUntil = time.Time{}
		e.consecutiveFailures = 0
	}

	e.trimWindowLocked(now)
	if len(e.sessionTimestamps) >= e.cfg.MaxSessionsPerWindow {
		retry := e.sessionTimestamps[0].Add(e.cfg.WindowDuration).Sub(now)
		return &Denial{
			Reason: DeniedRateLimit,
			Message: fmt.Sprintf("rate limit reached: %d sessions in the last %s",
				len(e.sessionTimestamps), e.cfg.WindowDuration),
			RetryAfter: retry,
		}
	}

	if e.lockHeld {
		return &Denial{
			Reason:  DeniedLockHeld,
			Message: fmt.Sprintf("healing lock held by incident %s", e.lockHolder),
		}
	}
	if now.Before(e.cooldownUntil) {
		return &Denial{
			Reason:     DeniedCooldown,
			Message:    fmt.Sprintf("cooling down until %s", e.cooldownUntil.UTC().Format(time.RFC3339)),
			RetryAfter: e.cooldownUntil.Sub(now),
		}
	}

	if attemptCount >= e.cfg.MaxAttemptsPerIncident {
		return &Denial{
			Reason: DeniedAttemptCap,
			Message: fmt.Sprintf("incident has exhausted its %d healing attempts",
				e.cfg.MaxAttemptsPerIncident),
		}
	}

	e.sessionTimestamps = append(e.sessionTimestamps, now)
	e.lockHeld = true
	e.lockHolder = incidentID
	return nil
}

// AcquireLock takes the healing lock without running the admission
// rules. Worker and deployment callbacks use it to resume a parked
// session: resumption is a continuation of an already admitted session,
// so the kill switch, rate limit, cooldown, and attempt cap do not
// apply. Only the lock itself can deny.
func (e *Envelope) AcquireLock(incidentID string) *Denial {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lockHeld {
		return &Denial{
			Reason:  DeniedLockHeld,
			Message: fmt.Sprintf("healing lock held by incident %s", e.lockHolder),
		}
	}
	e.lockHeld = true
	e.lockHolder = incidentID
	return nil
}

// Release drops the healing lock and arms the cooldown. Releasing an
// unheld lock is a no-op so a deferred release stays safe on paths that
// never admitted.
func (e *Envelope) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.lockHeld {
		return
	}
	e.lockHeld = false
	e.lockHolder = ""
	e.cooldownUntil = e.now().Add(e.cfg.Cooldown)
}

// RecordSuccess resets the consecutive-failure counter after a session
// ends in success.
func (e *Envelope) RecordSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consecutiveFailures = 0
}

// RecordFailure increments the consecutive-failure counter and trips
// the kill switch at the threshold. tripped is true only on the
// activating call, so the caller publishes exactly one event per trip.
func (e *Envelope) RecordFailure() (tripped bool, state KillSwitch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consecutiveFailures++
	if !e.killSwitchActive && e.consecutiveFailures >= e.cfg.KillSwitchThreshold {
		e.killSwitchActive = true
		e.killSwitchUntil = e.now().Add(e.cfg.KillSwitchDuration)
		tripped = true
	}
	return tripped, e.killSwitchLocked()
}

// ForceKillSwitch trips the kill switch manually for the given duration
// (the configured duration when d <= 0).
func (e *Envelope) ForceKillSwitch(d time.Duration) KillSwitch {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d <= 0 {
		d = e.cfg.KillSwitchDuration
	}
	e.killSwitchActive = true
	e.killSwitchUntil = e.now().Add(d)
	return e.killSwitchLocked()
}

// ClearKillSwitch disarms the kill switch and resets the failure
// counter. This is the operator override; automatic clearing happens
// on the first admission attempt after expiry.
func (e *Envelope) ClearKillSwitch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.killSwitchActive = false
	e.killSwitchUntil = time.Time{}
	e.consecutiveFailures = 0
}

// Sweep prunes expired timestamps from the admission window and reports
// how many were dropped. Admission trims the window itself; the
// periodic sweep just keeps the slice small during quiet stretches.
func (e *Envelope) Sweep() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	before := len(e.sessionTimestamps)
	e.trimWindowLocked(e.now())
	return before - len(e.sessionTimestamps)
}

// Snapshot returns the current envelope state.
func (e *Envelope) Snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trimWindowLocked(e.now())
	return Status{
		KillSwitchActive:    e.killSwitchActive,
		KillSwitchUntil:     e.killSwitchUntil,
		ConsecutiveFailures: e.consecutiveFailures,
		SessionsInWindow:    len(e.sessionTimestamps),
		WindowCapacity:      e.cfg.MaxSessionsPerWindow,
		LockHeld:            e.lockHeld,
		LockHolder:          e.lockHolder,
		CooldownUntil:       e.cooldownUntil,
	}
}

func (e *Envelope) killSwitchLocked() KillSwitch {
	return KillSwitch{
		Active:              e.killSwitchActive,
		Until:               e.killSwitchUntil,
		ConsecutiveFailures: e.consecutiveFailures,
	}
}

func (e *Envelope) trimWindowLocked(now time.Time) {
	cutoff := now.Add(-e.cfg.WindowDuration)
	kept := e.sessionTimestamps[:0]
	for _, ts := range e.sessionTimestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	e.sessionTimestamps = kept
}
