// Package orchestrator runs the healing control loop.
//
// One orchestrator owns the full life of an incident: admission through
// the safety envelope, tier selection (knowledge base replay or worker
// agent delegation), fix application in the workspace, verification,
// confidence scoring, and landing the fix as a direct commit or a pull
// request. Sessions that wait on an external callback (a worker result
// or a deployment webhook) are parked with the healing lock released,
// so a slow repair never blocks the daemon.
//
// All pipeline code runs on a single event loop goroutine. The only
// cross-goroutine state is the parked-session maps and the running
// flag, guarded by one mutex.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mendhq/mend/internal/config"
	"github.com/mendhq/mend/internal/confidence"
	"github.com/mendhq/mend/internal/events"
	"github.com/mendhq/mend/internal/gitops"
	"github.com/mendhq/mend/internal/identity"
	"github.com/mendhq/mend/internal/knowledge"
	"github.com/mendhq/mend/internal/safety"
	"github.com/mendhq/mend/internal/storage"
	"github.com/mendhq/mend/internal/types"
	"github.com/mendhq/mend/internal/verify"
	"github.com/mendhq/mend/internal/worker"
)

const (
	defaultQueueSize    = 256
	defaultPollInterval = 5 * time.Second

	// sweepInterval bounds how stale the envelope's rate-limit window
	// can get between admissions.
	sweepInterval = 5 * time.Minute
)

// Workspace is the slice of the workspace API the healing pipeline
// needs: applying fix files, reading them back for branch pushes, and
// rolling back on failure. *workspace.Local satisfies it.
type Workspace interface {
	WriteFile(path string, content []byte) error
	ReadFile(path string) ([]byte, error)
	RevertFile(path string) error
	ClearSnapshots()
}

// Config wires an orchestrator's collaborators together. Every
// dependency is required.
type Config struct {
	Store     storage.Storage
	Envelope  *safety.Envelope
	Bus       *events.Bus
	Knowledge *knowledge.KnowledgeBase
	Scorer    *confidence.Scorer
	Verifier  *verify.Verifier
	Workspace Workspace
	Gateway   gitops.CommitGateway
	Agent     worker.Agent
	Identity  *identity.Resolver

	Safety    config.SafetyConfig
	Retention config.EventRetentionConfig

	// QueueSize bounds the incident queue; zero means the default.
	QueueSize int

	// PollInterval is how often the loop re-reads healable incidents
	// from storage; zero means the default.
	PollInterval time.Duration
}

// healRequest is one unit of work on the healing queue. force permits
// retrying a terminally failed incident, which only an explicit
// operator request may do.
type healRequest struct {
	incidentID string
	force      bool
}

// parkedJob tracks a session waiting on a worker agent result. The
// healing lock is released while parked; the result handler reacquires
// it before touching the workspace.
type parkedJob struct {
	incidentID string
	sessionID  string
	attemptID  string
	sig        string
}

// parkedDeploy tracks a session whose fix has landed on the default
// branch and is waiting for the deployment pipeline to report back.
type parkedDeploy struct {
	incidentID     string
	attemptID      string
	fixAttemptID   string
	sig            string
	files          []string
	encodedFix     string
	fixDescription string
	commitHash     string
	resultsJSON    string
	score          int
}

// Status is a point-in-time snapshot of the daemon for the status
// command and the control socket.
type Status struct {
	Running            bool          `json:"running"`
	Safety             safety.Status `json:"safety"`
	QueueDepth         int           `json:"queue_depth"`
	AwaitingWorker     int           `json:"awaiting_worker"`
	AwaitingDeployment int           `json:"awaiting_deployment"`
}

// Orchestrator coordinates the healing pipeline for one workspace.
type Orchestrator struct {
	store     storage.Storage
	envelope  *safety.Envelope
	bus       *events.Bus
	kb        *knowledge.KnowledgeBase
	scorer    *confidence.Scorer
	verifier  *verify.Verifier
	ws        Workspace
	gateway   gitops.CommitGateway
	agent     worker.Agent
	identity  *identity.Resolver
	safety    config.SafetyConfig
	retention config.EventRetentionConfig

	queue        chan healRequest
	deployCh     chan DeploymentReport
	pollInterval time.Duration

	stopCh          chan struct{}
	doneCh          chan struct{}
	sweepDoneCh     chan struct{}
	retentionDoneCh chan struct{}

	mu            sync.RWMutex
	running       bool
	parkedJobs    map[string]parkedJob    // keyed by worker job ID
	parkedDeploys map[string]parkedDeploy // keyed by session ID
}

// New creates an orchestrator from its collaborators.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Envelope == nil {
		return nil, fmt.Errorf("safety envelope is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if cfg.Knowledge == nil {
		return nil, fmt.Errorf("knowledge base is required")
	}
	if cfg.Scorer == nil {
		return nil, fmt.Errorf("confidence scorer is required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("verifier is required")
	}
	if cfg.Workspace == nil {
		return nil, fmt.Errorf("workspace is required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("commit gateway is required")
	}
	if cfg.Agent == nil {
		return nil, fmt.Errorf("worker agent is required")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("identity resolver is required")
	}
	if err := cfg.Safety.Validate(); err != nil {
		return nil, fmt.Errorf("invalid safety configuration: %w", err)
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &Orchestrator{
		store:     cfg.Store,
		envelope:  cfg.Envelope,
		bus:       cfg.Bus,
		kb:        cfg.Knowledge,
		scorer:    cfg.Scorer,
		verifier:  cfg.Verifier,
		ws:        cfg.Workspace,
		gateway:   cfg.Gateway,
		agent:     cfg.Agent,
		identity:  cfg.Identity,
		safety:    cfg.Safety,
		retention: cfg.Retention,

		queue:        make(chan healRequest, queueSize),
		deployCh:     make(chan DeploymentReport),
		pollInterval: pollInterval,

		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
		sweepDoneCh:     make(chan struct{}),
		retentionDoneCh: make(chan struct{}),

		parkedJobs:    make(map[string]parkedJob),
		parkedDeploys: make(map[string]parkedDeploy),
	}, nil
}

// Start begins processing incidents. Sessions interrupted by a previous
// shutdown are recovered synchronously before the loops start, so a
// crashed daemon never leaves an incident stuck in healing.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator is already running")
	}
	o.running = true
	o.mu.Unlock()

	if err := o.recoverOrphanedSessions(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: session recovery incomplete: %v\n", err)
	}

	go o.run(ctx)
	go o.sweepLoop(ctx)
	go o.retentionLoop(ctx)
	return nil
}

// Stop shuts the loops down and waits for them to exit, bounded by ctx.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator is not running")
	}
	o.mu.Unlock()

	close(o.stopCh)

	runDone, sweepDone, retentionDone := false, false, false
	for !runDone || !sweepDone || !retentionDone {
		select {
		case <-o.doneCh:
			runDone = true
		case <-o.sweepDoneCh:
			sweepDone = true
		case <-o.retentionDoneCh:
			retentionDone = true
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
	return nil
}

// Status reports the daemon state.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Status{
		Running:            o.running,
		Safety:             o.envelope.Snapshot(),
		QueueDepth:         len(o.queue),
		AwaitingWorker:     len(o.parkedJobs),
		AwaitingDeployment: len(o.parkedDeploys),
	}
}

// EnqueueIncident queues an incident for healing. Returns an error when
// the orchestrator is stopped or the queue is full; the incident stays
// in storage either way and the poller picks it up later.
func (o *Orchestrator) EnqueueIncident(incidentID string) error {
	return o.enqueue(healRequest{incidentID: incidentID})
}

// RetryIncident queues a terminally failed incident for one more
// attempt. Failed incidents are never retried automatically; this is
// the explicit operator path.
func (o *Orchestrator) RetryIncident(incidentID string) error {
	return o.enqueue(healRequest{incidentID: incidentID, force: true})
}

func (o *Orchestrator) enqueue(req healRequest) error {
	if req.incidentID == "" {
		return fmt.Errorf("incident ID is required")
	}
	select {
	case <-o.stopCh:
		return fmt.Errorf("orchestrator is stopped")
	default:
	}
	select {
	case o.queue <- req:
		return nil
	default:
		return fmt.Errorf("healing queue is full")
	}
}

// Report stores a new incident, announces it on the bus, and queues it
// for healing. The incident is persisted even when queueing fails.
func (o *Orchestrator) Report(ctx context.Context, incident *types.Incident) error {
	if err := o.store.CreateIncident(ctx, incident); err != nil {
		return fmt.Errorf("storing incident: %w", err)
	}

	o.publish(events.NewIncidentReportedEvent(
		incident.ID,
		events.SeverityInfo,
		fmt.Sprintf("incident reported: %s", incident.Title),
		events.IncidentReportedData{
			IncidentID: incident.ID,
			Kind:       string(incident.Kind),
			Severity:   string(incident.Severity),
			Source:     incident.Source,
		},
	))

	if err := o.EnqueueIncident(incident.ID); err != nil {
		fmt.Fprintf(os.Stderr, "warning: incident %s stored but not queued: %v\n", incident.ID, err)
	}
	return nil
}

// Pause trips the kill switch by operator request, blocking new healing
// sessions for the given duration.
func (o *Orchestrator) Pause(d time.Duration) safety.KillSwitch {
	state := o.envelope.ForceKillSwitch(d)
	o.publish(events.NewKillSwitchActivatedEvent(
		events.SeverityWarning,
		fmt.Sprintf("healing paused until %s", state.Until.Format(time.RFC3339)),
		events.KillSwitchActivatedData{
			ConsecutiveFailures: state.ConsecutiveFailures,
			DisabledUntil:       state.Until,
			Message:             "healing paused by operator",
		},
	))
	return state
}

// Resume clears the kill switch, whether it tripped on failures or was
// forced by Pause.
func (o *Orchestrator) Resume() {
	o.envelope.ClearKillSwitch()
}

// run is the main event loop. Queued incidents, worker results, and
// deployment reports are all handled here, on one goroutine, so the
// pipeline never races with itself.
func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.doneCh)

	results := o.agent.Results()
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case req := <-o.queue:
			if err := o.processIncident(ctx, req.incidentID, req.force); err != nil {
				fmt.Fprintf(os.Stderr, "error healing incident %s: %v\n", req.incidentID, err)
			}
		case result, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			if err := o.handleWorkerResult(ctx, result); err != nil {
				fmt.Fprintf(os.Stderr, "error handling worker result for job %s: %v\n", result.JobID, err)
			}
		case report := <-o.deployCh:
			if err := o.handleDeployment(ctx, report); err != nil {
				fmt.Fprintf(os.Stderr, "error handling deployment report for session %s: %v\n", report.SessionID, err)
			}
		case <-ticker.C:
			if err := o.processNextIncident(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "error processing incident backlog: %v\n", err)
			}
		}
	}
}

// processNextIncident pulls the highest-priority open incident from
// storage. The ticker drives this, so incidents denied admission or
// reported while the daemon was down are retried without an external
// nudge.
func (o *Orchestrator) processNextIncident(ctx context.Context) error {
	incidents, err := o.store.ListHealableIncidents(ctx, o.safety.MaxAttemptsPerIncident)
	if err != nil {
		return fmt.Errorf("listing healable incidents: %w", err)
	}
	for _, inc := range incidents {
		if inc.Status != types.IncidentOpen {
			continue // failed incidents wait for an explicit retry
		}
		return o.processIncident(ctx, inc.ID, false)
	}
	return nil
}

// sweepLoop periodically expires stale rate-limit entries so status
// output stays accurate even when no admissions happen.
func (o *Orchestrator) sweepLoop(ctx context.Context) {
	defer close(o.sweepDoneCh)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.envelope.Sweep()
		}
	}
}

// retentionLoop prunes old healing events on a schedule. Invalid
// retention config disables cleanup rather than failing startup.
func (o *Orchestrator) retentionLoop(ctx context.Context) {
	defer close(o.retentionDoneCh)

	cfg := o.retention
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "event cleanup: invalid configuration: %v (cleanup disabled)\n", err)
		return
	}
	if !cfg.CleanupEnabled {
		return
	}

	// Run once at startup so a daemon that only stays up briefly still
	// gets a chance to prune.
	if err := o.runEventCleanup(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: event cleanup failed: %v\n", err)
	}

	ticker := time.NewTicker(time.Duration(cfg.CleanupIntervalHours) * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			if err := o.runEventCleanup(ctx, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "warning: event cleanup failed: %v\n", err)
			}
		}
	}
}

// runEventCleanup removes events past the retention window, enforces
// the global cap, vacuums when enough rows went away, and publishes a
// summary event either way.
func (o *Orchestrator) runEventCleanup(ctx context.Context, cfg config.EventRetentionConfig) error {
	start := time.Now()

	timeBased, err := o.store.CleanupEventsByAge(ctx, cfg.RetentionDays, cfg.CleanupBatchSize)
	if err != nil {
		o.publishCleanupEvent(ctx, 0, 0, 0, start, err)
		return fmt.Errorf("cleaning up events by age: %w", err)
	}

	globalLimit, err := o.store.CleanupEventsByGlobalLimit(ctx, cfg.GlobalLimitEvents, cfg.CleanupBatchSize)
	if err != nil {
		o.publishCleanupEvent(ctx, timeBased, timeBased, 0, start, err)
		return fmt.Errorf("cleaning up events by global limit: %w", err)
	}

	deleted := timeBased + globalLimit
	if deleted >= cfg.CleanupBatchSize {
		if err := o.store.VacuumDatabase(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: vacuum after event cleanup failed: %v\n", err)
		}
	}

	o.publishCleanupEvent(ctx, deleted, timeBased, globalLimit, start, nil)
	return nil
}

func (o *Orchestrator) publishCleanupEvent(ctx context.Context, deleted, timeBased, globalLimit int, start time.Time, cleanupErr error) {
	remaining := 0
	if n, err := o.store.CountEvents(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to count remaining events: %v\n", err)
	} else {
		remaining = n
	}

	data := events.EventCleanupCompletedData{
		EventsDeleted:      deleted,
		TimeBasedDeleted:   timeBased,
		GlobalLimitDeleted: globalLimit,
		ProcessingTimeMs:   time.Since(start).Milliseconds(),
		EventsRemaining:    remaining,
		Success:            cleanupErr == nil,
	}
	severity := events.SeverityInfo
	message := fmt.Sprintf("event cleanup removed %d events", deleted)
	if cleanupErr != nil {
		data.Error = cleanupErr.Error()
		severity = events.SeverityError
		message = "event cleanup failed"
	}
	o.publish(events.NewEventCleanupCompletedEvent(severity, message, data))
}

// recoverOrphanedSessions handles incidents left in healing by a
// previous process. Sessions parked on a deployment are re-parked;
// everything else is failed as interrupted and the incident reopened.
func (o *Orchestrator) recoverOrphanedSessions(ctx context.Context) error {
	healing := types.IncidentHealing
	incidents, err := o.store.ListIncidents(ctx, types.IncidentFilter{Status: &healing})
	if err != nil {
		return fmt.Errorf("listing healing incidents: %w", err)
	}

	for _, inc := range incidents {
		session, err := o.store.GetActiveSessionForIncident(ctx, inc.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: recovery skipped incident %s: %v\n", inc.ID, err)
			continue
		}
		if session == nil {
			// Healing status with no active session means the previous
			// process died between claiming the incident and creating
			// the session.
			if err := o.store.UpdateIncidentStatus(ctx, inc.ID, types.IncidentOpen); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to reopen incident %s: %v\n", inc.ID, err)
			}
			continue
		}
		if session.Phase == types.PhaseDeploy {
			o.reparkDeploySession(ctx, inc, session)
			continue
		}
		o.abandonInterruptedSession(ctx, inc, session)
	}
	return nil
}

// abandonInterruptedSession fails a session that cannot survive a
// restart: workspace changes are reverted, the session and its open
// attempts close as interrupted, and the incident reopens for a fresh
// pass.
func (o *Orchestrator) abandonInterruptedSession(ctx context.Context, inc *types.Incident, session *types.HealingSession) {
	for _, path := range session.FilesChanged {
		if err := o.ws.RevertFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to revert %s: %v\n", path, err)
		}
	}
	if err := o.store.CompleteSession(ctx, session.ID, types.PhaseFailed, types.SessionFailed, "interrupted by restart"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close interrupted session %s: %v\n", session.ID, err)
	}
	if err := o.store.UpdateIncidentStatus(ctx, inc.ID, types.IncidentOpen); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to reopen incident %s: %v\n", inc.ID, err)
	}
	o.completeOpenAttempts(ctx, session.ID, "interrupted by restart")
}

// reparkDeploySession restores the deploy-phase park for a session
// found at startup, so a daemon restart does not lose a fix that is
// mid-deployment.
func (o *Orchestrator) reparkDeploySession(ctx context.Context, inc *types.Incident, session *types.HealingSession) {
	parked := o.reconstructParkedDeploy(ctx, session)
	o.mu.Lock()
	o.parkedDeploys[session.ID] = parked
	o.mu.Unlock()
	fmt.Printf("Recovery: session %s re-parked awaiting deployment for incident %s\n", session.ID, inc.ID)
}

// completeOpenAttempts closes any attempt rows left open on a session
// that is being terminated outside the normal pipeline.
func (o *Orchestrator) completeOpenAttempts(ctx context.Context, sessionID, errMsg string) {
	attempts, err := o.store.ListAttemptsForSession(ctx, sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to list attempts for session %s: %v\n", sessionID, err)
		return
	}
	for _, attempt := range attempts {
		if attempt.CompletedAt != nil {
			continue
		}
		if err := o.store.CompleteHealAttempt(ctx, attempt.ID, false, nil, errMsg); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to complete attempt %s: %v\n", attempt.ID, err)
		}
	}
}

// publish sends an event to the bus, tolerating constructor errors so
// an unpublishable event never aborts a healing step.
func (o *Orchestrator) publish(event *events.HealingEvent, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to build event: %v\n", err)
		return
	}
	o.bus.Publish(event)
}
