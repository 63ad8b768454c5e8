// Package host implements the Host side of the rch-xcode run: signal
// handling, the overall/idle timeout watchdog, run-step resumption, the
// resumable upload-session store for large source bundles, and the tail
// log streaming loop.
package host

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/paulrobinshaw/rch-xcode/pkg/constants"
	"github.com/paulrobinshaw/rch-xcode/pkg/logger"
)

var log = logger.New("rch:host")

// DefaultGracePeriod bounds how long a run waits for in-flight jobs to
// cancel cleanly after the first interrupt before the caller may give up.
const DefaultGracePeriod = constants.SignalGracePeriod

// ExitCodeCancelled is the process exit code for a run that ended because
// the operator interrupted it.
const ExitCodeCancelled = 80

// SignalAction is the action an operator interrupt calls for, based on how
// many interrupts have arrived so far in this process.
type SignalAction int

const (
	// InitiateCancellation is returned on the first interrupt: begin
	// graceful shutdown of running jobs.
	InitiateCancellation SignalAction = iota
	// ImmediateExit is returned on the second interrupt: stop waiting on
	// in-flight jobs and exit, but still persist whatever state exists.
	ImmediateExit
	// Ignore is returned on the third and subsequent interrupts.
	Ignore
)

// SignalState tracks interrupt counts and the run context needed to
// persist state if the process must exit mid-run. All fields are safe for
// concurrent access: the signal handler goroutine and the run loop both
// touch this value.
type SignalState struct {
	cancelRequested atomic.Bool
	immediateExit   atomic.Bool
	signalCount     atomic.Uint32

	mu          sync.Mutex
	runningJobs []string
	runID       string
	artifactDir string

	gracePeriod time.Duration
}

// NewSignalState returns a SignalState with the default grace period.
func NewSignalState() *SignalState {
	return NewSignalStateWithGracePeriod(DefaultGracePeriod)
}

// NewSignalStateWithGracePeriod returns a SignalState with a custom grace
// period.
func NewSignalStateWithGracePeriod(gracePeriod time.Duration) *SignalState {
	return &SignalState{gracePeriod: gracePeriod}
}

// IsCancelRequested reports whether the first interrupt has been seen.
func (s *SignalState) IsCancelRequested() bool {
	return s.cancelRequested.Load()
}

// IsImmediateExit reports whether a second interrupt has been seen.
func (s *SignalState) IsImmediateExit() bool {
	return s.immediateExit.Load()
}

// SignalCount returns the number of interrupts handled so far.
func (s *SignalState) SignalCount() uint32 {
	return s.signalCount.Load()
}

// HandleSignal records one interrupt and returns the action it calls for.
func (s *SignalState) HandleSignal() SignalAction {
	count := s.signalCount.Add(1) - 1

	switch count {
	case 0:
		s.cancelRequested.Store(true)
		return InitiateCancellation
	case 1:
		s.immediateExit.Store(true)
		return ImmediateExit
	default:
		return Ignore
	}
}

// RegisterJob records a running job as a cancellation candidate.
func (s *SignalState) RegisterJob(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runningJobs = append(s.runningJobs, jobID)
}

// UnregisterJob removes a job once it completes or is cancelled.
func (s *SignalState) UnregisterJob(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.runningJobs[:0]
	for _, id := range s.runningJobs {
		if id != jobID {
			kept = append(kept, id)
		}
	}
	s.runningJobs = kept
}

// RunningJobs returns a snapshot of currently registered job IDs.
func (s *SignalState) RunningJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]string, len(s.runningJobs))
	copy(jobs, s.runningJobs)
	return jobs
}

// SetRunID records the run ID for state persistence on exit.
func (s *SignalState) SetRunID(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = runID
}

// RunID returns the recorded run ID, or "" if none has been set.
func (s *SignalState) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// SetArtifactDir records the artifact directory for state persistence on
// exit.
func (s *SignalState) SetArtifactDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifactDir = dir
}

// ArtifactDir returns the recorded artifact directory, or "" if none has
// been set.
func (s *SignalState) ArtifactDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifactDir
}

// GracePeriod returns the configured cancellation grace period.
func (s *SignalState) GracePeriod() time.Duration {
	return s.gracePeriod
}

// Reset clears all state. Exposed for tests exercising multiple signal
// sequences against one SignalState.
func (s *SignalState) Reset() {
	s.cancelRequested.Store(false)
	s.immediateExit.Store(false)
	s.signalCount.Store(0)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runningJobs = nil
	s.runID = ""
	s.artifactDir = ""
}

// SignalHandler installs OS signal handling atop a SignalState.
type SignalHandler struct {
	state *SignalState
	stop  chan struct{}
}

// NewSignalHandler returns a handler backed by a fresh default SignalState.
func NewSignalHandler() *SignalHandler {
	return NewSignalHandlerWithState(NewSignalState())
}

// NewSignalHandlerWithState returns a handler backed by the given state.
func NewSignalHandlerWithState(state *SignalState) *SignalHandler {
	return &SignalHandler{state: state}
}

// State returns the underlying SignalState.
func (h *SignalHandler) State() *SignalState {
	return h.state
}

// Install starts a goroutine that turns SIGINT/SIGTERM into SignalState
// transitions. Call once at process startup; call Stop to release the
// underlying notification channel.
func (h *SignalHandler) Install() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	h.stop = make(chan struct{})

	go func() {
		for {
			select {
			case <-sigCh:
				switch h.state.HandleSignal() {
				case InitiateCancellation:
					log.Printf("received interrupt, initiating graceful shutdown")
				case ImmediateExit:
					log.Printf("received second interrupt, exiting immediately")
				case Ignore:
				}
			case <-h.stop:
				signal.Stop(sigCh)
				return
			}
		}
	}()
}

// Stop releases the signal notification goroutine started by Install.
func (h *SignalHandler) Stop() {
	if h.stop != nil {
		close(h.stop)
	}
}

// WaitForCancellation blocks up to the grace period, polling for a second
// interrupt. It returns true if the caller should exit immediately (a
// second interrupt arrived), false if the grace period elapsed normally.
func (h *SignalHandler) WaitForCancellation() bool {
	deadline := time.Now().Add(h.state.GracePeriod())
	for time.Now().Before(deadline) {
		if h.state.IsImmediateExit() {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

// CancellationCoordinator exposes the subset of SignalState a run loop
// needs without handing out the signal-handling machinery itself.
type CancellationCoordinator struct {
	state *SignalState
}

// NewCancellationCoordinator wraps the given state.
func NewCancellationCoordinator(state *SignalState) *CancellationCoordinator {
	return &CancellationCoordinator{state: state}
}

// IsCancelled reports whether cancellation has been requested.
func (c *CancellationCoordinator) IsCancelled() bool {
	return c.state.IsCancelRequested()
}

// ShouldExitImmediately reports whether a second interrupt was requested.
func (c *CancellationCoordinator) ShouldExitImmediately() bool {
	return c.state.IsImmediateExit()
}

// RegisterJob records a job as a cancellation candidate.
func (c *CancellationCoordinator) RegisterJob(jobID string) {
	c.state.RegisterJob(jobID)
}

// UnregisterJob removes a completed job.
func (c *CancellationCoordinator) UnregisterJob(jobID string) {
	c.state.UnregisterJob(jobID)
}

// JobsToCancel returns the job IDs that still need a cancel RPC.
func (c *CancellationCoordinator) JobsToCancel() []string {
	return c.state.RunningJobs()
}

// SetRunContext records the run ID and artifact directory for exit-time
// state persistence.
func (c *CancellationCoordinator) SetRunContext(runID, artifactDir string) {
	c.state.SetRunID(runID)
	c.state.SetArtifactDir(artifactDir)
}

// RunID returns the recorded run ID.
func (c *CancellationCoordinator) RunID() string {
	return c.state.RunID()
}

// ArtifactDir returns the recorded artifact directory.
func (c *CancellationCoordinator) ArtifactDir() string {
	return c.state.ArtifactDir()
}
