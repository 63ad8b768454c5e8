package host

import (
	"fmt"
	"time"

	"github.com/paulrobinshaw/rch-xcode/pkg/sliceutil"
)

// LogStreamerConfig tunes the tail-RPC polling loop.
type LogStreamerConfig struct {
	PollInterval        time.Duration
	MaxBytesPerRequest  *uint64
	MaxEventsPerRequest *uint32
}

// DefaultLogStreamerConfig polls once per second with no request-size cap.
func DefaultLogStreamerConfig() LogStreamerConfig {
	return LogStreamerConfig{PollInterval: time.Second}
}

// StreamMode distinguishes cursor-based tail streaming from the periodic
// status-check fallback used when a worker doesn't advertise the tail
// feature.
type StreamMode int

const (
	// StreamModeTail polls the cursor-based tail RPC.
	StreamModeTail StreamMode = iota
	// StreamModeStatusFallback polls status only; no log content streams.
	StreamModeStatusFallback
)

// StreamUpdate is what one poll iteration produced.
type StreamUpdate struct {
	LogChunk    *string
	Events      []any
	HadActivity bool
	Complete    bool
}

func emptyStreamUpdate() StreamUpdate {
	return StreamUpdate{}
}

func completedStreamUpdate() StreamUpdate {
	return StreamUpdate{Complete: true}
}

// ErrStreamRPC wraps a transport-level error surfaced by the tail or
// status RPC call itself.
type ErrStreamRPC struct {
	Message string
}

func (e *ErrStreamRPC) Error() string {
	return fmt.Sprintf("rpc error: %s", e.Message)
}

// ErrStreamJobNotFound reports that the worker no longer knows the job
// being streamed.
type ErrStreamJobNotFound struct {
	JobID string
}

func (e *ErrStreamJobNotFound) Error() string {
	return fmt.Sprintf("job not found: %s", e.JobID)
}

// ErrStreamUnexpectedState reports that a status response named a job
// state the streamer does not know how to interpret.
type ErrStreamUnexpectedState struct {
	State string
}

func (e *ErrStreamUnexpectedState) Error() string {
	return fmt.Sprintf("unexpected job state: %s", e.State)
}

// LogStreamer drives the tail RPC loop and tracks activity for the idle
// watchdog. Activity means new log bytes or new events arrived; an empty
// response never resets the idle clock.
type LogStreamer struct {
	config LogStreamerConfig
	mode   StreamMode

	cursor       *string
	lastActivity time.Time
	complete     bool

	totalBytes  uint64
	totalEvents uint64
}

// NewLogStreamer starts a streamer. hasTailFeature selects StreamModeTail
// when true, StreamModeStatusFallback otherwise.
func NewLogStreamer(config LogStreamerConfig, hasTailFeature bool) *LogStreamer {
	mode := StreamModeStatusFallback
	if hasTailFeature {
		mode = StreamModeTail
	}
	return &LogStreamer{config: config, mode: mode, lastActivity: time.Now()}
}

// Mode returns the stream mode chosen at construction.
func (s *LogStreamer) Mode() StreamMode {
	return s.mode
}

// LastActivityTimestamp exposes the last-activity time for timeout
// enforcement: the idle watchdog compares now against this, and cancels
// with TIMEOUT_IDLE once the gap exceeds idle_log_seconds.
func (s *LogStreamer) LastActivityTimestamp() time.Time {
	return s.lastActivity
}

// TimeSinceActivity returns how long it has been since the last activity.
func (s *LogStreamer) TimeSinceActivity() time.Duration {
	return time.Since(s.lastActivity)
}

// IsComplete reports whether the stream has ended.
func (s *LogStreamer) IsComplete() bool {
	return s.complete
}

// Cursor returns the current tail cursor, or nil if streaming from the
// start.
func (s *LogStreamer) Cursor() *string {
	return s.cursor
}

// TotalBytes returns the cumulative log bytes received.
func (s *LogStreamer) TotalBytes() uint64 {
	return s.totalBytes
}

// TotalEvents returns the cumulative event count received.
func (s *LogStreamer) TotalEvents() uint64 {
	return s.totalEvents
}

// PollInterval returns the configured sleep between polls.
func (s *LogStreamer) PollInterval() time.Duration {
	return s.config.PollInterval
}

// ProcessTailResponse folds one tail RPC response into streamer state and
// returns the resulting update. A nil nextCursor means the stream is
// complete.
func (s *LogStreamer) ProcessTailResponse(nextCursor, logChunk *string, events []any) StreamUpdate {
	logBytes := 0
	if logChunk != nil {
		logBytes = len(*logChunk)
	}
	eventCount := len(events)
	hadActivity := logBytes > 0 || eventCount > 0

	if hadActivity {
		s.lastActivity = time.Now()
		s.totalBytes += uint64(logBytes)
		s.totalEvents += uint64(eventCount)
	}

	complete := nextCursor == nil
	s.cursor = nextCursor
	s.complete = complete

	return StreamUpdate{
		LogChunk:    logChunk,
		Events:      events,
		HadActivity: hadActivity,
		Complete:    complete,
	}
}

// ProcessStatusResponse folds one status RPC response into streamer state
// for fallback mode, where only job termination is observable, not logs.
func (s *LogStreamer) ProcessStatusResponse(jobState string, isTerminal bool) StreamUpdate {
	if isTerminal {
		s.complete = true
		return completedStreamUpdate()
	}
	return emptyStreamUpdate()
}

// MarkActivity resets the idle watchdog timer manually, e.g. when a job
// starts.
func (s *LogStreamer) MarkActivity() {
	s.lastActivity = time.Now()
}

// Reset clears cursor, completion, and counters for a new stream.
func (s *LogStreamer) Reset() {
	s.cursor = nil
	s.lastActivity = time.Now()
	s.complete = false
	s.totalBytes = 0
	s.totalEvents = 0
}

// TailRequestParams returns the (cursor, maxBytes, maxEvents) triple to
// pass to the next tail RPC call.
func (s *LogStreamer) TailRequestParams() (*string, *uint64, *uint32) {
	return s.cursor, s.config.MaxBytesPerRequest, s.config.MaxEventsPerRequest
}

// IsTerminalState reports whether a job state string represents a
// finished job.
func IsTerminalState(state string) bool {
	switch state {
	case "SUCCEEDED", "FAILED", "CANCELLED":
		return true
	default:
		return false
	}
}

// HasTailFeature reports whether a probe capabilities document advertises
// the tail feature.
func HasTailFeature(capabilities map[string]any) bool {
	raw, ok := capabilities["features"].([]any)
	if !ok {
		return false
	}
	features := make([]string, 0, len(raw))
	for _, f := range raw {
		if s, ok := f.(string); ok {
			features = append(features, s)
		}
	}
	return sliceutil.Contains(features, "tail")
}
