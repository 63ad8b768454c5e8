// Package worker implements the Worker side of the Host/Worker RPC
// protocol: in-memory leases, the job state machine, the content-addressed
// source store, and the capacity/capabilities a probe reports.
package worker

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paulrobinshaw/rch-xcode/pkg/logger"
)

var log = logger.New("rch:worker")

// State is the single shared mutable object behind every worker RPC
// handler: leases, jobs, and sources, guarded by one reader/writer lock.
// Handlers take short critical sections. Lease and source accessors return
// copies; job accessors (CreateJob, GetJob) return the shared *Job.
type State struct {
	mu sync.RWMutex

	leases map[string]*Lease
	jobs   map[string]*Job
	sources map[string]*SourceEntry

	maxConcurrentJobs int
}

// NewState returns an empty State with the given capacity limit.
func NewState(maxConcurrentJobs int) *State {
	return &State{
		leases:            make(map[string]*Lease),
		jobs:              make(map[string]*Job),
		sources:           make(map[string]*SourceEntry),
		maxConcurrentJobs: maxConcurrentJobs,
	}
}

// --- Lease management ---

// CreateLease allocates a new lease with the given TTL.
func (s *State) CreateLease(ttl time.Duration) Lease {
	s.mu.Lock()
	defer s.mu.Unlock()

	lease := Lease{
		LeaseID:   "lease-" + uuid.NewString(),
		CreatedAt: time.Now(),
		TTL:       ttl,
	}
	s.leases[lease.LeaseID] = &lease
	return lease
}

// GetLease returns a copy of the lease, and whether it exists.
func (s *State) GetLease(leaseID string) (Lease, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lease, ok := s.leases[leaseID]
	if !ok {
		return Lease{}, false
	}
	return *lease, true
}

// IsLeaseValid reports whether leaseID exists and has not expired.
func (s *State) IsLeaseValid(leaseID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lease, ok := s.leases[leaseID]
	if !ok {
		return false
	}
	return !lease.Expired(time.Now())
}

// ReleaseLease removes a lease. It is idempotent: releasing an unknown or
// already-released lease_id reports false but is not an error.
func (s *State) ReleaseLease(leaseID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leases[leaseID]; !ok {
		return false
	}
	delete(s.leases, leaseID)
	return true
}

// SweepExpiredLeases removes every lease past its TTL and returns how many
// were removed. It is independent of SweepExpiredJobLeases; neither sweep
// is scheduled by this package.
func (s *State) SweepExpiredLeases() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, lease := range s.leases {
		if lease.Expired(now) {
			delete(s.leases, id)
			removed++
		}
	}
	return removed
}

// --- Source store ---

// HasSource reports whether sourceSHA256 is already present.
func (s *State) HasSource(sourceSHA256 string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.sources[sourceSHA256]
	return ok
}

// AddSource records a source entry, deduplicated by SourceSHA256.
func (s *State) AddSource(sourceSHA256, contentSHA256 string, size int64) SourceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sources[sourceSHA256]; ok {
		return *existing
	}
	entry := SourceEntry{
		SourceSHA256:  sourceSHA256,
		ContentSHA256: contentSHA256,
		Size:          size,
		CreatedAt:     time.Now(),
	}
	s.sources[sourceSHA256] = &entry
	return entry
}

// GetSource returns a copy of a source entry, and whether it exists.
func (s *State) GetSource(sourceSHA256 string) (SourceEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sources[sourceSHA256]
	if !ok {
		return SourceEntry{}, false
	}
	return *entry, true
}

// RunningJobCount counts jobs in RUNNING or CANCEL_REQUESTED state, the
// two states that occupy worker capacity.
func (s *State) RunningJobCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, job := range s.jobs {
		if job.State == JobRunning || job.State == JobCancelRequested {
			count++
		}
	}
	return count
}

// AtCapacity reports whether the worker has no room for another job.
func (s *State) AtCapacity() bool {
	return s.RunningJobCount() >= s.maxConcurrentJobs
}
