package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLeaseAssignsUniqueID(t *testing.T) {
	s := NewState(4)
	a := s.CreateLease(time.Minute)
	b := s.CreateLease(time.Minute)
	assert.NotEqual(t, a.LeaseID, b.LeaseID)
}

func TestGetLeaseRoundTrip(t *testing.T) {
	s := NewState(4)
	lease := s.CreateLease(time.Minute)

	got, ok := s.GetLease(lease.LeaseID)
	require.True(t, ok)
	assert.Equal(t, lease.LeaseID, got.LeaseID)

	_, ok = s.GetLease("unknown")
	assert.False(t, ok)
}

func TestIsLeaseValidExpiry(t *testing.T) {
	s := NewState(4)
	lease := s.CreateLease(-time.Second)
	assert.False(t, s.IsLeaseValid(lease.LeaseID))
	assert.False(t, s.IsLeaseValid("unknown"))
}

func TestReleaseLeaseIsIdempotent(t *testing.T) {
	s := NewState(4)
	lease := s.CreateLease(time.Minute)

	assert.True(t, s.ReleaseLease(lease.LeaseID))
	assert.False(t, s.ReleaseLease(lease.LeaseID))
}

func TestSweepExpiredLeasesRemovesOnlyExpired(t *testing.T) {
	s := NewState(4)
	expired := s.CreateLease(-time.Second)
	live := s.CreateLease(time.Hour)

	removed := s.SweepExpiredLeases()
	assert.Equal(t, 1, removed)

	_, ok := s.GetLease(expired.LeaseID)
	assert.False(t, ok)
	_, ok = s.GetLease(live.LeaseID)
	assert.True(t, ok)
}

func TestSourceStoreDedupesBySourceSHA256(t *testing.T) {
	s := NewState(4)
	first := s.AddSource("abc", "content1", 100)
	second := s.AddSource("abc", "content2", 200)

	assert.Equal(t, first, second)
	assert.True(t, s.HasSource("abc"))
	assert.False(t, s.HasSource("xyz"))
}

func TestGetSourceUnknown(t *testing.T) {
	s := NewState(4)
	_, ok := s.GetSource("nope")
	assert.False(t, ok)
}

func TestRunningJobCountAndAtCapacity(t *testing.T) {
	s := NewState(2)
	assert.False(t, s.AtCapacity())

	j1, _ := s.CreateJob(NewJob("job-1", "key-1", "run-1", "src", nil, ""))
	require.NoError(t, s.TransitionJob(j1.JobID, JobRunning))
	assert.Equal(t, 1, s.RunningJobCount())
	assert.False(t, s.AtCapacity())

	j2, _ := s.CreateJob(NewJob("job-2", "key-2", "run-1", "src", nil, ""))
	require.NoError(t, s.TransitionJob(j2.JobID, JobRunning))
	assert.Equal(t, 2, s.RunningJobCount())
	assert.True(t, s.AtCapacity())
}
