package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLeaseExpiredBoundary(t *testing.T) {
	now := time.Now()
	lease := Lease{LeaseID: "l1", CreatedAt: now.Add(-time.Minute), TTL: time.Minute}

	assert.False(t, lease.Expired(now))
	assert.True(t, lease.Expired(now.Add(time.Second)))
}

func TestLeaseNeverExpiredBeforeTTLElapses(t *testing.T) {
	now := time.Now()
	lease := Lease{LeaseID: "l2", CreatedAt: now, TTL: time.Hour}
	assert.False(t, lease.Expired(now.Add(time.Minute)))
}
