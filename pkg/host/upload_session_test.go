package host

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadSessionNew(t *testing.T) {
	session := NewUploadSession("upload-001", "sha256-abc", 1000)

	assert.Equal(t, "upload-001", session.UploadID)
	assert.Equal(t, "sha256-abc", session.SourceSHA256)
	assert.Equal(t, uint64(1000), session.ContentLength)
	assert.Equal(t, uint64(0), session.Offset)
	assert.False(t, session.IsComplete())
	assert.Equal(t, uint64(1000), session.Remaining())
}

func TestUploadSessionAdvance(t *testing.T) {
	session := NewUploadSession("upload-001", "sha256-abc", 1000)

	session.Advance(500)
	assert.Equal(t, uint64(500), session.Offset)
	assert.False(t, session.IsComplete())
	assert.Equal(t, uint64(500), session.Remaining())

	session.Advance(500)
	assert.Equal(t, uint64(1000), session.Offset)
	assert.True(t, session.IsComplete())
	assert.Equal(t, uint64(0), session.Remaining())
}

func TestSessionStoreGetOrCreate(t *testing.T) {
	store := NewUploadSessionStore()

	session1 := store.GetOrCreate("upload-001", "sha256-abc", 1000)
	assert.Equal(t, "upload-001", session1.UploadID)
	assert.Equal(t, uint64(0), session1.Offset)

	session2 := store.GetOrCreate("upload-001", "sha256-abc", 1000)
	assert.Equal(t, "upload-001", session2.UploadID)
}

func TestSessionStoreUpdate(t *testing.T) {
	store := NewUploadSessionStore()

	session := store.GetOrCreate("upload-001", "sha256-abc", 1000)
	session.Advance(500)
	store.Update(session)

	retrieved, ok := store.Get("upload-001")
	require.True(t, ok)
	assert.Equal(t, uint64(500), retrieved.Offset)
}

func TestSessionStoreRemove(t *testing.T) {
	store := NewUploadSessionStore()

	store.GetOrCreate("upload-001", "sha256-abc", 1000)
	_, ok := store.Get("upload-001")
	require.True(t, ok)

	store.Remove("upload-001")
	_, ok = store.Get("upload-001")
	assert.False(t, ok)
}

func TestSessionStoreFindBySource(t *testing.T) {
	store := NewUploadSessionStore()

	store.GetOrCreate("upload-001", "sha256-abc", 1000)
	store.GetOrCreate("upload-002", "sha256-def", 2000)

	found, ok := store.FindBySource("sha256-abc")
	require.True(t, ok)
	assert.Equal(t, "upload-001", found.UploadID)

	_, ok = store.FindBySource("sha256-xyz")
	assert.False(t, ok)
}

func TestCleanupStaleRemovesOnlyComplete(t *testing.T) {
	store := NewUploadSessionStore()

	complete := store.GetOrCreate("upload-001", "sha256-abc", 100)
	complete.Advance(100)
	store.Update(complete)

	store.GetOrCreate("upload-002", "sha256-def", 100)

	store.CleanupStale(0)

	_, ok := store.Get("upload-001")
	assert.False(t, ok)
	_, ok = store.Get("upload-002")
	assert.True(t, ok)
}

func TestGenerateUploadIDIsUniqueAndPrefixed(t *testing.T) {
	id1 := GenerateUploadID()
	id2 := GenerateUploadID()

	assert.True(t, strings.HasPrefix(id1, "upload-"))
	assert.True(t, strings.HasPrefix(id2, "upload-"))
	assert.NotEqual(t, id1, id2)
}
