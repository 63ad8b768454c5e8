package host

import (
	"sync"

	"github.com/google/uuid"
)

// UploadSession tracks progress of a resumable source bundle upload,
// used when the worker advertises the upload_resumable feature.
type UploadSession struct {
	UploadID       string
	SourceSHA256   string
	ContentLength  uint64
	Offset         uint64
	ChunkChecksums []string
}

// NewUploadSession starts a session at offset zero.
func NewUploadSession(uploadID, sourceSHA256 string, contentLength uint64) UploadSession {
	return UploadSession{
		UploadID:      uploadID,
		SourceSHA256:  sourceSHA256,
		ContentLength: contentLength,
	}
}

// IsComplete reports whether every byte of the upload has landed.
func (s UploadSession) IsComplete() bool {
	return s.Offset >= s.ContentLength
}

// Remaining returns the number of bytes still to upload.
func (s UploadSession) Remaining() uint64 {
	if s.Offset >= s.ContentLength {
		return 0
	}
	return s.ContentLength - s.Offset
}

// Advance moves the offset forward after a chunk lands successfully.
func (s *UploadSession) Advance(bytesUploaded uint64) {
	s.Offset += bytesUploaded
}

// ResumeRequest is the resume object a host sends in upload_source to pick
// an interrupted upload back up.
type ResumeRequest struct {
	UploadID string `json:"upload_id"`
	Offset   uint64 `json:"offset"`
}

// ResumeResponse is the worker's acknowledgement of a resumable upload
// chunk.
type ResumeResponse struct {
	UploadID   string `json:"upload_id"`
	NextOffset uint64 `json:"next_offset"`
	Complete   bool   `json:"complete"`
}

// UploadSessionStore tracks in-progress resumable uploads by upload ID.
// Safe for concurrent access.
type UploadSessionStore struct {
	mu       sync.Mutex
	sessions map[string]UploadSession
}

// NewUploadSessionStore returns an empty store.
func NewUploadSessionStore() *UploadSessionStore {
	return &UploadSessionStore{sessions: make(map[string]UploadSession)}
}

// GetOrCreate returns the existing session for uploadID, creating one at
// offset zero if none exists yet.
func (s *UploadSessionStore) GetOrCreate(uploadID, sourceSHA256 string, contentLength uint64) UploadSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[uploadID]; ok {
		return session
	}
	session := NewUploadSession(uploadID, sourceSHA256, contentLength)
	s.sessions[uploadID] = session
	return session
}

// Get returns the session for uploadID, if any.
func (s *UploadSessionStore) Get(uploadID string) (UploadSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[uploadID]
	return session, ok
}

// Update persists the given session's current state.
func (s *UploadSessionStore) Update(session UploadSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.UploadID] = session
}

// Remove drops a session, returning it if it existed.
func (s *UploadSessionStore) Remove(uploadID string) (UploadSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[uploadID]
	delete(s.sessions, uploadID)
	return session, ok
}

// FindBySource returns the first session uploading the given source
// digest, if one is in progress.
func (s *UploadSessionStore) FindBySource(sourceSHA256 string) (UploadSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.SourceSHA256 == sourceSHA256 {
			return session, true
		}
	}
	return UploadSession{}, false
}

// CleanupStale drops every completed session. maxAgeSeconds is accepted
// for API symmetry with a future age-tracking implementation; sessions
// currently carry no creation timestamp to age against.
func (s *UploadSessionStore) CleanupStale(maxAgeSeconds uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if session.IsComplete() {
			delete(s.sessions, id)
		}
	}
}

// GenerateUploadID returns a fresh, globally unique upload session ID.
func GenerateUploadID() string {
	return "upload-" + uuid.NewString()
}
