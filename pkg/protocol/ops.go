package protocol

// Per-op request/response payloads, one struct pair per operation in the
// fixed set. Field shapes follow spec.md §4.3's operation contracts; the
// reserve/release pair additionally matches the original Rust
// ReserveRequest/ReserveResponse/ReleaseRequest/ReleaseResponse shape
// (ttl_seconds as an optional unsigned integer).

// ProbeResponse answers probe with the worker's capabilities. probe is the
// only op always available, even to a client that hasn't yet learned the
// worker's supported protocol range.
type ProbeResponse struct {
	ProtocolMin       uint32   `json:"protocol_min"`
	ProtocolMax       uint32   `json:"protocol_max"`
	Features          []string `json:"features"`
	Toolchains        []string `json:"toolchains"`
	SimulatorRuntimes []string `json:"simulator_runtimes"`
	Capacity          int      `json:"capacity"`
	InUse             int      `json:"in_use"`
}

// ReserveRequest optionally requests a non-default lease TTL.
type ReserveRequest struct {
	TTLSeconds *uint32 `json:"ttl_seconds,omitempty"`
}

// ReserveResponse carries the assigned lease and its effective TTL.
type ReserveResponse struct {
	LeaseID    string `json:"lease_id"`
	TTLSeconds uint32 `json:"ttl_seconds"`
}

// ReleaseRequest names the lease to release.
type ReleaseRequest struct {
	LeaseID string `json:"lease_id"`
}

// ReleaseResponse reports whether a lease was removed. An unknown or
// already-released lease_id yields {released:false} with ok:true —
// release is idempotent.
type ReleaseResponse struct {
	Released bool `json:"released"`
}

// HasSourceRequest asks whether a content-addressed source archive is
// already present in the worker's store.
type HasSourceRequest struct {
	SourceSHA256 string `json:"source_sha256"`
}

// HasSourceResponse reports presence.
type HasSourceResponse struct {
	Exists bool `json:"exists"`
}

// UploadSourceRequest declares the intended content hash and, for a
// resumed upload, where to continue from. The raw bytes themselves travel
// out of band of the JSON payload (as upload_source's request body
// trailer), mirroring fetch's response trailer in the opposite direction.
type UploadSourceRequest struct {
	SourceSHA256 string  `json:"source_sha256"`
	Resume       bool    `json:"resume,omitempty"`
	Offset       *uint64 `json:"offset,omitempty"`
}

// UploadSourceResponse reports whether the upload was accepted and, for a
// partial/resumable upload, how much of the stream the worker already has.
type UploadSourceResponse struct {
	Accepted     bool    `json:"accepted"`
	SourceSHA256 string  `json:"source_sha256"`
	UploadID     *string `json:"upload_id,omitempty"`
	NextOffset   *uint64 `json:"next_offset,omitempty"`
}

// SubmitRequest carries the classifier-approved job spec and, if the host
// reserved capacity first, the lease to run it under.
type SubmitRequest struct {
	JobID        string          `json:"job_id"`
	JobKey       string          `json:"job_key"`
	RunID        string          `json:"run_id"`
	SourceSHA256 string          `json:"source_sha256"`
	SanitizedArgv []string       `json:"sanitized_argv"`
	LeaseID      *string         `json:"lease_id,omitempty"`
}

// SubmitResponse reports the job's state immediately after submission,
// which for an idempotent resubmit is whatever state the existing job has
// already reached.
type SubmitResponse struct {
	JobID string `json:"job_id"`
	State string `json:"state"`
}

// StatusRequest names the job to query.
type StatusRequest struct {
	JobID string `json:"job_id"`
}

// StatusResponse reports the job's current state and bookkeeping fields a
// host needs to decide its next action without tailing the log.
type StatusResponse struct {
	JobID     string `json:"job_id"`
	State     string `json:"state"`
	Seq       uint64 `json:"seq"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// TailRequest requests log bytes/events from cursor onward. An absent
// Cursor means "from the start of the buffer".
type TailRequest struct {
	JobID     string  `json:"job_id"`
	Cursor    *uint64 `json:"cursor,omitempty"`
	MaxBytes  *uint64 `json:"max_bytes,omitempty"`
	MaxEvents *uint64 `json:"max_events,omitempty"`
}

// TailResponse returns the requested slice of the log buffer. NextCursor
// is nil only when the job is terminal and the cursor has caught up to the
// buffer's end, signaling end-of-log.
type TailResponse struct {
	NextCursor *uint64  `json:"next_cursor"`
	LogChunk   string   `json:"log_chunk,omitempty"`
	Events     []string `json:"events,omitempty"`
}

// CancelRequest requests cancellation of a job, optionally recording why
// (e.g. "SIGNAL" from the host's signal coordinator).
type CancelRequest struct {
	JobID  string  `json:"job_id"`
	Reason *string `json:"reason,omitempty"`
}

// CancelResponse reports the resulting state. AlreadyTerminal is true when
// the job had already reached a terminal state before this call, in which
// case State is unchanged.
type CancelResponse struct {
	State           string `json:"state"`
	AlreadyTerminal bool   `json:"already_terminal"`
}

// FetchRequest names the terminal job whose artifact directory should be
// streamed back.
type FetchRequest struct {
	JobID string `json:"job_id"`
}

// FetchResponse is the JSON header preceding fetch's binary tar trailer;
// ArchiveSize lets the reader validate the trailer's declared length
// against what actually arrives.
type FetchResponse struct {
	JobID       string `json:"job_id"`
	ArchiveSize uint64 `json:"archive_size"`
}
