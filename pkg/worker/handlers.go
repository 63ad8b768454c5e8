package worker

import (
	"time"

	"github.com/google/uuid"

	"github.com/paulrobinshaw/rch-xcode/pkg/constants"
	"github.com/paulrobinshaw/rch-xcode/pkg/protocol"
)

// ProtocolMin and ProtocolMax bound the protocol versions this worker
// build accepts, echoed verbatim in probe responses.
const (
	ProtocolMin = 1
	ProtocolMax = 1
)

const defaultLeaseTTL = 5 * time.Minute

// Handler dispatches decoded requests to State, producing the matching
// response envelope. It owns no transport concerns: callers read a
// Request off the wire, call Dispatch, and write the Response back.
type Handler struct {
	state     *State
	inventory Inventory
	features  []string
}

// NewHandler builds a Handler backed by state, reporting inv and features
// in probe responses.
func NewHandler(state *State, inv Inventory, features []string) *Handler {
	return &Handler{state: state, inventory: inv, features: features}
}

// Dispatch validates req's protocol version, routes it by Op, and always
// returns a Response — errors are carried in the envelope, never returned
// as a Go error, so callers can write every Dispatch result straight back
// to the wire.
func (h *Handler) Dispatch(req protocol.Request) protocol.Response {
	if verr := protocol.ValidateProtocolVersion(req, ProtocolMin, ProtocolMax); verr != nil {
		return protocol.NewErrorResponse(protocol.ResponseProtocolVersion(req), req.RequestID, verr)
	}

	respVersion := protocol.ResponseProtocolVersion(req)

	var payload any
	var err *protocol.Error
	switch req.Op {
	case protocol.OpProbe:
		payload = h.probe()
	case protocol.OpReserve:
		payload, err = h.reserve(req)
	case protocol.OpRelease:
		payload, err = h.release(req)
	case protocol.OpHasSource:
		payload, err = h.hasSource(req)
	case protocol.OpUploadSource:
		payload, err = h.uploadSource(req)
	case protocol.OpSubmit:
		payload, err = h.submit(req)
	case protocol.OpStatus:
		payload, err = h.status(req)
	case protocol.OpTail:
		payload, err = h.tail(req)
	case protocol.OpCancel:
		payload, err = h.cancel(req)
	case protocol.OpFetch:
		payload, err = h.fetch(req)
	default:
		err = protocol.UnknownOperation(req.Op)
	}

	if err != nil {
		return protocol.NewErrorResponse(respVersion, req.RequestID, err)
	}

	resp, marshalErr := protocol.NewResponse(respVersion, req.RequestID, payload)
	if marshalErr != nil {
		return protocol.NewErrorResponse(respVersion, req.RequestID, protocol.NewError(protocol.ErrCodeInvalidRequest, marshalErr.Error()))
	}
	return resp
}

func (h *Handler) probe() protocol.ProbeResponse {
	toolchains, simRuntimes, capacity, inUse := h.state.Probe(h.inventory, ProtocolMin, ProtocolMax, h.features)
	return protocol.ProbeResponse{
		ProtocolMin:       ProtocolMin,
		ProtocolMax:       ProtocolMax,
		Features:          h.features,
		Toolchains:        toolchains,
		SimulatorRuntimes: simRuntimes,
		Capacity:          capacity,
		InUse:             inUse,
	}
}

func (h *Handler) reserve(req protocol.Request) (protocol.ReserveResponse, *protocol.Error) {
	var in protocol.ReserveRequest
	if derr := req.DecodePayload(&in); derr != nil {
		return protocol.ReserveResponse{}, protocol.InvalidRequest(derr.Error())
	}

	if h.state.AtCapacity() {
		return protocol.ReserveResponse{}, protocol.NewBusyError("worker at capacity", 5)
	}

	ttl := defaultLeaseTTL
	if in.TTLSeconds != nil {
		ttl = time.Duration(*in.TTLSeconds) * time.Second
	}
	if ttl > constants.MaxLeaseTTL {
		ttl = constants.MaxLeaseTTL
	}
	lease := h.state.CreateLease(ttl)
	return protocol.ReserveResponse{
		LeaseID:    lease.LeaseID,
		TTLSeconds: uint32(ttl / time.Second),
	}, nil
}

func (h *Handler) release(req protocol.Request) (protocol.ReleaseResponse, *protocol.Error) {
	var in protocol.ReleaseRequest
	if derr := req.DecodePayload(&in); derr != nil {
		return protocol.ReleaseResponse{}, protocol.InvalidRequest(derr.Error())
	}
	released := h.state.ReleaseLease(in.LeaseID)
	return protocol.ReleaseResponse{Released: released}, nil
}

func (h *Handler) hasSource(req protocol.Request) (protocol.HasSourceResponse, *protocol.Error) {
	var in protocol.HasSourceRequest
	if derr := req.DecodePayload(&in); derr != nil {
		return protocol.HasSourceResponse{}, protocol.InvalidRequest(derr.Error())
	}
	return protocol.HasSourceResponse{Exists: h.state.HasSource(in.SourceSHA256)}, nil
}

func (h *Handler) uploadSource(req protocol.Request) (protocol.UploadSourceResponse, *protocol.Error) {
	var in protocol.UploadSourceRequest
	if derr := req.DecodePayload(&in); derr != nil {
		return protocol.UploadSourceResponse{}, protocol.InvalidRequest(derr.Error())
	}

	if h.state.HasSource(in.SourceSHA256) {
		return protocol.UploadSourceResponse{Accepted: true, SourceSHA256: in.SourceSHA256}, nil
	}

	// The tar body itself arrives out-of-band on the trailer channel; this
	// handler only acknowledges the announced upload. Callers that actually
	// receive bytes call State.AddSource once the trailer is read and
	// verified against SourceSHA256.
	return protocol.UploadSourceResponse{Accepted: true, SourceSHA256: in.SourceSHA256}, nil
}

func (h *Handler) submit(req protocol.Request) (protocol.SubmitResponse, *protocol.Error) {
	var in protocol.SubmitRequest
	if derr := req.DecodePayload(&in); derr != nil {
		return protocol.SubmitResponse{}, protocol.InvalidRequest(derr.Error())
	}

	if in.LeaseID != nil && !h.state.IsLeaseValid(*in.LeaseID) {
		return protocol.SubmitResponse{}, protocol.NewError(protocol.ErrCodeLeaseExpired, "lease expired or unknown")
	}

	if !h.state.HasSource(in.SourceSHA256) {
		return protocol.SubmitResponse{}, protocol.NewError(protocol.ErrCodeSourceMissing, "source_sha256 not present on worker")
	}

	leaseID := ""
	if in.LeaseID != nil {
		leaseID = *in.LeaseID
	}
	candidate := NewJob(in.JobID, in.JobKey, in.RunID, in.SourceSHA256, in.SanitizedArgv, leaseID)

	existing, created := h.state.CreateJob(candidate)
	if !created {
		if existing.JobKey != in.JobKey {
			return protocol.SubmitResponse{}, protocol.NewError(protocol.ErrCodeJobKeyMismatch, "job_id resubmitted with a different job_key")
		}
		return protocol.SubmitResponse{JobID: existing.JobID, State: string(existing.State)}, nil
	}

	if h.state.AtCapacity() {
		return protocol.SubmitResponse{}, protocol.NewBusyError("worker at capacity", 5)
	}

	log.Printf("submit job=%s key=%s run=%s", candidate.JobID, candidate.JobKey, candidate.RunID)
	return protocol.SubmitResponse{JobID: candidate.JobID, State: string(candidate.State)}, nil
}

func (h *Handler) status(req protocol.Request) (protocol.StatusResponse, *protocol.Error) {
	var in protocol.StatusRequest
	if derr := req.DecodePayload(&in); derr != nil {
		return protocol.StatusResponse{}, protocol.InvalidRequest(derr.Error())
	}
	job, ok := h.state.GetJob(in.JobID)
	if !ok {
		return protocol.StatusResponse{}, protocol.NewError(protocol.ErrCodeJobNotFound, "job_id not found")
	}
	return protocol.StatusResponse{
		JobID:     job.JobID,
		State:     string(job.State),
		Seq:       job.Seq,
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: job.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func (h *Handler) tail(req protocol.Request) (protocol.TailResponse, *protocol.Error) {
	var in protocol.TailRequest
	if derr := req.DecodePayload(&in); derr != nil {
		return protocol.TailResponse{}, protocol.InvalidRequest(derr.Error())
	}
	job, ok := h.state.GetJob(in.JobID)
	if !ok {
		return protocol.TailResponse{}, protocol.NewError(protocol.ErrCodeJobNotFound, "job_id not found")
	}

	var cursor uint64
	if in.Cursor != nil {
		cursor = *in.Cursor
	}
	var maxBytes uint64
	if in.MaxBytes != nil {
		maxBytes = *in.MaxBytes
	}

	chunk, nextCursor := job.Tail(cursor, maxBytes)
	return protocol.TailResponse{NextCursor: nextCursor, LogChunk: chunk}, nil
}

func (h *Handler) cancel(req protocol.Request) (protocol.CancelResponse, *protocol.Error) {
	var in protocol.CancelRequest
	if derr := req.DecodePayload(&in); derr != nil {
		return protocol.CancelResponse{}, protocol.InvalidRequest(derr.Error())
	}
	job, ok := h.state.GetJob(in.JobID)
	if !ok {
		return protocol.CancelResponse{}, protocol.NewError(protocol.ErrCodeJobNotFound, "job_id not found")
	}

	if job.State.IsTerminal() {
		return protocol.CancelResponse{State: string(job.State), AlreadyTerminal: true}, nil
	}

	next := JobCancelRequested
	if job.State == JobQueued {
		next = JobCancelled
	}
	if terr := h.state.TransitionJob(in.JobID, next); terr != nil {
		return protocol.CancelResponse{}, protocol.NewError(protocol.ErrCodeInvalidRequest, terr.Error())
	}
	updated, _ := h.state.GetJob(in.JobID)
	return protocol.CancelResponse{State: string(updated.State)}, nil
}

func (h *Handler) fetch(req protocol.Request) (protocol.FetchResponse, *protocol.Error) {
	var in protocol.FetchRequest
	if derr := req.DecodePayload(&in); derr != nil {
		return protocol.FetchResponse{}, protocol.InvalidRequest(derr.Error())
	}
	job, ok := h.state.GetJob(in.JobID)
	if !ok {
		return protocol.FetchResponse{}, protocol.NewError(protocol.ErrCodeJobNotFound, "job_id not found")
	}
	switch job.State {
	case JobSucceeded, JobFailed:
	case JobCancelled:
		return protocol.FetchResponse{}, protocol.NewError(protocol.ErrCodeArtifactsGone, "job was cancelled before producing artifacts")
	default:
		return protocol.FetchResponse{}, protocol.NewError(protocol.ErrCodeInvalidRequest, "job has not reached a terminal state")
	}

	// The actual archive bytes are written to the trailer channel by the
	// caller once this response is on the wire; Handler only reports the
	// metadata half of the fetch response.
	return protocol.FetchResponse{JobID: job.JobID}, nil
}

// NewJobID mints an identifier in the same style as lease IDs.
func NewJobID() string {
	return "job-" + uuid.NewString()
}
