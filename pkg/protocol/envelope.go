// Package protocol defines the Host/Worker RPC wire format: one JSON
// request and one JSON response per exchange, plus the binary trailer
// fetch appends after its response line.
package protocol

import (
	"bytes"
	"encoding/json"
)

// ProtocolVersionProbe is the fixed protocol_version every probe request
// and response must carry, regardless of the negotiated range.
const ProtocolVersionProbe = 0

// Op names the fixed operation set. There is no extensibility point: an
// unrecognized op is always UnknownOperation.
type Op string

const (
	OpProbe         Op = "probe"
	OpReserve       Op = "reserve"
	OpRelease       Op = "release"
	OpHasSource     Op = "has_source"
	OpUploadSource  Op = "upload_source"
	OpSubmit        Op = "submit"
	OpStatus        Op = "status"
	OpTail          Op = "tail"
	OpCancel        Op = "cancel"
	OpFetch         Op = "fetch"
)

// Request is the envelope for every RPC call. Payload is decoded per-op
// by the handler after dispatch; the codec only validates the envelope
// shape and protocol version.
type Request struct {
	ProtocolVersion uint32          `json:"protocol_version"`
	Op              Op              `json:"op"`
	RequestID       string          `json:"request_id"`
	Payload         json.RawMessage `json:"payload"`
}

// Response is the envelope for every RPC reply. Exactly one of Payload or
// Error is populated when Ok is true/false respectively.
type Response struct {
	ProtocolVersion uint32          `json:"protocol_version"`
	RequestID       string          `json:"request_id"`
	Ok              bool            `json:"ok"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Error           *WireError      `json:"error,omitempty"`
}

// WireError is the flattened, on-the-wire form of an Error. RetryAfterSeconds
// is only meaningful alongside ErrCodeBusy.
type WireError struct {
	Code              ErrorCode `json:"code"`
	Detail            string    `json:"detail,omitempty"`
	RetryAfterSeconds *uint32   `json:"retry_after_seconds,omitempty"`
}

// NewResponse builds a successful Response by marshaling payload.
func NewResponse(protocolVersion uint32, requestID string, payload any) (Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Response{}, err
	}
	return Response{
		ProtocolVersion: protocolVersion,
		RequestID:       requestID,
		Ok:              true,
		Payload:         raw,
	}, nil
}

// NewErrorResponse builds a failure Response from an Error.
func NewErrorResponse(protocolVersion uint32, requestID string, err *Error) Response {
	wire := &WireError{Code: err.Code, Detail: err.Detail}
	if err.RetryAfterSeconds != nil {
		wire.RetryAfterSeconds = err.RetryAfterSeconds
	}
	return Response{
		ProtocolVersion: protocolVersion,
		RequestID:       requestID,
		Ok:              false,
		Error:           wire,
	}
}

// DecodePayload unmarshals req.Payload into v, rejecting unknown fields so
// that a client cannot smuggle data past a future schema addition (per the
// wire-format's strict-decode rule).
func (r Request) DecodePayload(v any) error {
	if len(r.Payload) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(r.Payload))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
