package protocol

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// TrailerLengthSize is the width, in bytes, of the big-endian length
// prefix fetch writes before its raw tar bytes.
const TrailerLengthSize = 8

// ReadRequest reads a single JSON request line from r. A malformed line
// (bad JSON, or well-formed JSON missing required envelope fields) is
// reported as an InvalidRequest *Error rather than a generic error, so the
// caller can always answer with a Response even when decoding the request
// itself failed.
func ReadRequest(r *bufio.Reader) (Request, *Error) {
	line, err := r.ReadString('\n')
	if err != nil && len(line) == 0 {
		return Request{}, InvalidRequest(fmt.Sprintf("failed to read request: %v", err))
	}

	var req Request
	dec := json.NewDecoder(strings.NewReader(line))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return Request{}, InvalidRequest(fmt.Sprintf("invalid JSON: %v", err))
	}
	if req.Op == "" {
		return Request{}, InvalidRequest("missing op")
	}
	if req.RequestID == "" {
		return Request{}, InvalidRequest("missing request_id")
	}
	return req, nil
}

// WriteResponse writes resp as a single JSON line to w.
func WriteResponse(w io.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshaling response: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.Write([]byte{'\n'})
	return err
}

// WriteFetchTrailer writes archive after an 8-byte big-endian length
// prefix, the framing fetch alone uses to append a binary payload after
// its JSON response line.
func WriteFetchTrailer(w io.Writer, archive []byte) error {
	var lenBuf [TrailerLengthSize]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(archive)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("writing trailer length: %w", err)
	}
	if _, err := w.Write(archive); err != nil {
		return fmt.Errorf("writing trailer bytes: %w", err)
	}
	return nil
}

// ReadFetchTrailer reads the length-prefixed binary trailer fetch appends
// after its response line.
func ReadFetchTrailer(r io.Reader) ([]byte, error) {
	var lenBuf [TrailerLengthSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("reading trailer length: %w", err)
	}
	size := binary.BigEndian.Uint64(lenBuf[:])

	archive := make([]byte, size)
	if _, err := io.ReadFull(r, archive); err != nil {
		return nil, fmt.Errorf("reading trailer bytes: %w", err)
	}
	return archive, nil
}
