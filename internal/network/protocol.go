package network

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxFrameSize bounds a single request or reply frame.
	MaxFrameSize = 64 << 10

	// lengthPrefixSize is the size of the length prefix in bytes.
	lengthPrefixSize = 4
)

// errFrameTooLarge is returned for frames above MaxFrameSize.
var errFrameTooLarge = errors.New("frame too large")

// Response is the reply frame to one submitted transaction.
// Status follows HTTP semantics so both transports report failures alike.
type Response struct {
	Status  int             `json:"status"`
	Code    string          `json:"code,omitempty"`
	Error   string          `json:"error,omitempty"`
	Receipt json.RawMessage `json:"receipt,omitempty"`
}

// writeFrame writes a length-prefixed frame.
// Format: [4 bytes big-endian length] [payload]
func writeFrame(w io.Writer, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: %d > %d", errFrameTooLarge, len(data), MaxFrameSize)
	}

	buf := make([]byte, lengthPrefixSize+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[lengthPrefixSize:], data)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame:\n%w", err)
	}

	return nil
}

// readFrame reads a length-prefixed frame.
func readFrame(r io.Reader) ([]byte, error) {
	var lengthBuf [lengthPrefixSize]byte

	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, fmt.Errorf("read length:\n%w", err)
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d > %d", errFrameTooLarge, length, MaxFrameSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read payload:\n%w", err)
	}

	return data, nil
}

// writeResponse encodes and frames a reply.
func writeResponse(w io.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response:\n%w", err)
	}

	return writeFrame(w, data)
}

// readResponse reads and decodes a reply frame.
func readResponse(r io.Reader) (*Response, error) {
	data, err := readFrame(r)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode response:\n%w", err)
	}

	return &resp, nil
}
