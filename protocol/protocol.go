// Package protocol implements the frame format spoken with the driver process.
//
// The pipe carries an endless byte stream, so every message is prefixed with its
// length. The receiver reads the 4-byte prefix first, then exactly that many bytes.
//
// Frame format:
//
//	0                4
//	┌────────────────┬──────────────────────────┐
//	│ length, uint32 │ UTF-8 JSON payload ...   │
//	│ little-endian  │ length bytes             │
//	└────────────────┴──────────────────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	HeaderSize = 4

	// DefaultMaxFrameSize bounds a single payload. Screenshots and traces can be
	// large, but a length beyond this is treated as a corrupted stream.
	DefaultMaxFrameSize = 256 << 20
)

var (
	// ErrPartialFrame means the stream ended inside a frame. Framing is lost and
	// the stream cannot be resynchronized.
	ErrPartialFrame = errors.New("partial frame")

	// ErrFrameTooLarge means the length prefix exceeds the configured limit.
	ErrFrameTooLarge = errors.New("frame too large")
)

// Encode writes a complete frame (length + body) to w with a single Write call.
// The caller must hold a write lock if multiple goroutines share the same writer.
func Encode(w io.Writer, body []byte) error {
	buf := make([]byte, HeaderSize+len(body))
	binary.LittleEndian.PutUint32(buf[:HeaderSize], uint32(len(body)))
	copy(buf[HeaderSize:], body)

	_, err := w.Write(buf)
	return err
}

// Decode reads one frame from r using DefaultMaxFrameSize.
func Decode(r io.Reader) ([]byte, error) {
	return DecodeLimit(r, DefaultMaxFrameSize)
}

// DecodeLimit reads one frame from r.
//
// It returns io.EOF only when the stream ends cleanly on a frame boundary. A stream
// that ends after part of a frame was read yields an error wrapping ErrPartialFrame.
func DecodeLimit(r io.Reader, maxSize uint32) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: header: %v", ErrPartialFrame, err)
		}
		return nil, err
	}

	bodyLen := binary.LittleEndian.Uint32(header[:])
	if maxSize > 0 && bodyLen > maxSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, bodyLen, maxSize)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: body: want %d bytes: %v", ErrPartialFrame, bodyLen, err)
		}
		return nil, err
	}
	return body, nil
}
