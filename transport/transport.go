// Package transport carries frames over the two byte streams of the driver process.
//
// A Transport has exactly one reader (the connection pump) and any number of
// writers. Send holds a write lock for the whole frame, so frames from
// concurrent callers never interleave:
//
//	goroutine-1 ──Send(id=1)──┐
//	goroutine-2 ──Send(id=2)──┼──→ driver stdin
//	goroutine-3 ──Send(id=3)──┘
//
//	pump: Receive() ←── driver stdout (frames strictly in arrival order)
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"mini-playwright/errext"
	"mini-playwright/protocol"
)

// Transport moves whole frames. Receive must only be called from one goroutine.
type Transport interface {
	// Send writes one frame atomically with respect to other Send calls.
	Send(frame []byte) error
	// Receive blocks until a full frame is available.
	Receive() ([]byte, error)
	Close() error
}

// PipeTransport implements Transport over the driver's stdout (r) and stdin (w).
//
// Receive reports a closed pipe as errext.ErrTransportClosed and a stream cut
// inside a frame as errext.ErrProtocol wrapping protocol.ErrPartialFrame.
type PipeTransport struct {
	r       io.ReadCloser
	br      *bufio.Reader
	w       io.WriteCloser
	maxSize uint32

	sending   sync.Mutex // held for a whole frame so concurrent writers never interleave
	closeOnce sync.Once
	closed    chan struct{}
}

// NewPipeTransport wraps the two streams. maxFrameSize of 0 selects
// protocol.DefaultMaxFrameSize.
func NewPipeTransport(r io.ReadCloser, w io.WriteCloser, maxFrameSize uint32) *PipeTransport {
	if maxFrameSize == 0 {
		maxFrameSize = protocol.DefaultMaxFrameSize
	}
	return &PipeTransport{
		r:       r,
		br:      bufio.NewReaderSize(r, 64<<10),
		w:       w,
		maxSize: maxFrameSize,
		closed:  make(chan struct{}),
	}
}

func (t *PipeTransport) Send(frame []byte) error {
	select {
	case <-t.closed:
		return errext.ErrTransportClosed
	default:
	}

	t.sending.Lock()
	defer t.sending.Unlock()

	if err := protocol.Encode(t.w, frame); err != nil {
		if isClosedErr(err) {
			return fmt.Errorf("%w: %v", errext.ErrTransportClosed, err)
		}
		return err
	}
	return nil
}

func (t *PipeTransport) Receive() ([]byte, error) {
	frame, err := protocol.DecodeLimit(t.br, t.maxSize)
	switch {
	case err == nil:
		return frame, nil
	case errors.Is(err, protocol.ErrPartialFrame), errors.Is(err, protocol.ErrFrameTooLarge):
		return nil, errext.NewProtocolError("framing lost", nil, err)
	case isClosedErr(err):
		return nil, fmt.Errorf("%w: %v", errext.ErrTransportClosed, err)
	default:
		select {
		case <-t.closed:
			return nil, fmt.Errorf("%w: %v", errext.ErrTransportClosed, err)
		default:
			return nil, err
		}
	}
}

// Close closes both streams. It is safe to call more than once.
func (t *PipeTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = errors.Join(t.w.Close(), t.r.Close())
	})
	return err
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed)
}
