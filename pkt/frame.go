// file: meshd/pkt/frame.go
package pkt

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// MaxFrameSize guards against a corrupt or hostile length prefix causing an
// unbounded allocation.
const MaxFrameSize = 16 * 1024 * 1024

// Writer serializes envelopes as a 4-byte big-endian length prefix followed
// by the JSON body, grounded in the teacher's stream-writer idiom.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Write(env *Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("pkt: marshal: %w", err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("pkt: frame too large: %d bytes", len(body))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("pkt: write length: %w", err)
	}
	if _, err := w.w.Write(body); err != nil {
		return fmt.Errorf("pkt: write body: %w", err)
	}
	return nil
}

// Reader deframes envelopes from a stream, one length-prefixed JSON object
// at a time.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

func (r *Reader) Read() (*Envelope, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("pkt: frame too large: %d bytes", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return nil, fmt.Errorf("pkt: read body: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("pkt: unmarshal: %w", err)
	}
	return &env, nil
}
