package debugproto

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/tidwall/gjson"
)

// Channel is a single request/response stream to the debug server. Every
// call to Send must be paired with exactly one call to Recv before the
// next Send; callers are responsible for that pairing (the control loop
// enforces it at a higher level). Implementations must be safe to use from
// one goroutine at a time but are not required to be safe for concurrent
// use by multiple goroutines without external synchronization.
type Channel interface {
	Send(req Request) error
	Recv() (Response, error)
	Close() error
}

// Conn is the subset of net.Conn a Channel needs.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// frameChannel implements Channel over a Conn using a 4-byte big-endian
// length prefix followed by a JSON-encoded payload. It is the default
// wire codec for both the primary and auxiliary channels.
type frameChannel struct {
	conn Conn
	mu   sync.Mutex
}

// NewFrameChannel wraps conn in the default length-prefixed-JSON Channel
// implementation.
func NewFrameChannel(conn Conn) Channel {
	return &frameChannel{conn: conn}
}

func (c *frameChannel) Send(req Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("debugproto: encode request: %w", err)
	}

	return writeFrame(c.conn, payload)
}

func (c *frameChannel) Recv() (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := readFrame(c.conn)
	if err != nil {
		return Response{}, err
	}

	// Peek the discriminator before committing to a full unmarshal so a
	// frame without a "type" field surfaces as a clear error rather than a
	// zero-value Response. A present but unrecognized type is decoded as-is;
	// rejecting it is left to the caller.
	typ := gjson.GetBytes(payload, "type")
	if !typ.Exists() {
		return Response{}, fmt.Errorf("debugproto: response missing type discriminator")
	}

	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Response{}, fmt.Errorf("debugproto: decode response (type=%s): %w", typ.String(), err)
	}

	return resp, nil
}

func (c *frameChannel) Close() error {
	return c.conn.Close()
}

func writeFrame(w io.Writer, payload []byte) error {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("debugproto: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("debugproto: write frame body: %w", err)
	}
	return nil
}

func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("debugproto: read frame header: %w", err)
	}

	size := binary.BigEndian.Uint32(header)
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("debugproto: read frame body: %w", err)
	}

	return payload, nil
}
