package rcon

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"
)

const (
	DefaultCallTimeout = time.Second
	DefaultPacing      = 100 * time.Millisecond

	// probe is how long the client waits when checking whether more
	// bytes are already queued on the socket.
	defaultProbe = 5 * time.Millisecond
)

var ErrTransport = errors.New("rcon: transport failure")

// TransportError is an I/O fault on the connection. It matches both
// ErrTransport and the underlying cause.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rcon: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// Response is the result of one request. OK reports whether the response id
// matched the request id; the server answers a rejected login with id -1.
type Response struct {
	Frame
	OK bool `json:"ok"`
}

// Client owns one TCP connection to an RCON server. It is not safe for
// concurrent use: callers must serialize SendCommand themselves or accept
// interleaved reads.
type Client struct {
	conn   net.Conn
	r      *bufio.Reader
	lastID atomic.Int32

	timeout time.Duration
	pacing  time.Duration
	probe   time.Duration

	// broken is set when a read stopped in the middle of a frame; the
	// stream can no longer be trusted.
	broken bool
}

type Option func(*Client)

// WithCallTimeout sets the overall read deadline of one request.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithPacing sets the delay after each read before checking for more data.
func WithPacing(d time.Duration) Option {
	return func(c *Client) { c.pacing = d }
}

func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rcon: dial %s: %w", addr, err)
	}
	return NewClient(conn, opts...), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		r:       bufio.NewReaderSize(conn, 4096+prefixSize+HeaderLength),
		timeout: DefaultCallTimeout,
		pacing:  DefaultPacing,
		probe:   defaultProbe,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Authenticate logs in with the shared secret.
func (c *Client) Authenticate(ctx context.Context, password string) (bool, error) {
	resp, err := c.roundTrip(ctx, TypeAuthenticate, password)
	if err != nil {
		return false, err
	}
	return resp.OK, nil
}

// SendCommand runs one console command and collects its response.
func (c *Client) SendCommand(ctx context.Context, command string) (Response, error) {
	return c.roundTrip(ctx, TypeCommand, command)
}

// roundTrip writes one request and aggregates whatever the server sends back.
//
// The protocol has no continuation flag, so a response split over several
// packets is detected by socket quiescence: after each frame the client
// sleeps for the pacing delay and keeps reading while bytes are still
// queued. All reads share one deadline measured from the start of the call;
// the pacing sleeps are not counted against it. This is best effort: a slow
// fragment can be cut off, and two responses arriving back to back can be
// merged.
func (c *Client) roundTrip(ctx context.Context, typ FrameType, body string) (Response, error) {
	if c.broken {
		return Response{}, &TransportError{Op: "read", Err: io.ErrUnexpectedEOF}
	}

	req := NewFrame(c.lastID.Add(1), typ, body)
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return Response{}, &TransportError{Op: "write", Err: err}
	}
	if _, err := c.conn.Write(Encode(req)); err != nil {
		return Response{}, &TransportError{Op: "write", Err: err}
	}

	var frames []Frame
	for {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return Response{}, &TransportError{Op: "read", Err: err}
		}
		f, err := c.readFrame()
		if err != nil {
			if isTimeout(err) && len(frames) > 0 && !c.broken {
				break
			}
			if errors.Is(err, ErrProtocolDecode) {
				c.broken = true
				return Response{}, err
			}
			return Response{}, &TransportError{Op: "read", Err: err}
		}
		frames = append(frames, f)

		if !sleepContext(ctx, c.pacing) || !c.pending() {
			break
		}
	}

	if len(frames) == 1 {
		return Response{Frame: frames[0], OK: frames[0].ID == req.ID}, nil
	}
	return merge(req.ID, frames), nil
}

func (c *Client) readFrame() (Frame, error) {
	var prefix [prefixSize]byte
	n, err := io.ReadFull(c.r, prefix[:])
	if err != nil {
		if n > 0 {
			c.broken = true
		}
		return Frame{}, err
	}
	length := int32(binary.LittleEndian.Uint32(prefix[:]))
	if length < HeaderLength || length > MaxFrameLength {
		return Frame{}, fmt.Errorf("%w: length prefix %d", ErrProtocolDecode, length)
	}
	buf := make([]byte, prefixSize+int(length))
	copy(buf, prefix[:])
	if _, err := io.ReadFull(c.r, buf[prefixSize:]); err != nil {
		c.broken = true
		return Frame{}, err
	}
	return Decode(buf)
}

// pending reports whether more bytes are already waiting on the socket.
func (c *Client) pending() bool {
	if c.r.Buffered() > 0 {
		return true
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.probe)); err != nil {
		return false
	}
	_, err := c.r.Peek(1)
	return err == nil
}

func merge(id int32, frames []Frame) Response {
	var length int32
	var body []byte
	for _, f := range frames {
		length += f.Length
		body = append(body, f.Body...)
	}
	return Response{
		Frame: Frame{Length: length, ID: id, Type: TypeResponse, Body: string(body)},
		OK:    true,
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
