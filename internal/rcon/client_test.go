package rcon

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// startServer runs a loopback RCON server that hands every decoded request
// to handle together with the connection to answer on.
func startServer(t *testing.T, handle func(conn net.Conn, req Frame)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				for {
					req, err := readRequest(conn)
					if err != nil {
						return
					}
					handle(conn, req)
				}
			}()
		}
	}()
	return ln.Addr().String()
}

func readRequest(r io.Reader) (Frame, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Frame{}, err
	}
	buf := make([]byte, 4+int(binary.LittleEndian.Uint32(prefix[:])))
	copy(buf, prefix[:])
	if _, err := io.ReadFull(r, buf[4:]); err != nil {
		return Frame{}, err
	}
	return Decode(buf)
}

func dialTest(t *testing.T, addr string, opts ...Option) *Client {
	t.Helper()
	c, err := Dial(context.Background(), addr, opts...)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestAuthenticate(t *testing.T) {
	addr := startServer(t, func(conn net.Conn, req Frame) {
		id := req.ID
		if req.Body != "hunter2" {
			id = -1
		}
		conn.Write(Encode(NewFrame(id, TypeCommand, "")))
	})

	c := dialTest(t, addr)
	ok, err := c.Authenticate(context.Background(), "wrong")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if ok {
		t.Fatalf("Authenticate with wrong password succeeded")
	}
	ok, err = c.Authenticate(context.Background(), "hunter2")
	if err != nil || !ok {
		t.Fatalf("Authenticate = %v, %v; want true, nil", ok, err)
	}
}

func TestSendCommandSingleFrame(t *testing.T) {
	addr := startServer(t, func(conn net.Conn, req Frame) {
		conn.Write(Encode(NewFrame(req.ID, TypeResponse, "echo "+req.Body)))
	})

	c := dialTest(t, addr, WithPacing(10*time.Millisecond))
	for i, cmd := range []string{"list", "time query day"} {
		resp, err := c.SendCommand(context.Background(), cmd)
		if err != nil {
			t.Fatalf("SendCommand(%q): %v", cmd, err)
		}
		if !resp.OK {
			t.Errorf("SendCommand(%q) not OK", cmd)
		}
		if resp.ID != int32(i+1) {
			t.Errorf("response id = %d; want %d", resp.ID, i+1)
		}
		if resp.Body != "echo "+cmd {
			t.Errorf("body = %q", resp.Body)
		}
	}
}

func TestSendCommandIDMismatch(t *testing.T) {
	addr := startServer(t, func(conn net.Conn, req Frame) {
		conn.Write(Encode(NewFrame(req.ID+100, TypeResponse, "stale")))
	})

	c := dialTest(t, addr, WithPacing(10*time.Millisecond))
	resp, err := c.SendCommand(context.Background(), "list")
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if resp.OK {
		t.Fatalf("mismatched id reported OK")
	}
}

func TestSendCommandAggregatesFragments(t *testing.T) {
	addr := startServer(t, func(conn net.Conn, req Frame) {
		conn.Write(Encode(NewFrame(5, TypeResponse, "He")))
		conn.Write(Encode(NewFrame(5, TypeResponse, "llo")))
	})

	c := dialTest(t, addr)
	resp, err := c.SendCommand(context.Background(), "help")
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if resp.Body != "Hello" {
		t.Fatalf("body = %q; want %q", resp.Body, "Hello")
	}
	if !resp.OK || resp.Type != TypeResponse {
		t.Fatalf("response = %+v; want OK synthetic response", resp)
	}
	if resp.Length != 12+13 {
		t.Fatalf("length = %d; want sum of fragment lengths 25", resp.Length)
	}
	if resp.ID != 1 {
		t.Fatalf("id = %d; want request id 1", resp.ID)
	}
}

func TestSendCommandTimeoutWithoutResponse(t *testing.T) {
	addr := startServer(t, func(conn net.Conn, req Frame) {})

	c := dialTest(t, addr, WithCallTimeout(150*time.Millisecond))
	start := time.Now()
	_, err := c.SendCommand(context.Background(), "list")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v; want ErrTransport", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("call took %v; deadline not honoured", elapsed)
	}
}

func TestSendCommandRejectsBadLength(t *testing.T) {
	addr := startServer(t, func(conn net.Conn, req Frame) {
		conn.Write([]byte{3, 0, 0, 0, 1, 2, 3})
	})

	c := dialTest(t, addr, WithPacing(10*time.Millisecond))
	_, err := c.SendCommand(context.Background(), "list")
	if !errors.Is(err, ErrProtocolDecode) {
		t.Fatalf("err = %v; want ErrProtocolDecode", err)
	}
	if _, err := c.SendCommand(context.Background(), "list"); !errors.Is(err, ErrTransport) {
		t.Fatalf("second call err = %v; want ErrTransport on a broken stream", err)
	}
}
