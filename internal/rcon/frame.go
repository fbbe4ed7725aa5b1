// Package rcon implements the Minecraft remote console protocol: the frame
// codec, a single-connection client, and a reconnecting session on top of it.
package rcon

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

type FrameType int32

const (
	TypeResponse     FrameType = 0
	TypeCommand      FrameType = 2
	TypeAuthenticate FrameType = 3
)

func (t FrameType) String() string {
	switch t {
	case TypeResponse:
		return "response"
	case TypeCommand:
		return "command"
	case TypeAuthenticate:
		return "authenticate"
	default:
		return fmt.Sprintf("type(%d)", int32(t))
	}
}

const (
	// HeaderLength counts id, type and the two pad bytes. The length field
	// itself is not included.
	HeaderLength = 10

	// MaxFrameLength bounds the length prefix accepted from the server.
	MaxFrameLength = 1 << 16

	prefixSize = 4
	minFrame   = 12
)

var ErrProtocolDecode = errors.New("rcon: malformed frame")

// Frame is one length-prefixed protocol message.
type Frame struct {
	Length int32     `json:"length"`
	ID     int32     `json:"id"`
	Type   FrameType `json:"type"`
	Body   string    `json:"body"`
}

// NewFrame builds a frame with its length derived from the ASCII form of body.
func NewFrame(id int32, typ FrameType, body string) Frame {
	body = toASCII(body)
	return Frame{
		Length: int32(HeaderLength + len(body)),
		ID:     id,
		Type:   typ,
		Body:   body,
	}
}

// Encode serializes f little-endian. Non-ASCII runes in the body are sent
// as '?'; the length prefix is always recomputed from the encoded body.
func Encode(f Frame) []byte {
	body := toASCII(f.Body)
	buf := make([]byte, prefixSize+HeaderLength+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(HeaderLength+len(body)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(f.ID))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(f.Type))
	copy(buf[12:], body)
	// the two trailing bytes are already zero
	return buf
}

// Decode parses one complete frame. Bytes after the 12-byte header, minus
// the two-byte pad, form the body.
func Decode(data []byte) (Frame, error) {
	if len(data) < minFrame {
		return Frame{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrProtocolDecode, len(data), minFrame)
	}
	f := Frame{
		Length: int32(binary.LittleEndian.Uint32(data[0:4])),
		ID:     int32(binary.LittleEndian.Uint32(data[4:8])),
		Type:   FrameType(int32(binary.LittleEndian.Uint32(data[8:12]))),
	}
	if bodyLen := len(data) - (HeaderLength + prefixSize); bodyLen > 0 {
		f.Body = string(data[12 : 12+bodyLen])
	}
	return f, nil
}

func toASCII(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return strings.Map(func(r rune) rune {
				if r >= 0x80 {
					return '?'
				}
				return r
			}, s)
		}
	}
	return s
}
