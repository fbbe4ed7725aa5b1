package process

import (
	"errors"
	"io"
	"strings"
	"sync"
)

var ErrMultiline = errors.New("process: command contains a line break")

// Sink writes console commands straight to the process's stdin. Writes are
// ordered among themselves; there is no response and nothing is retried.
type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

// Send writes command followed by a newline.
func (s *Sink) Send(command string) error {
	if strings.ContainsAny(command, "\r\n") {
		return ErrMultiline
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, command+"\n")
	return err
}
