package process

import (
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
)

type LocalConfig struct {
	Dir      string
	Jar      string
	Java     string
	JavaArgs []string
}

// Local is a server started as a child process (java -jar <jar> nogui).
type Local struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
	stdin  io.WriteCloser
}

func StartLocal(cfg LocalConfig) (*Local, error) {
	java := cfg.Java
	if java == "" {
		java = "java"
	}
	args := append(append([]string{}, cfg.JavaArgs...), "-jar", filepath.Base(cfg.Jar), "nogui")

	cmd := exec.Command(java, args...)
	cmd.Dir = cfg.Dir
	if cmd.Dir == "" {
		cmd.Dir = filepath.Dir(cfg.Jar)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", java, err)
	}
	return &Local{cmd: cmd, stdout: stdout, stderr: stderr, stdin: stdin}, nil
}

func (l *Local) Stdout() io.Reader { return l.stdout }
func (l *Local) Stderr() io.Reader { return l.stderr }
func (l *Local) Stdin() io.Writer  { return l.stdin }

func (l *Local) Wait() error {
	return l.cmd.Wait()
}

// Kill ends the process without a graceful stop.
func (l *Local) Kill() error {
	if l.cmd.Process == nil {
		return nil
	}
	return l.cmd.Process.Kill()
}

func (l *Local) Pid() int {
	if l.cmd.Process == nil {
		return 0
	}
	return l.cmd.Process.Pid
}
