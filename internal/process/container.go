package process

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/reedfamily/craftbridge/internal/docker"
)

// Container is a server running in a Docker container, driven through an
// attach session on its main process. A stopped container is started.
type Container struct {
	client *docker.Client
	id     string
	conn   types.HijackedResponse
	stdout *io.PipeReader
	stderr *io.PipeReader
	done   chan error
}

func AttachContainer(ctx context.Context, client *docker.Client, id string) (*Container, error) {
	info, err := client.Inspect(ctx, id)
	if err != nil {
		return nil, err
	}
	if info.Config != nil && !info.Config.OpenStdin {
		return nil, fmt.Errorf("container %s has no open stdin", id)
	}

	conn, err := client.Attach(ctx, id)
	if err != nil {
		return nil, err
	}

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	tty := info.Config != nil && info.Config.Tty
	c := &Container{client: client, id: id, conn: conn, stdout: outR, stderr: errR, done: make(chan error, 1)}

	go func() {
		var err error
		if tty {
			_, err = io.Copy(outW, conn.Reader)
		} else {
			_, err = stdcopy.StdCopy(outW, errW, conn.Reader)
		}
		outW.CloseWithError(err)
		errW.CloseWithError(err)
		c.done <- err
	}()

	// Attach before starting so the startup output is not lost.
	if info.State == nil || !info.State.Running {
		if err := client.Start(ctx, id); err != nil {
			conn.Close()
			return nil, fmt.Errorf("start container %s: %w", id, err)
		}
	}
	return c, nil
}

func (c *Container) Stdout() io.Reader { return c.stdout }
func (c *Container) Stderr() io.Reader { return c.stderr }
func (c *Container) Stdin() io.Writer  { return c.conn.Conn }

// Wait returns once the container's main process has exited and the
// attach stream is drained.
func (c *Container) Wait() error {
	code, err := c.client.Wait(context.Background(), c.id)
	c.conn.Close()
	<-c.done
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("container %s exited with status %d", c.id, code)
	}
	return nil
}

func (c *Container) ID() string { return c.id }

// Kill stops the container, giving the server 30 seconds before docker
// kills it.
func (c *Container) Kill() error {
	return c.client.Stop(context.Background(), c.id, 30)
}
