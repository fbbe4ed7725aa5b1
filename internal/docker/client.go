package docker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// DefaultRCONPort is the in-container RCON port of the stock server image.
const DefaultRCONPort = 25575

var ErrPortNotPublished = errors.New("docker: port not published")

// Client is the slice of the Docker API needed to drive an existing server
// container: attach to its console, find its RCON port and stop it.
type Client struct {
	cli *client.Client
}

func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) Inspect(ctx context.Context, id string) (types.ContainerJSON, error) {
	resp, err := c.cli.ContainerInspect(ctx, id)
	if err != nil {
		return types.ContainerJSON{}, fmt.Errorf("inspect %s: %w", id, err)
	}
	return resp, nil
}

func (c *Client) Start(ctx context.Context, id string) error {
	return c.cli.ContainerStart(ctx, id, container.StartOptions{})
}

func (c *Client) Stop(ctx context.Context, id string, timeoutSeconds int) error {
	return c.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeoutSeconds})
}

// Attach opens the main process's stdin/stdout/stderr. Output is
// multiplexed unless the container was created with a TTY.
func (c *Client) Attach(ctx context.Context, id string) (types.HijackedResponse, error) {
	resp, err := c.cli.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return types.HijackedResponse{}, fmt.Errorf("attach %s: %w", id, err)
	}
	return resp, nil
}

// Wait blocks until the container is no longer running and returns its
// exit code.
func (c *Client) Wait(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := c.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case st := <-statusCh:
		if st.Error != nil && st.Error.Message != "" {
			return st.StatusCode, errors.New(st.Error.Message)
		}
		return st.StatusCode, nil
	case err := <-errCh:
		return -1, err
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// RCONAddr resolves the host address published for the container's RCON
// port.
func (c *Client) RCONAddr(ctx context.Context, id string, port int) (string, error) {
	info, err := c.Inspect(ctx, id)
	if err != nil {
		return "", err
	}
	if info.NetworkSettings == nil {
		return "", ErrPortNotPublished
	}
	return PublishedAddr(info.NetworkSettings.Ports, port)
}

// PublishedAddr picks the host binding of a tcp container port.
func PublishedAddr(ports nat.PortMap, port int) (string, error) {
	p, err := nat.NewPort("tcp", strconv.Itoa(port))
	if err != nil {
		return "", err
	}
	for _, b := range ports[p] {
		if b.HostPort == "" {
			continue
		}
		host := b.HostIP
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = "127.0.0.1"
		}
		return net.JoinHostPort(host, b.HostPort), nil
	}
	return "", fmt.Errorf("%w: %s", ErrPortNotPublished, p)
}
