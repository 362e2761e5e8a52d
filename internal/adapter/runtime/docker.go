// Package runtime talks to the Docker Engine API.
package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/semmidev/dockdump/internal/domain"
)

// execPollInterval spaces exec inspections while the daemon still reports the
// process as running after its output stream closed.
const execPollInterval = 100 * time.Millisecond

// Docker implements domain.ContainerRuntime against the local daemon,
// configured from DOCKER_HOST and friends.
type Docker struct {
	cli *client.Client
}

func NewDocker() (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, domain.NewError(domain.KindRuntimeAPI, "", "failed to create docker client", err)
	}
	return &Docker{cli: cli}, nil
}

func (d *Docker) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return domain.NewError(domain.KindRuntimeAPI, "", "docker daemon is not reachable", err)
	}
	return nil
}

func (d *Docker) Close() error {
	return d.cli.Close()
}

// Container resolves ref by name or id.
func (d *Docker) Container(ctx context.Context, ref string) (domain.Container, error) {
	info, err := d.cli.ContainerInspect(ctx, ref)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, domain.NewError(domain.KindContainerNotFound, "", fmt.Sprintf("container %q not found", ref), nil)
		}
		return nil, domain.NewError(domain.KindRuntimeAPI, "", fmt.Sprintf("inspect container %q", ref), err)
	}
	return &dockerContainer{cli: d.cli, id: info.ID, name: strings.TrimPrefix(info.Name, "/")}, nil
}

type dockerContainer struct {
	cli  *client.Client
	id   string
	name string
}

func (c *dockerContainer) Name() string { return c.name }

// Exec runs the command and waits for it to finish. With req.Stdout set the
// output is streamed there as it arrives; otherwise it is buffered into the
// result.
func (c *dockerContainer) Exec(ctx context.Context, req domain.ExecRequest) (domain.ExecResult, error) {
	created, err := c.cli.ContainerExecCreate(ctx, c.id, container.ExecOptions{
		Cmd:          req.Cmd,
		Env:          envList(req.Env),
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return domain.ExecResult{}, fmt.Errorf("create exec: %w", err)
	}

	attach, err := c.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return domain.ExecResult{}, fmt.Errorf("attach exec: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	var out io.Writer = &stdout
	if req.Stdout != nil {
		out = req.Stdout
	}
	if _, err := stdcopy.StdCopy(out, &stderr, attach.Reader); err != nil {
		return domain.ExecResult{}, fmt.Errorf("read exec output: %w", err)
	}

	inspect, err := waitExec(ctx, c.cli, created.ID, execPollInterval)
	if err != nil {
		return domain.ExecResult{}, fmt.Errorf("inspect exec: %w", err)
	}

	res := domain.ExecResult{ExitCode: inspect.ExitCode, Stderr: stderr.Bytes()}
	if req.Stdout == nil {
		res.Output = stdout.Bytes()
	}
	return res, nil
}

type execInspector interface {
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
}

// waitExec inspects the exec until the daemon has recorded its exit. The
// attach stream can reach EOF before that, with ExitCode still 0.
func waitExec(ctx context.Context, api execInspector, execID string, interval time.Duration) (container.ExecInspect, error) {
	for {
		inspect, err := api.ContainerExecInspect(ctx, execID)
		if err != nil {
			return container.ExecInspect{}, err
		}
		if !inspect.Running {
			return inspect, nil
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return container.ExecInspect{}, ctx.Err()
		case <-t.C:
		}
	}
}

func (c *dockerContainer) GetArchive(ctx context.Context, path string) (io.ReadCloser, error) {
	rc, _, err := c.cli.CopyFromContainer(ctx, c.id, path)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (c *dockerContainer) PutArchive(ctx context.Context, dir string, archive io.Reader) error {
	return c.cli.CopyToContainer(ctx, c.id, dir, archive, container.CopyToContainerOptions{})
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
