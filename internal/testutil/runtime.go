// Package testutil provides an in-memory container runtime for tests.
package testutil

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/semmidev/dockdump/internal/domain"
)

// Runtime is a scripted domain.ContainerRuntime.
type Runtime struct {
	mu         sync.Mutex
	containers map[string]*Container
	apiErrs    map[string]error
	PingErr    error
}

func NewRuntime() *Runtime {
	return &Runtime{
		containers: make(map[string]*Container),
		apiErrs:    make(map[string]error),
	}
}

// Add registers a container under name and returns it for scripting.
func (r *Runtime) Add(name string) *Container {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Container{name: name, files: make(map[string][]byte)}
	r.containers[name] = c
	return c
}

// FailLookup makes resolving ref fail with a runtime API error.
func (r *Runtime) FailLookup(ref string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apiErrs[ref] = err
}

func (r *Runtime) Container(_ context.Context, ref string) (domain.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.apiErrs[ref]; ok {
		return nil, domain.NewError(domain.KindRuntimeAPI, "", fmt.Sprintf("inspect container %q", ref), err)
	}
	c, ok := r.containers[ref]
	if !ok {
		return nil, domain.NewError(domain.KindContainerNotFound, "", fmt.Sprintf("container %q not found", ref), nil)
	}
	return c, nil
}

func (r *Runtime) Ping(context.Context) error { return r.PingErr }

func (r *Runtime) Close() error { return nil }

// Matcher selects which commands a scripted response applies to.
type Matcher func(cmd []string) bool

// MatchProgram matches commands whose executable is program.
func MatchProgram(program string) Matcher {
	return func(cmd []string) bool {
		return len(cmd) > 0 && cmd[0] == program
	}
}

// MatchArgs matches commands containing every arg.
func MatchArgs(args ...string) Matcher {
	return func(cmd []string) bool {
		for _, want := range args {
			found := false
			for _, got := range cmd {
				if got == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
}

// Response is the scripted outcome of one exec.
type Response struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Err      error
	// Creates adds files to the container filesystem when the command runs.
	Creates map[string][]byte
}

type handler struct {
	match     Matcher
	responses []Response
	calls     int
}

// Put records one PutArchive call.
type Put struct {
	Dir   string
	Name  string
	Mode  int64
	Bytes []byte
}

// Container is a scripted domain.Container.
type Container struct {
	mu       sync.Mutex
	name     string
	handlers []*handler
	files    map[string][]byte
	calls    []domain.ExecRequest
	puts     []Put

	// ArchivePrefix is prepended to member names returned by GetArchive.
	ArchivePrefix string
	PutErr        error
}

func (c *Container) Name() string { return c.name }

// OnExec scripts responses for matching commands. Responses are consumed in
// order and the last one repeats.
func (c *Container) OnExec(match Matcher, responses ...Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, &handler{match: match, responses: responses})
}

// WriteFile places a file in the container filesystem.
func (c *Container) WriteFile(p string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[p] = data
}

func (c *Container) HasFile(p string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.files[p]
	return ok
}

// Calls returns the commands executed so far.
func (c *Container) Calls() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][]string, len(c.calls))
	for i, req := range c.calls {
		out[i] = append([]string(nil), req.Cmd...)
	}
	return out
}

// Requests returns the exec requests seen so far, including environments.
func (c *Container) Requests() []domain.ExecRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ExecRequest(nil), c.calls...)
}

// CountCalls counts executed commands accepted by match.
func (c *Container) CountCalls(match Matcher) int {
	n := 0
	for _, cmd := range c.Calls() {
		if match(cmd) {
			n++
		}
	}
	return n
}

func (c *Container) Puts() []Put {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Put(nil), c.puts...)
}

func (c *Container) Exec(_ context.Context, req domain.ExecRequest) (domain.ExecResult, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	resp, scripted := c.respond(req.Cmd)
	if !scripted && len(req.Cmd) > 0 && req.Cmd[0] == "rm" {
		for _, p := range req.Cmd[1:] {
			if !strings.HasPrefix(p, "-") {
				delete(c.files, p)
			}
		}
	}
	for p, data := range resp.Creates {
		c.files[p] = data
	}
	c.mu.Unlock()

	if resp.Err != nil {
		return domain.ExecResult{}, resp.Err
	}

	result := domain.ExecResult{ExitCode: resp.ExitCode, Stderr: resp.Stderr}
	if req.Stdout == nil {
		result.Output = resp.Stdout
		return result, nil
	}
	if err := writeChunked(req.Stdout, resp.Stdout); err != nil {
		return domain.ExecResult{}, err
	}
	return result, nil
}

func (c *Container) respond(cmd []string) (Response, bool) {
	for _, h := range c.handlers {
		if !h.match(cmd) {
			continue
		}
		i := h.calls
		if i >= len(h.responses) {
			i = len(h.responses) - 1
		}
		h.calls++
		if i < 0 {
			return Response{}, true
		}
		return h.responses[i], true
	}
	return Response{}, false
}

// writeChunked delivers data in small pieces the way a multiplexed exec
// stream does.
func writeChunked(w io.Writer, data []byte) error {
	const chunk = 4
	for len(data) > 0 {
		n := chunk
		if n > len(data) {
			n = len(data)
		}
		if _, err := w.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func (c *Container) GetArchive(_ context.Context, p string) (io.ReadCloser, error) {
	c.mu.Lock()
	data, ok := c.files[p]
	prefix := c.ArchivePrefix
	c.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("could not find the file %s in container %s", p, c.name)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:     prefix + path.Base(p),
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     int64(len(data)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write(data); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return io.NopCloser(&buf), nil
}

func (c *Container) PutArchive(_ context.Context, dir string, archive io.Reader) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.PutErr != nil {
		return c.PutErr
	}

	tr := tar.NewReader(archive)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			return err
		}
		c.puts = append(c.puts, Put{Dir: dir, Name: hdr.Name, Mode: hdr.Mode, Bytes: body})
		c.files[path.Join(dir, hdr.Name)] = body
	}
}
