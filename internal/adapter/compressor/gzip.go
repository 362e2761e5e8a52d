package compressor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/semmidev/dockdump/internal/domain"
)

// GzipPipe compresses byte streams straight into backup files. Output is
// written to "<dest>.tmp" and renamed into place only after the gzip stream
// is closed cleanly; on any failure the temp file is removed and dest is
// never created.
type GzipPipe struct {
	level int
}

func NewGzip(level int) *GzipPipe {
	if level < gzip.DefaultCompression || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return &GzipPipe{level: level}
}

// StreamExec runs cmd inside the container and compresses its stdout into
// destPath chunk by chunk as the runtime delivers it.
func (g *GzipPipe) StreamExec(ctx context.Context, c domain.Container, cmd []string, env map[string]string, destPath string) error {
	out, err := g.create(destPath)
	if err != nil {
		return err
	}

	sink := &trackingWriter{w: out.gz}
	res, err := c.Exec(ctx, domain.ExecRequest{Cmd: cmd, Env: env, Stdout: sink})
	if err != nil {
		out.abort()
		if sink.err != nil {
			return domain.NewIOError("failed to write compressed output", sink.err)
		}
		return domain.NewError(domain.KindRuntimeAPI, "", fmt.Sprintf("exec %s in %s", cmd[0], c.Name()), err)
	}
	if res.ExitCode != 0 {
		out.abort()
		return domain.NewDumpCommandError(cmd, res.ExitCode, res.Stderr)
	}

	return out.finish()
}

// StreamReader compresses everything read from r into destPath.
func (g *GzipPipe) StreamReader(r io.Reader, destPath string) error {
	out, err := g.create(destPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out.gz, r); err != nil {
		out.abort()
		return domain.NewIOError("failed to compress", err)
	}

	return out.finish()
}

// StreamBlob compresses an already materialized payload into destPath.
func (g *GzipPipe) StreamBlob(data []byte, destPath string) error {
	return g.StreamReader(bytes.NewReader(data), destPath)
}

// Verify decompresses the file at path and returns the uncompressed size.
func (g *GzipPipe) Verify(path string) (int64, error) {
	sourceFile, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open source file: %w", err)
	}
	defer sourceFile.Close()

	gzipReader, err := gzip.NewReader(sourceFile)
	if err != nil {
		return 0, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	n, err := io.Copy(io.Discard, gzipReader)
	if err != nil {
		return n, fmt.Errorf("failed to decompress: %w", err)
	}

	return n, nil
}

type output struct {
	file      *os.File
	gz        *gzip.Writer
	tmpPath   string
	finalPath string
}

func (g *GzipPipe) create(destPath string) (*output, error) {
	tmpPath := destPath + ".tmp"
	destFile, err := os.Create(tmpPath)
	if err != nil {
		return nil, domain.NewIOError("failed to create dest file", err)
	}

	gzipWriter, err := gzip.NewWriterLevel(destFile, g.level)
	if err != nil {
		_ = destFile.Close()
		_ = os.Remove(tmpPath)
		return nil, domain.NewIOError("failed to create gzip writer", err)
	}

	return &output{file: destFile, gz: gzipWriter, tmpPath: tmpPath, finalPath: destPath}, nil
}

func (o *output) finish() error {
	if err := o.gz.Close(); err != nil {
		o.abort()
		return domain.NewIOError("failed to flush gzip stream", err)
	}
	if err := o.file.Close(); err != nil {
		_ = os.Remove(o.tmpPath)
		return domain.NewIOError("failed to close dest file", err)
	}
	if err := os.Rename(o.tmpPath, o.finalPath); err != nil {
		_ = os.Remove(o.tmpPath)
		return domain.NewIOError("failed to finalize dest file", err)
	}
	return nil
}

func (o *output) abort() {
	_ = o.gz.Close()
	_ = o.file.Close()
	_ = os.Remove(o.tmpPath)
}

// trackingWriter remembers the first local write failure so it can be told
// apart from a runtime error.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil && t.err == nil {
		t.err = err
	}
	return n, err
}
