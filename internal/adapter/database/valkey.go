package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/semmidev/dockdump/internal/domain"
)

const (
	DefaultRDBPath  = "/data/dump.rdb"
	DefaultRedisCLI = "redis-cli"

	WaitPoll  = "poll"
	WaitFixed = "fixed"
)

// ValkeyOptions controls how completion of BGSAVE is awaited. In poll mode
// LASTSAVE is sampled every PollInterval until it advances or Timeout passes.
// Fixed mode sleeps Grace and assumes the save finished.
type ValkeyOptions struct {
	WaitMode     string
	Grace        time.Duration
	PollInterval time.Duration
	Timeout      time.Duration
}

type ValkeyDatabase struct {
	pipe  Pipe
	opts  ValkeyOptions
	log   domain.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

func NewValkey(pipe Pipe, opts ValkeyOptions, log domain.Logger) *ValkeyDatabase {
	if opts.WaitMode == "" {
		opts.WaitMode = WaitPoll
	}
	if opts.Grace < 0 {
		opts.Grace = 0
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	return &ValkeyDatabase{pipe: pipe, opts: opts, log: log, sleep: sleepContext}
}

func (v *ValkeyDatabase) Engine() domain.Engine {
	return domain.EngineValkeyRedis
}

func (v *ValkeyDatabase) Backup(ctx context.Context, c domain.Container, target domain.DatabaseTarget, destPath string) error {
	cli := target.PathHint(domain.HintCLI)
	if cli == "" {
		cli = DefaultRedisCLI
	}
	rdbPath := target.PathHint(domain.HintRDBPath)
	if rdbPath == "" {
		rdbPath = DefaultRDBPath
	}

	// redis-cli and valkey-cli both read the password from REDISCLI_AUTH.
	var env map[string]string
	if pw := target.Credential(domain.CredPassword); pw != "" {
		env = map[string]string{"REDISCLI_AUTH": pw}
	}

	var before int64
	polling := v.opts.WaitMode == WaitPoll
	if polling {
		ts, err := v.lastSave(ctx, c, cli, env)
		if err != nil {
			v.log.Warnf("[%s] LASTSAVE unavailable, falling back to a fixed %s wait: %v", target.Name, v.opts.Grace, err)
			polling = false
		}
		before = ts
	}

	cmd := []string{cli, "BGSAVE"}
	res, err := c.Exec(ctx, domain.ExecRequest{Cmd: cmd, Env: env})
	if err != nil {
		return execError(c, cmd, err)
	}
	if res.ExitCode != 0 || isReplyError(res) {
		return domain.NewDumpCommandError(cmd, res.ExitCode, combinedOutput(res))
	}
	v.log.Infof("[%s] BGSAVE triggered in %s", target.Name, c.Name())

	if polling {
		if err := v.awaitSave(ctx, c, cli, env, before); err != nil {
			return err
		}
	} else if err := v.sleep(ctx, v.opts.Grace); err != nil {
		return err
	}

	return copyOut(ctx, v.pipe, c, rdbPath, destPath)
}

func (v *ValkeyDatabase) awaitSave(ctx context.Context, c domain.Container, cli string, env map[string]string, before int64) error {
	var waited time.Duration
	for waited < v.opts.Timeout {
		if err := v.sleep(ctx, v.opts.PollInterval); err != nil {
			return err
		}
		waited += v.opts.PollInterval

		ts, err := v.lastSave(ctx, c, cli, env)
		if err == nil && ts > before {
			return nil
		}
	}
	return domain.NewError(domain.KindDumpCommand, "", fmt.Sprintf("background save did not complete within %s", v.opts.Timeout), nil)
}

func (v *ValkeyDatabase) lastSave(ctx context.Context, c domain.Container, cli string, env map[string]string) (int64, error) {
	cmd := []string{cli, "LASTSAVE"}
	res, err := c.Exec(ctx, domain.ExecRequest{Cmd: cmd, Env: env})
	if err != nil {
		return 0, err
	}
	if res.ExitCode != 0 {
		return 0, &domain.CommandError{Command: cmd, ExitCode: res.ExitCode, Output: string(combinedOutput(res))}
	}
	return parseInteger(res.Output)
}

func parseInteger(out []byte) (int64, error) {
	s := strings.TrimSpace(string(out))
	s = strings.TrimPrefix(s, "(integer) ")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected LASTSAVE reply %q", s)
	}
	return n, nil
}

// isReplyError reports a server error reply such as ERR, NOAUTH, WRONGPASS,
// MISCONF or LOADING. redis-cli exits 0 on those, and reports a rejected
// REDISCLI_AUTH password only on stderr.
func isReplyError(res domain.ExecResult) bool {
	if strings.Contains(string(res.Stderr), "AUTH failed") {
		return true
	}
	s := strings.TrimSpace(string(res.Output))
	s = strings.TrimPrefix(s, "(error) ")
	fields := strings.Fields(s)
	if len(fields) == 0 || !isErrorCode(fields[0]) {
		return false
	}
	// A save already running will still produce the snapshot we wait for.
	return !strings.Contains(s, "already in progress")
}

// isErrorCode matches the upper-case code that prefixes a RESP error.
func isErrorCode(tok string) bool {
	if len(tok) < 2 || tok == "OK" {
		return false
	}
	for _, r := range tok {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
