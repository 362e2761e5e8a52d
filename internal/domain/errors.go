package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies per-target failures.
type ErrorKind string

const (
	KindConfig            ErrorKind = "CONFIG_ERROR"
	KindContainerNotFound ErrorKind = "CONTAINER_NOT_FOUND"
	KindRuntimeAPI        ErrorKind = "RUNTIME_API_ERROR"
	KindInjection         ErrorKind = "INJECTION_ERROR"
	KindDumpCommand       ErrorKind = "DUMP_COMMAND_ERROR"
	KindExtract           ErrorKind = "EXTRACT_ERROR"
	KindIO                ErrorKind = "IO_ERROR"
	KindStrategy          ErrorKind = "STRATEGY_ERROR"
)

// BackupError is the error type returned across component boundaries.
type BackupError struct {
	Kind    ErrorKind
	Target  string
	Message string
	Cause   error
}

func (e *BackupError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Target != "" {
		fmt.Fprintf(&b, " [%s]", e.Target)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *BackupError) Unwrap() error {
	return e.Cause
}

func NewError(kind ErrorKind, target, message string, cause error) *BackupError {
	return &BackupError{Kind: kind, Target: target, Message: message, Cause: cause}
}

func NewConfigError(target, message string) *BackupError {
	return NewError(KindConfig, target, message, nil)
}

func NewIOError(message string, cause error) *BackupError {
	return NewError(KindIO, "", message, cause)
}

func NewExtractError(message string, cause error) *BackupError {
	return NewError(KindExtract, "", message, cause)
}

// NewStrategyError wraps a failure raised inside an engine strategy.
func NewStrategyError(target string, cause error) *BackupError {
	return NewError(KindStrategy, target, "", cause)
}

// IsKind reports whether any BackupError in the chain has the given kind.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		var be *BackupError
		if !errors.As(err, &be) {
			return false
		}
		if be.Kind == kind {
			return true
		}
		err = be.Cause
	}
	return false
}

// CommandError reports a nonzero exit status from a command run in a container.
type CommandError struct {
	Command  []string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s exited with code %d", e.program(), e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.program(), e.ExitCode, out)
}

func (e *CommandError) program() string {
	if len(e.Command) == 0 {
		return "command"
	}
	return e.Command[0]
}

// NewDumpCommandError wraps a CommandError as DUMP_COMMAND_ERROR.
func NewDumpCommandError(cmd []string, exitCode int, output []byte) *BackupError {
	return NewError(KindDumpCommand, "", "", &CommandError{
		Command:  cmd,
		ExitCode: exitCode,
		Output:   string(output),
	})
}

// MemberNotFoundError is returned when a container archive does not hold the
// requested file. Members lists every entry name seen, in archive order.
type MemberNotFoundError struct {
	Path    string
	Members []string
}

func (e *MemberNotFoundError) Error() string {
	return fmt.Sprintf("could not find %q in archive, contents: %v", e.Path, e.Members)
}
