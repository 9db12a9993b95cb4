package services

import (
	"errors"
	"strings"
)

// CommandError carries the external command line and its captured output
// through an error chain so failure records can reproduce the invocation.
type CommandError struct {
	Command string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	if e == nil {
		return "command error"
	}
	var b strings.Builder
	b.WriteString("command failed")
	if e.Command != "" {
		b.WriteString(": ")
		b.WriteString(e.Command)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *CommandError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewCommandError wraps err with the attempted command line and output. Output
// is trimmed and bounded so stored failure context stays readable.
func NewCommandError(command string, output []byte, err error) *CommandError {
	const maxOutput = 16 * 1024
	text := strings.TrimSpace(string(output))
	if len(text) > maxOutput {
		text = text[len(text)-maxOutput:]
	}
	return &CommandError{Command: strings.TrimSpace(command), Output: text, Err: err}
}

// CommandDetail extracts the command line and output from an error chain.
func CommandDetail(err error) (command, output string, ok bool) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr != nil {
		return cmdErr.Command, cmdErr.Output, true
	}
	return "", "", false
}
