package runner

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Output is the captured result of a finished command.
type Output struct {
	Command    string
	ReturnCode int
	Stdout     string
	Stderr     string
}

// CommandError is returned by Output.Check for a non-zero return code.
type CommandError struct {
	Command    string
	ReturnCode int
	Stdout     string
	Stderr     string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command failed with return code %d: %s\n%s", e.ReturnCode, e.Command, strings.TrimSpace(e.Stderr))
}

// OK reports whether the command exited with status zero.
func (o *Output) OK() bool {
	return o.ReturnCode == 0
}

// Check returns a *CommandError when the command did not exit with status zero.
func (o *Output) Check() error {
	if o.OK() {
		return nil
	}
	return &CommandError{
		Command:    o.Command,
		ReturnCode: o.ReturnCode,
		Stdout:     o.Stdout,
		Stderr:     o.Stderr,
	}
}

// StdoutAsArray splits stdout into words the way the shell would.
// Unbalanced quoting falls back to plain whitespace splitting.
func (o *Output) StdoutAsArray() []string {
	words, err := shellquote.Split(o.Stdout)
	if err != nil {
		return strings.Fields(o.Stdout)
	}
	return words
}

// Run executes cmd and captures its output. A non-zero exit status is not an
// error; only a failure to start or wait for the process is.
func Run(cmd *exec.Cmd) (*Output, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	out := &Output{Command: cmd.String()}
	err := cmd.Run()
	out.Stdout = strings.TrimSpace(stdout.String())
	out.Stderr = strings.TrimSpace(stderr.String())
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ReturnCode = exitErr.ExitCode()
			return out, nil
		}
		return out, fmt.Errorf("command failed: %s: %w", cmd.String(), err)
	}
	return out, nil
}
