package actions

import (
	"bytes"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ActionHandler runs one type of action
type ActionHandler interface {
	// Execute runs the code and returns its trimmed output
	Execute(code string) (string, error)

	// Validate checks the code without running it
	Validate(code string) error

	// IsSupported reports whether the handler can run here
	IsSupported() bool
}

// runCommand runs cmd to completion. A failure carries the command's
// stderr when it wrote any.
func runCommand(cmd *exec.Cmd) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	name := filepath.Base(cmd.Path)
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.String(), errors.Errorf("%s: %s", name, msg)
		}
		return stdout.String(), errors.Wrap(err, name)
	}
	return strings.TrimSpace(stdout.String()), nil
}
