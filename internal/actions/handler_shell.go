package actions

import (
	"bytes"
	"os/exec"
	"runtime"
	"strings"

	"github.com/google/shlex"
	"github.com/pkg/errors"
)

// ShellHandler runs a command line through bash
type ShellHandler struct{}

func (h *ShellHandler) IsSupported() bool {
	return runtime.GOOS != "windows"
}

func (h *ShellHandler) Execute(code string) (string, error) {
	if !h.IsSupported() {
		return "", errors.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return runCommand(exec.Command("/bin/bash", "-c", code))
}

// Validate tokenizes the line and lets bash parse it without running it
func (h *ShellHandler) Validate(code string) error {
	words, err := shlex.Split(code)
	if err != nil {
		return errors.Wrap(err, "syntax error")
	}
	if len(words) == 0 {
		return errors.New("empty command")
	}

	cmd := exec.Command("/bin/bash", "-n", "-c", code)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return errors.Errorf("syntax error: %s", msg)
		}
		return errors.Wrap(err, "bash -n")
	}
	return nil
}
