package actions

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ProgramHandler runs an external helper program with no arguments
type ProgramHandler struct{}

func (h *ProgramHandler) IsSupported() bool {
	return true
}

func (h *ProgramHandler) Execute(code string) (string, error) {
	path, err := h.resolve(code)
	if err != nil {
		return "", err
	}
	return runCommand(exec.Command(path))
}

func (h *ProgramHandler) Validate(code string) error {
	_, err := h.resolve(code)
	return err
}

// resolve expands a leading ~ and finds the program on PATH or disk
func (h *ProgramHandler) resolve(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", errors.New("empty program path")
	}
	if strings.HasPrefix(code, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			code = filepath.Join(home, code[2:])
		}
	}

	path, err := exec.LookPath(code)
	if err != nil {
		return "", errors.Wrapf(ErrHelperMissing, "%s", code)
	}
	return path, nil
}
