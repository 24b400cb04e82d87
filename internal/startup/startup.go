// Package startup installs padmixer as a systemd user service so that the
// engine comes back after logins and crashes.
package startup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const unitName = "padmixer.service"

// reload asks the user manager to pick up unit changes. Missing systemctl
// is not an error; the unit is read on the next login.
var reload = func() error {
	path, err := exec.LookPath("systemctl")
	if err != nil {
		return nil
	}
	out, err := exec.Command(path, "--user", "daemon-reload").CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "systemctl daemon-reload: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

func unitDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "systemd", "user")
}

// UnitPath returns where the unit file is written
func UnitPath() string {
	return filepath.Join(unitDir(), unitName)
}

func wantsPath() string {
	return filepath.Join(unitDir(), "default.target.wants", unitName)
}

// Unit renders the unit file for the given command line
func Unit(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t\"'\\") {
			a = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(a) + `"`
		}
		quoted[i] = a
	}
	return fmt.Sprintf(`[Unit]
Description=padmixer MIDI mixer engine
After=pipewire-pulse.service pulseaudio.service

[Service]
ExecStart=%s
Restart=on-failure
RestartSec=2

[Install]
WantedBy=default.target
`, strings.Join(quoted, " "))
}

// Enable writes the unit running this executable with args and links it
// into default.target
func Enable(args ...string) error {
	execPath, err := os.Executable()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(wantsPath()), 0755); err != nil {
		return err
	}
	unit := Unit(append([]string{execPath}, args...))
	if err := os.WriteFile(UnitPath(), []byte(unit), 0644); err != nil {
		return err
	}

	if err := os.Remove(wantsPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Symlink(UnitPath(), wantsPath()); err != nil {
		return err
	}
	return reload()
}

// Disable removes the unit and its link
func Disable() error {
	for _, path := range []string{wantsPath(), UnitPath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return reload()
}

// IsEnabled checks if the unit is installed and linked
func IsEnabled() bool {
	if _, err := os.Stat(UnitPath()); err != nil {
		return false
	}
	_, err := os.Lstat(wantsPath())
	return err == nil
}
