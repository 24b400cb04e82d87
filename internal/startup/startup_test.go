package startup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withConfigHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	old := reload
	reload = func() error { return nil }
	t.Cleanup(func() { reload = old })
	return dir
}

func TestEnableDisable(t *testing.T) {
	dir := withConfigHome(t)
	assert.False(t, IsEnabled())

	require.NoError(t, Enable("run"))
	assert.True(t, IsEnabled())
	assert.Equal(t, filepath.Join(dir, "systemd", "user", "padmixer.service"), UnitPath())

	data, err := os.ReadFile(UnitPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "Restart=on-failure")
	assert.Contains(t, string(data), " run\n")

	// enabling twice replaces the link
	require.NoError(t, Enable("run"))

	require.NoError(t, Disable())
	assert.False(t, IsEnabled())
	require.NoError(t, Disable())
}

func TestUnitQuotesArguments(t *testing.T) {
	unit := Unit([]string{"/opt/pad mixer/padmixer", "run", "--config", `/home/me/"odd".yaml`})
	assert.Contains(t, unit, `ExecStart="/opt/pad mixer/padmixer" run --config "/home/me/\"odd\".yaml"`)
}
