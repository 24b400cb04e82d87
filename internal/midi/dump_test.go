package midi

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
)

func TestParseDumpLine(t *testing.T) {
	var ch, a, b uint8

	msg := ParseDumpLine(" 20:0   Control change          0, controller 1, value 64")
	require.NotNil(t, msg)
	require.True(t, msg.GetControlChange(&ch, &a, &b))
	assert.Equal(t, []uint8{0, 1, 64}, []uint8{ch, a, b})

	msg = ParseDumpLine(" 20:0   Note on                 9, note 36, velocity 100")
	require.NotNil(t, msg)
	require.True(t, msg.GetNoteStart(&ch, &a, &b))
	assert.Equal(t, []uint8{9, 36, 100}, []uint8{ch, a, b})

	msg = ParseDumpLine(" 20:0   Note off                9, note 36, velocity 0")
	require.NotNil(t, msg)
	require.True(t, msg.GetNoteEnd(&ch, &a))
	assert.Equal(t, uint8(36), a)

	msg = ParseDumpLine(" 20:0   Program change          9, program 2")
	require.NotNil(t, msg)
	require.True(t, msg.GetProgramChange(&ch, &a))
	assert.Equal(t, uint8(2), a)
}

func TestParseDumpLineNoteOnZeroVelocityEndsNote(t *testing.T) {
	var ch, key uint8
	msg := ParseDumpLine(" 20:0   Note on                 9, note 37, velocity 0")
	require.NotNil(t, msg)
	assert.True(t, msg.GetNoteEnd(&ch, &key))
	assert.Equal(t, uint8(37), key)
}

func TestParseDumpLineKeyValueSpelling(t *testing.T) {
	var ch, c, v uint8
	msg := ParseDumpLine("control change controller=7, value=127")
	require.NotNil(t, msg)
	require.True(t, msg.GetControlChange(&ch, &c, &v))
	assert.Equal(t, uint8(7), c)
	assert.Equal(t, uint8(127), v)
}

func TestParseDumpLineRejectsMalformed(t *testing.T) {
	for _, line := range []string{
		"",
		"Waiting for data. Press Ctrl+C to end.",
		"Source  Event                  Ch  Data",
		" 20:0   Control change          0, controller 1",
		" 20:0   Control change          0, controller 1, value 200",
		" 20:0   Note on                 9, note 36",
		" 20:0   Program change          9",
		" 20:0   Program change          16, program 1",
		" 20:0   Pitch bend              0, value 0",
	} {
		assert.Nil(t, ParseDumpLine(line), "line %q", line)
	}
}

func TestParsePortList(t *testing.T) {
	out := []byte(` Port    Client name                      Port name
  0:0    System                           Timer
  0:1    System                           Announce
 14:0    Midi Through                     Midi Through Port-0
 20:0    LPD8                             LPD8 MIDI 1
`)
	ports := parsePortList(out)
	require.Len(t, ports, 4)
	assert.Equal(t, Port{ID: "20:0", Name: "LPD8:LPD8 MIDI 1"}, ports[3])

	port, ok := MatchPort(ports, "lpd8")
	require.True(t, ok)
	assert.Equal(t, "20:0", port.ID)

	_, ok = MatchPort(ports, "nanoKONTROL")
	assert.False(t, ok)
}

// fakeDumpTool writes a shell script standing in for aseqdump
func fakeDumpTool(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aseqdump")
	script := `#!/bin/sh
if [ "$1" = "-l" ]; then
  echo " Port    Client name                      Port name"
  echo " 20:0    LPD8                             LPD8 MIDI 1"
  exit 0
fi
echo "Waiting for data. Press Ctrl+C to end."
echo " $2   Control change          0, controller 1, value 64"
echo " $2   Note on                 9, note 36, velocity 90"
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestDumpBackendStreamsLines(t *testing.T) {
	b := NewDumpBackend(fakeDumpTool(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ports, err := b.Ports(ctx)
	require.NoError(t, err)
	require.Len(t, ports, 1)

	stream, err := b.Open(ctx, ports[0])
	require.NoError(t, err)
	defer stream.Close()

	var got []Line
	for len(got) < 3 {
		select {
		case l := <-stream.Lines():
			got = append(got, l)
		case <-ctx.Done():
			t.Fatal("timed out waiting for lines")
		}
	}
	assert.Nil(t, got[0].Msg)
	assert.Contains(t, got[1].Text, "controller 1")

	var ch, c, v uint8
	assert.True(t, got[1].Msg.GetControlChange(&ch, &c, &v))
	assert.Equal(t, midi.NoteOn(9, 36, 90), got[2].Msg)

	select {
	case <-stream.Done():
	case <-ctx.Done():
		t.Fatal("stream did not end after the tool exited")
	}
}

func TestDumpBackendLookupTool(t *testing.T) {
	_, err := NewDumpBackend("definitely-not-an-aseqdump-binary").LookupTool()
	assert.ErrorIs(t, err, ErrToolMissing)
}
