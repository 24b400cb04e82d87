package monitor

import (
	"testing"

	"github.com/PixPMusic/padmixer/internal/midi"
	"github.com/PixPMusic/padmixer/internal/mixer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelRendersSnapshot(t *testing.T) {
	var m tea.Model = NewModel()
	m, _ = m.Update(snapshotMsg(mixer.Snapshot{
		Pads: []mixer.PadView{
			{Index: 1, Behavior: mixer.LevelFollowing, State: mixer.On, Encoding: mixer.Latched, Target: "sink:headset"},
			{Index: 8, Behavior: mixer.EdgeTriggered, Action: "debug-dump"},
		},
		Knobs: []mixer.KnobView{
			{Controller: 1, Target: "sink:VM-GAME", Pending: mixer.Unset, Applied: 50},
			{Controller: 2, Target: "sink:VM-CHAT", Pending: mixer.Unset, Applied: mixer.Unset},
		},
		Epoch:    mixer.Epoch{Connected: true, Port: midi.Port{Name: "LPD8:LPD8 MIDI 1"}},
		Guarding: true,
	}))
	m, _ = m.Update(lineMsg(" 20:0   Control change          0, controller 1, value 64"))

	view := m.View()
	assert.Contains(t, view, "LPD8:LPD8 MIDI 1")
	assert.Contains(t, view, "GUARD")
	assert.Contains(t, view, "sink:headset")
	assert.Contains(t, view, "action debug-dump")
	assert.Contains(t, view, "50%")
	assert.Contains(t, view, "--")
	assert.Contains(t, view, "controller 1, value 64")
}

func TestModelKeepsLineTail(t *testing.T) {
	m := NewModel()
	var tm tea.Model = m
	for i := 0; i < maxLines+20; i++ {
		tm, _ = tm.Update(lineMsg("line"))
	}
	assert.Len(t, tm.(Model).lines, maxLines)
}

func TestModelQuits(t *testing.T) {
	m := NewModel()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestOfferKeepsLatest(t *testing.T) {
	ch := make(chan mixer.Snapshot, 1)
	offer(ch, mixer.Snapshot{LastLine: "first"})
	offer(ch, mixer.Snapshot{LastLine: "second"})
	assert.Equal(t, "second", (<-ch).LastLine)
}
