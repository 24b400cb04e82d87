// Package monitor shows the live controller state in the terminal. The
// engine runs without side effects; nothing is sent to the sound server.
package monitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/PixPMusic/padmixer/internal/midi"
	"github.com/PixPMusic/padmixer/internal/mixer"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxLines = 500

var (
	nord0  = lipgloss.Color("#2E3440")
	nord3  = lipgloss.Color("#4C566A")
	nord4  = lipgloss.Color("#D8DEE9")
	nord8  = lipgloss.Color("#88C0D0")
	nord9  = lipgloss.Color("#81A1C1")
	nord11 = lipgloss.Color("#BF616A")
	nord13 = lipgloss.Color("#EBCB8B")
	nord14 = lipgloss.Color("#A3BE8C")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(nord8)
	sectionStyle = lipgloss.NewStyle().MarginTop(1).Foreground(nord9)
	padOffStyle  = lipgloss.NewStyle().Padding(0, 1).Foreground(nord4).Background(nord3)
	padOnStyle   = lipgloss.NewStyle().Padding(0, 1).Foreground(nord0).Background(nord14)
	guardStyle   = lipgloss.NewStyle().Padding(0, 1).Foreground(nord0).Background(nord11)
	barStyle     = lipgloss.NewStyle().Foreground(nord13)
	faintStyle   = lipgloss.NewStyle().Faint(true)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(nord3).Padding(0, 1)
)

type snapshotMsg mixer.Snapshot

type lineMsg string

// Model is the bubbletea model of the monitor
type Model struct {
	snap  mixer.Snapshot
	lines []string
	vp    viewport.Model
	width int
}

func NewModel() Model {
	return Model{vp: viewport.New(80, 10), width: 80}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.vp.Width = max(20, msg.Width-4)
		m.vp.Height = max(3, msg.Height-16)
		m.vp.SetContent(strings.Join(m.lines, "\n"))

	case snapshotMsg:
		m.snap = mixer.Snapshot(msg)

	case lineMsg:
		m.lines = append(m.lines, string(msg))
		if len(m.lines) > maxLines {
			m.lines = m.lines[len(m.lines)-maxLines:]
		}
		m.vp.SetContent(strings.Join(m.lines, "\n"))
		m.vp.GotoBottom()
	}
	return m, nil
}

func (m Model) View() string {
	b := &strings.Builder{}

	port := "waiting for device"
	if m.snap.Epoch.Connected {
		port = m.snap.Epoch.Port.Name
	}
	header := titleStyle.Render("padmixer monitor") + "  " + port
	if m.snap.Guarding {
		header += " " + guardStyle.Render("GUARD")
	}
	fmt.Fprintln(b, header)

	fmt.Fprintln(b, sectionStyle.Render("Pads"))
	pads := make([]string, 0, len(m.snap.Pads))
	for _, p := range m.snap.Pads {
		style := padOffStyle
		if p.State == mixer.On {
			style = padOnStyle
		}
		pads = append(pads, style.Render(fmt.Sprintf("%d %s", p.Index, p.State)))
	}
	fmt.Fprintln(b, lipgloss.JoinHorizontal(lipgloss.Top, pads...))
	for _, p := range m.snap.Pads {
		what := p.Target
		if p.Behavior == mixer.EdgeTriggered {
			what = "action " + p.Action
		}
		fmt.Fprintln(b, faintStyle.Render(fmt.Sprintf(" %d %-5s %-15s %s", p.Index, p.Behavior, p.Encoding, what)))
	}

	fmt.Fprintln(b, sectionStyle.Render("Knobs"))
	for _, k := range m.snap.Knobs {
		pct := k.Applied
		if k.Pending != mixer.Unset {
			pct = k.Pending
		}
		fmt.Fprintf(b, " CC%-3d %-24s %s %s\n", k.Controller, k.Target, renderBar(pct, 20), pctLabel(pct))
	}

	fmt.Fprintln(b, panelStyle.Render("MIDI\n"+m.vp.View()))
	fmt.Fprint(b, faintStyle.Render("q quit"))
	return b.String()
}

func renderBar(pct, width int) string {
	if pct < 0 {
		pct = 0
	}
	filled := pct * width / 100
	return barStyle.Render(strings.Repeat("█", filled)) + faintStyle.Render(strings.Repeat("░", width-filled))
}

func pctLabel(pct int) string {
	if pct == mixer.Unset {
		return "--"
	}
	return fmt.Sprintf("%d%%", pct)
}

// Run shows the monitor until the user quits or ctx is done. It feeds the
// inputs to eng, which should have been built without surface or actions.
func Run(parent context.Context, eng *mixer.Engine, inputs <-chan midi.Input) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	p := tea.NewProgram(NewModel(), tea.WithAltScreen(), tea.WithContext(ctx))

	snaps := make(chan mixer.Snapshot, 1)
	eng.SetObserver(func(s mixer.Snapshot) { offer(snaps, s) })
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-snaps:
				p.Send(snapshotMsg(s))
			}
		}
	}()

	tee := make(chan midi.Input)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case in := <-inputs:
				if in.Kind == midi.InputLine {
					p.Send(lineMsg(in.Line.Text))
				} else {
					p.Send(lineMsg(fmt.Sprintf("-- %s %s", in.Kind, in.Port.Name)))
				}
				select {
				case tee <- in:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx, tee)
	}()

	_, err := p.Run()
	cancel()
	<-done
	eng.Close()
	if err != nil && parent.Err() == nil {
		return err
	}
	return nil
}

// offer replaces any snapshot still waiting in ch
func offer(ch chan mixer.Snapshot, s mixer.Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
