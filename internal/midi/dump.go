package midi

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
)

// DefaultDumpTool is the ALSA sequencer dump utility read by DumpBackend
const DefaultDumpTool = "aseqdump"

// ErrToolMissing is returned when the dump tool is not installed
var ErrToolMissing = errors.New("midi dump tool not found")

// DumpBackend reads events as text lines from aseqdump
type DumpBackend struct {
	Tool string
}

// NewDumpBackend returns a backend running the given dump tool
func NewDumpBackend(tool string) *DumpBackend {
	if tool == "" {
		tool = DefaultDumpTool
	}
	return &DumpBackend{Tool: tool}
}

// LookupTool checks that the dump tool can be executed
func (b *DumpBackend) LookupTool() (string, error) {
	path, err := exec.LookPath(b.Tool)
	if err != nil {
		return "", errors.Wrapf(ErrToolMissing, "%s: %v", b.Tool, err)
	}
	return path, nil
}

func (b *DumpBackend) Name() string {
	return b.Tool
}

// Ports lists the sequencer ports reported by "aseqdump -l":
//
//	 Port    Client name                      Port name
//	 20:0    LPD8                             LPD8 MIDI 1
func (b *DumpBackend) Ports(ctx context.Context) ([]Port, error) {
	out, err := exec.CommandContext(ctx, b.Tool, "-l").Output()
	if err != nil {
		return nil, errors.Wrapf(err, "%s -l", b.Tool)
	}
	return parsePortList(out), nil
}

var (
	portAddrRe  = regexp.MustCompile(`^\d+:\d+$`)
	columnSepRe = regexp.MustCompile(`\s{2,}`)
)

func parsePortList(out []byte) []Port {
	var ports []Port
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		cols := columnSepRe.Split(strings.TrimSpace(scanner.Text()), -1)
		if len(cols) < 2 || !portAddrRe.MatchString(cols[0]) {
			continue
		}
		ports = append(ports, Port{ID: cols[0], Name: strings.Join(cols[1:], ":")})
	}
	return ports
}

// Open starts "aseqdump -p <port>" and streams its stdout
func (b *DumpBackend) Open(ctx context.Context, port Port) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, b.Tool, "-p", port.ID)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, errors.Wrapf(err, "start %s", b.Tool)
	}

	s := &dumpStream{
		lines:  make(chan Line),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(s.done)
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			text := scanner.Text()
			line := Line{Text: text, Msg: ParseDumpLine(text), At: time.Now()}
			select {
			case s.lines <- line:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		_ = cmd.Wait()
	}()
	return s, nil
}

type dumpStream struct {
	lines  chan Line
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

func (s *dumpStream) Lines() <-chan Line    { return s.lines }
func (s *dumpStream) Done() <-chan struct{} { return s.done }

func (s *dumpStream) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

var (
	dumpEventRe = regexp.MustCompile(`(?i)(control change|note on|note off|program change)(?:\s+(\d+)\s*,)?`)
	dumpFieldRe = regexp.MustCompile(`(?i)\b(controller|note|velocity|value|program)\s*[=:]?\s*(\d+)`)
)

// ParseDumpLine decodes one aseqdump event line into a MIDI message:
//
//	20:0   Control change          0, controller 1, value 64
//	20:0   Note on                 9, note 36, velocity 100
//	20:0   Program change          9, program 2
//
// "key=value" field spellings are accepted too. Lines that are not channel
// messages of these kinds, or miss a required field, yield nil.
func ParseDumpLine(text string) midi.Message {
	loc := dumpEventRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil
	}
	kind := strings.ToLower(text[loc[2]:loc[3]])
	var channel uint8
	if loc[4] >= 0 {
		ch, ok := u7(text[loc[4]:loc[5]])
		if !ok || ch > 15 {
			return nil
		}
		channel = ch
	}

	fields := map[string]uint8{}
	for _, m := range dumpFieldRe.FindAllStringSubmatch(text[loc[1]:], -1) {
		v, ok := u7(m[2])
		if !ok {
			return nil
		}
		fields[strings.ToLower(m[1])] = v
	}
	has := func(names ...string) bool {
		for _, n := range names {
			if _, ok := fields[n]; !ok {
				return false
			}
		}
		return true
	}

	switch kind {
	case "control change":
		if has("controller", "value") {
			return midi.ControlChange(channel, fields["controller"], fields["value"])
		}
	case "note on":
		if has("note", "velocity") {
			return midi.NoteOn(channel, fields["note"], fields["velocity"])
		}
	case "note off":
		if has("note") {
			return midi.NoteOffVelocity(channel, fields["note"], fields["velocity"])
		}
	case "program change":
		if has("program") {
			return midi.ProgramChange(channel, fields["program"])
		}
	}
	return nil
}

// u7 parses a 7-bit MIDI data value
func u7(s string) (uint8, bool) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 || v > 127 {
		return 0, false
	}
	return uint8(v), true
}
