package pulse

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Runner executes a command and returns its combined output
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Pactl drives the sound server through the pactl CLI
type Pactl struct {
	Bin string
	run Runner
}

// NewPactl returns a Pactl using the pactl binary found on PATH
func NewPactl() *Pactl {
	return &Pactl{Bin: "pactl", run: execRunner}
}

// NewPactlWithRunner returns a Pactl that executes commands through run
func NewPactlWithRunner(run Runner) *Pactl {
	return &Pactl{Bin: "pactl", run: run}
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

var percentRe = regexp.MustCompile(`(\d+)%`)

func (p *Pactl) Ping(ctx context.Context) error {
	_, err := p.pactl(ctx, "info")
	return err
}

func (p *Pactl) Exists(ctx context.Context, t Target) (bool, error) {
	names, err := p.List(ctx, t.kind())
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == t.Name {
			return true, nil
		}
	}
	return false, nil
}

// List returns the names of all sinks or sources currently known to the server
func (p *Pactl) List(ctx context.Context, kind Kind) ([]string, error) {
	out, err := p.pactl(ctx, "list", "short", string(kind)+"s")
	if err != nil {
		return nil, err
	}

	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		// id<TAB>name<TAB>driver<TAB>...
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 2 {
			continue
		}
		names = append(names, fields[1])
	}
	return names, nil
}

func (p *Pactl) Volume(ctx context.Context, t Target) (int, error) {
	out, err := p.pactl(ctx, "get-"+string(t.kind())+"-volume", t.Name)
	if err != nil {
		return 0, err
	}
	return parseVolume(out)
}

func (p *Pactl) SetVolume(ctx context.Context, t Target, pct int) error {
	if pct < 0 || pct > 100 {
		return errors.Errorf("volume %d%% out of range", pct)
	}
	_, err := p.pactl(ctx, "set-"+string(t.kind())+"-volume", t.Name, strconv.Itoa(pct)+"%")
	return err
}

func (p *Pactl) Muted(ctx context.Context, t Target) (bool, error) {
	out, err := p.pactl(ctx, "get-"+string(t.kind())+"-mute", t.Name)
	if err != nil {
		return false, err
	}
	return parseMute(out)
}

func (p *Pactl) SetMute(ctx context.Context, t Target, muted bool) error {
	flag := "0"
	if muted {
		flag = "1"
	}
	_, err := p.pactl(ctx, "set-"+string(t.kind())+"-mute", t.Name, flag)
	return err
}

func (p *Pactl) pactl(ctx context.Context, args ...string) ([]byte, error) {
	out, err := p.run(ctx, p.Bin, args...)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if strings.Contains(msg, "No such entity") {
			return out, errors.Wrapf(ErrNotFound, "pactl %s", strings.Join(args, " "))
		}
		if msg != "" {
			return out, errors.Errorf("pactl %s: %s", strings.Join(args, " "), msg)
		}
		return out, errors.Wrapf(err, "pactl %s", strings.Join(args, " "))
	}
	return out, nil
}

// parseVolume reads the first channel percentage of get-*-volume output:
//
//	Volume: front-left: 32768 /  50% / -18.06 dB,   front-right: 32768 /  50% / -18.06 dB
func parseVolume(out []byte) (int, error) {
	m := percentRe.FindSubmatch(out)
	if m == nil {
		return 0, errors.Errorf("unexpected volume output %q", strings.TrimSpace(string(out)))
	}
	return strconv.Atoi(string(m[1]))
}

// parseMute reads "Mute: yes" / "Mute: no"
func parseMute(out []byte) (bool, error) {
	s := strings.TrimSpace(string(out))
	_, value, ok := strings.Cut(s, ":")
	if !ok {
		return false, errors.Errorf("unexpected mute output %q", s)
	}
	switch strings.TrimSpace(value) {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}
	return false, errors.Errorf("unexpected mute output %q", s)
}
