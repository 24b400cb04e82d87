package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PixPMusic/padmixer/internal/actions"
	"github.com/PixPMusic/padmixer/internal/pulse"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Backend selects how MIDI events are read
type Backend string

const (
	BackendDump   Backend = "aseqdump" // Text lines from the ALSA sequencer dump tool
	BackendRtmidi Backend = "rtmidi"   // Native driver through gomidi
)

// Behavior is what a pad does when its state changes
type Behavior string

const (
	BehaviorLevel Behavior = "level" // Target mute follows the pad state
	BehaviorEdge  Behavior = "edge"  // Action fires on every press
)

// OnMeans maps a level pad's On state onto its target
type OnMeans string

const (
	OnUnmuted OnMeans = "unmuted"
	OnMuted   OnMeans = "muted"
)

// MaxPads is the number of pads on the controller
const MaxPads = 8

// DeviceConfig identifies the controller to attach to
type DeviceConfig struct {
	Identity   string  `yaml:"identity"`   // Substring of the MIDI port name
	Backend    Backend `yaml:"backend"`    // aseqdump or rtmidi
	DumpTool   string  `yaml:"dumpTool"`   // Path of aseqdump
	HotplugDir string  `yaml:"hotplugDir"` // Watched for device nodes
}

// Timing holds the engine's timing constants
type Timing struct {
	Tick             time.Duration `yaml:"tick"`
	Debounce         time.Duration `yaml:"debounce"`
	MomentaryFilter  time.Duration `yaml:"momentaryFilter"`
	GuardWindow      time.Duration `yaml:"guardWindow"`
	MinApplyInterval time.Duration `yaml:"minApplyInterval"`
	PollInterval     time.Duration `yaml:"pollInterval"`
	ReconnectDelay   time.Duration `yaml:"reconnectDelay"`
	ReadyBackoff     time.Duration `yaml:"readyBackoff"`
	CallTimeout      time.Duration `yaml:"callTimeout"`
}

// KnobConfig binds a controller number to a volume target
type KnobConfig struct {
	Controller uint8        `yaml:"controller"`
	Target     pulse.Target `yaml:"target"`
}

// PadConfig describes one pad. A pad may be reachable through any
// combination of the three hardware encodings.
type PadConfig struct {
	Index      int          `yaml:"index"`                // 1-8
	Note       *uint8       `yaml:"note,omitempty"`       // Latched encoding
	Program    *uint8       `yaml:"program,omitempty"`    // Press-only encoding
	Controller *uint8       `yaml:"controller,omitempty"` // Continuous-edge encoding
	Behavior   Behavior     `yaml:"behavior"`
	Target     pulse.Target `yaml:"target,omitempty"`  // Level pads; "$KEY" names a route
	OnMeans    OnMeans      `yaml:"onMeans,omitempty"` // Level pads
	Action     string       `yaml:"action,omitempty"`  // Edge pads
}

// Config holds application configuration
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Timing     Timing           `yaml:"timing"`
	Knobs      []KnobConfig     `yaml:"knobs"`
	Pads       []PadConfig      `yaml:"pads"`
	Actions    []actions.Action `yaml:"actions"`
	RoutesFile string           `yaml:"routesFile"`
}

func u8(v uint8) *uint8 { return &v }

// Default returns the built-in configuration for an Akai LPD8
func Default() *Config {
	cfg := &Config{
		Device: DeviceConfig{
			Identity:   "LPD8",
			Backend:    BackendDump,
			DumpTool:   "aseqdump",
			HotplugDir: "/dev/snd",
		},
		Timing: DefaultTiming(),
		Knobs: []KnobConfig{
			{Controller: 1, Target: pulse.Target{Kind: pulse.Sink, Name: "VM-GAME"}},
			{Controller: 2, Target: pulse.Target{Kind: pulse.Sink, Name: "VM-CHAT"}},
			{Controller: 3, Target: pulse.Target{Kind: pulse.Sink, Name: "VM-MUSIC"}},
		},
		Actions: []actions.Action{
			actions.NewAction("toggle-speakers", actions.ActionTypeProgram, "~/bin/toggle_scarlett_speakers.sh"),
			actions.NewAction("debug-dump", actions.ActionTypeProgram, "~/bin/audio_debug_dump.sh"),
		},
	}

	for i := 1; i <= MaxPads; i++ {
		cfg.Pads = append(cfg.Pads, PadConfig{
			Index:      i,
			Note:       u8(uint8(35 + i)),
			Program:    u8(uint8(i - 1)),
			Controller: u8(uint8(19 + i)),
			Behavior:   BehaviorLevel,
			Target:     pulse.Target{Kind: pulse.Sink, Name: fmt.Sprintf("VM-PAD%d", i)},
			OnMeans:    OnUnmuted,
		})
	}
	cfg.Pads[0].Target = pulse.Target{Kind: pulse.Sink, Name: "$ASTRO_TARGET"}
	cfg.Pads[1].Target = pulse.Target{Kind: pulse.Source, Name: "$MIC_SOURCE"}
	cfg.Pads[6] = PadConfig{Index: 7, Note: u8(42), Program: u8(6), Controller: u8(26), Behavior: BehaviorEdge, Action: "toggle-speakers"}
	cfg.Pads[7] = PadConfig{Index: 8, Note: u8(43), Program: u8(7), Controller: u8(27), Behavior: BehaviorEdge, Action: "debug-dump"}

	if dir, err := configDir(); err == nil {
		cfg.RoutesFile = filepath.Join(dir, "routes.env")
	}
	return cfg
}

// DefaultTiming returns the timing constants tuned for the LPD8
func DefaultTiming() Timing {
	return Timing{
		Tick:             50 * time.Millisecond,
		Debounce:         120 * time.Millisecond,
		MomentaryFilter:  220 * time.Millisecond,
		GuardWindow:      900 * time.Millisecond,
		MinApplyInterval: 80 * time.Millisecond,
		PollInterval:     500 * time.Millisecond,
		ReconnectDelay:   time.Second,
		ReadyBackoff:     2 * time.Second,
		CallTimeout:      2 * time.Second,
	}
}

// configDir returns the platform-appropriate config directory
func configDir() (string, error) {
	configHome, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configHome, "padmixer"), nil
}

// ConfigPath returns the full path to the config file.
// PADMIXER_CONFIG overrides the default location.
func ConfigPath() (string, error) {
	if p := os.Getenv("PADMIXER_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config from path (or ConfigPath when empty), returning
// defaults if the file does not exist
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// Save writes the config to path (or ConfigPath when empty)
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects configurations the engine cannot run
func (c *Config) Validate() error {
	if c.Device.Identity == "" {
		return errors.New("device.identity is empty")
	}
	switch c.Device.Backend {
	case BackendDump, BackendRtmidi:
	default:
		return errors.Errorf("unknown device.backend %q", c.Device.Backend)
	}

	t := c.Timing
	for name, d := range map[string]time.Duration{
		"tick": t.Tick, "debounce": t.Debounce, "momentaryFilter": t.MomentaryFilter,
		"guardWindow": t.GuardWindow, "minApplyInterval": t.MinApplyInterval,
		"pollInterval": t.PollInterval, "reconnectDelay": t.ReconnectDelay,
		"readyBackoff": t.ReadyBackoff, "callTimeout": t.CallTimeout,
	} {
		if d <= 0 {
			return errors.Errorf("timing.%s must be positive", name)
		}
	}

	knobCCs := map[uint8]bool{}
	for _, k := range c.Knobs {
		if k.Controller > 127 {
			return errors.Errorf("knob controller %d out of range", k.Controller)
		}
		if knobCCs[k.Controller] {
			return errors.Errorf("knob controller %d mapped twice", k.Controller)
		}
		if k.Target.Name == "" {
			return errors.Errorf("knob %d has no target", k.Controller)
		}
		knobCCs[k.Controller] = true
	}

	seen := map[int]bool{}
	notes, programs, ccs := map[uint8]int{}, map[uint8]int{}, map[uint8]int{}
	claim := func(m map[uint8]int, v *uint8, pad int, what string) error {
		if v == nil {
			return nil
		}
		if *v > 127 {
			return errors.Errorf("pad %d %s %d out of range", pad, what, *v)
		}
		if other, ok := m[*v]; ok {
			return errors.Errorf("%s %d mapped to pads %d and %d", what, *v, other, pad)
		}
		m[*v] = pad
		return nil
	}

	for _, p := range c.Pads {
		if p.Index < 1 || p.Index > MaxPads {
			return errors.Errorf("pad index %d outside 1-%d", p.Index, MaxPads)
		}
		if seen[p.Index] {
			return errors.Errorf("pad %d defined twice", p.Index)
		}
		seen[p.Index] = true

		if err := claim(notes, p.Note, p.Index, "note"); err != nil {
			return err
		}
		if err := claim(programs, p.Program, p.Index, "program"); err != nil {
			return err
		}
		if err := claim(ccs, p.Controller, p.Index, "controller"); err != nil {
			return err
		}
		if p.Controller != nil && knobCCs[*p.Controller] {
			return errors.Errorf("controller %d used by pad %d and a knob", *p.Controller, p.Index)
		}

		switch p.Behavior {
		case BehaviorLevel:
			if p.Target.Name == "" {
				return errors.Errorf("level pad %d has no target", p.Index)
			}
			switch p.OnMeans {
			case "", OnUnmuted, OnMuted:
			default:
				return errors.Errorf("pad %d: unknown onMeans %q", p.Index, p.OnMeans)
			}
		case BehaviorEdge:
			if c.Action(p.Action) == nil {
				return errors.Errorf("edge pad %d: unknown action %q", p.Index, p.Action)
			}
		default:
			return errors.Errorf("pad %d: unknown behavior %q", p.Index, p.Behavior)
		}
	}
	return nil
}

// Action returns an action by name, or nil if not found
func (c *Config) Action(name string) *actions.Action {
	for i := range c.Actions {
		if c.Actions[i].Name == name {
			return &c.Actions[i]
		}
	}
	return nil
}

// Pad returns the pad with the given index, or nil if not configured
func (c *Config) Pad(index int) *PadConfig {
	for i := range c.Pads {
		if c.Pads[i].Index == index {
			return &c.Pads[i]
		}
	}
	return nil
}
