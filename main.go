package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/PixPMusic/padmixer/internal/actions"
	"github.com/PixPMusic/padmixer/internal/config"
	"github.com/PixPMusic/padmixer/internal/midi"
	"github.com/PixPMusic/padmixer/internal/mixer"
	"github.com/PixPMusic/padmixer/internal/monitor"
	"github.com/PixPMusic/padmixer/internal/pulse"
	"github.com/PixPMusic/padmixer/internal/startup"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

var (
	configPath string
	debug      bool
	force      bool
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: padmixer [flags] [command]

Commands:
  run                          drive the sound server from the controller (default)
  monitor                      show controller state live, without side effects
  ports                        list visible MIDI ports
  status                       show knob and pad targets
  route list|get KEY|set KEY VALUE
                               read or change routing targets
  init                         write the default config file
  autostart enable|disable|status
                               manage the systemd user service

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/padmixer/config.yaml)")
	flag.BoolVar(&debug, "debug", false, "log every raw MIDI line and unmapped number")
	flag.BoolVar(&force, "force", false, "let init overwrite an existing config")
	flag.Usage = usage
	flag.Parse()

	if v := os.Getenv("PADMIXER_DEBUG"); v != "" && v != "0" {
		debug = true
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}

	cmd, args := "run", flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "run":
		err = run(ctx, log)
	case "monitor":
		err = runMonitor(ctx, log)
	case "ports":
		err = listPorts(ctx)
	case "status":
		err = status(ctx)
	case "route":
		err = route(args)
	case "init":
		err = initConfig()
	case "autostart":
		err = autostart(args)
	case "help":
		usage()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// openBackend returns the configured MIDI backend. The dump tool is the one
// dependency the daemon cannot start without.
func openBackend(cfg *config.Config) (midi.Backend, func(), error) {
	switch cfg.Device.Backend {
	case config.BackendRtmidi:
		m := midi.NewManager()
		m.Rescan = cfg.Timing.PollInterval
		return m, m.Close, nil
	default:
		b := midi.NewDumpBackend(cfg.Device.DumpTool)
		if _, err := b.LookupTool(); err != nil {
			return nil, nil, err
		}
		return b, func() {}, nil
	}
}

func newWatcher(cfg *config.Config, backend midi.Backend, log logrus.FieldLogger) *midi.Watcher {
	return midi.NewWatcher(backend, midi.WatcherConfig{
		Identity:       cfg.Device.Identity,
		PollInterval:   cfg.Timing.PollInterval,
		ReconnectDelay: cfg.Timing.ReconnectDelay,
		HotplugDir:     cfg.Device.HotplugDir,
	}, log)
}

func run(ctx context.Context, log *logrus.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	backend, closeBackend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	surface := pulse.NewPactl()
	if err := pulse.WaitReady(ctx, surface, cfg.Timing.ReadyBackoff, log); err != nil {
		// only fails once ctx is cancelled, which is a clean shutdown
		return nil
	}

	// midi actions send through the native driver whichever backend reads
	ports, ok := backend.(*midi.Manager)
	if !ok {
		ports = midi.NewManager()
		defer ports.Close()
	}
	executor := actions.NewExecutor(cfg.Actions, ports, log)
	for _, a := range cfg.Actions {
		if err := executor.Validate(a); err != nil {
			log.WithError(err).WithField("action", a.Name).Warn("Action will not run")
		}
	}

	engine := mixer.New(cfg, mixer.Options{
		Surface:    surface,
		Routes:     config.Routes{Path: cfg.RoutesFile},
		Actions:    executor,
		Diagnostic: debug,
	}, log)
	if missing := engine.Seed(ctx); len(missing) > 0 {
		sinks, _ := surface.List(ctx, pulse.Sink)
		for _, t := range missing {
			log.WithField("target", t.String()).Warn("Knob target not found")
		}
		log.WithField("sinks", sinks).Info("Visible sinks")
	}

	inputs := make(chan midi.Input)
	go newWatcher(cfg, backend, log).Run(ctx, inputs)

	log.WithFields(logrus.Fields{
		"identity": cfg.Device.Identity,
		"backend":  backend.Name(),
	}).Info("Mixer engine started")
	err = engine.Run(ctx, inputs)
	engine.Close()
	executor.Wait()
	if errors.Is(err, context.Canceled) {
		log.Info("Mixer engine stopped")
		return nil
	}
	return err
}

func runMonitor(ctx context.Context, log *logrus.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	backend, closeBackend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	// the terminal belongs to the TUI
	log.SetOutput(io.Discard)

	engine := mixer.New(cfg, mixer.Options{Diagnostic: debug}, log)
	inputs := make(chan midi.Input)
	go newWatcher(cfg, backend, log).Run(ctx, inputs)
	return monitor.Run(ctx, engine, inputs)
}

func listPorts(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	backend, closeBackend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	ports, err := backend.Ports(ctx)
	if err != nil {
		return err
	}
	match, found := midi.MatchPort(ports, cfg.Device.Identity)
	for _, p := range ports {
		mark := " "
		if found && p == match {
			mark = "*"
		}
		fmt.Printf("%s %-8s %s\n", mark, p.ID, p.Name)
	}
	return nil
}

func status(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	surface := pulse.NewPactl()
	routes := config.Routes{Path: cfg.RoutesFile}

	describe := func(t pulse.Target) string {
		ok, err := surface.Exists(ctx, t)
		if err != nil {
			return "error: " + err.Error()
		}
		if !ok {
			return "missing"
		}
		vol, verr := surface.Volume(ctx, t)
		muted, merr := surface.Muted(ctx, t)
		if verr != nil || merr != nil {
			return "present"
		}
		state := "unmuted"
		if muted {
			state = "muted"
		}
		return fmt.Sprintf("%d%% %s", vol, state)
	}

	for _, k := range cfg.Knobs {
		fmt.Printf("knob CC%-3d %-40s %s\n", k.Controller, k.Target, describe(k.Target))
	}
	for _, p := range cfg.Pads {
		if p.Behavior == config.BehaviorEdge {
			fmt.Printf("pad  %-5d action %s\n", p.Index, p.Action)
			continue
		}
		name, err := routes.Resolve(p.Target.Name)
		if err != nil {
			fmt.Printf("pad  %-5d %-40s %v\n", p.Index, p.Target, err)
			continue
		}
		t := p.Target.WithName(name)
		fmt.Printf("pad  %-5d %-40s %s\n", p.Index, t, describe(t))
	}
	return nil
}

func route(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	routes := config.Routes{Path: cfg.RoutesFile}

	switch {
	case len(args) == 0 || args[0] == "list" && len(args) == 1:
		all, err := routes.Load()
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s=%s\n", k, all[k])
		}
		return nil
	case args[0] == "get" && len(args) == 2:
		v, ok, err := routes.Lookup(args[1])
		if err != nil {
			return err
		}
		if !ok {
			return errors.Errorf("route %s is not set", args[1])
		}
		fmt.Println(v)
		return nil
	case args[0] == "set" && len(args) == 3:
		return routes.Set(args[1], args[2])
	default:
		return errors.New("usage: padmixer route list|get KEY|set KEY VALUE")
	}
}

func initConfig() error {
	path := configPath
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if _, err := os.Stat(path); err == nil && !force {
		return errors.Errorf("%s exists, use --force to overwrite", path)
	}
	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Println("Wrote", path)
	return nil
}

func autostart(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: padmixer autostart enable|disable|status")
	}
	switch args[0] {
	case "enable":
		runArgs := []string{"run"}
		if configPath != "" {
			runArgs = append([]string{"--config", configPath}, runArgs...)
		}
		if err := startup.Enable(runArgs...); err != nil {
			return err
		}
		fmt.Println("Installed", startup.UnitPath())
	case "disable":
		return startup.Disable()
	case "status":
		if startup.IsEnabled() {
			fmt.Println("enabled")
		} else {
			fmt.Println("disabled")
		}
	default:
		return errors.Errorf("unknown autostart command %q", args[0])
	}
	return nil
}
