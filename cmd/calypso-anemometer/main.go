package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/errors"

	"github.com/chaz8081/calypso-anemometer/internal/ble"
	"github.com/chaz8081/calypso-anemometer/internal/calypso"
	"github.com/chaz8081/calypso-anemometer/internal/config"
	"github.com/chaz8081/calypso-anemometer/internal/engine"
	"github.com/chaz8081/calypso-anemometer/internal/logging"
	"github.com/chaz8081/calypso-anemometer/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const usage = `Usage: calypso-anemometer [global flags] <command> [flags]

Commands:
  info        print device information and status as JSON
  explore     dump every service and characteristic of the device
  set-option  change mode, data rate or compass (-mode, -rate, -compass)
  read        read one value, or stream with -subscribe
  fake        like read, against a simulated device
  init-config write the default config file if none exists
  version     print the version

Global flags:
`

// Exit codes.
const (
	exitOK     = 0
	exitDevice = 1
	exitUsage  = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := flag.NewFlagSet("calypso-anemometer", flag.ContinueOnError)
	configPath := global.String("config", "", "path to config file (default: ~/.config/calypso-anemometer/config.yaml)")
	quiet := global.Bool("quiet", false, "only log errors")
	verbose := global.Bool("verbose", false, "log at info level")
	debug := global.Bool("debug", false, "log at debug level")
	jsonLog := global.Bool("json-log", false, "log as JSON lines")
	global.Usage = func() {
		fmt.Fprint(global.Output(), usage)
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return exitUsage
	}
	if global.NArg() == 0 {
		global.Usage()
		return exitUsage
	}
	cmd, cmdArgs := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "version":
		fmt.Println("calypso-anemometer", version)
		return exitOK
	case "init-config":
		return runInitConfig()
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitUsage
	}
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitUsage
	}
	switch {
	case *debug:
		cfg.LogLevel = "debug"
	case *verbose:
		cfg.LogLevel = "info"
	case *quiet:
		cfg.Quiet = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		return exitUsage
	}

	level := config.ParseLogLevel(cfg.LogLevel)
	if cfg.Quiet && level < slog.LevelError {
		level = slog.LevelError
	}
	logging.Setup(logging.Options{Level: level, JSON: *jsonLog, AddSource: *debug || *verbose})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "info":
		return runInfo(ctx, cfg, cmdArgs)
	case "explore":
		return runExplore(ctx, cfg, cmdArgs)
	case "set-option":
		return runSetOption(ctx, cfg, cmdArgs)
	case "read":
		return runRead(ctx, cfg, cmdArgs, false)
	case "fake":
		return runRead(ctx, cfg, cmdArgs, true)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		global.Usage()
		return exitUsage
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}
	return config.Default(), nil
}

func runInitConfig() int {
	path, err := config.WriteDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitDevice
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return exitOK
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return exitOK
}

func newDevice(cfg *config.Config, address string) *calypso.Device {
	settings := cfg.Settings()
	if address != "" {
		settings.Address = address
	}
	return calypso.NewDevice(ble.NewTinyGoAdapter(settings.Adapter), settings)
}

// exitCode logs err and maps it to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, context.Canceled) {
		return exitOK
	}
	slog.Error("[ENGINE] command failed", "error", err)
	if errors.IsNotValid(err) || errors.IsNotSupported(err) {
		return exitUsage
	}
	return exitDevice
}

func runInfo(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	dev := newDevice(cfg, "")
	return exitCode(calypso.With(ctx, dev, func(ctx context.Context, _ calypso.Session) error {
		about, err := dev.About(ctx)
		if err != nil {
			return err
		}
		fmt.Println(about.JSON())
		return nil
	}))
}

func runExplore(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("explore", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	dev := newDevice(cfg, "")
	return exitCode(calypso.With(ctx, dev, func(ctx context.Context, _ calypso.Session) error {
		survey, err := dev.Explore(ctx)
		if err != nil {
			return err
		}
		fmt.Println(survey.JSON())
		return nil
	}))
}

func runSetOption(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("set-option", flag.ContinueOnError)
	modeFlag := fs.String("mode", "", "device mode: SLEEP, LOW_POWER or NORMAL")
	rateFlag := fs.String("rate", "", "data rate: HZ_1, HZ_4 or HZ_8")
	compassFlag := fs.String("compass", "", "compass: ON or OFF")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	d := newDevice(cfg, "")
	var setters []func(context.Context) error
	if *modeFlag != "" {
		mode, err := calypso.ParseMode(*modeFlag)
		if err != nil {
			return usageError(err)
		}
		setters = append(setters, func(ctx context.Context) error { return d.SetMode(ctx, mode) })
	}
	if *rateFlag != "" {
		rate, err := calypso.ParseDataRate(*rateFlag)
		if err != nil {
			return usageError(err)
		}
		setters = append(setters, func(ctx context.Context) error { return d.SetDatarate(ctx, rate) })
	}
	if *compassFlag != "" {
		compass, err := calypso.ParseCompassStatus(*compassFlag)
		if err != nil {
			return usageError(err)
		}
		setters = append(setters, func(ctx context.Context) error { return d.SetCompass(ctx, compass) })
	}
	if len(setters) == 0 {
		return usageError(errors.New("nothing to set, use -mode, -rate or -compass"))
	}

	return exitCode(calypso.With(ctx, d, func(ctx context.Context, _ calypso.Session) error {
		for _, set := range setters {
			if err := set(ctx); err != nil {
				return err
			}
		}
		return nil
	}))
}

func usageError(err error) int {
	fmt.Fprintln(os.Stderr, err)
	return exitUsage
}

func runRead(ctx context.Context, cfg *config.Config, args []string, fake bool) int {
	name := "read"
	if fake {
		name = "fake"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	subscribe := fs.Bool("subscribe", false, "stream readings until interrupted")
	target := fs.String("target", cfg.Telemetry.Target, "telemetry target URI, e.g. udp+signalk+delta://localhost:4123")
	rateFlag := fs.String("rate", "", "data rate while subscribed: HZ_1, HZ_4 or HZ_8")
	retry := fs.Bool("retry", cfg.Retry.Enabled, "reconnect after a lost session")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	opts := engine.Options{Subscribe: *subscribe}
	if *rateFlag != "" {
		rate, err := calypso.ParseDataRate(*rateFlag)
		if err != nil {
			return usageError(err)
		}
		opts.Rate = rate
	}
	if *target != "" {
		adapter, err := telemetry.New(ctx, *target, cfg.TelemetryOptions())
		if err != nil {
			return exitCode(err)
		}
		defer adapter.Close()
		opts.Telemetry = adapter
	}
	h := engine.NewHandler(opts)

	newSession := func(address string) calypso.Session {
		if fake {
			s := cfg.Settings()
			if address != "" {
				s.Address = address
			}
			return calypso.NewFake(s)
		}
		return newDevice(cfg, address)
	}

	if *retry && *subscribe {
		b := engine.DefaultBackoff()
		b.Max = time.Duration(cfg.Retry.MaxDelay)
		return exitCode(engine.Supervise(ctx, newSession, h, b))
	}
	return exitCode(engine.Run(ctx, newSession(""), h))
}
