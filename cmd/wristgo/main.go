package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/WristGo/internal/config"
	"github.com/cjeanneret/WristGo/internal/debug"
	"github.com/cjeanneret/WristGo/internal/hw/gamepad"
	"github.com/cjeanneret/WristGo/internal/logic/teleop"
	"github.com/cjeanneret/WristGo/internal/logic/wrist"
	"github.com/cjeanneret/WristGo/internal/telemetry"
	"github.com/cjeanneret/WristGo/internal/web"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "wristgo"
	app.Usage = "drive a two-servo differential wrist from a gamepad"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Value: filepath.Join("configs", "default.yaml"),
			Usage: "path to config file (must live in a configs/ directory)",
		},
		cli.GenericFlag{
			Name:  "web",
			Value: &webPortFlag{defaultPort: 8080},
			Usage: "serve the controller page on port; -web= for default 8080, overrides web.port",
		},
		cli.IntFlag{
			Name:  "debug",
			Value: -1,
			Usage: "override log.debug_level (0-4)",
		},
	}
	app.Action = runTeleop
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "teleoperate the wrist until interrupted (default)",
			Action: runTeleop,
		},
		{
			Name:      "pose",
			Usage:     "command one wrist pose, for calibration",
			ArgsUsage: "ANGLE TILT",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "hold",
					Usage: "keep driving the pose until interrupted (PWM servos release on exit)",
				},
			},
			Action: runPose,
		},
		{
			Name:      "map",
			Usage:     "print the servo positions for a pose without touching hardware",
			ArgsUsage: "ANGLE TILT",
			Action:    runMap,
		},
	}
	return app
}

// loadConfig reads the config named by -config and applies the global
// flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.GlobalString("config")
	if err := config.ValidateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	if lvl := c.GlobalInt("debug"); lvl >= 0 {
		if lvl > debug.LevelTrace {
			return nil, fmt.Errorf("-debug must be between 0 and 4, got %d", lvl)
		}
		cfg.Log.DebugLevel = lvl
	}
	if wp, ok := c.GlobalGeneric("web").(*webPortFlag); ok && wp.port() > 0 {
		cfg.Web.Port = wp.port()
	}
	return cfg, nil
}

func runTeleop(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logs := setupLogging(cfg)
	defer logs.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	debug.Section("Initialization")
	debug.Value("Config path", c.GlobalString("config"))
	debug.Value("Debug level", cfg.Log.DebugLevel)

	r, err := openRig(cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	tcfg, err := teleop.ConfigFromFile(cfg)
	if err != nil {
		return err
	}
	debug.PrintStruct("Teleop config", tcfg)

	pad := gamepad.NewVirtual()
	tel := telemetry.New(telemetry.LogSink{})

	g, gctx := errgroup.WithContext(ctx)

	var start <-chan struct{}
	if cfg.Web.Port > 0 {
		debug.Step(3, "Starting web controller")
		broadcaster := web.NewStatusBroadcaster()
		logs.tee(web.BroadcastWriter(broadcaster))
		tel.AddSink(broadcaster)

		srv, err := web.NewServer(fmt.Sprintf(":%d", cfg.Web.Port), broadcaster, pad, webSettings(cfg), cfg.Web.AuthSecret)
		if err != nil {
			return err
		}
		start = srv.Started()
		g.Go(func() error { return srv.Run(gctx) })
	} else if tcfg.WaitForStart {
		// Without the web page nothing can press start.
		debug.Info("Web server disabled, starting without waiting")
		tcfg.WaitForStart = false
	}

	loop := teleop.NewLoop(r.wrist, pad, tel, tcfg)
	g.Go(func() error { return loop.Run(gctx, start) })

	err = g.Wait()
	debug.Section("Shutdown")
	return err
}

func runPose(c *cli.Context) error {
	angle, tilt, err := parsePose(c.Args())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logs := setupLogging(cfg)
	defer logs.Close()

	r, err := openRig(cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.wrist.SetPosition(angle, tilt); err != nil {
		return fmt.Errorf("set pose: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "left=%.4f right=%.4f\n", r.wrist.LeftPosition(), r.wrist.RightPosition())

	if c.Bool("hold") {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		debug.Info("Holding pose, Ctrl-C to release")
		<-ctx.Done()
	}
	return nil
}

func runMap(c *cli.Context) error {
	angle, tilt, err := parsePose(c.Args())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	m, err := wrist.MappingFromConfig(cfg.Wrist)
	if err != nil {
		return err
	}
	left, right := m.Apply(angle, tilt)
	fmt.Fprintf(c.App.Writer, "left=%.4f right=%.4f\n", left, right)
	return nil
}

// parsePose reads ANGLE and TILT, each in [0, 1].
func parsePose(args []string) (angle, tilt float64, err error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("expected ANGLE TILT, got %d argument(s)", len(args))
	}
	vals := make([]float64, 2)
	for i, name := range []string{"angle", "tilt"} {
		v, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return 0, 0, fmt.Errorf("%s: %w", name, err)
		}
		if math.IsNaN(v) || v < 0 || v > 1 {
			return 0, 0, fmt.Errorf("%s must be between 0 and 1, got %s", name, args[i])
		}
		vals[i] = v
	}
	return vals[0], vals[1], nil
}

func webSettings(cfg *config.Config) web.Settings {
	return web.Settings{
		Mapping:      cfg.Wrist.Mapping,
		Scale:        cfg.Wrist.Scale,
		Step:         cfg.Teleop.Step,
		PeriodMs:     cfg.Teleop.PeriodMs,
		AngleAxis:    cfg.Teleop.AngleAxis,
		TiltAxis:     cfg.Teleop.TiltAxis,
		ResetButton:  cfg.Teleop.ResetButton,
		StartButton:  cfg.Teleop.StartButton,
		WaitForStart: cfg.Teleop.WaitForStart,
	}
}

// logSetup tracks where the debug log goes.
type logSetup struct {
	writers []io.Writer
	file    io.WriteCloser
}

func setupLogging(cfg *config.Config) *logSetup {
	l := &logSetup{writers: []io.Writer{os.Stdout}}
	if cfg.Log.File != "" {
		l.file = debug.RotatingFile(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.MaxAgeDays)
		l.writers = append(l.writers, l.file)
	}
	debug.SetOutput(io.MultiWriter(l.writers...))
	debug.Init(cfg.Log.DebugLevel)
	return l
}

// tee adds w to the log outputs.
func (l *logSetup) tee(w io.Writer) {
	l.writers = append(l.writers, w)
	debug.SetOutput(io.MultiWriter(l.writers...))
}

func (l *logSetup) Close() error {
	debug.SetOutput(os.Stdout)
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// webPortFlag implements cli.Generic for -web: 0 = disabled, -web= → default port, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
