package teleop

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cjeanneret/WristGo/internal/config"
	"github.com/cjeanneret/WristGo/internal/debug"
	"github.com/cjeanneret/WristGo/internal/hw/gamepad"
	"github.com/cjeanneret/WristGo/internal/logic/wrist"
	"github.com/cjeanneret/WristGo/internal/telemetry"
)

// Config holds the resolved teleop settings.
type Config struct {
	Step         float64       // target change per tick at full deflection
	Period       time.Duration // minimum time between ticks
	AngleAxis    gamepad.Axis
	TiltAxis     gamepad.Axis
	InvertAngle  bool
	InvertTilt   bool
	ResetButton  gamepad.Button
	StartButton  gamepad.Button
	WaitForStart bool
}

// DefaultConfig matches the defaults of the config file.
func DefaultConfig() Config {
	return Config{
		Step:         0.02,
		Period:       20 * time.Millisecond,
		AngleAxis:    gamepad.LeftStickX,
		TiltAxis:     gamepad.RightStickY,
		ResetButton:  gamepad.A,
		StartButton:  gamepad.Start,
		WaitForStart: true,
	}
}

// ConfigFromFile resolves axis and button names from the loaded config.
func ConfigFromFile(c *config.Config) (Config, error) {
	angle, err := gamepad.ParseAxis(c.Teleop.AngleAxis)
	if err != nil {
		return Config{}, fmt.Errorf("teleop.angle_axis: %w", err)
	}
	tilt, err := gamepad.ParseAxis(c.Teleop.TiltAxis)
	if err != nil {
		return Config{}, fmt.Errorf("teleop.tilt_axis: %w", err)
	}
	reset, err := gamepad.ParseButton(c.Teleop.ResetButton)
	if err != nil {
		return Config{}, fmt.Errorf("teleop.reset_button: %w", err)
	}
	start, err := gamepad.ParseButton(c.Teleop.StartButton)
	if err != nil {
		return Config{}, fmt.Errorf("teleop.start_button: %w", err)
	}
	return Config{
		Step:         c.Teleop.Step,
		Period:       c.Period(),
		AngleAxis:    angle,
		TiltAxis:     tilt,
		InvertAngle:  c.Teleop.InvertAngle,
		InvertTilt:   c.Teleop.InvertTilt,
		ResetButton:  reset,
		StartButton:  start,
		WaitForStart: c.Teleop.WaitForStart,
	}, nil
}

// Loop turns gamepad input into incremental wrist targets, one tick at a
// time. Tick and Run must be called from a single goroutine; Targets may
// be called from any goroutine while Run is ticking.
type Loop struct {
	wrist *wrist.Controller
	pad   gamepad.Gamepad
	tel   *telemetry.Telemetry
	cfg   Config

	reset gamepad.ButtonReader

	mu          sync.Mutex // guards angle and tilt for Targets
	angle, tilt float64
}

// NewLoop returns a loop with both targets at neutral.
func NewLoop(w *wrist.Controller, pad gamepad.Gamepad, tel *telemetry.Telemetry, cfg Config) *Loop {
	return &Loop{
		wrist: w,
		pad:   pad,
		tel:   tel,
		cfg:   cfg,
		angle: wrist.Neutral,
		tilt:  wrist.Neutral,
	}
}

// Targets returns the current angle and tilt targets.
func (l *Loop) Targets() (angle, tilt float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.angle, l.tilt
}

func (l *Loop) axis(a gamepad.Axis, invert bool) float64 {
	v := l.pad.Axis(a)
	if math.IsNaN(v) {
		return 0
	}
	if invert {
		return -v
	}
	return v
}

// Tick integrates one sample of the sticks into the targets, handles the
// reset button, commands the wrist and publishes telemetry. The returned
// error comes from the actuators; telemetry failures are only logged.
func (l *Loop) Tick() error {
	da := l.axis(l.cfg.AngleAxis, l.cfg.InvertAngle) * l.cfg.Step
	dt := l.axis(l.cfg.TiltAxis, l.cfg.InvertTilt) * l.cfg.Step
	l.reset.Read(l.pad.Button(l.cfg.ResetButton))

	l.mu.Lock()
	l.angle += da
	l.tilt += dt
	if l.reset.WasJustPressed() {
		debug.Live("Reset to neutral")
		l.angle, l.tilt = wrist.Neutral, wrist.Neutral
	}
	l.angle = wrist.Clamp01(l.angle)
	l.tilt = wrist.Clamp01(l.tilt)
	angle, tilt := l.angle, l.tilt
	l.mu.Unlock()

	err := l.wrist.SetPosition(angle, tilt)

	l.tel.AddData("Target Angle", "%.2f", angle)
	l.tel.AddData("Target Tilt", "%.2f", tilt)
	l.tel.AddData("Left Servo Pos", "%.2f", l.wrist.LeftPosition())
	l.tel.AddData("Right Servo Pos", "%.2f", l.wrist.RightPosition())
	if terr := l.tel.Update(); terr != nil {
		debug.Error(fmt.Errorf("telemetry: %w", terr))
	}
	return err
}

// Run publishes the initialized status, waits for the start signal and
// then ticks at most once per period until ctx is cancelled. Actuator
// errors are logged and the loop keeps going. Cancellation returns nil.
func (l *Loop) Run(ctx context.Context, start <-chan struct{}) error {
	l.tel.AddData("Status", "Initialized")
	if err := l.tel.Update(); err != nil {
		debug.Error(fmt.Errorf("telemetry: %w", err))
	}
	debug.Info("Teleop initialized, step=%.3f period=%v", l.cfg.Step, l.cfg.Period)

	if !l.waitForStart(ctx, start) {
		return nil
	}
	debug.Info("Teleop started")

	limiter := rate.NewLimiter(rate.Every(l.cfg.Period), 1)
	// The first tick runs now; spend its token so every later tick waits a
	// full period.
	limiter.Allow()
	ticks := 0
	for {
		if ctx.Err() != nil {
			debug.Info("Teleop stopped after %d ticks", ticks)
			return nil
		}
		if err := l.Tick(); err != nil {
			debug.Error(err)
		}
		ticks++
		if err := limiter.Wait(ctx); err != nil {
			// The next token lies past the deadline; nothing more can run.
			<-ctx.Done()
			debug.Info("Teleop stopped after %d ticks", ticks)
			return nil
		}
	}
}

// waitForStart blocks until start is closed or the start button is held.
// It reports false if ctx ended first.
func (l *Loop) waitForStart(ctx context.Context, start <-chan struct{}) bool {
	if !l.cfg.WaitForStart {
		return ctx.Err() == nil
	}
	debug.Info("Waiting for start (%s button or web)", l.cfg.StartButton)

	period := l.cfg.Period
	if period <= 0 {
		period = DefaultConfig().Period
	}
	poll := time.NewTicker(period)
	defer poll.Stop()
	for {
		if l.pad.Button(l.cfg.StartButton) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-start:
			return true
		case <-poll.C:
		}
	}
}
