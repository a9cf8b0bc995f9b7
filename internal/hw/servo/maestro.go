package servo

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/WristGo/internal/debug"
	"github.com/tarm/serial"
)

// Maestro command bytes (Pololu Maestro user's guide, "Serial servo commands").
const (
	cmdSetTarget = 0x84
	cmdGetErrors = 0xa1
)

var maestroErrorBits = []string{
	"serial signal error",
	"serial overrun error",
	"serial buffer full",
	"serial crc error",
	"serial protocol error",
	"serial timeout",
	"script stack error",
	"script call stack error",
	"script program counter error",
}

// Maestro is a Pololu Maestro servo controller on a serial line.
// Several servos share one controller; writes are serialized.
type Maestro struct {
	mu      sync.Mutex
	port    io.ReadWriteCloser
	device  byte
	compact bool // compact protocol: single device on the line
}

// OpenMaestro opens the serial port and returns a controller.
func OpenMaestro(name string, baud int, device int, compact bool) (*Maestro, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open maestro port %s: %w", name, err)
	}
	debug.Info("Maestro controller on %s (device %d, compact=%v)", name, device, compact)
	return NewMaestro(port, device, compact), nil
}

// NewMaestro wraps an already open port.
func NewMaestro(port io.ReadWriteCloser, device int, compact bool) *Maestro {
	return &Maestro{
		port:    port,
		device:  byte(device & 0x7f),
		compact: compact,
	}
}

func (m *Maestro) preamble(command byte) []byte {
	if m.compact {
		return []byte{command}
	}
	return []byte{0xaa, m.device, command & 0x7f}
}

// setTarget sends a channel target in quarter-microseconds.
func (m *Maestro) setTarget(channel byte, quarterUs uint16) error {
	cmd := append(m.preamble(cmdSetTarget), channel, byte(quarterUs&0x7f), byte((quarterUs>>7)&0x7f))

	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.port.Write(cmd)
	return err
}

// Errors reads and clears the controller error register. It returns nil when
// the controller reports no error.
func (m *Maestro) Errors() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.port.Write(m.preamble(cmdGetErrors)); err != nil {
		return fmt.Errorf("maestro get errors: %w", err)
	}
	buf := make([]byte, 2)
	if _, err := io.ReadFull(m.port, buf); err != nil {
		return fmt.Errorf("maestro get errors: %w", err)
	}
	bits := uint16(buf[0]) | uint16(buf[1])<<8

	var s []string
	for i, msg := range maestroErrorBits {
		if bits&(1<<i) != 0 {
			s = append(s, msg)
		}
	}
	if len(s) == 0 {
		return nil
	}
	return errors.New("maestro: " + strings.Join(s, ", "))
}

// Close closes the serial port.
func (m *Maestro) Close() error {
	return m.port.Close()
}

// Servo returns a servo bound to one controller channel.
func (m *Maestro) Servo(name string, channel int, pulse Pulse) *MaestroServo {
	return &MaestroServo{
		name:    name,
		ctrl:    m,
		channel: byte(channel),
		pulse:   pulse,
		pos:     math.NaN(),
	}
}

// MaestroServo is one channel of a Maestro controller.
type MaestroServo struct {
	name    string
	ctrl    *Maestro
	channel byte
	pulse   Pulse
	pos     float64
}

// SetPosition sends the pulse width for pos as a channel target.
func (s *MaestroServo) SetPosition(pos float64) error {
	pos = clamp01(pos)
	debug.Servo(s.name, pos)

	// Maestro targets are in units of 0.25µs.
	target := uint16(s.pulse.Width(pos) * 4)
	if err := s.ctrl.setTarget(s.channel, target); err != nil {
		return fmt.Errorf("servo %s: %w", s.name, err)
	}
	s.pos = pos
	return nil
}

// Position returns the last commanded position.
func (s *MaestroServo) Position() float64 {
	return s.pos
}
