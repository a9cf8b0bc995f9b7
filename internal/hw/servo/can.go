package servo

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/cjeanneret/WristGo/internal/debug"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// canScale is the fixed-point resolution of a position on the bus.
const canScale = 10000

// FrameTransmitter sends one CAN frame.
type FrameTransmitter interface {
	TransmitFrame(ctx context.Context, frame can.Frame) error
}

// CANBus carries setpoints to servo nodes. Channel n listens on frame ID
// baseID+n; the payload is the position as a little-endian uint16 in
// units of 1/10000.
type CANBus struct {
	conn    net.Conn
	tx      FrameTransmitter
	baseID  uint32
	timeout time.Duration
}

// DialCAN opens a SocketCAN interface such as "can0" or "vcan0".
func DialCAN(ctx context.Context, iface string, baseID uint32, timeout time.Duration) (*CANBus, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	debug.Info("CAN bus on %s (base id %#x)", iface, baseID)
	b := NewCANBus(socketcan.NewTransmitter(conn), baseID, timeout)
	b.conn = conn
	return b, nil
}

// NewCANBus builds a bus on top of an existing transmitter.
func NewCANBus(tx FrameTransmitter, baseID uint32, timeout time.Duration) *CANBus {
	return &CANBus{
		tx:      tx,
		baseID:  baseID,
		timeout: timeout,
	}
}

// Close closes the underlying socket, if the bus owns one.
func (b *CANBus) Close() error {
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// Servo returns a servo node on the given channel.
func (b *CANBus) Servo(name string, channel int, reverse bool) *CANServo {
	return &CANServo{
		name:    name,
		bus:     b,
		id:      b.baseID + uint32(channel),
		reverse: reverse,
		pos:     math.NaN(),
	}
}

// CANServo is a servo node addressed by frame ID.
type CANServo struct {
	name    string
	bus     *CANBus
	id      uint32
	reverse bool
	pos     float64
}

// SetPosition transmits one setpoint frame.
func (s *CANServo) SetPosition(pos float64) error {
	pos = clamp01(pos)
	debug.Servo(s.name, pos)

	f := can.Frame{ID: s.id, Length: 2}
	binary.LittleEndian.PutUint16(f.Data[:2], uint16(math.Round(wire(pos, s.reverse)*canScale)))

	ctx, cancel := context.WithTimeout(context.Background(), s.bus.timeout)
	defer cancel()
	if err := s.bus.tx.TransmitFrame(ctx, f); err != nil {
		return fmt.Errorf("servo %s: transmit frame %#x: %w", s.name, s.id, err)
	}
	s.pos = pos
	return nil
}

// Position returns the last commanded position.
func (s *CANServo) Position() float64 {
	return s.pos
}
