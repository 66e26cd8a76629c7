// Package gateway talks to a CAN-over-Ethernet gateway over UDP. Every
// datagram carries one or more 13-byte frames in either direction.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"robolink/motor"
)

// MaxBatchSize is the largest datagram SendBatch will build (50 frames).
const MaxBatchSize = 650

var (
	ErrNotConnected  = errors.New("gateway: not connected")
	ErrBatchTooLarge = errors.New("gateway: batch too large")
)

// Config holds the UDP endpoints
type Config struct {
	// Gateway address
	RemoteIP   string
	RemotePort int

	// Local port to bind; 0 picks an ephemeral port
	LocalPort int

	// Receive poll interval
	ReadTimeout time.Duration
}

// DefaultConfig returns the gateway's factory settings
func DefaultConfig() Config {
	return Config{
		RemoteIP:    "192.168.0.7",
		RemotePort:  20001,
		LocalPort:   20001,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Event is one inbound data frame and its classification.
type Event struct {
	Time    time.Time
	Frame   motor.Frame
	Message motor.Message
}

// Handler is called for every inbound event on the receive goroutine.
type Handler func(Event)

// StandardFrame is one entry of a batch.
type StandardFrame struct {
	ID   uint16
	Data []byte
}

// Conn is a connected gateway socket with a background receive loop.
type Conn struct {
	conn        *net.UDPConn
	logger      *slog.Logger
	readTimeout time.Duration

	master atomic.Uint32 // host address used to classify standard frames

	writeMutex sync.Mutex

	mu      sync.Mutex
	handler Handler

	events chan Event
	closed atomic.Bool

	stopChan chan struct{}
	doneChan chan struct{}
}

// Dial binds the local port, connects to the gateway and starts receiving.
// master is the host address inbound standard frames are matched against.
func Dial(cfg Config, master uint8, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultConfig().ReadTimeout
	}

	remote := net.JoinHostPort(cfg.RemoteIP, strconv.Itoa(cfg.RemotePort))
	raddr, err := net.ResolveUDPAddr("udp", remote)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", remote, err)
	}
	laddr := &net.UDPAddr{Port: cfg.LocalPort}

	conn, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s from port %d: %w", remote, cfg.LocalPort, err)
	}

	c := &Conn{
		conn:        conn,
		logger:      logger,
		readTimeout: cfg.ReadTimeout,
		events:      make(chan Event, 256),
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
	c.master.Store(uint32(master))

	go c.readLoop()

	logger.Info("gateway connected", "local", conn.LocalAddr().String(), "remote", remote)
	return c, nil
}

// LocalAddr returns the bound local address.
func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the gateway address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// SetMasterID changes the host address used to recognise feedback.
func (c *Conn) SetMasterID(id uint8) { c.master.Store(uint32(id)) }

// MasterID returns the host address used to recognise feedback.
func (c *Conn) MasterID() uint8 { return uint8(c.master.Load()) }

// SetHandler installs a callback for inbound events; nil removes it.
func (c *Conn) SetHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Events returns the inbound event channel. When the consumer falls behind
// the oldest event is dropped.
func (c *Conn) Events() <-chan Event { return c.events }

// SendStandard sends one standard frame.
func (c *Conn) SendStandard(id uint16, data [motor.DataLen]byte) error {
	raw, err := motor.BuildStandard(id, data[:])
	if err != nil {
		return err
	}
	return c.send(raw[:])
}

// SendExtended sends one extended frame.
func (c *Conn) SendExtended(id uint32, data [motor.DataLen]byte) error {
	raw, err := motor.BuildExtended(id, data[:])
	if err != nil {
		return err
	}
	return c.send(raw[:])
}

// SendBatch packs standard frames into a single datagram.
func (c *Conn) SendBatch(frames []StandardFrame) error {
	if len(frames)*motor.FrameSize > MaxBatchSize {
		return fmt.Errorf("%w: %d frames (max %d bytes)", ErrBatchTooLarge, len(frames), MaxBatchSize)
	}
	packet := make([]byte, 0, len(frames)*motor.FrameSize)
	for i, f := range frames {
		raw, err := motor.BuildStandard(f.ID, f.Data)
		if err != nil {
			return fmt.Errorf("batch frame %d: %w", i, err)
		}
		packet = append(packet, raw[:]...)
	}
	return c.send(packet)
}

// SendRaw sends 13 whitespace separated hex bytes verbatim, e.g.
// "08 00 00 00 7F FF FF FF FF FF FF FF FC".
func (c *Conn) SendRaw(hexString string) error {
	raw, err := ParseHexFrame(hexString)
	if err != nil {
		return err
	}
	return c.send(raw[:])
}

// ParseHexFrame parses 13 whitespace separated hex bytes.
func ParseHexFrame(hexString string) ([motor.FrameSize]byte, error) {
	var raw [motor.FrameSize]byte
	fields := strings.Fields(hexString)
	if len(fields) != motor.FrameSize {
		return raw, fmt.Errorf("%w: need exactly %d bytes, got %d", motor.ErrInvalidLength, motor.FrameSize, len(fields))
	}
	for i, f := range fields {
		b, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return raw, fmt.Errorf("invalid hex byte %q: %w", f, err)
		}
		raw[i] = byte(b)
	}
	return raw, nil
}

func (c *Conn) send(packet []byte) error {
	if c.closed.Load() {
		return ErrNotConnected
	}

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	n, err := c.conn.Write(packet)
	if err != nil {
		return fmt.Errorf("udp send failed: %w", err)
	}
	if n != len(packet) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(packet))
	}

	if c.logger.Enabled(context.Background(), slog.LevelDebug) {
		frames, _ := motor.SplitDatagram(packet)
		for _, f := range frames {
			c.logFrame("tx", f)
		}
	}
	return nil
}

func (c *Conn) logFrame(dir string, f motor.Frame) {
	c.logger.Debug("can frame",
		"dir", dir,
		"id", fmt.Sprintf("0x%X", f.ID),
		"extended", f.IsExtended(),
		"data", fmt.Sprintf("% X", f.Data),
	)
}

// Close stops the receive loop and closes the socket.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.stopChan)
	err := c.conn.Close()
	<-c.doneChan // Wait for read loop to finish
	return err
}

// readLoop receives datagrams until the socket is closed
func (c *Conn) readLoop() {
	defer close(c.doneChan)

	buffer := make([]byte, 1024)

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		n, err := c.conn.Read(buffer)
		if err != nil {
			var ne net.Error
			switch {
			case errors.Is(err, net.ErrClosed):
				return
			case errors.As(err, &ne) && ne.Timeout(), errors.Is(err, os.ErrDeadlineExceeded):
				continue
			case errors.Is(err, syscall.ECONNREFUSED):
				// ICMP port unreachable from an earlier send
				c.logger.Warn("gateway port unreachable, check gateway address and UDP mode")
				continue
			default:
				c.logger.Error("udp receive failed", "err", err)
				return
			}
		}

		c.processDatagram(buffer[:n])
	}
}

func (c *Conn) processDatagram(datagram []byte) {
	frames, rest := motor.SplitDatagram(datagram)
	if rest != 0 {
		c.logger.Debug("ignoring trailing bytes", "n", rest)
	}

	now := time.Now()
	master := c.MasterID()

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()

	for _, f := range frames {
		c.logFrame("rx", f)

		msg, ok := motor.Classify(f, master)
		if !ok {
			continue
		}
		ev := Event{Time: now, Frame: f, Message: msg}
		if handler != nil {
			handler(ev)
		}
		c.deliver(ev)
	}
}

func (c *Conn) deliver(ev Event) {
	select {
	case c.events <- ev:
	default:
		// Channel full, drop oldest
		select {
		case <-c.events:
		default:
		}
		select {
		case c.events <- ev:
		default:
		}
	}
}
