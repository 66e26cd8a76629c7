// Package imu runs a HiPNUC IMU over a serial port: it decodes the telemetry
// stream in the background and forwards records to a handler and an optional
// recording sink.
package imu

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"robolink/host/serial"
	"robolink/protocol"
)

var ErrNotOpen = errors.New("imu: session not open")

// RecordHandler receives every decoded record with its arrival time. It runs
// on the read goroutine and must not block.
type RecordHandler func(ts time.Time, rec protocol.HI91)

// Sink stores records, e.g. a *record.Recorder.
type Sink interface {
	Write(ts time.Time, rec protocol.HI91) error
	Close() error
}

// Session owns one serial port and the decoder fed from it.
type Session struct {
	port    serial.Port
	decoder *protocol.Decoder
	logger  *slog.Logger

	writeMutex sync.Mutex

	// mu guards the fields below
	mu      sync.Mutex
	handler RecordHandler
	stats   protocol.Stats
	closed  bool

	// sinkMutex is held across each write so a sink is never written
	// after StopRecording detaches it
	sinkMutex sync.Mutex
	sink      Sink

	records chan protocol.HI91

	stopChan chan struct{}
	doneChan chan struct{}
}

// Open opens the serial port described by cfg and starts a session on it.
func Open(cfg *serial.Config, logger *slog.Logger) (*Session, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return New(port, logger), nil
}

// New starts a session on an already open port. The session takes ownership
// of port.
func New(port serial.Port, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		port:     port,
		decoder:  protocol.NewDecoder(logger),
		logger:   logger,
		records:  make(chan protocol.HI91, 64),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}

	go s.readLoop()

	return s
}

// Records returns a channel of decoded records. When the consumer falls
// behind the oldest record is dropped.
func (s *Session) Records() <-chan protocol.HI91 {
	return s.records
}

// SetRecordHandler installs a callback for decoded records; nil removes it.
func (s *Session) SetRecordHandler(h RecordHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// SendCommand writes a text command terminated by CRLF.
func (s *Session) SendCommand(cmd string) error {
	if s.isClosed() {
		return ErrNotOpen
	}

	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	if _, err := io.WriteString(s.port, cmd+"\r\n"); err != nil {
		return fmt.Errorf("failed to send command %q: %w", cmd, err)
	}
	if err := s.port.Flush(); err != nil {
		return fmt.Errorf("failed to flush after %q: %w", cmd, err)
	}
	s.logger.Info("sent imu command", "command", cmd)
	return nil
}

// StartRecording sends every following record to sink. A recording already
// in progress is stopped first.
func (s *Session) StartRecording(sink Sink) error {
	if s.isClosed() {
		return ErrNotOpen
	}
	if err := s.StopRecording(); err != nil {
		return err
	}
	s.sinkMutex.Lock()
	s.sink = sink
	s.sinkMutex.Unlock()
	return nil
}

// StopRecording detaches and closes the current sink, if any.
func (s *Session) StopRecording() error {
	s.sinkMutex.Lock()
	sink := s.sink
	s.sink = nil
	s.sinkMutex.Unlock()

	if sink == nil {
		return nil
	}
	return sink.Close()
}

// Recording reports whether a sink is attached.
func (s *Session) Recording() bool {
	s.sinkMutex.Lock()
	defer s.sinkMutex.Unlock()
	return s.sink != nil
}

// Stats returns the decoder counters.
func (s *Session) Stats() protocol.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close stops the read loop, ends any recording and closes the port.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopChan)
	err := s.port.Close()
	<-s.doneChan // Wait for read loop to finish

	if rerr := s.StopRecording(); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// readLoop continuously reads from the serial port and decodes records
func (s *Session) readLoop() {
	defer close(s.doneChan)

	buffer := make([]byte, 256)

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		n, err := s.port.Read(buffer)
		if n > 0 {
			s.process(buffer[:n])
		}
		if err != nil {
			if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
				return
			}
			// tarm/serial reports a read timeout as io.EOF
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("serial read failed", "err", err)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (s *Session) process(data []byte) {
	packets := s.decoder.InputBytes(data)
	now := time.Now()

	s.mu.Lock()
	s.stats = s.decoder.Stats()
	handler := s.handler
	s.mu.Unlock()

	for _, rec := range packets {
		if handler != nil {
			handler(now, rec)
		}
		s.record(now, rec)
		s.deliver(rec)
	}
}

func (s *Session) record(ts time.Time, rec protocol.HI91) {
	s.sinkMutex.Lock()
	defer s.sinkMutex.Unlock()

	if s.sink == nil {
		return
	}
	if err := s.sink.Write(ts, rec); err != nil {
		s.logger.Error("failed to record imu data", "err", err)
	}
}

func (s *Session) deliver(rec protocol.HI91) {
	select {
	case s.records <- rec:
	default:
		// Channel full, drop oldest
		select {
		case <-s.records:
		default:
		}
		select {
		case s.records <- rec:
		default:
		}
	}
}
