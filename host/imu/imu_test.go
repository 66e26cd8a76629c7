package imu

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"robolink/protocol"
)

const referenceHex = `
5A A5 4C 00 14 BB 91 08 15 23 09 A2 C4 47 08 15 1C 00
CC E8 61 BE 9A 35 56 3E 65 EA 72 3F 31 D0 7C BD 75 DD
C5 BB 6B D7 24 BC 89 88 FC 40 01 00 6A 41 AB 2A 70 C2
96 D4 50 41 ED 03 43 41 41 F4 F4 C2 CC CA F8 BE 73 6A
19 BE F0 00 1C 3D 8D 37 5C 3F`

func referenceFrame(t *testing.T) []byte {
	t.Helper()
	frame, err := hex.DecodeString(strings.Join(strings.Fields(referenceHex), ""))
	if err != nil {
		t.Fatalf("bad reference hex: %v", err)
	}
	return frame
}

// pipePort is a serial.Port whose input is fed through an io.Pipe.
type pipePort struct {
	r *io.PipeReader

	mu      sync.Mutex
	written bytes.Buffer
	flushes int
}

func newPipePort() (*pipePort, *io.PipeWriter) {
	r, w := io.Pipe()
	return &pipePort{r: r}, w
}

func (p *pipePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *pipePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *pipePort) Close() error { return p.r.Close() }

func (p *pipePort) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
	return nil
}

type memSink struct {
	mu         sync.Mutex
	recs       []protocol.HI91
	closed     bool
	lateWrites int
}

func (m *memSink) Write(_ time.Time, rec protocol.HI91) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		m.lateWrites++
		return os.ErrClosed
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitRecord(t *testing.T, ch <-chan protocol.HI91) protocol.HI91 {
	t.Helper()
	select {
	case rec := <-ch:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for record")
	}
	return protocol.HI91{}
}

func TestSessionDecodesStream(t *testing.T) {
	port, feed := newPipePort()
	s := New(port, quietLogger())
	defer s.Close()

	got := make(chan protocol.HI91, 1)
	s.SetRecordHandler(func(_ time.Time, rec protocol.HI91) { got <- rec })

	frame := referenceFrame(t)
	// Split the frame across writes to exercise partial reads.
	if _, err := feed.Write(frame[:10]); err != nil {
		t.Fatal(err)
	}
	if _, err := feed.Write(frame[10:]); err != nil {
		t.Fatal(err)
	}

	rec := waitRecord(t, got)
	if rec.Temperature != 35 || rec.SystemTime != 1840392 {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec := waitRecord(t, s.Records()); rec.SystemTime != 1840392 {
		t.Errorf("channel record %+v", rec)
	}
	if st := s.Stats(); st.Frames != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestSessionCountsCRCErrors(t *testing.T) {
	port, feed := newPipePort()
	s := New(port, quietLogger())
	defer s.Close()

	bad := referenceFrame(t)
	bad[20] ^= 0xFF
	if _, err := feed.Write(bad); err != nil {
		t.Fatal(err)
	}
	if _, err := feed.Write(referenceFrame(t)); err != nil {
		t.Fatal(err)
	}
	waitRecord(t, s.Records())

	if st := s.Stats(); st.CRCErrors != 1 || st.Frames != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestSessionSendCommand(t *testing.T) {
	port, _ := newPipePort()
	s := New(port, quietLogger())
	defer s.Close()

	if err := s.SendCommand("LOG VERSION"); err != nil {
		t.Fatal(err)
	}

	port.mu.Lock()
	defer port.mu.Unlock()
	if port.written.String() != "LOG VERSION\r\n" {
		t.Errorf("wrote %q", port.written.String())
	}
	if port.flushes != 1 {
		t.Errorf("flushes = %d, want 1", port.flushes)
	}
}

func TestSessionRecording(t *testing.T) {
	port, feed := newPipePort()
	s := New(port, quietLogger())
	defer s.Close()

	sink := &memSink{}
	if err := s.StartRecording(sink); err != nil {
		t.Fatal(err)
	}
	if !s.Recording() {
		t.Fatal("expected recording")
	}

	if _, err := feed.Write(referenceFrame(t)); err != nil {
		t.Fatal(err)
	}
	waitRecord(t, s.Records())

	if err := s.StopRecording(); err != nil {
		t.Fatal(err)
	}
	if s.Recording() {
		t.Fatal("still recording after stop")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.recs) != 1 || !sink.closed {
		t.Fatalf("sink got %d records, closed=%v", len(sink.recs), sink.closed)
	}
}

func TestSessionStopRecordingWhileStreaming(t *testing.T) {
	port, feed := newPipePort()
	s := New(port, quietLogger())
	defer s.Close()

	sink := &memSink{}
	if err := s.StartRecording(sink); err != nil {
		t.Fatal(err)
	}

	frame := referenceFrame(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if _, err := feed.Write(frame); err != nil {
				return
			}
		}
	}()

	waitRecord(t, s.Records())
	if err := s.StopRecording(); err != nil {
		t.Fatal(err)
	}

	// Keep draining so the feeder is never stuck behind a full channel.
	for {
		select {
		case <-done:
			sink.mu.Lock()
			defer sink.mu.Unlock()
			if sink.lateWrites != 0 {
				t.Fatalf("%d writes reached the sink after it was closed", sink.lateWrites)
			}
			if len(sink.recs) == 0 {
				t.Fatal("no records written before stop")
			}
			return
		case <-s.Records():
		case <-time.After(5 * time.Second):
			t.Fatal("timed out streaming frames")
		}
	}
}

func TestSessionClose(t *testing.T) {
	port, _ := newPipePort()
	s := New(port, quietLogger())

	sink := &memSink{}
	if err := s.StartRecording(sink); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return")
	}

	if !sink.closed {
		t.Error("recording not closed with session")
	}
	if err := s.SendCommand("x"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("send after close: %v", err)
	}
	if err := s.StartRecording(&memSink{}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("record after close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestSessionDropsOldestRecord(t *testing.T) {
	port, feed := newPipePort()
	s := New(port, quietLogger())
	defer s.Close()

	done := make(chan struct{}, 1)
	count := 0
	s.SetRecordHandler(func(time.Time, protocol.HI91) {
		count++
		if count == cap(s.records)+5 {
			done <- struct{}{}
		}
	})

	frame := referenceFrame(t)
	for i := 0; i < cap(s.records)+5; i++ {
		if _, err := feed.Write(frame); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
	// Let the read loop finish delivering before inspecting the channel.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if n := len(s.Records()); n != cap(s.records) {
		t.Fatalf("buffered %d records, want %d", n, cap(s.records))
	}
}
