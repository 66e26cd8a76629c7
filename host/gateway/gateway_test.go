package gateway

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"robolink/motor"
)

// fakeGateway is a UDP socket standing in for the CAN-ETH gateway.
type fakeGateway struct {
	t    *testing.T
	conn *net.UDPConn
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &fakeGateway{t: t, conn: conn}
}

func (g *fakeGateway) dial() *Conn {
	g.t.Helper()
	cfg := Config{
		RemoteIP:    "127.0.0.1",
		RemotePort:  g.conn.LocalAddr().(*net.UDPAddr).Port,
		LocalPort:   0,
		ReadTimeout: 20 * time.Millisecond,
	}
	c, err := Dial(cfg, 0xFD, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		g.t.Fatalf("dial: %v", err)
	}
	g.t.Cleanup(func() { c.Close() })
	return c
}

func (g *fakeGateway) recv() ([]byte, *net.UDPAddr) {
	g.t.Helper()
	buf := make([]byte, 2048)
	g.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, addr, err := g.conn.ReadFromUDP(buf)
	if err != nil {
		g.t.Fatalf("gateway receive: %v", err)
	}
	return buf[:n], addr
}

func (g *fakeGateway) sendTo(c *Conn, datagram []byte) {
	g.t.Helper()
	local := c.LocalAddr().(*net.UDPAddr)
	to := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: local.Port}
	if _, err := g.conn.WriteToUDP(datagram, to); err != nil {
		g.t.Fatalf("gateway send: %v", err)
	}
}

func waitEvent(t *testing.T, c *Conn) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestSendStandardAndExtended(t *testing.T) {
	g := newFakeGateway(t)
	c := g.dial()

	if err := c.SendStandard(motor.MakeStandardID(motor.ModeMIT, 127), motor.CmdEnable()); err != nil {
		t.Fatal(err)
	}
	got, _ := g.recv()
	want := []byte{0x08, 0, 0, 0, 0x7F, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFC}
	if string(got) != string(want) {
		t.Fatalf("standard: got % X, want % X", got, want)
	}

	cmd := motor.PrivEnable(0xFD, 127)
	if err := c.SendExtended(cmd.ID, cmd.Data); err != nil {
		t.Fatal(err)
	}
	got, _ = g.recv()
	if got[0] != 0x88 || len(got) != motor.FrameSize {
		t.Fatalf("extended: got % X", got)
	}
}

func TestSendBatch(t *testing.T) {
	g := newFakeGateway(t)
	c := g.dial()

	enable, stop := motor.CmdEnable(), motor.CmdStop()
	frames := []StandardFrame{
		{ID: 1, Data: enable[:]},
		{ID: 2, Data: stop[:]},
	}
	if err := c.SendBatch(frames); err != nil {
		t.Fatal(err)
	}
	got, _ := g.recv()
	parsed, rest := motor.SplitDatagram(got)
	if len(parsed) != 2 || rest != 0 || parsed[1].ID != 2 {
		t.Fatalf("unexpected batch % X", got)
	}

	big := make([]StandardFrame, MaxBatchSize/motor.FrameSize+1)
	for i := range big {
		big[i] = StandardFrame{ID: 1, Data: enable[:]}
	}
	if err := c.SendBatch(big); !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("oversized batch: got %v", err)
	}
	if err := c.SendBatch([]StandardFrame{{ID: 1, Data: enable[:7]}}); !errors.Is(err, motor.ErrInvalidLength) {
		t.Fatalf("short payload: got %v", err)
	}
	if err := c.SendBatch(big[:MaxBatchSize/motor.FrameSize]); err != nil {
		t.Fatalf("50 frames should fit: %v", err)
	}
}

func TestSendRaw(t *testing.T) {
	g := newFakeGateway(t)
	c := g.dial()

	if err := c.SendRaw("88 03 FD 00 7F 00 00 00 00 00 00 00 00"); err != nil {
		t.Fatal(err)
	}
	got, _ := g.recv()
	if got[0] != 0x88 || got[1] != 0x03 || got[4] != 0x7F {
		t.Fatalf("got % X", got)
	}

	bad := []string{
		"88 03",
		"88 03 FD 00 7F 00 00 00 00 00 00 00 00 00",
		"88 03 FD 00 7F 00 00 00 00 00 00 00 ZZ",
		"88 03 FD 00 7F 00 00 00 00 00 00 00 100",
	}
	for _, s := range bad {
		if err := c.SendRaw(s); err == nil {
			t.Errorf("%q: expected error", s)
		}
	}
}

func TestReceiveClassifiesFrames(t *testing.T) {
	g := newFakeGateway(t)
	c := g.dial()

	handled := make(chan Event, 4)
	c.SetHandler(func(ev Event) { handled <- ev })

	fb, _ := motor.BuildStandard(motor.MakeStandardID(motor.ModeMIT, 0xFD), []byte{0x7F, 0x80, 0, 0x80, 0, 0, 0x01, 0x00})
	fault, _ := motor.BuildExtended(motor.MakeExtendedID(motor.TypeFaultFeedback, 0x007F, 0xFD), []byte{0x05, 0, 0, 0, 0, 0, 0, 0})
	remote := [motor.FrameSize]byte{motor.InfoRemote | motor.DataLen}

	datagram := append(append(append(fb[:], remote[:]...), fault[:]...), 0xAA, 0xBB)
	g.sendTo(c, datagram)

	first := waitEvent(t, c)
	if m, ok := first.Message.(motor.Feedback); !ok || m.MotorID != 0x7F {
		t.Fatalf("first event %#v", first.Message)
	}
	second := waitEvent(t, c)
	if m, ok := second.Message.(motor.FaultReport); !ok || m.Raw != 5 || m.MotorID != 0x7F {
		t.Fatalf("second event %#v", second.Message)
	}
	if len(handled) != 2 {
		t.Fatalf("handler saw %d events, want 2", len(handled))
	}
}

func TestSetMasterID(t *testing.T) {
	g := newFakeGateway(t)
	c := g.dial()
	c.SetMasterID(0x10)
	if c.MasterID() != 0x10 {
		t.Fatalf("master = %d", c.MasterID())
	}

	fb, _ := motor.BuildStandard(motor.MakeStandardID(motor.ModeMIT, 0xFD), make([]byte, 8))
	g.sendTo(c, fb[:])
	if _, ok := waitEvent(t, c).Message.(motor.RawFrame); !ok {
		t.Fatal("feedback for the old master should be raw")
	}
}

func TestCloseStopsSending(t *testing.T) {
	g := newFakeGateway(t)
	c := g.dial()

	done := make(chan error, 1)
	go func() { done <- c.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return")
	}

	if err := c.SendStandard(1, motor.CmdStop()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("send after close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestParseHexFrame(t *testing.T) {
	raw, err := ParseHexFrame("08 00 00 01 7f 00 00 a0 40 00 00 a0 40")
	if err != nil {
		t.Fatal(err)
	}
	f, _ := motor.ParseFrame(raw[:])
	if f.ID != 0x17F || !f.IsStandard() {
		t.Fatalf("parsed %v", f)
	}
}
