package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/google/shlex"

	"robolink/host/control"
	"robolink/motor"
)

var errQuit = errors.New("quit")

// link is the local end of the gateway, e.g. a *gateway.Conn.
type link interface {
	SendRaw(hexString string) error
	SetMasterID(id uint8)
}

// console executes one line of operator input at a time.
type console struct {
	ctx  context.Context
	ctrl *control.Controller
	link link
	out  io.Writer
	rate int

	mu         sync.Mutex
	loop       *control.MITLoop
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

func newConsole(ctx context.Context, ctrl *control.Controller, l link, out io.Writer, rate int) *console {
	return &console{ctx: ctx, ctrl: ctrl, link: l, out: out, rate: rate}
}

// exec runs one command line. It returns errQuit when the operator asks to
// leave.
func (c *console) exec(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse %q: %w", line, err)
	}
	if len(args) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(args[0]), args[1:]

	switch cmd {
	case "quit", "exit", "q":
		c.stopLoop()
		return errQuit

	case "help", "?":
		printHelp(c.out)
		return nil

	case "status":
		cfg := c.ctrl.Config()
		fmt.Fprintf(c.out, "motor %d master 0x%02X\n", cfg.MotorID, cfg.MasterID)
		if l := c.runningLoop(); l != nil {
			sent, failed := l.Counts()
			fmt.Fprintf(c.out, "mit loop running: %+v sent=%d failed=%d\n", l.Setpoint(), sent, failed)
		}
		return nil

	case "target":
		id, err := argUint8(args, 0)
		if err != nil {
			return err
		}
		cfg := c.ctrl.Config()
		cfg.MotorID = id
		c.ctrl.SetConfig(cfg)
		return nil

	case "params":
		printParams(c.out)
		return nil

	// Standard protocol
	case "enable":
		return c.ctrl.Enable()
	case "stop":
		return c.ctrl.Stop()
	case "zero":
		return c.ctrl.SetZero()
	case "clear":
		return c.ctrl.ClearFault()
	case "fault":
		return c.ctrl.ReadFault()
	case "mode":
		mode, err := argUint8(args, 0)
		if err != nil {
			return err
		}
		return c.ctrl.SetMode(mode)
	case "mit":
		sp, err := argSetpoint(args)
		if err != nil {
			return err
		}
		return c.ctrl.MITControl(sp)
	case "pos":
		v, err := argFloats(args, 2)
		if err != nil {
			return err
		}
		return c.ctrl.PositionControl(v[0], v[1])
	case "speed":
		v, err := argFloats(args, 2)
		if err != nil {
			return err
		}
		return c.ctrl.SpeedControl(v[0], v[1])
	case "setid":
		id, err := argUint8(args, 0)
		if err != nil {
			return err
		}
		return c.ctrl.ChangeMotorID(id)
	case "setmaster":
		id, err := argUint8(args, 0)
		if err != nil {
			return err
		}
		if err := c.ctrl.ChangeMasterID(id); err != nil {
			return err
		}
		// Follow the motor to its new host address.
		cfg := c.ctrl.Config()
		cfg.MasterID = id
		c.ctrl.SetConfig(cfg)
		if c.link != nil {
			c.link.SetMasterID(id)
		}
		return nil
	case "protocol":
		p, err := argUint8(args, 0)
		if err != nil {
			return err
		}
		return c.ctrl.ChangeProtocol(p)

	// Private protocol
	case "devid":
		return c.ctrl.PrivGetDeviceID()
	case "penable":
		return c.ctrl.PrivEnable()
	case "pstop":
		return c.ctrl.PrivStop(len(args) > 0 && args[0] == "clear")
	case "pzero":
		return c.ctrl.PrivSetZero()
	case "psetid":
		id, err := argUint8(args, 0)
		if err != nil {
			return err
		}
		return c.ctrl.PrivSetID(id)
	case "read":
		p, err := argParam(args)
		if err != nil {
			return err
		}
		return c.ctrl.ReadParam(p.Index)
	case "write":
		p, err := argParam(args)
		if err != nil {
			return err
		}
		if len(args) < 2 {
			return fmt.Errorf("missing value for %s", p.Name)
		}
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", args[1], err)
		}
		return c.ctrl.WriteParam(p.Index, v)
	case "faults":
		return c.ctrl.RequestFaults()
	case "save":
		return c.ctrl.SaveParams()
	case "baud":
		code, err := argUint8(args, 0)
		if err != nil {
			return err
		}
		return c.ctrl.ChangeBaud(code)
	case "report":
		if len(args) == 0 || (args[0] != "on" && args[0] != "off") {
			return errors.New("usage: report on|off")
		}
		return c.ctrl.SetActiveReport(args[0] == "on")
	case "pprotocol":
		p, err := argUint8(args, 0)
		if err != nil {
			return err
		}
		return c.ctrl.PrivChangeProtocol(p)
	case "version":
		return c.ctrl.ReadVersion()

	case "scan":
		return c.ctrl.Scan(c.ctx)

	case "raw":
		if c.link == nil {
			return errors.New("raw frames not supported")
		}
		return c.link.SendRaw(strings.Join(args, " "))

	case "loop":
		return c.execLoop(args)

	default:
		return fmt.Errorf("unknown command %q (type 'help' for available commands)", cmd)
	}
}

func (c *console) execLoop(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: loop start|set|stop")
	}
	switch args[0] {
	case "start":
		sp, err := argSetpoint(args[1:])
		if err != nil {
			return err
		}
		return c.startLoop(sp)
	case "set":
		sp, err := argSetpoint(args[1:])
		if err != nil {
			return err
		}
		l := c.runningLoop()
		if l == nil {
			return errors.New("mit loop not running")
		}
		l.Set(sp)
		return nil
	case "stop":
		c.stopLoop()
		return nil
	default:
		return fmt.Errorf("unknown loop command %q", args[0])
	}
}

func (c *console) startLoop(sp control.MITSetpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loop != nil {
		return errors.New("mit loop already running")
	}

	ctx, cancel := context.WithCancel(c.ctx)
	l := c.ctrl.NewMITLoop(c.rate)
	l.Set(sp)
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()

	c.loop, c.loopCancel, c.loopDone = l, cancel, done
	return nil
}

func (c *console) stopLoop() {
	c.mu.Lock()
	cancel, done := c.loopCancel, c.loopDone
	c.loop, c.loopCancel, c.loopDone = nil, nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *console) runningLoop() *control.MITLoop {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop
}

func argUint8(args []string, i int) (uint8, error) {
	if len(args) <= i {
		return 0, errors.New("missing argument")
	}
	v, err := strconv.ParseUint(args[i], 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", args[i], err)
	}
	return uint8(v), nil
}

func argFloats(args []string, n int) ([]float32, error) {
	if len(args) < n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(args))
	}
	out := make([]float32, n)
	for i := range out {
		v, err := strconv.ParseFloat(args[i], 32)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", args[i], err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

// argSetpoint parses "position velocity kp kd torque".
func argSetpoint(args []string) (control.MITSetpoint, error) {
	v, err := argFloats(args, 5)
	if err != nil {
		return control.MITSetpoint{}, err
	}
	return control.MITSetpoint{Position: v[0], Velocity: v[1], Kp: v[2], Kd: v[3], Torque: v[4]}, nil
}

// argParam resolves a parameter by name or index.
func argParam(args []string) (motor.ParamDef, error) {
	if len(args) == 0 {
		return motor.ParamDef{}, errors.New("missing parameter")
	}
	if p, ok := motor.LookupParamByName(args[0]); ok {
		return p, nil
	}
	index, err := strconv.ParseUint(args[0], 0, 16)
	if err != nil {
		return motor.ParamDef{}, fmt.Errorf("unknown parameter %q", args[0])
	}
	p, ok := motor.LookupParam(uint16(index))
	if !ok {
		return motor.ParamDef{}, fmt.Errorf("unknown parameter 0x%04X", index)
	}
	return p, nil
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "\nAvailable commands:")
	fmt.Fprintln(w, "  status                     - Show addressing and loop state")
	fmt.Fprintln(w, "  target <id>                - Address another motor")
	fmt.Fprintln(w, "  params                     - Print the parameter table")
	fmt.Fprintln(w, "  enable | stop | zero       - Standard enable, stop, set zero")
	fmt.Fprintln(w, "  clear | fault              - Clear or read faults")
	fmt.Fprintln(w, "  mode <n>                   - Set mode (0 MIT, 1 position, 2 speed)")
	fmt.Fprintln(w, "  mit <p> <v> <kp> <kd> <t>  - One MIT control update")
	fmt.Fprintln(w, "  pos <rad> <rad/s>          - Position control")
	fmt.Fprintln(w, "  speed <rad/s> <A>          - Speed control")
	fmt.Fprintln(w, "  setid <id> | setmaster <id> | protocol <n>")
	fmt.Fprintln(w, "  devid | penable | pstop [clear] | pzero | psetid <id>")
	fmt.Fprintln(w, "  read <param> | write <param> <value>")
	fmt.Fprintln(w, "  faults | save | baud <code> | report on|off | pprotocol <n> | version")
	fmt.Fprintln(w, "  loop start|set <p> <v> <kp> <kd> <t> | loop stop")
	fmt.Fprintln(w, "  scan                       - Probe motor ids 0 to 127")
	fmt.Fprintln(w, "  raw <hex>                  - Send a raw 13-byte frame")
	fmt.Fprintln(w, "  quit/exit/q                - Exit the program")
	fmt.Fprintln(w)
}

func printParams(w io.Writer) {
	fmt.Fprintf(w, "%-6s  %-14s  %-6s  %-10s  %s\n", "INDEX", "NAME", "TYPE", "ACCESS", "DESCRIPTION")
	for _, p := range motor.Catalog() {
		fmt.Fprintf(w, "0x%04X  %-14s  %-6s  %-10s  %s\n", p.Index, p.Name, p.Type, p.Access, p.Description)
	}
}

// formatMessage renders a classified inbound frame for the operator.
func formatMessage(m motor.Message) string {
	switch m := m.(type) {
	case motor.Feedback:
		return fmt.Sprintf("feedback motor=%d angle=%.4f vel=%.4f torque=%.4f temp=%.1f",
			m.MotorID, m.Angle, m.Velocity, m.Torque, m.Temperature)
	case motor.PrivateFeedback:
		return fmt.Sprintf("feedback motor=%d mode=%s faults=0x%02X angle=%.4f vel=%.4f torque=%.4f temp=%.1f",
			m.MotorID, m.Mode, m.FaultBits, m.Angle, m.Velocity, m.Torque, m.Temperature)
	case motor.VersionInfo:
		return fmt.Sprintf("version motor=%d %s", m.MotorID, m.Version)
	case motor.DeviceInfo:
		return fmt.Sprintf("device motor=%d id=%s", m.MotorID, m.DeviceID)
	case motor.ParamReadResponse:
		if !m.Success {
			return fmt.Sprintf("param motor=%d 0x%04X read failed", m.MotorID, m.Index)
		}
		if p, ok := motor.LookupParam(m.Index); ok {
			return fmt.Sprintf("param motor=%d %s=%s", m.MotorID, p.Name, p.FormatValue(m))
		}
		return fmt.Sprintf("param motor=%d 0x%04X=% X", m.MotorID, m.Index, m.Raw)
	case motor.FaultReport:
		if !m.HasFault() {
			return fmt.Sprintf("faults motor=%d none", m.MotorID)
		}
		return fmt.Sprintf("faults motor=%d 0x%08X %s", m.MotorID, m.Raw, strings.Join(m.Faults, "; "))
	case motor.RawFrame:
		return "frame " + m.Frame.String()
	default:
		return fmt.Sprintf("%v", m)
	}
}
