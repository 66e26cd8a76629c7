// Package control drives one motor behind a CAN-ETH gateway. It turns
// high-level requests into standard or private frames for the configured
// motor and host addresses.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"robolink/motor"
)

// Sender transmits frames, e.g. a *gateway.Conn.
type Sender interface {
	SendStandard(id uint16, data [motor.DataLen]byte) error
	SendExtended(id uint32, data [motor.DataLen]byte) error
}

// Config holds the addressing used for every command.
type Config struct {
	MotorID  uint8 `json:"motor_id"`
	MasterID uint8 `json:"master_id"`
}

// DefaultConfig returns the motor's factory addressing.
func DefaultConfig() Config {
	return Config{
		MotorID:  127,
		MasterID: 0xFD,
	}
}

// ScanLast is the highest motor address probed by Scan.
const ScanLast = 127

// ScanInterval is the pause between probes during Scan.
const ScanInterval = 5 * time.Millisecond

// Controller sends commands to the configured motor. It is safe for
// concurrent use; frame ordering between goroutines is up to the caller.
type Controller struct {
	sender Sender
	logger *slog.Logger

	mu  sync.Mutex
	cfg Config
}

// New creates a controller sending through s.
func New(s Sender, cfg Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{sender: s, cfg: cfg, logger: logger}
}

// Config returns the current addressing.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetConfig changes the addressing used by later commands.
func (c *Controller) SetConfig(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	c.logger.Info("updated motor addressing", "motor_id", cfg.MotorID, "master_id", cfg.MasterID)
}

func (c *Controller) standard(mode uint8, data [motor.DataLen]byte) error {
	id := motor.MakeStandardID(mode, c.Config().MotorID)
	if err := c.sender.SendStandard(id, data); err != nil {
		return fmt.Errorf("failed to send standard frame 0x%03X: %w", id, err)
	}
	return nil
}

func (c *Controller) private(build func(master, target uint8) motor.ExtCommand) error {
	cfg := c.Config()
	cmd := build(cfg.MasterID, cfg.MotorID)
	if err := c.sender.SendExtended(cmd.ID, cmd.Data); err != nil {
		return fmt.Errorf("failed to send extended frame 0x%08X: %w", cmd.ID, err)
	}
	return nil
}

// Enable enables the motor.
func (c *Controller) Enable() error { return c.standard(motor.ModeMIT, motor.CmdEnable()) }

// Stop stops the motor.
func (c *Controller) Stop() error { return c.standard(motor.ModeMIT, motor.CmdStop()) }

// SetZero sets the mechanical zero at the current position.
func (c *Controller) SetZero() error { return c.standard(motor.ModeMIT, motor.CmdSetZero()) }

// ClearFault clears latched faults.
func (c *Controller) ClearFault() error {
	return c.standard(motor.ModeMIT, motor.CmdClearOrReadFault(motor.FaultClear))
}

// ReadFault asks the motor to report its faults.
func (c *Controller) ReadFault() error {
	return c.standard(motor.ModeMIT, motor.CmdClearOrReadFault(0))
}

// SetMode selects MIT, position or speed mode.
func (c *Controller) SetMode(mode uint8) error {
	return c.standard(motor.ModeMIT, motor.CmdSetMode(mode))
}

// MITSetpoint is one MIT control update.
type MITSetpoint struct {
	Position float32 // rad
	Velocity float32 // rad/s
	Kp       float32
	Kd       float32
	Torque   float32 // N.m
}

// MITControl sends one MIT control update.
func (c *Controller) MITControl(sp MITSetpoint) error {
	return c.standard(motor.ModeMIT, motor.CmdMITControl(sp.Position, sp.Velocity, sp.Kp, sp.Kd, sp.Torque))
}

// PositionControl moves to target (rad) limited to maxSpeed (rad/s).
func (c *Controller) PositionControl(target, maxSpeed float32) error {
	return c.standard(motor.ModePosition, motor.CmdPosition(target, maxSpeed))
}

// SpeedControl runs at target (rad/s) limited to currentLimit (A).
func (c *Controller) SpeedControl(target, currentLimit float32) error {
	return c.standard(motor.ModeSpeed, motor.CmdSpeed(target, currentLimit))
}

// ChangeMotorID assigns the motor a new address. The controller keeps using
// the old one until SetConfig is called.
func (c *Controller) ChangeMotorID(id uint8) error {
	return c.standard(motor.ModeMIT, motor.CmdChangeMotorID(id))
}

// ChangeMasterID tells the motor which host address to answer.
func (c *Controller) ChangeMasterID(id uint8) error {
	return c.standard(motor.ModeMIT, motor.CmdChangeMasterID(id))
}

// ChangeProtocol switches the motor's protocol, effective after a power
// cycle.
func (c *Controller) ChangeProtocol(protocol uint8) error {
	return c.standard(motor.ModeMIT, motor.CmdChangeProtocol(protocol))
}

// PrivGetDeviceID requests the motor's device identifier.
func (c *Controller) PrivGetDeviceID() error { return c.private(motor.PrivGetDeviceID) }

// PrivEnable enables the motor over the private protocol.
func (c *Controller) PrivEnable() error { return c.private(motor.PrivEnable) }

// PrivStop stops the motor, optionally clearing faults.
func (c *Controller) PrivStop(clearFault bool) error {
	return c.private(func(master, target uint8) motor.ExtCommand {
		return motor.PrivStop(master, target, clearFault)
	})
}

// PrivSetZero sets the mechanical zero.
func (c *Controller) PrivSetZero() error { return c.private(motor.PrivSetZero) }

// PrivSetID assigns the motor a new address.
func (c *Controller) PrivSetID(newID uint8) error {
	return c.private(func(master, target uint8) motor.ExtCommand {
		return motor.PrivSetID(master, target, newID)
	})
}

// ReadParam requests a parameter value.
func (c *Controller) ReadParam(index uint16) error {
	return c.private(func(master, target uint8) motor.ExtCommand {
		return motor.PrivParamRead(master, target, index)
	})
}

// WriteParam writes a parameter using the type recorded in the parameter
// table. Unknown indexes are rejected.
func (c *Controller) WriteParam(index uint16, value float64) error {
	def, ok := motor.LookupParam(index)
	if !ok {
		return fmt.Errorf("unknown parameter 0x%04X", index)
	}
	if !def.Writable() {
		return fmt.Errorf("parameter %s is read-only", def.Name)
	}
	return c.WriteParamAs(index, def.Type, value)
}

// WriteParamAs writes a parameter with an explicit type.
func (c *Controller) WriteParamAs(index uint16, typ motor.ParamType, value float64) error {
	cfg := c.Config()
	cmd, err := motor.PrivParamWrite(cfg.MasterID, cfg.MotorID, index, typ, value)
	if err != nil {
		return err
	}
	if err := c.sender.SendExtended(cmd.ID, cmd.Data); err != nil {
		return fmt.Errorf("failed to write parameter 0x%04X: %w", index, err)
	}
	return nil
}

// RequestFaults asks for the fault word.
func (c *Controller) RequestFaults() error { return c.private(motor.PrivFaultFeedback) }

// SaveParams persists parameters to flash.
func (c *Controller) SaveParams() error { return c.private(motor.PrivSaveParams) }

// ChangeBaud changes the CAN bit rate.
func (c *Controller) ChangeBaud(code uint8) error {
	return c.private(func(master, target uint8) motor.ExtCommand {
		return motor.PrivChangeBaud(master, target, code)
	})
}

// SetActiveReport turns periodic feedback on or off.
func (c *Controller) SetActiveReport(enable bool) error {
	return c.private(func(master, target uint8) motor.ExtCommand {
		return motor.PrivActiveReport(master, target, enable)
	})
}

// PrivChangeProtocol switches protocol over the private dialect.
func (c *Controller) PrivChangeProtocol(protocol uint8) error {
	return c.private(func(master, target uint8) motor.ExtCommand {
		return motor.PrivChangeProtocol(master, target, protocol)
	})
}

// ReadVersion requests the firmware version.
func (c *Controller) ReadVersion() error { return c.private(motor.PrivReadVersion) }

// Scan sends a device id request to every address from 0 to ScanLast.
// Replies arrive as motor.DeviceInfo messages on the receive path.
func (c *Controller) Scan(ctx context.Context) error {
	master := c.Config().MasterID
	ticker := time.NewTicker(ScanInterval)
	defer ticker.Stop()

	for id := 0; id <= ScanLast; id++ {
		cmd := motor.PrivGetDeviceID(master, uint8(id))
		if err := c.sender.SendExtended(cmd.ID, cmd.Data); err != nil {
			c.logger.Warn("scan probe failed", "motor_id", id, "err", err)
		}
		if id == ScanLast {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
