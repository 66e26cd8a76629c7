package control

import (
	"context"
	"sync"
	"time"
)

// DefaultLoopRate is the MIT streaming rate in Hz.
const DefaultLoopRate = 200

// MITLoop streams the latest MIT setpoint at a fixed rate until its context
// is cancelled. The setpoint may be changed while running.
type MITLoop struct {
	c        *Controller
	interval time.Duration

	mu sync.Mutex
	sp MITSetpoint

	sent   uint64
	failed uint64
}

// NewMITLoop creates a loop sending at rateHz; non-positive rates select
// DefaultLoopRate.
func (c *Controller) NewMITLoop(rateHz int) *MITLoop {
	if rateHz <= 0 {
		rateHz = DefaultLoopRate
	}
	return &MITLoop{c: c, interval: time.Second / time.Duration(rateHz)}
}

// Set replaces the setpoint used from the next tick on.
func (l *MITLoop) Set(sp MITSetpoint) {
	l.mu.Lock()
	l.sp = sp
	l.mu.Unlock()
}

// Setpoint returns the current setpoint.
func (l *MITLoop) Setpoint() MITSetpoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sp
}

// Counts returns how many updates were sent and how many failed.
func (l *MITLoop) Counts() (sent, failed uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent, l.failed
}

// Run sends setpoints until ctx is done and returns ctx.Err().
func (l *MITLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.c.logger.Info("mit loop started", "interval", l.interval)
	defer l.c.logger.Info("mit loop stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		err := l.c.MITControl(l.Setpoint())

		l.mu.Lock()
		if err != nil {
			l.failed++
		} else {
			l.sent++
		}
		failed := l.failed
		l.mu.Unlock()

		// Log the first failure and every 1000th after it.
		if err != nil && failed%1000 == 1 {
			l.c.logger.Warn("mit update failed", "err", err, "failures", failed)
		}
	}
}
