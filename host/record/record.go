// Package record writes IMU telemetry to CSV files.
package record

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ulikunitz/xz"

	"robolink/protocol"
)

// Header is the first row of every recording.
var Header = []string{
	"timestamp_ms",
	"acc_x", "acc_y", "acc_z",
	"gyr_x", "gyr_y", "gyr_z",
	"mag_x", "mag_y", "mag_z",
	"roll", "pitch", "yaw",
	"qw", "qx", "qy", "qz",
	"temperature", "air_pressure",
}

// Recorder appends HI91 records as CSV rows. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	w       *csv.Writer
	closers []io.Closer // closed in order
	path    string
	session uuid.UUID
	rows    uint64
	closed  bool
}

// Create starts a recording in dir named after a new session id. With
// compress the file is written xz compressed.
func Create(dir string, compress bool) (*Recorder, error) {
	session := uuid.New()
	name := "imu-" + session.String() + ".csv"
	if compress {
		name += ".xz"
	}
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	var w io.Writer = f
	var closers []io.Closer
	if compress {
		zw, err := xz.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to start xz stream: %w", err)
		}
		w = zw
		closers = append(closers, zw)
	}
	closers = append(closers, f)

	r, err := newRecorder(w, session)
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, err
	}
	r.closers = closers
	r.path = path
	return r, nil
}

// NewRecorder writes a recording to w. Closing the recorder flushes but does
// not close w.
func NewRecorder(w io.Writer) (*Recorder, error) {
	return newRecorder(w, uuid.New())
}

func newRecorder(w io.Writer, session uuid.UUID) (*Recorder, error) {
	r := &Recorder{w: csv.NewWriter(w), session: session}
	if err := r.w.Write(Header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return r, nil
}

// Write appends one record received at ts.
func (r *Recorder) Write(ts time.Time, rec protocol.HI91) error {
	row := make([]string, 0, len(Header))
	row = append(row, strconv.FormatInt(ts.UnixMilli(), 10))
	for _, v := range rec.Acc {
		row = append(row, formatFloat(v))
	}
	for _, v := range rec.Gyr {
		row = append(row, formatFloat(v))
	}
	for _, v := range rec.Mag {
		row = append(row, formatFloat(v))
	}
	row = append(row, formatFloat(rec.Roll), formatFloat(rec.Pitch), formatFloat(rec.Yaw))
	for _, v := range rec.Quat {
		row = append(row, formatFloat(v))
	}
	row = append(row,
		strconv.Itoa(int(rec.Temperature)),
		formatFloat(rec.AirPressure),
	)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return os.ErrClosed
	}
	if err := r.w.Write(row); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	r.rows++
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// Rows returns the number of records written.
func (r *Recorder) Rows() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// Path returns the file path, empty for recorders made with NewRecorder.
func (r *Recorder) Path() string { return r.path }

// Session returns the recording's session id.
func (r *Recorder) Session() uuid.UUID { return r.session }

// Close flushes buffered rows and closes the file, if any.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	r.w.Flush()
	err := r.w.Error()
	for _, c := range r.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to close recording: %w", err)
	}
	return nil
}
