// Package config loads the host tool's JSON configuration.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"robolink/host/control"
	"robolink/host/gateway"
	"robolink/host/serial"
)

// Config is the complete host configuration
type Config struct {
	Serial    SerialConfig    `json:"serial"`
	Gateway   GatewayConfig   `json:"gateway"`
	Recording RecordingConfig `json:"recording"`
	LogLevel  string          `json:"log_level"`
}

// SerialConfig describes the IMU port
type SerialConfig struct {
	Device        string `json:"device"`
	Baud          int    `json:"baud"`
	ReadTimeoutMs int    `json:"read_timeout_ms"`
}

// GatewayConfig describes the CAN-ETH gateway and motor addressing
type GatewayConfig struct {
	RemoteIP      string `json:"remote_ip"`
	RemotePort    int    `json:"remote_port"`
	LocalPort     int    `json:"local_port"`
	ReadTimeoutMs int    `json:"read_timeout_ms"`
	MotorID       uint8  `json:"motor_id"`
	MasterID      uint8  `json:"master_id"`
	MITRateHz     int    `json:"mit_rate_hz"`
}

// RecordingConfig controls CSV recordings
type RecordingConfig struct {
	Enabled  bool   `json:"enabled"`
	Dir      string `json:"dir"`
	Compress bool   `json:"compress"`
}

// LoadConfig parses a JSON configuration. Addresses missing from the input
// keep their defaults; other zero values are replaced by defaults.
func LoadConfig(jsonData []byte) (*Config, error) {
	config := DefaultConfig()

	if err := json.Unmarshal(jsonData, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults
	applyDefaults(config)

	if _, err := ParseLogLevel(config.LogLevel); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFile reads and parses a configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return LoadConfig(data)
}

// applyDefaults fills in missing configuration values with sensible defaults
func applyDefaults(config *Config) {
	def := DefaultConfig()

	if config.Serial.Baud == 0 {
		config.Serial.Baud = def.Serial.Baud
	}
	if config.Serial.ReadTimeoutMs == 0 {
		config.Serial.ReadTimeoutMs = def.Serial.ReadTimeoutMs
	}

	if config.Gateway.RemoteIP == "" {
		config.Gateway.RemoteIP = def.Gateway.RemoteIP
	}
	if config.Gateway.RemotePort == 0 {
		config.Gateway.RemotePort = def.Gateway.RemotePort
	}
	if config.Gateway.ReadTimeoutMs == 0 {
		config.Gateway.ReadTimeoutMs = def.Gateway.ReadTimeoutMs
	}
	if config.Gateway.MITRateHz == 0 {
		config.Gateway.MITRateHz = def.Gateway.MITRateHz
	}

	if config.Recording.Dir == "" {
		config.Recording.Dir = def.Recording.Dir
	}
	if config.LogLevel == "" {
		config.LogLevel = def.LogLevel
	}
}

// DefaultConfig returns the factory settings of the IMU and gateway
func DefaultConfig() *Config {
	sc := serial.DefaultConfig("")
	gc := gateway.DefaultConfig()
	cc := control.DefaultConfig()

	return &Config{
		Serial: SerialConfig{
			Baud:          sc.Baud,
			ReadTimeoutMs: sc.ReadTimeout,
		},
		Gateway: GatewayConfig{
			RemoteIP:      gc.RemoteIP,
			RemotePort:    gc.RemotePort,
			LocalPort:     gc.LocalPort,
			ReadTimeoutMs: int(gc.ReadTimeout / time.Millisecond),
			MotorID:       cc.MotorID,
			MasterID:      cc.MasterID,
			MITRateHz:     control.DefaultLoopRate,
		},
		Recording: RecordingConfig{
			Dir: ".",
		},
		LogLevel: "info",
	}
}

// SerialPort returns the serial port settings
func (c *Config) SerialPort() *serial.Config {
	return &serial.Config{
		Device:      c.Serial.Device,
		Baud:        c.Serial.Baud,
		ReadTimeout: c.Serial.ReadTimeoutMs,
	}
}

// GatewayConn returns the gateway socket settings
func (c *Config) GatewayConn() gateway.Config {
	return gateway.Config{
		RemoteIP:    c.Gateway.RemoteIP,
		RemotePort:  c.Gateway.RemotePort,
		LocalPort:   c.Gateway.LocalPort,
		ReadTimeout: time.Duration(c.Gateway.ReadTimeoutMs) * time.Millisecond,
	}
}

// Addressing returns the motor addressing
func (c *Config) Addressing() control.Config {
	return control.Config{
		MotorID:  c.Gateway.MotorID,
		MasterID: c.Gateway.MasterID,
	}
}

// ParseLogLevel maps a level name to a slog level
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}
