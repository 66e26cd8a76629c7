//go:build !wasm

package serial

import (
	"fmt"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port present on the host
type PortInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ListPorts returns the serial ports currently attached
func ListPorts() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	infos := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		infos = append(infos, PortInfo{Name: p.Name, Type: describePort(p)})
	}
	return infos, nil
}

func describePort(p *enumerator.PortDetails) string {
	if !p.IsUSB {
		return "Unknown"
	}
	desc := fmt.Sprintf("USB VID:%s PID:%s", p.VID, p.PID)
	if p.Product != "" {
		desc += " (" + p.Product + ")"
	}
	return desc
}
