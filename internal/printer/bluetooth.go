package printer

import (
	"context"
	"errors"
	"strings"
)

// Common errors
var (
	ErrDeviceNotFound         = errors.New("no printer found matching name prefix")
	ErrConnectFailed          = errors.New("failed to connect to printer")
	ErrServiceNotFound        = errors.New("printer service not found")
	ErrCharacteristicNotFound = errors.New("printer write characteristic not found")
	ErrWriteFailed            = errors.New("failed to write to printer")
	ErrNotConnected           = errors.New("printer not connected")
	ErrPrivilegeRequired      = errors.New("root privileges required for RFCOMM")
	ErrConnectionCanceled     = errors.New("connection canceled")
	ErrNotSupported           = errors.New("operation not supported on this platform")
)

// DefaultNamePrefix is the advertised name prefix of MUNBYN IMP002 printers
const DefaultNamePrefix = "P502A-"

// BluetoothDevice represents a discovered or paired Bluetooth device
type BluetoothDevice struct {
	Name string
	MAC  string // MAC address on Linux, or COM port on Windows
}

// Conn is an open session to one printer. Close must be called once the
// caller is done writing.
type Conn interface {
	// Send writes the whole job to the printer
	Send(ctx context.Context, data []byte) error

	// Close releases the session
	Close() error

	// Name returns the printer's name
	Name() string
}

// Connector finds a printer and opens a session to it
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// MatchesPrefix reports whether a device name starts with prefix.
// An empty prefix matches any named device.
func MatchesPrefix(name, prefix string) bool {
	if name == "" {
		return false
	}
	return strings.HasPrefix(name, prefix)
}

// FindDevice returns the first device whose name matches prefix
func FindDevice(devices []BluetoothDevice, prefix string) (BluetoothDevice, bool) {
	for _, d := range devices {
		if MatchesPrefix(d.Name, prefix) {
			return d, true
		}
	}
	return BluetoothDevice{}, false
}

// parsePairedDevices parses `bluetoothctl devices Paired` output
func parsePairedDevices(out string) []BluetoothDevice {
	var devices []BluetoothDevice
	lines := strings.Split(out, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Device ") {
			continue
		}
		// Format: "Device XX:XX:XX:XX:XX:XX DeviceName"
		parts := strings.SplitN(strings.TrimPrefix(line, "Device "), " ", 2)
		if len(parts) == 2 {
			devices = append(devices, BluetoothDevice{
				MAC:  parts[0],
				Name: parts[1],
			})
		}
	}

	return devices
}
