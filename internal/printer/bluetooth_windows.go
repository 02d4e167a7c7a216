//go:build windows

package printer

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sys/windows/registry"
)

// RFCOMMConnection is a compatibility type for Windows.
// Paired SPP devices already appear as COM ports, so there is nothing to bind.
type RFCOMMConnection struct {
	DevicePath string
	MAC        string
}

// ListPairedBluetoothDevices returns Bluetooth COM ports on Windows.
// The MAC field carries the COM port name.
func ListPairedBluetoothDevices() ([]BluetoothDevice, error) {
	var devices []BluetoothDevice

	btPorts, err := bluetoothCOMPorts()
	if err == nil {
		for name, port := range btPorts {
			devices = append(devices, BluetoothDevice{
				Name: name,
				MAC:  port,
			})
		}
	}

	// No BT-specific ports found, offer every COM port
	if len(devices) == 0 {
		ports, _ := ListSerialPortNames()
		for _, port := range ports {
			devices = append(devices, BluetoothDevice{
				Name: port,
				MAC:  port,
			})
		}
	}

	return devices, nil
}

// bluetoothCOMPorts reads Bluetooth COM port mappings from the registry
func bluetoothCOMPorts() (map[string]string, error) {
	ports := make(map[string]string)

	key, err := registry.OpenKey(registry.LOCAL_MACHINE, `HARDWARE\DEVICEMAP\SERIALCOMM`, registry.READ)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	names, err := key.ReadValueNames(-1)
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		val, _, err := key.GetStringValue(name)
		if err != nil {
			continue
		}
		lower := strings.ToLower(name)
		if strings.Contains(lower, "bth") || strings.Contains(lower, "bluetooth") {
			ports[name] = val
		}
	}

	return ports, nil
}

// EstablishRFCOMM on Windows validates and returns the COM port path
func EstablishRFCOMM(ctx context.Context, mac string, channel int, statusCallback func(string)) (*RFCOMMConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionCanceled, err)
	}
	if statusCallback != nil {
		statusCallback(fmt.Sprintf("Using port %s...", mac))
	}

	if !strings.HasPrefix(strings.ToUpper(mac), "COM") {
		return nil, fmt.Errorf("invalid COM port: %s", mac)
	}

	// COM ports above 9 need the \\.\COM10 form
	comPath := mac
	if len(mac) > 4 {
		comPath = `\\.\` + mac
	}

	return &RFCOMMConnection{
		DevicePath: comPath,
		MAC:        mac,
	}, nil
}

// Close is a no-op on Windows
func (c *RFCOMMConnection) Close() error {
	return nil
}
