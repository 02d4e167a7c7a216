//go:build !linux && !windows

package printer

import "context"

// RFCOMMConnection is unavailable on this platform
type RFCOMMConnection struct {
	DevicePath string
	MAC        string
}

// ListPairedBluetoothDevices is not supported here; configure an explicit
// serial port or use the BLE transport
func ListPairedBluetoothDevices() ([]BluetoothDevice, error) {
	return nil, ErrNotSupported
}

func EstablishRFCOMM(ctx context.Context, mac string, channel int, statusCallback func(string)) (*RFCOMMConnection, error) {
	return nil, ErrNotSupported
}

func (c *RFCOMMConnection) Close() error {
	return nil
}
