package printer

import (
	"tinygo.org/x/bluetooth"
)

// scanResult is what the connector needs from one advertisement
type scanResult struct {
	Name    string
	Address bluetooth.Address
	RSSI    int16
}

// bleAdapter is the part of a Bluetooth adapter the connector drives.
// StopScan must end a running Scan; it fails when no scan is running.
type bleAdapter interface {
	Enable() error
	Scan(found func(scanResult)) error
	StopScan() error
	Connect(address bluetooth.Address) (bleDevice, error)
}

type bleDevice interface {
	DiscoverServices(uuids []bluetooth.UUID) ([]bleService, error)
	Disconnect() error
}

type bleService interface {
	DiscoverCharacteristics(uuids []bluetooth.UUID) ([]bleCharacteristic, error)
}

type bleCharacteristic interface {
	WriteWithoutResponse(p []byte) (int, error)
	GetMTU() (uint16, error)
}

// responseWriter is implemented by characteristics that support
// acknowledged writes. BlueZ builds of the bluetooth package lack it.
type responseWriter interface {
	Write(p []byte) (int, error)
}

// writeWithResponseSupported reports whether this platform's bluetooth
// package can do acknowledged writes
var _, writeWithResponseSupported = any(tinygoCharacteristic{}).(responseWriter)

type tinygoAdapter struct {
	*bluetooth.Adapter
}

func (a *tinygoAdapter) Scan(found func(scanResult)) error {
	return a.Adapter.Scan(func(_ *bluetooth.Adapter, res bluetooth.ScanResult) {
		found(scanResult{
			Name:    res.LocalName(),
			Address: res.Address,
			RSSI:    res.RSSI,
		})
	})
}

func (a *tinygoAdapter) Connect(address bluetooth.Address) (bleDevice, error) {
	device, err := a.Adapter.Connect(address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, err
	}
	return tinygoDevice{device}, nil
}

type tinygoDevice struct {
	bluetooth.Device
}

func (d tinygoDevice) DiscoverServices(uuids []bluetooth.UUID) ([]bleService, error) {
	services, err := d.Device.DiscoverServices(uuids)
	if err != nil {
		return nil, err
	}
	out := make([]bleService, len(services))
	for i, s := range services {
		out[i] = tinygoService{s}
	}
	return out, nil
}

type tinygoService struct {
	bluetooth.DeviceService
}

func (s tinygoService) DiscoverCharacteristics(uuids []bluetooth.UUID) ([]bleCharacteristic, error) {
	chars, err := s.DeviceService.DiscoverCharacteristics(uuids)
	if err != nil {
		return nil, err
	}
	out := make([]bleCharacteristic, len(chars))
	for i, c := range chars {
		out[i] = tinygoCharacteristic{c}
	}
	return out, nil
}

// tinygoCharacteristic picks up Write only where the platform defines it
type tinygoCharacteristic struct {
	bluetooth.DeviceCharacteristic
}
