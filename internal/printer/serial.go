package printer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// SerialConfig describes a Bluetooth Classic (SPP) printer reached through a
// serial port
type SerialConfig struct {
	Port          string // explicit port; empty discovers a paired device by NamePrefix
	NamePrefix    string
	BaudRate      int
	RFCOMMChannel int
	Chunking      Chunking
}

// SerialConnector opens SPP printers as serial ports
type SerialConnector struct {
	cfg    SerialConfig
	logger *zap.Logger

	// overridable for tests
	listDevices func() ([]BluetoothDevice, error)
	openPort    func(name string, mode *serial.Mode) (serial.Port, error)
}

var _ Connector = (*SerialConnector)(nil)

func NewSerialConnector(cfg SerialConfig, logger *zap.Logger) *SerialConnector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.RFCOMMChannel == 0 {
		cfg.RFCOMMChannel = 1
	}
	return &SerialConnector{
		cfg:         cfg,
		logger:      logger.With(zap.String("transport", "serial")),
		listDevices: ListPairedBluetoothDevices,
		openPort:    serial.Open,
	}
}

// Connect opens the configured port, or binds an RFCOMM port to the first
// paired device whose name matches the prefix
func (s *SerialConnector) Connect(ctx context.Context) (Conn, error) {
	portName := s.cfg.Port
	name := portName

	var rfcomm *RFCOMMConnection
	if portName == "" {
		devices, err := s.listDevices()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
		}
		device, ok := FindDevice(devices, s.cfg.NamePrefix)
		if !ok {
			return nil, ErrDeviceNotFound
		}
		name = device.Name
		s.logger.Info("Found paired printer", zap.String("device", device.Name), zap.String("address", device.MAC))

		rfcomm, err = EstablishRFCOMM(ctx, device.MAC, s.cfg.RFCOMMChannel, func(status string) {
			s.logger.Debug(status, zap.String("device", device.Name))
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConnectFailed, device.Name, err)
		}
		portName = rfcomm.DevicePath
	}

	mode := &serial.Mode{
		BaudRate: s.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := s.openPort(portName, mode)
	if err != nil {
		if rfcomm != nil {
			rfcomm.Close()
		}
		return nil, fmt.Errorf("%w: failed to open port %s: %w", ErrConnectFailed, portName, err)
	}

	if err := port.SetReadTimeout(3 * time.Second); err != nil {
		s.logger.Warn("Failed to set read timeout", zap.String("port", portName), zap.Error(err))
	}

	s.logger.Info("Connected to printer", zap.String("device", name), zap.String("port", portName))

	return &serialConn{
		port:     port,
		portName: portName,
		name:     name,
		rfcomm:   rfcomm,
		chunking: s.cfg.Chunking,
		logger:   s.logger.With(zap.String("device", name)),
	}, nil
}

// serialConn is a printer session over a serial port
type serialConn struct {
	port     serial.Port
	portName string
	name     string
	rfcomm   *RFCOMMConnection
	chunking Chunking
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (c *serialConn) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrNotConnected
	}

	// SPP is a byte stream; only an explicit size splits the job
	size := 0
	if c.chunking.Enabled {
		size = c.chunking.Size
	}

	c.logger.Debug("Sending job", zap.Int("bytes", len(data)), zap.String("port", c.portName))
	if err := writeChunked(ctx, data, size, c.chunking.Delay, c.port.Write, c.logger); err != nil {
		return err
	}
	if err := c.port.Drain(); err != nil {
		return fmt.Errorf("%w: drain: %w", ErrWriteFailed, err)
	}
	return nil
}

func (c *serialConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	err := c.port.Close()
	if c.rfcomm != nil {
		if rerr := c.rfcomm.Close(); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

func (c *serialConn) Name() string {
	return c.name
}

// ListSerialPortNames returns ports known to the serial driver
func ListSerialPortNames() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serial ports error: %w", err)
	}
	return ports, nil
}
