package printer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"
)

// DefaultServiceUUID is the standard printer service. The write
// characteristic differs between models and has no default.
const DefaultServiceUUID = "00001101-0000-1000-8000-00805f9b34fb"

// stopScanRetry is how often StopScan is retried while Scan is starting up
const stopScanRetry = 10 * time.Millisecond

// BLEConfig selects the printer and the characteristic jobs are written to
type BLEConfig struct {
	NamePrefix         string
	ServiceUUID        string
	CharacteristicUUID string // empty selects the first characteristic of the service
	ScanTimeout        time.Duration
	WithResponse       bool
	Chunking           Chunking
}

// BLEConnector discovers printers by advertised name and opens GATT sessions
type BLEConnector struct {
	cfg            BLEConfig
	adapter        bleAdapter
	service        bluetooth.UUID
	characteristic *bluetooth.UUID
	logger         *zap.Logger

	enableOnce sync.Once
	enableErr  error
}

var _ Connector = (*BLEConnector)(nil)

// NewBLEConnector validates cfg and returns a connector on the default adapter
func NewBLEConnector(cfg BLEConfig, logger *zap.Logger) (*BLEConnector, error) {
	if cfg.WithResponse && !writeWithResponseSupported {
		return nil, fmt.Errorf("%w: write with response", ErrNotSupported)
	}
	return newBLEConnector(cfg, &tinygoAdapter{bluetooth.DefaultAdapter}, logger)
}

func newBLEConnector(cfg BLEConfig, adapter bleAdapter, logger *zap.Logger) (*BLEConnector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	service, err := bluetooth.ParseUUID(cfg.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", cfg.ServiceUUID, err)
	}

	c := &BLEConnector{
		cfg:     cfg,
		adapter: adapter,
		service: service,
		logger:  logger.With(zap.String("transport", "ble")),
	}

	if cfg.CharacteristicUUID != "" {
		char, err := bluetooth.ParseUUID(cfg.CharacteristicUUID)
		if err != nil {
			return nil, fmt.Errorf("invalid characteristic UUID %q: %w", cfg.CharacteristicUUID, err)
		}
		c.characteristic = &char
	}

	return c, nil
}

func (c *BLEConnector) enable() error {
	c.enableOnce.Do(func() {
		c.enableErr = c.adapter.Enable()
	})
	return c.enableErr
}

// Connect scans for the first device advertising the configured name prefix,
// connects and resolves the write characteristic
func (c *BLEConnector) Connect(ctx context.Context) (Conn, error) {
	if err := c.enable(); err != nil {
		return nil, fmt.Errorf("%w: enable adapter: %w", ErrConnectFailed, err)
	}

	if c.cfg.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ScanTimeout)
		defer cancel()
	}

	c.logger.Info("Scanning for printer", zap.String("prefix", c.cfg.NamePrefix))
	result, err := c.scan(ctx)
	if err != nil {
		return nil, err
	}

	name := result.Name
	c.logger.Info("Found printer",
		zap.String("device", name),
		zap.String("address", result.Address.String()),
		zap.Int16("rssi", result.RSSI),
	)

	device, err := c.adapter.Connect(result.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectFailed, name, err)
	}

	char, err := c.resolve(device)
	if err == nil {
		err = c.checkWriteMode(char)
	}
	if err != nil {
		if derr := device.Disconnect(); derr != nil {
			c.logger.Warn("Disconnect failed", zap.String("device", name), zap.Error(derr))
		}
		return nil, err
	}

	mtu := DefaultMTU
	if m, err := char.GetMTU(); err == nil && m > 0 {
		mtu = int(m)
	}

	c.logger.Info("Connected to printer", zap.String("device", name), zap.Int("mtu", mtu))

	write := char.WriteWithoutResponse
	if c.cfg.WithResponse {
		write = char.(responseWriter).Write
	}

	return &bleConn{
		device:   device,
		write:    write,
		name:     name,
		mtu:      mtu,
		chunking: c.cfg.Chunking,
		logger:   c.logger.With(zap.String("device", name)),
	}, nil
}

// scan blocks until a matching device advertises or ctx is done
func (c *BLEConnector) scan(ctx context.Context) (scanResult, error) {
	if err := ctx.Err(); err != nil {
		return scanResult{}, fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	}

	found := make(chan scanResult, 1)
	done := make(chan error, 1)

	go func() {
		done <- c.adapter.Scan(func(res scanResult) {
			if !MatchesPrefix(res.Name, c.cfg.NamePrefix) {
				return
			}
			select {
			case found <- res:
				if err := c.adapter.StopScan(); err != nil {
					c.logger.Debug("Stop scan failed", zap.Error(err))
				}
			default:
			}
		})
	}()

	select {
	case res := <-found:
		<-done
		return res, nil

	case err := <-done:
		select {
		case res := <-found:
			return res, nil
		default:
		}
		if err == nil {
			return scanResult{}, ErrDeviceNotFound
		}
		return scanResult{}, fmt.Errorf("%w: scan: %w", ErrConnectFailed, err)

	case <-ctx.Done():
		if err := c.stopScan(done); err != nil {
			c.logger.Warn("Scan ended with error", zap.Error(err))
		}
		select {
		case res := <-found:
			return res, nil
		default:
		}
		return scanResult{}, fmt.Errorf("%w: %w", ErrDeviceNotFound, ctx.Err())
	}
}

// stopScan stops the scan and waits for Scan to return. StopScan fails
// until Scan has actually started, so it is retried until it succeeds.
func (c *BLEConnector) stopScan(done <-chan error) error {
	stopped := false
	for {
		if !stopped {
			if err := c.adapter.StopScan(); err != nil {
				c.logger.Debug("Stop scan failed, retrying", zap.Error(err))
			} else {
				stopped = true
			}
		}

		select {
		case err := <-done:
			return err
		case <-time.After(stopScanRetry):
		}
	}
}

func (c *BLEConnector) resolve(device bleDevice) (bleCharacteristic, error) {
	services, err := device.DiscoverServices([]bluetooth.UUID{c.service})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrServiceNotFound, c.service, err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, c.service)
	}

	var filter []bluetooth.UUID
	if c.characteristic != nil {
		filter = []bluetooth.UUID{*c.characteristic}
	}

	chars, err := services[0].DiscoverCharacteristics(filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCharacteristicNotFound, err)
	}
	if len(chars) == 0 {
		return nil, ErrCharacteristicNotFound
	}

	return chars[0], nil
}

func (c *BLEConnector) checkWriteMode(char bleCharacteristic) error {
	if !c.cfg.WithResponse {
		return nil
	}
	if _, ok := char.(responseWriter); !ok {
		return fmt.Errorf("%w: write with response", ErrNotSupported)
	}
	return nil
}

// bleConn writes jobs to one GATT characteristic
type bleConn struct {
	device   bleDevice
	write    func([]byte) (int, error)
	name     string
	mtu      int
	chunking Chunking
	logger   *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

func (b *bleConn) Send(ctx context.Context, data []byte) error {
	size := b.chunking.chunkSize(b.mtu)
	b.logger.Debug("Sending job", zap.Int("bytes", len(data)), zap.Int("chunk_size", size))
	return writeChunked(ctx, data, size, b.chunking.Delay, b.write, b.logger)
}

func (b *bleConn) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.device.Disconnect()
	})
	return b.closeErr
}

func (b *bleConn) Name() string {
	return b.name
}
