package printjob

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/escpos"
	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/imaging"
	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/printer"
	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/receipt"
)

// Status is the outcome of one print request
type Status int

const (
	StatusPrinted Status = iota
	StatusDeviceNotFound
	StatusConnectFailed
	StatusWriteFailed
)

func (s Status) String() string {
	switch s {
	case StatusPrinted:
		return "printed"
	case StatusDeviceNotFound:
		return "device not found"
	case StatusConnectFailed:
		return "connection failed"
	case StatusWriteFailed:
		return "write failed"
	default:
		return "unknown"
	}
}

// Result describes a finished print request
type Result struct {
	JobID  string
	Status Status
	Device string
	Bytes  int   // bytes handed to the printer
	Err    error // cause when Status is not StatusPrinted
}

func (r Result) OK() bool {
	return r.Status == StatusPrinted
}

// Options controls how receipts are encoded
type Options struct {
	Encoder   escpos.Options
	PrintLogo bool // load header.logo and print it above the header
	LogoWidth int  // dots
}

// Service prints receipts, one at a time, reconnecting for every job
type Service struct {
	connector printer.Connector
	opts      Options
	logger    *zap.Logger

	mu       sync.Mutex
	newID    func() string
	loadLogo func(path string, maxWidth int) (escpos.Raster, error)
}

// Option configures a Service
type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithOptions(opts Options) Option {
	return func(s *Service) {
		s.opts = opts
	}
}

func New(connector printer.Connector, opts ...Option) *Service {
	s := &Service{
		connector: connector,
		logger:    zap.NewNop(),
		newID:     func() string { return uuid.NewString() },
		loadLogo:  imaging.LoadLogo,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.opts.LogoWidth <= 0 {
		s.opts.LogoWidth = imaging.Width58mm
	}
	return s
}

// Encode renders r with the service's encoder options
func (s *Service) Encode(r receipt.Receipt) []byte {
	return escpos.EncodeWithOptions(r, s.encoderOptions(r, s.logger))
}

// EncodePreview renders r like Encode but keeps text in UTF-8, so the
// result can be decoded for display whatever code page the printer uses
func (s *Service) EncodePreview(r receipt.Receipt) []byte {
	opts := s.encoderOptions(r, s.logger)
	opts.Charset = nil
	return escpos.EncodeWithOptions(r, opts)
}

func (s *Service) encoderOptions(r receipt.Receipt, logger *zap.Logger) escpos.Options {
	opts := s.opts.Encoder
	if opts.Barcode && r.Footer.Barcode != "" {
		if data, ok := escpos.Code128Data(r.Footer.Barcode); !ok {
			logger.Warn("Barcode data adjusted for CODE128",
				zap.String("barcode", r.Footer.Barcode),
				zap.String("printed", data),
			)
		}
	}

	if !s.opts.PrintLogo || r.Header.Logo == "" {
		return opts
	}

	logo, err := s.loadLogo(r.Header.Logo, s.opts.LogoWidth)
	if err != nil {
		logger.Warn("Skipping logo", zap.String("path", r.Header.Logo), zap.Error(err))
		return opts
	}
	opts.Logo = &logo
	return opts
}

// Print encodes r, connects to the printer and sends the job. It never
// fails loudly: every problem is logged and reported through the Result.
func (s *Service) Print(ctx context.Context, r receipt.Receipt) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := Result{JobID: s.newID()}
	logger := s.logger.With(zap.String("job_id", res.JobID))

	data := escpos.EncodeWithOptions(r, s.encoderOptions(r, logger))
	logger.Debug("Encoded receipt",
		zap.String("order", r.OrderInfo.OrderNumber),
		zap.Int("items", len(r.Items)),
		zap.Int("bytes", len(data)),
	)

	conn, err := s.connector.Connect(ctx)
	if err != nil {
		res.Err = err
		if errors.Is(err, printer.ErrDeviceNotFound) {
			res.Status = StatusDeviceNotFound
		} else {
			res.Status = StatusConnectFailed
		}
		logger.Error("Error connecting to printer", zap.Stringer("status", res.Status), zap.Error(err))
		return res
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn("Error closing printer connection", zap.Error(err))
		}
	}()

	res.Device = conn.Name()
	logger = logger.With(zap.String("device", res.Device))

	if err := conn.Send(ctx, data); err != nil {
		res.Status = StatusWriteFailed
		res.Err = err
		logger.Error("Error sending commands to the printer", zap.Error(err))
		return res
	}

	res.Status = StatusPrinted
	res.Bytes = len(data)
	logger.Info("Receipt printed", zap.Int("bytes", res.Bytes))
	return res
}
