package printjob

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/text/encoding/charmap"

	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/escpos"
	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/printer"
	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/receipt"
)

// MockConn is a printer.Conn that records what it was sent
type MockConn struct {
	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	closed  int
}

func (m *MockConn) Send(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, append([]byte(nil), data...))
	return nil
}

func (m *MockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *MockConn) Name() string {
	return "P502A-TEST"
}

// MockConnector hands out conn, or fails with err
type MockConnector struct {
	conn  *MockConn
	err   error
	calls int
}

func (m *MockConnector) Connect(ctx context.Context) (printer.Conn, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.conn, nil
}

func newObservedService(connector printer.Connector, opts ...Option) (*Service, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	opts = append([]Option{WithLogger(zap.New(core))}, opts...)
	return New(connector, opts...), logs
}

func TestPrint(t *testing.T) {
	conn := &MockConn{}
	connector := &MockConnector{conn: conn}
	svc, logs := newObservedService(connector)

	res := svc.Print(context.Background(), receipt.Sample())

	assert.True(t, res.OK())
	assert.Equal(t, StatusPrinted, res.Status)
	assert.NotEmpty(t, res.JobID)
	assert.Equal(t, "P502A-TEST", res.Device)
	assert.NoError(t, res.Err)

	want := escpos.Encode(receipt.Sample())
	require.Len(t, conn.sent, 1)
	assert.Equal(t, want, conn.sent[0])
	assert.Equal(t, len(want), res.Bytes)
	assert.Equal(t, 1, conn.closed)

	printed := logs.FilterMessage("Receipt printed").All()
	require.Len(t, printed, 1)
	assert.Equal(t, res.JobID, printed[0].ContextMap()["job_id"])
}

func TestPrintDeviceNotFound(t *testing.T) {
	connector := &MockConnector{err: fmt.Errorf("%w: %w", printer.ErrDeviceNotFound, context.DeadlineExceeded)}
	svc, logs := newObservedService(connector)

	var res Result
	assert.NotPanics(t, func() {
		res = svc.Print(context.Background(), receipt.Sample())
	})

	assert.False(t, res.OK())
	assert.Equal(t, StatusDeviceNotFound, res.Status)
	assert.ErrorIs(t, res.Err, printer.ErrDeviceNotFound)
	assert.Zero(t, res.Bytes)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestPrintConnectFailed(t *testing.T) {
	connector := &MockConnector{err: fmt.Errorf("%w: %w", printer.ErrServiceNotFound, errors.New("gatt"))}
	svc, _ := newObservedService(connector)

	res := svc.Print(context.Background(), receipt.Sample())

	assert.Equal(t, StatusConnectFailed, res.Status)
	assert.ErrorIs(t, res.Err, printer.ErrServiceNotFound)
}

func TestPrintWriteFailed(t *testing.T) {
	conn := &MockConn{sendErr: fmt.Errorf("%w: link dropped", printer.ErrWriteFailed)}
	svc, _ := newObservedService(&MockConnector{conn: conn})

	res := svc.Print(context.Background(), receipt.Sample())

	assert.Equal(t, StatusWriteFailed, res.Status)
	assert.ErrorIs(t, res.Err, printer.ErrWriteFailed)
	assert.Equal(t, "P502A-TEST", res.Device)
	assert.Equal(t, 1, conn.closed, "connection must be released on failure")
}

func TestPrintReconnectsEveryJob(t *testing.T) {
	conn := &MockConn{}
	connector := &MockConnector{conn: conn}
	svc := New(connector)

	first := svc.Print(context.Background(), receipt.Sample())
	second := svc.Print(context.Background(), receipt.Sample())

	assert.Equal(t, 2, connector.calls)
	assert.Equal(t, 2, conn.closed)
	assert.NotEqual(t, first.JobID, second.JobID)
}

func TestPrintWithEncoderOptions(t *testing.T) {
	conn := &MockConn{}
	svc := New(&MockConnector{conn: conn}, WithOptions(Options{
		Encoder: escpos.Options{Init: true, Cut: true},
	}))

	r := receipt.Sample()
	res := svc.Print(context.Background(), r)
	require.True(t, res.OK())

	want := escpos.EncodeWithOptions(r, escpos.Options{Init: true, Cut: true})
	require.Len(t, conn.sent, 1)
	assert.Equal(t, want, conn.sent[0])
}

func TestEncodeLogo(t *testing.T) {
	logo := escpos.Raster{WidthBytes: 1, Height: 1, Data: []byte{0xAA}}

	svc := New(&MockConnector{}, WithOptions(Options{PrintLogo: true, LogoWidth: 64}))
	var gotPath string
	var gotWidth int
	svc.loadLogo = func(path string, maxWidth int) (escpos.Raster, error) {
		gotPath, gotWidth = path, maxWidth
		return logo, nil
	}

	r := receipt.Sample()
	r.Header.Logo = "logo.png"

	assert.Equal(t, escpos.EncodeWithOptions(r, escpos.Options{Logo: &logo}), svc.Encode(r))
	assert.Equal(t, "logo.png", gotPath)
	assert.Equal(t, 64, gotWidth)
}

func TestEncodeLogoFailureIsSkipped(t *testing.T) {
	svc, logs := newObservedService(&MockConnector{}, WithOptions(Options{PrintLogo: true}))
	svc.loadLogo = func(string, int) (escpos.Raster, error) {
		return escpos.Raster{}, errors.New("no such file")
	}

	r := receipt.Sample()
	r.Header.Logo = "missing.png"

	assert.Equal(t, escpos.Encode(r), svc.Encode(r))
	assert.Equal(t, 1, logs.FilterMessage("Skipping logo").Len())
}

func TestEncodeLogoDisabled(t *testing.T) {
	svc := New(&MockConnector{})
	svc.loadLogo = func(string, int) (escpos.Raster, error) {
		t.Fatal("logo must not be loaded when disabled")
		return escpos.Raster{}, nil
	}

	r := receipt.Sample()
	r.Header.Logo = "logo.png"
	assert.Equal(t, escpos.Encode(r), svc.Encode(r))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "printed", StatusPrinted.String())
	assert.Equal(t, "device not found", StatusDeviceNotFound.String())
	assert.Equal(t, "connection failed", StatusConnectFailed.String())
	assert.Equal(t, "write failed", StatusWriteFailed.String())
	assert.Equal(t, "unknown", Status(42).String())
}

func TestEncodeBarcodeAdjusted(t *testing.T) {
	svc, logs := newObservedService(&MockConnector{}, WithOptions(Options{
		Encoder: escpos.Options{Barcode: true},
	}))

	r := receipt.Sample()
	r.Footer.Barcode = "Nº 0042"

	out := svc.Encode(r)

	assert.Contains(t, string(out), "{BN 0042")
	adjusted := logs.FilterMessage("Barcode data adjusted for CODE128").All()
	require.Len(t, adjusted, 1)
	assert.Equal(t, "N 0042", adjusted[0].ContextMap()["printed"])
}

func TestEncodeBarcodeASCIINotLogged(t *testing.T) {
	svc, logs := newObservedService(&MockConnector{}, WithOptions(Options{
		Encoder: escpos.Options{Barcode: true},
	}))

	r := receipt.Sample()
	r.Footer.Barcode = "0042"
	svc.Encode(r)

	assert.Zero(t, logs.FilterMessage("Barcode data adjusted for CODE128").Len())
}

func TestEncodePreviewKeepsUTF8(t *testing.T) {
	svc := New(&MockConnector{}, WithOptions(Options{
		Encoder: escpos.Options{Charset: charmap.CodePage437, Cut: true},
	}))

	r := receipt.Sample()
	r.Header.BusinessName = "Café"

	printed := svc.Encode(r)
	assert.Contains(t, string(printed), "Caf\x82")

	preview := svc.EncodePreview(r)
	assert.Equal(t, "Café", escpos.Texts(escpos.Decode(preview))[0])
	assert.Equal(t, escpos.EncodeWithOptions(r, escpos.Options{Cut: true}), preview)
}
