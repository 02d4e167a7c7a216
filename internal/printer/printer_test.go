package printer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// MockPort is a serial.Port that records writes
type MockPort struct {
	serial.Port
	writes     [][]byte
	writeErr   error
	timeoutErr error
	closed     bool
	drained    bool
}

func (m *MockPort) Write(p []byte) (int, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	m.writes = append(m.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (m *MockPort) Drain() error {
	m.drained = true
	return nil
}

func (m *MockPort) SetReadTimeout(t time.Duration) error {
	return m.timeoutErr
}

func (m *MockPort) Close() error {
	m.closed = true
	return nil
}

func TestMatchesPrefix(t *testing.T) {
	assert.True(t, MatchesPrefix("P502A-1234", DefaultNamePrefix))
	assert.False(t, MatchesPrefix("p502a-1234", DefaultNamePrefix))
	assert.False(t, MatchesPrefix("Headphones", DefaultNamePrefix))
	assert.False(t, MatchesPrefix("", DefaultNamePrefix))
	assert.True(t, MatchesPrefix("Anything", ""))
}

func TestFindDevice(t *testing.T) {
	devices := []BluetoothDevice{
		{Name: "Keyboard", MAC: "00:11:22:33:44:55"},
		{Name: "P502A-0001", MAC: "AA:BB:CC:DD:EE:01"},
		{Name: "P502A-0002", MAC: "AA:BB:CC:DD:EE:02"},
	}

	d, ok := FindDevice(devices, DefaultNamePrefix)
	require.True(t, ok)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", d.MAC)

	_, ok = FindDevice(devices, "Nelko")
	assert.False(t, ok)

	_, ok = FindDevice(nil, DefaultNamePrefix)
	assert.False(t, ok)
}

func TestParsePairedDevices(t *testing.T) {
	out := "Device AA:BB:CC:DD:EE:01 P502A-0001\n" +
		"Device 00:11:22:33:44:55 My Keyboard\n" +
		"[CHG] Controller 11:22:33:44:55:66 Discovering: yes\n" +
		"Device broken\n" +
		"\n"

	devices := parsePairedDevices(out)

	assert.Equal(t, []BluetoothDevice{
		{Name: "P502A-0001", MAC: "AA:BB:CC:DD:EE:01"},
		{Name: "My Keyboard", MAC: "00:11:22:33:44:55"},
	}, devices)
}

func TestChunkSize(t *testing.T) {
	testCases := []struct {
		name     string
		chunking Chunking
		mtu      int
		want     int
	}{
		{"Disabled", Chunking{}, 185, 0},
		{"FromMTU", Chunking{Enabled: true}, 185, 182},
		{"DefaultMTU", Chunking{Enabled: true}, 0, 20},
		{"Explicit", Chunking{Enabled: true, Size: 100}, 185, 100},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.chunking.chunkSize(tc.mtu))
		})
	}
}

func TestWriteChunked(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 5)

	collect := func(writes *[][]byte) func([]byte) (int, error) {
		return func(p []byte) (int, error) {
			*writes = append(*writes, append([]byte(nil), p...))
			return len(p), nil
		}
	}

	t.Run("SingleWrite", func(t *testing.T) {
		var writes [][]byte
		err := writeChunked(context.Background(), data, 0, 0, collect(&writes), zap.NewNop())

		require.NoError(t, err)
		require.Len(t, writes, 1)
		assert.Equal(t, data, writes[0])
	})

	t.Run("Chunked", func(t *testing.T) {
		var writes [][]byte
		err := writeChunked(context.Background(), data, 20, time.Millisecond, collect(&writes), zap.NewNop())

		require.NoError(t, err)
		require.Len(t, writes, 3)
		assert.Len(t, writes[0], 20)
		assert.Len(t, writes[2], 10)
		assert.Equal(t, data, bytes.Join(writes, nil))
	})

	t.Run("Empty", func(t *testing.T) {
		var writes [][]byte
		err := writeChunked(context.Background(), nil, 20, 0, collect(&writes), zap.NewNop())

		assert.NoError(t, err)
		assert.Empty(t, writes)
	})

	t.Run("WriteError", func(t *testing.T) {
		boom := errors.New("link lost")
		err := writeChunked(context.Background(), data, 20, 0, func(p []byte) (int, error) {
			return 0, boom
		}, zap.NewNop())

		assert.ErrorIs(t, err, ErrWriteFailed)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("ShortWrite", func(t *testing.T) {
		err := writeChunked(context.Background(), data, 0, 0, func(p []byte) (int, error) {
			return len(p) - 1, nil
		}, zap.NewNop())

		assert.ErrorIs(t, err, ErrWriteFailed)
		assert.Contains(t, err.Error(), "short write")
	})

	t.Run("Canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var writes [][]byte
		err := writeChunked(ctx, data, 20, 0, collect(&writes), zap.NewNop())

		assert.ErrorIs(t, err, ErrWriteFailed)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, writes)
	})
}

func TestSerialConnector(t *testing.T) {
	t.Run("ExplicitPort", func(t *testing.T) {
		port := &MockPort{}
		var opened string
		var baud int

		c := NewSerialConnector(SerialConfig{Port: "/dev/rfcomm0"}, nil)
		c.openPort = func(name string, mode *serial.Mode) (serial.Port, error) {
			opened, baud = name, mode.BaudRate
			return port, nil
		}
		c.listDevices = func() ([]BluetoothDevice, error) {
			t.Fatal("discovery must not run with an explicit port")
			return nil, nil
		}

		conn, err := c.Connect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "/dev/rfcomm0", opened)
		assert.Equal(t, 115200, baud)
		assert.Equal(t, "/dev/rfcomm0", conn.Name())

		require.NoError(t, conn.Send(context.Background(), []byte("hello")))
		assert.Equal(t, [][]byte{[]byte("hello")}, port.writes)
		assert.True(t, port.drained)

		require.NoError(t, conn.Close())
		assert.True(t, port.closed)

		// Double close is fine, sending afterwards is not
		assert.NoError(t, conn.Close())
		assert.ErrorIs(t, conn.Send(context.Background(), []byte("x")), ErrNotConnected)
	})

	t.Run("ChunkedWrites", func(t *testing.T) {
		port := &MockPort{}
		c := NewSerialConnector(SerialConfig{
			Port:     "COM3",
			Chunking: Chunking{Enabled: true, Size: 2},
		}, nil)
		c.openPort = func(string, *serial.Mode) (serial.Port, error) { return port, nil }

		conn, err := c.Connect(context.Background())
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.Send(context.Background(), []byte("abcde")))
		assert.Equal(t, [][]byte{[]byte("ab"), []byte("cd"), []byte("e")}, port.writes)
	})

	t.Run("NoMatchingDevice", func(t *testing.T) {
		c := NewSerialConnector(SerialConfig{NamePrefix: DefaultNamePrefix}, nil)
		c.listDevices = func() ([]BluetoothDevice, error) {
			return []BluetoothDevice{{Name: "Speaker", MAC: "00:00:00:00:00:01"}}, nil
		}

		_, err := c.Connect(context.Background())
		assert.ErrorIs(t, err, ErrDeviceNotFound)
	})

	t.Run("DiscoveryFails", func(t *testing.T) {
		c := NewSerialConnector(SerialConfig{NamePrefix: DefaultNamePrefix}, nil)
		c.listDevices = func() ([]BluetoothDevice, error) {
			return nil, errors.New("bluetoothctl missing")
		}

		_, err := c.Connect(context.Background())
		assert.ErrorIs(t, err, ErrConnectFailed)
	})

	t.Run("OpenFails", func(t *testing.T) {
		c := NewSerialConnector(SerialConfig{Port: "/dev/rfcomm9"}, nil)
		c.openPort = func(string, *serial.Mode) (serial.Port, error) {
			return nil, errors.New("permission denied")
		}

		_, err := c.Connect(context.Background())
		assert.ErrorIs(t, err, ErrConnectFailed)
		assert.Contains(t, err.Error(), "/dev/rfcomm9")
	})

	t.Run("WriteFails", func(t *testing.T) {
		port := &MockPort{writeErr: errors.New("i/o error")}
		c := NewSerialConnector(SerialConfig{Port: "/dev/rfcomm0"}, nil)
		c.openPort = func(string, *serial.Mode) (serial.Port, error) { return port, nil }

		conn, err := c.Connect(context.Background())
		require.NoError(t, err)
		defer conn.Close()

		assert.ErrorIs(t, conn.Send(context.Background(), []byte("job")), ErrWriteFailed)
	})

	t.Run("ReadTimeoutErrorIsLogged", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		port := &MockPort{timeoutErr: errors.New("invalid argument")}
		c := NewSerialConnector(SerialConfig{Port: "/dev/rfcomm0"}, zap.New(core))
		c.openPort = func(string, *serial.Mode) (serial.Port, error) { return port, nil }

		conn, err := c.Connect(context.Background())
		require.NoError(t, err)
		defer conn.Close()

		warnings := logs.FilterMessage("Failed to set read timeout").All()
		require.Len(t, warnings, 1)
		assert.Equal(t, "/dev/rfcomm0", warnings[0].ContextMap()["port"])
		assert.NoError(t, conn.Send(context.Background(), []byte("job")))
	})
}

func TestNewBLEConnector(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		c, err := NewBLEConnector(BLEConfig{
			NamePrefix:  DefaultNamePrefix,
			ServiceUUID: DefaultServiceUUID,
		}, nil)

		require.NoError(t, err)
		assert.Nil(t, c.characteristic)
		assert.Equal(t, DefaultServiceUUID, c.service.String())
	})

	t.Run("Characteristic", func(t *testing.T) {
		c, err := NewBLEConnector(BLEConfig{
			ServiceUUID:        "000018f0-0000-1000-8000-00805f9b34fb",
			CharacteristicUUID: "00002af1-0000-1000-8000-00805f9b34fb",
		}, zap.NewNop())

		require.NoError(t, err)
		require.NotNil(t, c.characteristic)
		assert.Equal(t, "00002af1-0000-1000-8000-00805f9b34fb", c.characteristic.String())
	})

	t.Run("PlaceholderCharacteristic", func(t *testing.T) {
		_, err := NewBLEConnector(BLEConfig{
			ServiceUUID:        DefaultServiceUUID,
			CharacteristicUUID: "0000XXXX-0000-1000-8000-00805f9b34fb",
		}, nil)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid characteristic UUID")
	})

	t.Run("BadService", func(t *testing.T) {
		_, err := NewBLEConnector(BLEConfig{ServiceUUID: "printer"}, nil)
		assert.Error(t, err)
	})
}
