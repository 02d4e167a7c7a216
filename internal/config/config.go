package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/escpos"
	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/imaging"
	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/printer"
	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/printjob"
)

// EnvPrefix prefixes environment overrides, e.g. RECEIPT_PRINT_NAME_PREFIX
const EnvPrefix = "RECEIPT_PRINT"

// Transports
const (
	TransportBLE    = "ble"
	TransportSerial = "serial"
)

type SerialConfig struct {
	Port          string `mapstructure:"port"`
	BaudRate      int    `mapstructure:"baud_rate"`
	RFCOMMChannel int    `mapstructure:"rfcomm_channel"`
}

type ChunkConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Size    int           `mapstructure:"size"`
	Delay   time.Duration `mapstructure:"delay"`
}

type EncoderConfig struct {
	Init      bool   `mapstructure:"init"`
	Cut       bool   `mapstructure:"cut"`
	Barcode   bool   `mapstructure:"barcode"`
	Logo      bool   `mapstructure:"logo"`
	LogoWidth int    `mapstructure:"logo_width"`
	Charset   string `mapstructure:"charset"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Config is the complete runtime configuration
type Config struct {
	Transport          string        `mapstructure:"transport"`
	NamePrefix         string        `mapstructure:"name_prefix"`
	ServiceUUID        string        `mapstructure:"service_uuid"`
	CharacteristicUUID string        `mapstructure:"characteristic_uuid"`
	WriteWithResponse  bool          `mapstructure:"write_with_response"`
	ScanTimeout        time.Duration `mapstructure:"scan_timeout"`
	Serial             SerialConfig  `mapstructure:"serial"`
	Chunking           ChunkConfig   `mapstructure:"chunking"`
	Encoder            EncoderConfig `mapstructure:"encoder"`
	Log                LogConfig     `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport", TransportBLE)
	v.SetDefault("name_prefix", printer.DefaultNamePrefix)
	v.SetDefault("service_uuid", printer.DefaultServiceUUID)
	v.SetDefault("characteristic_uuid", "")
	v.SetDefault("write_with_response", false)
	v.SetDefault("scan_timeout", 30*time.Second)
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud_rate", 115200)
	v.SetDefault("serial.rfcomm_channel", 1)
	v.SetDefault("chunking.enabled", false)
	v.SetDefault("chunking.size", 0)
	v.SetDefault("chunking.delay", time.Duration(0))
	v.SetDefault("encoder.init", false)
	v.SetDefault("encoder.cut", false)
	v.SetDefault("encoder.barcode", false)
	v.SetDefault("encoder.logo", false)
	v.SetDefault("encoder.logo_width", imaging.Width58mm)
	v.SetDefault("encoder.charset", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// flagKeys maps command line flags onto configuration keys
var flagKeys = map[string]string{
	"transport":           "transport",
	"name-prefix":         "name_prefix",
	"service-uuid":        "service_uuid",
	"characteristic-uuid": "characteristic_uuid",
	"scan-timeout":        "scan_timeout",
	"port":                "serial.port",
	"baud-rate":           "serial.baud_rate",
	"chunk":               "chunking.enabled",
	"chunk-size":          "chunking.size",
	"chunk-delay":         "chunking.delay",
	"cut":                 "encoder.cut",
	"barcode":             "encoder.barcode",
	"logo":                "encoder.logo",
	"charset":             "encoder.charset",
	"log-level":           "log.level",
	"debug":               "log.development",
}

// RegisterFlags adds the configuration flags to fs
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default: ./receipt-print.yaml if present)")
	fs.String("transport", TransportBLE, "printer transport: ble or serial")
	fs.String("name-prefix", printer.DefaultNamePrefix, "printer name prefix")
	fs.String("service-uuid", printer.DefaultServiceUUID, "GATT service UUID")
	fs.String("characteristic-uuid", "", "GATT write characteristic UUID (empty: first in service)")
	fs.Duration("scan-timeout", 30*time.Second, "give up discovery after this long (0: wait forever)")
	fs.String("port", "", "serial port of an SPP printer (skips discovery)")
	fs.Int("baud-rate", 115200, "serial baud rate")
	fs.Bool("chunk", false, "split jobs into MTU sized writes")
	fs.Int("chunk-size", 0, "bytes per write when chunking (0: from MTU)")
	fs.Duration("chunk-delay", 0, "pause between chunked writes")
	fs.Bool("cut", false, "cut the paper after the receipt")
	fs.Bool("barcode", false, "print footer barcode")
	fs.Bool("logo", false, "print header logo")
	fs.String("charset", "", "printer code page (e.g. cp437); empty sends UTF-8")
	fs.String("log-level", "info", "log level")
	fs.Bool("debug", false, "human readable development logging")
}

// Load reads defaults, the config file, environment and flags, in
// increasing order of precedence. fs may be nil.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var configFile string
	if fs != nil {
		if f := fs.Lookup("config"); f != nil {
			configFile = f.Value.String()
		}
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("receipt-print")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail at print time
func (c Config) Validate() error {
	switch c.Transport {
	case TransportBLE, TransportSerial:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.Chunking.Size < 0 {
		return fmt.Errorf("chunking.size must not be negative")
	}
	if c.ScanTimeout < 0 {
		return fmt.Errorf("scan_timeout must not be negative")
	}
	if _, err := escpos.Charset(c.Encoder.Charset); err != nil {
		return err
	}
	return nil
}

func (c Config) chunking() printer.Chunking {
	return printer.Chunking{
		Enabled: c.Chunking.Enabled,
		Size:    c.Chunking.Size,
		Delay:   c.Chunking.Delay,
	}
}

// Connector builds the configured transport
func (c Config) Connector(logger *zap.Logger) (printer.Connector, error) {
	switch c.Transport {
	case TransportSerial:
		return printer.NewSerialConnector(printer.SerialConfig{
			Port:          c.Serial.Port,
			NamePrefix:    c.NamePrefix,
			BaudRate:      c.Serial.BaudRate,
			RFCOMMChannel: c.Serial.RFCOMMChannel,
			Chunking:      c.chunking(),
		}, logger), nil
	case TransportBLE:
		return printer.NewBLEConnector(printer.BLEConfig{
			NamePrefix:         c.NamePrefix,
			ServiceUUID:        c.ServiceUUID,
			CharacteristicUUID: c.CharacteristicUUID,
			ScanTimeout:        c.ScanTimeout,
			WithResponse:       c.WriteWithResponse,
			Chunking:           c.chunking(),
		}, logger)
	}
	return nil, fmt.Errorf("unknown transport %q", c.Transport)
}

// PrintOptions returns the encoder settings for print jobs
func (c Config) PrintOptions() (printjob.Options, error) {
	charset, err := escpos.Charset(c.Encoder.Charset)
	if err != nil {
		return printjob.Options{}, err
	}
	return printjob.Options{
		Encoder: escpos.Options{
			Init:    c.Encoder.Init,
			Cut:     c.Encoder.Cut,
			Barcode: c.Encoder.Barcode,
			Charset: charset,
		},
		PrintLogo: c.Encoder.Logo,
		LogoWidth: c.Encoder.LogoWidth,
	}, nil
}
