package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/config"
	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/escpos"
	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/imaging"
	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/logging"
	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/printer"
	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/printjob"
	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/receipt"
)

const usage = `usage: receiptctl <command> [flags] [receipt.json]

commands:
  print     send a receipt to the printer
  encode    write the ESC/POS job to a file
  preview   render the job as a PNG
  devices   list paired Bluetooth devices and serial ports
  commands  show the ESC/POS command table

Without a receipt file the sample receipt is used.
Run "receiptctl <command> --help" for flags.
`

var errPrintFailed = errors.New("receipt was not printed")

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "print":
		err = runPrint(args)
	case "encode":
		err = runEncode(args)
	case "preview":
		err = runPreview(args)
	case "devices":
		err = runDevices(args)
	case "commands":
		runCommands()
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env is what every command needs after flag parsing
type env struct {
	flags  *pflag.FlagSet
	cfg    config.Config
	logger *zap.Logger
}

func setup(name string, args []string, extra func(fs *pflag.FlagSet)) (*env, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	config.RegisterFlags(fs)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}

	return &env{flags: fs, cfg: cfg, logger: logger}, nil
}

func (e *env) receipt() (receipt.Receipt, error) {
	if e.flags.NArg() == 0 {
		return receipt.Sample(), nil
	}
	return receipt.Load(e.flags.Arg(0))
}

func (e *env) service(connector printer.Connector) (*printjob.Service, error) {
	opts, err := e.cfg.PrintOptions()
	if err != nil {
		return nil, err
	}
	return printjob.New(connector, printjob.WithLogger(e.logger), printjob.WithOptions(opts)), nil
}

func runPrint(args []string) error {
	e, err := setup("print", args, nil)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	r, err := e.receipt()
	if err != nil {
		return err
	}

	connector, err := e.cfg.Connector(e.logger)
	if err != nil {
		return err
	}
	svc, err := e.service(connector)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := svc.Print(ctx, r)
	if !res.OK() {
		return fmt.Errorf("%w: %s", errPrintFailed, res.Status)
	}

	fmt.Printf("Printed receipt %s on %s (%d bytes, job %s)\n", r.OrderInfo.OrderNumber, res.Device, res.Bytes, res.JobID)
	return nil
}

func runEncode(args []string) error {
	var out string
	e, err := setup("encode", args, func(fs *pflag.FlagSet) {
		fs.StringVarP(&out, "output", "o", "receipt.bin", "output file ('-' for stdout)")
	})
	if err != nil {
		return err
	}

	r, err := e.receipt()
	if err != nil {
		return err
	}
	svc, err := e.service(nil)
	if err != nil {
		return err
	}

	data := svc.Encode(r)
	if out == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return err
	}
	fmt.Printf("Wrote %d bytes to %s\n", len(data), out)
	return nil
}

func runPreview(args []string) error {
	var (
		out  string
		text bool
	)
	e, err := setup("preview", args, func(fs *pflag.FlagSet) {
		fs.StringVarP(&out, "output", "o", "receipt.png", "output PNG file")
		fs.BoolVar(&text, "text", false, "print the text lines instead of rendering")
	})
	if err != nil {
		return err
	}

	r, err := e.receipt()
	if err != nil {
		return err
	}
	svc, err := e.service(nil)
	if err != nil {
		return err
	}

	spans := escpos.Decode(svc.EncodePreview(r))
	if text {
		for _, line := range escpos.Texts(spans) {
			fmt.Println(line)
		}
		return nil
	}

	opts := imaging.DefaultPreviewOptions()
	opts.Width = e.cfg.Encoder.LogoWidth

	img, err := imaging.RenderReceipt(spans, opts)
	if err != nil {
		return err
	}
	if err := imaging.SavePNG(out, img); err != nil {
		return err
	}
	fmt.Printf("Wrote preview to %s\n", out)
	return nil
}

func runDevices(args []string) error {
	var all bool
	e, err := setup("devices", args, func(fs *pflag.FlagSet) {
		fs.BoolVar(&all, "all", false, "show devices that do not match the name prefix")
	})
	if err != nil {
		return err
	}

	devices, err := printer.ListPairedBluetoothDevices()
	if err != nil {
		e.logger.Warn("Paired device listing unavailable", zap.Error(err))
	}
	fmt.Println("Paired Bluetooth devices:")
	for _, d := range devices {
		if !all && !printer.MatchesPrefix(d.Name, e.cfg.NamePrefix) {
			continue
		}
		fmt.Printf("  %-24s %s\n", d.Name, d.MAC)
	}

	ports, err := printer.ListSerialPortNames()
	if err != nil {
		return err
	}
	fmt.Printf("Serial ports: %s\n", strings.Join(ports, ", "))
	return nil
}

func runCommands() {
	for _, c := range escpos.Commands() {
		fmt.Printf("%-14s % X\n", c, c.Bytes())
	}
}
