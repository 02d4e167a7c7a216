package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
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

const (
	AppVersion = "1.0.0"
	AppName    = "Receipt Print"
)

type App struct {
	fyneApp fyne.App
	window  fyne.Window
	cfg     config.Config
	logger  *zap.Logger

	connector printer.Connector
	service   *printjob.Service
	receipt   receipt.Receipt

	mu        sync.Mutex
	connected bool
	printing  bool

	// Widgets that need updating
	statusLabel   *widget.Label
	receiptLabel  *widget.Label
	connectBtn    *widget.Button
	disconnectBtn *widget.Button
	printBtn      *widget.Button
	previewImg    *canvas.Image
}

func main() {
	config.RegisterFlags(pflag.CommandLine)
	pflag.Parse()

	cfg, err := config.Load(pflag.CommandLine)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger error:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	connector, err := cfg.Connector(logger)
	if err != nil {
		logger.Fatal("Invalid printer configuration", zap.Error(err))
	}
	opts, err := cfg.PrintOptions()
	if err != nil {
		logger.Fatal("Invalid encoder configuration", zap.Error(err))
	}

	a := app.New()
	w := a.NewWindow(fmt.Sprintf("%s v%s", AppName, AppVersion))
	w.Resize(fyne.NewSize(720, 560))

	printApp := &App{
		fyneApp:   a,
		window:    w,
		cfg:       cfg,
		logger:    logger,
		connector: connector,
		service:   printjob.New(connector, printjob.WithLogger(logger), printjob.WithOptions(opts)),
		receipt:   receipt.Sample(),
	}

	w.SetMainMenu(printApp.buildMenu())
	w.SetContent(printApp.buildUI())
	printApp.updatePreview()
	w.ShowAndRun()
}

func (a *App) buildMenu() *fyne.MainMenu {
	aboutItem := fyne.NewMenuItem("About", func() {
		a.showAboutDialog()
	})

	return fyne.NewMainMenu(fyne.NewMenu("Help", aboutItem))
}

func (a *App) showAboutDialog() {
	content := container.NewVBox(
		widget.NewLabelWithStyle(AppName, fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
		widget.NewLabel(fmt.Sprintf("Version %s", AppVersion)),
		widget.NewSeparator(),
		widget.NewLabel("Prints ESC/POS receipts on Bluetooth thermal printers."),
		widget.NewLabel(fmt.Sprintf("Transport: %s, printer prefix: %q", a.cfg.Transport, a.cfg.NamePrefix)),
		widget.NewLabel(""),
		widget.NewLabel("Built with Fyne and Go"),
	)

	dialog.ShowCustom("About", "Close", content, a.window)
}

func (a *App) buildUI() fyne.CanvasObject {
	a.statusLabel = widget.NewLabel("Not connected")
	a.receiptLabel = widget.NewLabel("")

	a.connectBtn = widget.NewButton("Connect to Printer", func() {
		a.handleConnect()
	})
	a.disconnectBtn = widget.NewButton("Printer Not Connected", func() {
		a.handleDisconnect()
	})

	loadBtn := widget.NewButton("Load Receipt", func() {
		a.loadReceipt()
	})
	sampleBtn := widget.NewButton("Use Sample Receipt", func() {
		a.setReceipt(receipt.Sample())
	})

	a.printBtn = widget.NewButton("Print Receipt", func() {
		a.handlePrint()
	})
	a.printBtn.Importance = widget.HighImportance

	a.previewImg = canvas.NewImageFromImage(nil)
	a.previewImg.FillMode = canvas.ImageFillOriginal

	leftPanel := container.NewVBox(
		widget.NewLabelWithStyle("Printer Setup", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		a.connectBtn,
		a.disconnectBtn,
		widget.NewSeparator(),
		widget.NewLabel("Receipt"),
		a.receiptLabel,
		loadBtn,
		sampleBtn,
		widget.NewSeparator(),
		a.printBtn,
	)

	rightPanel := container.NewScroll(container.NewCenter(a.previewImg))

	content := container.NewHSplit(leftPanel, rightPanel)
	content.SetOffset(0.35)

	a.updateButtons()
	a.updateReceiptLabel()

	return container.NewBorder(
		nil,
		container.NewHBox(a.statusLabel),
		nil, nil,
		content,
	)
}

// updateButtons mirrors the connected/printing state onto the buttons
func (a *App) updateButtons() {
	a.mu.Lock()
	connected, printing := a.connected, a.printing
	a.mu.Unlock()

	if connected {
		a.connectBtn.SetText("Printer Connected")
		a.disconnectBtn.SetText("Disconnect from Printer")
	} else {
		a.connectBtn.SetText("Connect to Printer")
		a.disconnectBtn.SetText("Printer Not Connected")
	}
	if printing {
		a.printBtn.SetText("Printing...")
	} else {
		a.printBtn.SetText("Print Receipt")
	}

	setEnabled(a.connectBtn, !connected && !printing)
	setEnabled(a.disconnectBtn, connected && !printing)
	setEnabled(a.printBtn, connected && !printing)
}

func setEnabled(b *widget.Button, enabled bool) {
	if enabled {
		b.Enable()
	} else {
		b.Disable()
	}
}

func (a *App) setConnected(v bool) {
	a.mu.Lock()
	a.connected = v
	a.mu.Unlock()
	a.updateButtons()
}

func (a *App) setPrinting(v bool) {
	a.mu.Lock()
	a.printing = v
	a.mu.Unlock()
	a.updateButtons()
}

// handleConnect checks that a printer is reachable. Every print opens its
// own session, so the probe connection is closed right away.
func (a *App) handleConnect() {
	a.connectBtn.Disable()
	a.statusLabel.SetText(fmt.Sprintf("Looking for %s* printers...", a.cfg.NamePrefix))

	go func() {
		conn, err := a.connector.Connect(context.Background())
		if err != nil {
			a.logger.Error("Error connecting to printer", zap.Error(err))
			a.statusLabel.SetText(fmt.Sprintf("Connection failed: %v", err))
			a.updateButtons()
			dialog.ShowError(fmt.Errorf("failed to connect: %v", err), a.window)
			return
		}
		name := conn.Name()
		if err := conn.Close(); err != nil {
			a.logger.Warn("Error closing probe connection", zap.Error(err))
		}

		a.setConnected(true)
		a.statusLabel.SetText(fmt.Sprintf("Connected to %s", name))
		dialog.ShowInformation("Printer", "Connected to the printer!", a.window)
	}()
}

func (a *App) handleDisconnect() {
	a.setConnected(false)
	a.statusLabel.SetText("Disconnected")
	dialog.ShowInformation("Printer", "Disconnected from the printer!", a.window)
}

func (a *App) handlePrint() {
	a.setPrinting(true)
	a.statusLabel.SetText("Printing...")
	r := a.receipt

	go func() {
		res := a.service.Print(context.Background(), r)
		a.setPrinting(false)

		if !res.OK() {
			a.statusLabel.SetText(fmt.Sprintf("Print error: %s", res.Status))
			dialog.ShowError(fmt.Errorf("failed to print receipt: %s", res.Status), a.window)
			return
		}

		a.statusLabel.SetText(fmt.Sprintf("Printed %d bytes on %s", res.Bytes, res.Device))
		dialog.ShowInformation("Printer", "Receipt printed successfully!", a.window)
	}()
}

func (a *App) loadReceipt() {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, a.window)
			return
		}
		if reader == nil {
			return
		}
		defer reader.Close()

		r, err := receipt.Decode(reader)
		if err != nil {
			dialog.ShowError(err, a.window)
			return
		}
		a.setReceipt(r)
	}, a.window)

	fd.SetFilter(storage.NewExtensionFileFilter([]string{".json"}))
	fd.Show()
}

func (a *App) setReceipt(r receipt.Receipt) {
	a.receipt = r
	a.updateReceiptLabel()
	a.updatePreview()
}

func (a *App) updateReceiptLabel() {
	a.receiptLabel.SetText(fmt.Sprintf("%s\nOrder %s, %d item(s)",
		a.receipt.Header.BusinessName, a.receipt.OrderInfo.OrderNumber, len(a.receipt.Items)))
}

func (a *App) updatePreview() {
	opts := imaging.DefaultPreviewOptions()
	opts.Width = a.cfg.Encoder.LogoWidth

	img, err := imaging.RenderReceipt(escpos.Decode(a.service.EncodePreview(a.receipt)), opts)
	if err != nil {
		a.logger.Warn("Preview failed", zap.Error(err))
		return
	}

	a.previewImg.Image = img
	a.previewImg.SetMinSize(fyne.NewSize(float32(img.Bounds().Dx()), float32(img.Bounds().Dy())))
	a.previewImg.Refresh()
}
