//go:build linux

package printer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// rfcommWait bounds how long the bound device node may take to appear
const rfcommWait = 15 * time.Second

// RFCOMMConnection manages an `rfcomm connect` process (Linux-specific)
type RFCOMMConnection struct {
	DevicePath string
	MAC        string
	cmd        *exec.Cmd
	cancel     context.CancelFunc
	mu         sync.Mutex
	closed     bool
}

// ListPairedBluetoothDevices returns all paired Bluetooth devices
func ListPairedBluetoothDevices() ([]BluetoothDevice, error) {
	out, err := exec.Command("bluetoothctl", "devices", "Paired").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list paired devices: %w", err)
	}
	return parsePairedDevices(string(out)), nil
}

// findAvailableRFCOMMDevice finds an unused /dev/rfcommN device number
func findAvailableRFCOMMDevice() (string, int, error) {
	for i := 0; i < 10; i++ {
		devPath := fmt.Sprintf("/dev/rfcomm%d", i)
		out, _ := exec.Command("rfcomm", "show", devPath).Output()
		if len(out) == 0 || strings.Contains(string(out), "No such device") {
			return devPath, i, nil
		}
	}
	return "", -1, fmt.Errorf("no available RFCOMM device slots")
}

// checkRFCOMMInstalled verifies rfcomm binary is available
func checkRFCOMMInstalled() error {
	if _, err := exec.LookPath("rfcomm"); err != nil {
		return fmt.Errorf("rfcomm not found - install with: sudo apt install bluez")
	}
	return nil
}

// privilegeHelper returns the available privilege escalation command
func privilegeHelper() string {
	// pkexec works from a GUI session
	if _, err := exec.LookPath("pkexec"); err == nil {
		return "pkexec"
	}
	if _, err := exec.LookPath("sudo"); err == nil {
		return "sudo"
	}
	return ""
}

func privileged(ctx context.Context, helper string, args ...string) *exec.Cmd {
	if helper == "pkexec" {
		return exec.CommandContext(ctx, "pkexec", args...)
	}
	return exec.CommandContext(ctx, "sudo", append([]string{"-n"}, args...)...)
}

// EstablishRFCOMM binds an RFCOMM device to mac and returns once the device
// node exists. The rfcomm process keeps running until Close.
func EstablishRFCOMM(ctx context.Context, mac string, channel int, statusCallback func(string)) (*RFCOMMConnection, error) {
	if err := checkRFCOMMInstalled(); err != nil {
		return nil, err
	}

	devPath, devNum, err := findAvailableRFCOMMDevice()
	if err != nil {
		return nil, err
	}

	helper := privilegeHelper()
	if helper == "" {
		return nil, ErrPrivilegeRequired
	}

	procCtx, cancel := context.WithCancel(context.Background())
	conn := &RFCOMMConnection{
		DevicePath: devPath,
		MAC:        mac,
		cancel:     cancel,
	}

	cmd := privileged(procCtx, helper, "rfcomm", "connect",
		fmt.Sprintf("/dev/rfcomm%d", devNum), mac, fmt.Sprintf("%d", channel))
	conn.cmd = cmd

	stderr, _ := cmd.StderrPipe()
	stdout, _ := cmd.StdoutPipe()

	if statusCallback != nil {
		statusCallback(fmt.Sprintf("Connecting to %s...", mac))
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start rfcomm: %w", err)
	}

	go relayStatus(stdout, statusCallback)
	go relayStatus(stderr, statusCallback)

	deadline := time.NewTimer(rfcommWait)
	defer deadline.Stop()
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	for {
		if _, err := os.Stat(devPath); err == nil {
			// Give the device a moment to be ready
			time.Sleep(500 * time.Millisecond)
			if statusCallback != nil {
				statusCallback(fmt.Sprintf("Connected: %s", devPath))
			}
			return conn, nil
		}

		select {
		case <-ctx.Done():
			conn.Close()
			return nil, fmt.Errorf("%w: %w", ErrConnectionCanceled, ctx.Err())
		case <-deadline.C:
			conn.Close()
			return nil, fmt.Errorf("timeout waiting for %s to appear", devPath)
		case <-tick.C:
		}
	}
}

func relayStatus(r io.Reader, statusCallback func(string)) {
	if r == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if statusCallback != nil {
			statusCallback(scanner.Text())
		}
	}
}

// Close terminates the rfcomm process and releases the device
func (c *RFCOMMConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.cancel != nil {
		c.cancel()
	}

	if c.DevicePath != "" {
		if helper := privilegeHelper(); helper != "" {
			privileged(context.Background(), helper, "rfcomm", "release", c.DevicePath).Run()
		}
	}

	if c.cmd != nil && c.cmd.Process != nil {
		c.cmd.Process.Kill()
		c.cmd.Wait()
	}

	return nil
}
