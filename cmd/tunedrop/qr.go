package main

import (
	"fmt"
	"io"

	qrcode "github.com/skip2/go-qrcode"
)

// renderQR draws descriptor as a compact block-character QR code.
func renderQR(descriptor string) (string, error) {
	code, err := qrcode.New(descriptor, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	code.DisableBorder = false
	return code.ToSmallString(false), nil
}

// cliPresenter prints the pairing code and QR to the terminal.
type cliPresenter struct {
	out  io.Writer
	noQR bool
}

func (p *cliPresenter) PairingStarted(code, descriptor string) {
	fmt.Fprintln(p.out, "Open Wi-Fi Transfer in the app and scan this code, or enter it manually.")
	if !p.noQR {
		if qr, err := renderQR(descriptor); err == nil {
			fmt.Fprintln(p.out, qr)
		}
	}
	fmt.Fprintf(p.out, "Pairing code: %s\n", code)
	fmt.Fprintf(p.out, "Address:      %s\n", descriptor)
}

func (p *cliPresenter) Connected(deviceName string, resumed bool) {
	if resumed {
		fmt.Fprintf(p.out, "Reconnected to %s\n", deviceName)
		return
	}
	fmt.Fprintf(p.out, "Paired with %s\n", deviceName)
}
