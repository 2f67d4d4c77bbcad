// Package printer delivers formatted receipt bytes to hardware. Three
// transports share one payload layout and differ only in how the bytes
// reach the device: a raw TCP stream to port 9100, an IPP Print-Job
// request, or the local OS print spooler.
package printer

import (
	"fmt"

	"github.com/rodrigo1488/agent-service-printer-compuchat/escpos"
)

// Config selects and parameterizes a transport for one printer.
type Config struct {
	ConnectionType string // "network" or "local"
	PrinterType    string // "raw" or "ipp" (network only)
	Host           string
	Port           int
	LocalName      string // spooler queue name (local only)
	Encoding       string // cp850, cp860, cp1252, utf8
}

// Transport sends one assembled print job to a device. A nil error means
// the job reached the device; a non-nil error carries the human-readable
// failure reason used in the acknowledgment.
type Transport interface {
	Send(text, barcode []byte) error
	String() string
}

// New selects the transport variant for cfg. The choice is made once per
// printer configuration, at connection start.
func New(cfg Config) Transport {
	switch {
	case cfg.ConnectionType == "local":
		return newLocalTransport(cfg)
	case cfg.PrinterType == "ipp":
		return &ippTransport{cfg: cfg}
	default:
		return &rawTransport{cfg: cfg}
	}
}

// assemble builds the device byte stream every transport sends:
// reset, codepage select, encoded text, barcode block, cut.
func assemble(cfg Config, text, barcode []byte) []byte {
	codepage := escpos.Codepage(cfg.Encoding)
	out := make([]byte, 0, len(escpos.Reset)+len(codepage)+len(text)+len(barcode)+len(escpos.Cut))
	out = append(out, escpos.Reset...)
	out = append(out, codepage...)
	out = append(out, text...)
	out = append(out, barcode...)
	out = append(out, escpos.Cut...)
	return out
}

func (c Config) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
