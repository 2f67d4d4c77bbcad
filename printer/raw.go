package printer

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// sendTimeout bounds both the TCP connect and the payload write. A stalled
// printer blocks only its own device worker, and only this long.
const sendTimeout = 5 * time.Second

// rawTransport streams the job to the printer's raw port (typically 9100)
// over a plain TCP connection.
type rawTransport struct {
	cfg Config
}

func (t *rawTransport) String() string {
	return "raw " + t.cfg.addr()
}

func (t *rawTransport) Send(text, barcode []byte) error {
	payload := assemble(t.cfg, text, barcode)

	conn, err := net.DialTimeout("tcp", t.cfg.addr(), sendTimeout)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return fmt.Errorf("timeout connecting to printer %s", t.cfg.addr())
		}
		if errors.Is(err, syscall.ECONNREFUSED) {
			return fmt.Errorf("connection refused by printer %s", t.cfg.addr())
		}
		return fmt.Errorf("connection to printer %s failed: %w", t.cfg.addr(), err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(sendTimeout))
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("write to printer %s failed: %w", t.cfg.addr(), err)
	}
	return nil
}
