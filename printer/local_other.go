//go:build !windows

package printer

import "fmt"

// localTransport is a stub on platforms without the Windows print spooler.
// Choosing connection_type "local" here is a configuration mistake, so the
// failure is reported on every send rather than retried at the connection
// level.
type localTransport struct {
	cfg Config
}

func newLocalTransport(cfg Config) Transport {
	return &localTransport{cfg: cfg}
}

func (t *localTransport) String() string {
	return "local " + t.cfg.LocalName
}

func (t *localTransport) Send(text, barcode []byte) error {
	return fmt.Errorf("local printing requires the Windows print spooler; configure a network printer on this platform")
}
