//go:build windows

package printer

import (
	"fmt"
	"syscall"
	"unsafe"
)

var (
	winspool            = syscall.NewLazyDLL("winspool.drv")
	procOpenPrinter     = winspool.NewProc("OpenPrinterW")
	procClosePrinter    = winspool.NewProc("ClosePrinter")
	procStartDocPrinter = winspool.NewProc("StartDocPrinterW")
	procEndDocPrinter   = winspool.NewProc("EndDocPrinter")
	procStartPagePrinter = winspool.NewProc("StartPagePrinter")
	procEndPagePrinter  = winspool.NewProc("EndPagePrinter")
	procWritePrinter    = winspool.NewProc("WritePrinter")
)

// docInfo1 mirrors the Windows DOC_INFO_1 structure.
type docInfo1 struct {
	DocName    *uint16
	OutputFile *uint16
	Datatype   *uint16
}

// localTransport writes the job to a named Windows printer queue as a RAW
// document, so ESC/POS control bytes pass through the driver untouched.
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
	if t.cfg.LocalName == "" {
		return fmt.Errorf("local printer name not configured")
	}
	payload := assemble(t.cfg, text, barcode)

	namePtr, err := syscall.UTF16PtrFromString(t.cfg.LocalName)
	if err != nil {
		return fmt.Errorf("invalid printer name %q: %w", t.cfg.LocalName, err)
	}

	var handle syscall.Handle
	r, _, callErr := procOpenPrinter.Call(
		uintptr(unsafe.Pointer(namePtr)),
		uintptr(unsafe.Pointer(&handle)),
		0,
	)
	if r == 0 {
		return fmt.Errorf("open printer %q failed: %v", t.cfg.LocalName, callErr)
	}
	defer procClosePrinter.Call(uintptr(handle))

	docName, _ := syscall.UTF16PtrFromString("Print Agent")
	datatype, _ := syscall.UTF16PtrFromString("RAW")
	doc := docInfo1{DocName: docName, Datatype: datatype}

	r, _, callErr = procStartDocPrinter.Call(uintptr(handle), 1, uintptr(unsafe.Pointer(&doc)))
	if r == 0 {
		return fmt.Errorf("start document on %q failed: %v", t.cfg.LocalName, callErr)
	}
	defer procEndDocPrinter.Call(uintptr(handle))

	r, _, callErr = procStartPagePrinter.Call(uintptr(handle))
	if r == 0 {
		return fmt.Errorf("start page on %q failed: %v", t.cfg.LocalName, callErr)
	}
	defer procEndPagePrinter.Call(uintptr(handle))

	var written uint32
	r, _, callErr = procWritePrinter.Call(
		uintptr(handle),
		uintptr(unsafe.Pointer(&payload[0])),
		uintptr(len(payload)),
		uintptr(unsafe.Pointer(&written)),
	)
	if r == 0 {
		return fmt.Errorf("write to printer %q failed: %v", t.cfg.LocalName, callErr)
	}
	if int(written) != len(payload) {
		return fmt.Errorf("short write to printer %q: %d of %d bytes", t.cfg.LocalName, written, len(payload))
	}
	return nil
}
