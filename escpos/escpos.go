// Package escpos builds ESC/POS command byte sequences for thermal receipt
// printers: initialization, character code table selection, paper cut and
// QR code blocks.
package escpos

import "unicode/utf8"

// Reset is ESC @ - initialize printer, clearing any prior formatting state.
var Reset = []byte{0x1B, 0x40}

// Cut is GS V 0 - full paper cut.
var Cut = []byte{0x1D, 0x56, 0x00}

// QRModuleSize is the default QR module size (1-16). 10 prints large enough
// to scan reliably from a phone camera.
const QRModuleSize = 10

// maxQRDataLen bounds the URL length in characters accepted by QRCode.
// Longer data makes the code too dense for small thermal heads to render
// scannably. The pL/pH length prefix still counts bytes.
const maxQRDataLen = 400

// Codepage returns the ESC t n command selecting the printer character
// table for the named encoding. Unknown or empty encodings fall back to
// table 16, which most models map to WPC1252/UTF-8.
//
//	cp850  -> table 1  (PC850 Multilingual)
//	cp860  -> table 2  (PC860 Portuguese)
//	cp1252 -> table 16 (Windows Latin-1)
//	utf8   -> table 16
func Codepage(encoding string) []byte {
	switch encoding {
	case "cp850":
		return []byte{0x1B, 0x74, 0x01}
	case "cp860":
		return []byte{0x1B, 0x74, 0x02}
	case "cp1252":
		return []byte{0x1B, 0x74, 0x10}
	default:
		return []byte{0x1B, 0x74, 0x10}
	}
}

// QRCode returns the GS ( k command block that stores and prints a QR code
// for url. An empty url, or one longer than 400 characters, yields an empty
// block: a missing code is preferable to a corrupted print job.
func QRCode(url string) []byte {
	return qrCode(url, QRModuleSize)
}

func qrCode(url string, moduleSize int) []byte {
	if url == "" || utf8.RuneCountInString(url) > maxQRDataLen {
		return nil
	}
	if moduleSize < 1 {
		moduleSize = 1
	}
	if moduleSize > 16 {
		moduleSize = 16
	}

	data := []byte(url)
	// Store-data parameter length counts the data plus the 3 bytes of
	// cn/fn/m, split into low/high.
	n := len(data) + 3
	pL, pH := byte(n%256), byte(n/256)

	cmd := make([]byte, 0, len(data)+32)
	// Function 167: module size
	cmd = append(cmd, 0x1D, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x43, byte(moduleSize))
	// Function 169: error correction level L
	cmd = append(cmd, 0x1D, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x45, 0x30)
	// Function 180: store symbol data
	cmd = append(cmd, 0x1D, 0x28, 0x6B, pL, pH, 0x31, 0x50, 0x30)
	cmd = append(cmd, data...)
	// Function 181: print stored symbol
	cmd = append(cmd, 0x1D, 0x28, 0x6B, 0x03, 0x00, 0x31, 0x51, 0x30)
	return cmd
}
