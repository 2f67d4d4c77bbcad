package receipt

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Encode renders the document text into the byte encoding matching the
// printer's character table. Runes the target codepage cannot represent are
// replaced rather than failing the whole job.
func Encode(doc Document, printerEncoding string) ([]byte, error) {
	text := doc.Text() + "\n"

	var cm *charmap.Charmap
	switch printerEncoding {
	case "cp850":
		cm = charmap.CodePage850
	case "cp860":
		cm = charmap.CodePage860
	case "cp1252":
		cm = charmap.Windows1252
	default:
		// utf8 and anything unrecognized go out as raw UTF-8, matching
		// the ESC t 16 table selection.
		return []byte(text), nil
	}

	enc := encoding.ReplaceUnsupported(cm.NewEncoder())
	out, err := enc.Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("encode receipt as %s: %w", printerEncoding, err)
	}
	return out, nil
}
