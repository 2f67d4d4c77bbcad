package printer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/http"
)

// IPP value tags used in the Print-Job operation attributes.
const (
	ippTagOperationAttrs  = 0x01
	ippTagEndOfAttrs      = 0x03
	ippTagURI             = 0x45
	ippTagCharset         = 0x47
	ippTagNaturalLanguage = 0x48
)

// ippTransport submits the job as a minimal IPP 2.0 Print-Job request over
// plain HTTP. Only the three required operation attributes are sent; the
// assembled device bytes ride after the end-of-attributes marker.
type ippTransport struct {
	cfg Config
}

func (t *ippTransport) String() string {
	return "ipp " + t.cfg.addr()
}

func (t *ippTransport) Send(text, barcode []byte) error {
	payload := t.buildRequest(assemble(t.cfg, text, barcode))

	client := &http.Client{Timeout: sendTimeout}
	url := fmt.Sprintf("http://%s/ipp/print", t.cfg.addr())
	resp, err := client.Post(url, "application/ipp", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("IPP request to %s failed: %w", t.cfg.addr(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("IPP print rejected by %s: status %d", t.cfg.addr(), resp.StatusCode)
	}
	return nil
}

// buildRequest frames data as an IPP Print-Job request: fixed version,
// operation and request id, the required operation attributes, the
// end-of-attributes tag, then the raw job data verbatim.
func (t *ippTransport) buildRequest(data []byte) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x02, 0x00})             // version 2.0
	buf.Write([]byte{0x00, 0x02})             // operation Print-Job
	buf.Write([]byte{0x00, 0x00, 0x00, 0x01}) // request id
	buf.WriteByte(ippTagOperationAttrs)
	writeIPPAttr(&buf, ippTagCharset, "attributes-charset", "utf-8")
	writeIPPAttr(&buf, ippTagNaturalLanguage, "attributes-natural-language", "pt")
	writeIPPAttr(&buf, ippTagURI, "printer-uri", fmt.Sprintf("ipp://%s/ipp/print", t.cfg.Host))
	buf.WriteByte(ippTagEndOfAttrs)
	buf.Write(data)
	return buf.Bytes()
}

// writeIPPAttr emits one attribute as tag, then big-endian length-prefixed
// name and value.
func writeIPPAttr(buf *bytes.Buffer, tag byte, name, value string) {
	buf.WriteByte(tag)
	binary.Write(buf, binary.BigEndian, uint16(len(name)))
	buf.WriteString(name)
	binary.Write(buf, binary.BigEndian, uint16(len(value)))
	buf.WriteString(value)
}
