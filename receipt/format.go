// Package receipt turns an order payload into the fixed-width text document
// sent to a receipt printer, and renders that document into the byte
// encoding the printer's character table expects.
package receipt

import (
	"fmt"
	"strings"
	"time"

	"github.com/rodrigo1488/agent-service-printer-compuchat/escpos"
)

// Paper width bounds in characters. 32 suits 58mm paper, 48 suits 80mm.
const (
	MinWidth = 24
	MaxWidth = 48
)

// Document is a formatted receipt: text lines in print order, plus an
// optional ESC/POS barcode command block appended after the text.
type Document struct {
	Lines   []string
	Barcode []byte
}

// Text joins the document lines with newlines.
func (d Document) Text() string {
	return strings.Join(d.Lines, "\n")
}

type itemGroup struct {
	name  string
	items []MenuItem
}

// Format renders order into a receipt document width characters wide.
// Width is clamped to [24,48]. Dine-in orders (table number set) suppress
// the form title banner. A delivery scan URL is emitted as a QR command
// block, never as raw text.
func Format(order Order, width int) (Document, error) {
	w := width
	if w < MinWidth {
		w = MinWidth
	}
	if w > MaxWidth {
		w = MaxWidth
	}

	var lines []string
	rule := strings.Repeat("-", w)

	isMesa := order.TableNumber != ""
	if !isMesa {
		banner := strings.Repeat("=", w)
		title := order.FormName
		if title == "" {
			title = "Pedido"
		}
		lines = append(lines, banner)
		lines = append(lines, " "+truncate(strings.ToUpper(title), w-2))
		lines = append(lines, banner)
	}
	if order.Protocol != "" {
		lines = append(lines, "Pedido: "+truncate(order.Protocol, w-10))
	}
	lines = append(lines, "Data: "+truncate(formatDate(order.SubmittedAt), w-6))
	if order.TableNumber != "" {
		lines = append(lines, "Mesa: "+truncate(order.TableNumber, w-8))
	}
	if order.GarcomName != "" {
		lines = append(lines, "Garcom: "+truncate(order.GarcomName, w-10))
	}
	if order.TableNumber != "" || order.GarcomName != "" {
		lines = append(lines, "")
	}
	lines = append(lines, "")

	// Customer block
	name := order.Responder.Name
	if name == "" {
		name = "Cliente"
	}
	lines = append(lines, "CLIENTE:")
	lines = append(lines, " "+truncate(name, w-2))
	if order.Responder.Phone != "" {
		lines = append(lines, " Tel: "+truncate(order.Responder.Phone, w-6))
	}
	if order.Responder.Email != "" {
		lines = append(lines, " "+truncate(order.Responder.Email, w-2))
	}
	lines = append(lines, "", rule, "")

	// Items grouped by category, first-seen group order preserved
	var total float64
	for _, g := range groupItems(order.MenuItems) {
		lines = append(lines, "* "+truncate(strings.ToUpper(g.name), w-4)+" *")
		lines = append(lines, "")
		for _, item := range g.items {
			itemTotal := float64(item.Quantity) * float64(item.ProductValue)
			total += itemTotal
			lines = append(lines, formatItem(item, itemTotal, w)...)
		}
		lines = append(lines, "")
	}

	lines = append(lines, rule, "")

	// Free-form answers, minus labels that duplicate the customer block
	if obs := customInfo(order.Answers); len(obs) > 0 {
		lines = append(lines, "OBS:")
		for _, a := range obs {
			lines = append(lines, truncate(" "+a.Label+": "+a.Answer, w))
		}
		lines = append(lines, "")
	}

	lines = append(lines, "TOTAL:")
	lines = append(lines, " "+padLeft(money(total), w-1))
	lines = append(lines, "")

	// Delivery QR block: title only in text, the code itself goes out as
	// ESC/POS bytes after the text.
	var barcode []byte
	if order.DeliveryScanURL != "" {
		barcode = escpos.QRCode(order.DeliveryScanURL)
		lines = append(lines, rule)
		lines = append(lines, " QR ENTREGADOR")
		lines = append(lines, " Escaneie o QR abaixo")
		lines = append(lines, " para add a rota")
		lines = append(lines, "", "")
		lines = append(lines, rule, "")
	}

	lines = append(lines, strings.Repeat("=", w))
	lines = append(lines, "")
	lines = append(lines, truncate("Obrigado pela preferência!", w))
	// Blank lines so the cut lands past the printed text
	lines = append(lines, "", "", "")

	return Document{Lines: lines, Barcode: barcode}, nil
}

// formatItem renders one product line, wrapping names longer than 14
// characters onto an indented continuation line.
func formatItem(item MenuItem, itemTotal float64, w int) []string {
	var out []string
	name := item.ProductName
	if name == "" {
		name = "Produto"
	}
	if runeLen(name) > 14 {
		r := []rune(name)
		out = append(out, string(r[:14]))
		name = "  " + string(r[14:])
	}
	qty := fmt.Sprintf("%dx", item.Quantity)
	unit := truncate(money2(float64(item.ProductValue)), 7)
	lineTotal := truncate(money2(itemTotal), 8)
	line := padRight(name, 14) + " " + padLeft(qty, 3) + padLeft(unit, 7) + padLeft(lineTotal, 8)
	return append(out, truncate(line, w))
}

// groupItems buckets items by grupo, keeping the order groups first appear
// and the input order within each group.
func groupItems(items []MenuItem) []itemGroup {
	var groups []itemGroup
	index := make(map[string]int)
	for _, item := range items {
		g := item.Grupo
		if g == "" {
			g = "Outros"
		}
		i, ok := index[g]
		if !ok {
			i = len(groups)
			index[g] = i
			groups = append(groups, itemGroup{name: g})
		}
		groups[i].items = append(groups[i].items, item)
	}
	return groups
}

// answerStoplist holds labels excluded from the OBS block because they
// duplicate the customer block.
var answerStoplist = map[string]bool{
	"nome":     true,
	"telefone": true,
	"phone":    true,
}

func customInfo(answers []Answer) []Answer {
	var out []Answer
	for _, a := range answers {
		if a.Answer == "" || answerStoplist[strings.ToLower(a.Label)] {
			continue
		}
		out = append(out, a)
	}
	return out
}

// formatDate renders an ISO timestamp as DD/MM/YYYY HH:MM:SS, falling back
// to the raw string when it does not parse.
func formatDate(submittedAt string) string {
	if submittedAt == "" {
		return time.Now().Format("02/01/2006 15:04:05")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, submittedAt); err == nil {
			return t.Format("02/01/2006 15:04:05")
		}
	}
	return submittedAt
}

// money renders a total as "R$ N,NN" with a comma decimal separator.
func money(v float64) string {
	return strings.Replace(fmt.Sprintf("R$ %.2f", v), ".", ",", 1)
}

// money2 is the compact per-item form without the space.
func money2(v float64) string {
	return strings.Replace(fmt.Sprintf("R$%.2f", v), ".", ",", 1)
}

func runeLen(s string) int {
	return len([]rune(s))
}

// truncate clips s to at most n characters. Negative n yields the empty
// string rather than panicking on narrow widths.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func padRight(s string, n int) string {
	if d := n - runeLen(s); d > 0 {
		return s + strings.Repeat(" ", d)
	}
	return s
}

func padLeft(s string, n int) string {
	if d := n - runeLen(s); d > 0 {
		return strings.Repeat(" ", d) + s
	}
	return s
}
