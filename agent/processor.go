// Package agent implements the SaaS side of the print agent: one
// persistent authenticated connection per configured printer, the job
// processor that turns inbound print events into device output and
// acknowledgments, and the supervisor that owns all device workers.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/rodrigo1488/agent-service-printer-compuchat/logger"
	"github.com/rodrigo1488/agent-service-printer-compuchat/metrics"
	"github.com/rodrigo1488/agent-service-printer-compuchat/printer"
	"github.com/rodrigo1488/agent-service-printer-compuchat/receipt"
	"github.com/rodrigo1488/agent-service-printer-compuchat/storage"
)

// Inbound event names.
const (
	EventPrintJob = "print_job"
	EventReady    = "ready"
	EventAck      = "ack"
)

// Ack statuses.
const (
	StatusDone  = "done"
	StatusError = "error"
)

// genericFailure is the ack message when a print fails without a reason.
const genericFailure = "Falha ao imprimir"

// Event is one inbound message from the SaaS connection.
type Event struct {
	Event   string          `json:"event"`
	JobID   *int            `json:"job_id"`
	Content json.RawMessage `json:"content"`
}

// Ack reports one job outcome back over the originating connection.
type Ack struct {
	Event   string `json:"event"`
	JobID   int    `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// History records job outcomes. Implemented by storage.Store.
type History interface {
	AddPrintLog(ctx context.Context, jobID int, status, message string) error
}

// Processor handles inbound events for one printer: validate, format,
// print, record, acknowledge. One Processor serves one device connection
// and handles one job at a time.
type Processor struct {
	printer   storage.Printer
	transport printer.Transport
	history   History
	log       *logger.Logger
	collector *metrics.Collector
}

// NewProcessor builds the processor for one printer configuration. The
// transport variant is selected here, once, from the config.
func NewProcessor(p storage.Printer, history History, log *logger.Logger, collector *metrics.Collector) *Processor {
	return &Processor{
		printer: p,
		transport: printer.New(printer.Config{
			ConnectionType: p.ConnectionType,
			PrinterType:    p.PrinterType,
			Host:           p.PrinterIP,
			Port:           p.PrinterPort,
			LocalName:      p.PrinterNameLocal,
			Encoding:       p.PrinterEncoding,
		}),
		history:   history,
		log:       log,
		collector: collector,
	}
}

// Process handles one raw inbound message and returns the acknowledgment
// to send, or nil when the event produces none (ready events, malformed
// input). Processing runs to completion regardless of shutdown: an
// accepted job is always printed and acknowledged.
func (pr *Processor) Process(raw []byte) *Ack {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		pr.log.Warn("Mensagem inválida recebida", "device_id", pr.printer.DeviceID, "error", err)
		return nil
	}

	switch event.Event {
	case EventReady:
		pr.log.Info("Conectado ao SaaS, pronto para receber jobs", "device_id", pr.printer.DeviceID)
		return nil
	case EventPrintJob:
		if event.JobID == nil || emptyContent(event.Content) {
			pr.log.Warn("print_job recebido sem job_id ou content", "device_id", pr.printer.DeviceID)
			return nil
		}
		return pr.handlePrintJob(*event.JobID, event.Content)
	default:
		pr.log.Debug("Evento desconhecido ignorado", "device_id", pr.printer.DeviceID, "event", event.Event)
		return nil
	}
}

// handlePrintJob runs the full pipeline for one job. Formatter, encoder
// and transport failures are all converted to an error ack here; nothing
// propagates to the connection loop.
func (pr *Processor) handlePrintJob(jobID int, content json.RawMessage) (ack *Ack) {
	defer func() {
		if r := recover(); r != nil {
			pr.log.Error("Pânico ao processar job", "device_id", pr.printer.DeviceID, "job_id", jobID, "panic", r)
			ack = pr.finish(jobID, StatusError, fmt.Sprintf("erro inesperado: %v", r))
		}
	}()

	pr.log.Info("Processando job", "device_id", pr.printer.DeviceID, "job_id", jobID,
		"printer", pr.transport.String())

	var order receipt.Order
	if err := json.Unmarshal(content, &order); err != nil {
		return pr.finish(jobID, StatusError, fmt.Sprintf("pedido inválido: %v", err))
	}

	doc, err := receipt.Format(order, pr.printer.PaperWidth)
	if err != nil {
		return pr.finish(jobID, StatusError, err.Error())
	}
	text, err := receipt.Encode(doc, pr.printer.PrinterEncoding)
	if err != nil {
		return pr.finish(jobID, StatusError, err.Error())
	}

	if err := pr.transport.Send(text, doc.Barcode); err != nil {
		reason := err.Error()
		if reason == "" {
			reason = genericFailure
		}
		return pr.finish(jobID, StatusError, reason)
	}
	return pr.finish(jobID, StatusDone, "")
}

// finish records the outcome and builds the ack. The history write happens
// before the ack is returned, so a logged job is never left unacknowledged
// by a crash in between.
func (pr *Processor) finish(jobID int, status, message string) *Ack {
	// Outcome recording must survive shutdown of the connection context.
	if err := pr.history.AddPrintLog(context.Background(), jobID, status, message); err != nil {
		pr.log.Error("Falha ao gravar histórico", "job_id", jobID, "error", err)
	}
	if pr.collector != nil {
		pr.collector.JobProcessed(pr.printer.DeviceID, status)
	}

	if status == StatusDone {
		pr.log.Info("Job impresso com sucesso", "device_id", pr.printer.DeviceID, "job_id", jobID)
	} else {
		pr.log.Error("Job falhou", "device_id", pr.printer.DeviceID, "job_id", jobID, "message", message)
	}

	return &Ack{Event: EventAck, JobID: jobID, Status: status, Message: message}
}

// emptyContent reports whether the job carries no order payload.
func emptyContent(content json.RawMessage) bool {
	trimmed := bytes.TrimSpace(content)
	return len(trimmed) == 0 ||
		bytes.Equal(trimmed, []byte("null")) ||
		bytes.Equal(trimmed, []byte("{}")) ||
		bytes.Equal(trimmed, []byte("[]"))
}
