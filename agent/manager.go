package agent

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rodrigo1488/agent-service-printer-compuchat/logger"
	"github.com/rodrigo1488/agent-service-printer-compuchat/metrics"
	"github.com/rodrigo1488/agent-service-printer-compuchat/storage"
)

// Connection states reported through Status.
const (
	StateIdle         = "idle"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateReconnecting = "reconnecting"
	StateStopped      = "stopped"
)

// Reconnect backoff bounds: 1s floor, doubled per failed attempt, 60s cap.
const (
	retryFloor = 1 * time.Second
	retryCap   = 60 * time.Second
)

// Heartbeat: a ping every pingInterval, with pongWait to answer before the
// connection is considered dead.
const (
	pingInterval     = 30 * time.Second
	pongWait         = 10 * time.Second
	writeTimeout     = 10 * time.Second
	handshakeTimeout = 10 * time.Second
)

// Manager owns the persistent connection for one printer device: dial,
// authenticate, heartbeat, dispatch jobs one at a time, reconnect with
// backoff. All of its timing state is local; managers never share
// anything but the stop context and the history store.
type Manager struct {
	printer   storage.Printer
	wsURL     string
	processor *Processor
	log       *logger.Logger
	collector *metrics.Collector

	state atomic.Value // string
}

// NewManager builds the worker for one printer.
func NewManager(wsURL string, p storage.Printer, history History, log *logger.Logger, collector *metrics.Collector) *Manager {
	m := &Manager{
		printer:   p,
		wsURL:     wsURL,
		processor: NewProcessor(p, history, log, collector),
		log:       log,
		collector: collector,
	}
	m.state.Store(StateIdle)
	return m
}

// State returns the current connection state name.
func (m *Manager) State() string {
	return m.state.Load().(string)
}

func (m *Manager) setState(s string) {
	m.state.Store(s)
}

// Run connects and serves until ctx is cancelled. Incomplete credentials
// are a configuration error: logged once, no retry loop started. The stop
// signal is only observed between connections; an in-flight job always
// finishes and acknowledges first.
func (m *Manager) Run(ctx context.Context) {
	if m.wsURL == "" || m.printer.Token == "" || m.printer.DeviceID == "" {
		m.log.Warn("Impressora sem ws_url/token/device_id, conexão não iniciada",
			"device_id", m.printer.DeviceID)
		return
	}

	delay := retryFloor
	for {
		m.setState(StateConnecting)
		m.log.Info("Conectando ao SaaS", "device_id", m.printer.DeviceID, "url", m.wsURL)

		active, err := m.runConnection(ctx)
		if active {
			delay = retryFloor
		}
		if err != nil {
			m.log.Error("Conexão encerrada", "device_id", m.printer.DeviceID, "error", err)
		}

		// Reconnect boundary: the only place the stop signal is honored.
		if ctx.Err() != nil {
			m.setState(StateStopped)
			m.log.Info("Worker finalizado", "device_id", m.printer.DeviceID)
			return
		}

		m.setState(StateReconnecting)
		if m.collector != nil {
			m.collector.Reconnect(m.printer.DeviceID)
		}
		m.log.Info("Reconectando", "device_id", m.printer.DeviceID, "delay", delay)

		select {
		case <-ctx.Done():
			m.setState(StateStopped)
			m.log.Info("Worker finalizado", "device_id", m.printer.DeviceID)
			return
		case <-time.After(delay):
		}
		delay = nextDelay(delay)
	}
}

// nextDelay doubles the backoff up to the cap.
func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > retryCap {
		d = retryCap
	}
	return d
}

// runConnection dials, authenticates and serves one connection until it
// fails or ctx is cancelled. It reports whether the connection became
// active (first event or pong received), which resets the retry delay.
func (m *Manager) runConnection(ctx context.Context) (active bool, err error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+m.printer.Token)
	header.Set("X-Device-Id", m.printer.DeviceID)

	dialer := &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, m.wsURL, header)
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized {
				return false, fmt.Errorf("autenticação recusada (401): verifique token e device_id: %w", err)
			}
			return false, fmt.Errorf("handshake falhou (status %d): %w", resp.StatusCode, err)
		}
		return false, fmt.Errorf("conexão falhou: %w", err)
	}
	defer conn.Close()

	m.setState(StateConnected)
	if m.collector != nil {
		m.collector.SetConnected(m.printer.DeviceID, true)
		defer m.collector.SetConnected(m.printer.DeviceID, false)
	}

	conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	conn.SetPongHandler(func(string) error {
		active = true
		return conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	// Heartbeat. WriteControl is safe alongside the read loop's data
	// writes, so no write lock is needed.
	pingCtx, stopPing := context.WithCancel(context.Background())
	defer stopPing()
	go m.pingLoop(pingCtx, conn)

	// Cancellation unblocks a pending read without touching writes, so an
	// in-flight job still prints and acknowledges before the loop exits.
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-pingCtx.Done():
		}
	}()

	for {
		if ctx.Err() != nil {
			return active, nil
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return active, nil
			}
			return active, fmt.Errorf("leitura falhou: %w", err)
		}
		active = true

		// Synchronous dispatch: at most one job in flight per connection,
		// acks in arrival order.
		if ack := m.processor.Process(message); ack != nil {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ack); err != nil {
				return active, fmt.Errorf("envio de ack falhou: %w", err)
			}
		}
	}
}

func (m *Manager) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(pongWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
