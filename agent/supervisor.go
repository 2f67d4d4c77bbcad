package agent

import (
	"context"
	"sync"

	"github.com/rodrigo1488/agent-service-printer-compuchat/logger"
	"github.com/rodrigo1488/agent-service-printer-compuchat/metrics"
	"github.com/rodrigo1488/agent-service-printer-compuchat/storage"
)

// Supervisor starts and stops one connection worker per configured
// printer. It guarantees at most one live worker per device_id.
type Supervisor struct {
	store     *storage.Store
	log       *logger.Logger
	collector *metrics.Collector

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	managers map[string]*Manager
}

// NewSupervisor wires the supervisor to its settings store.
func NewSupervisor(store *storage.Store, log *logger.Logger, collector *metrics.Collector) *Supervisor {
	return &Supervisor{
		store:     store,
		log:       log,
		collector: collector,
		managers:  make(map[string]*Manager),
	}
}

// Start loads the connection URL and printer list and launches one worker
// per usable printer. Calling Start while running is a no-op.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil
	}

	ctx := context.Background()
	wsURL, err := s.store.GetConfig(ctx, "ws_url")
	if err != nil {
		return err
	}
	printers, err := s.store.GetPrinters(ctx)
	if err != nil {
		return err
	}

	if wsURL == "" {
		s.log.Warn("URL WebSocket não configurada; configure pela interface web")
	}
	if len(printers) == 0 {
		s.log.Warn("Nenhuma impressora configurada; adicione pela interface web")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.managers = make(map[string]*Manager)

	for _, p := range printers {
		if p.DeviceID == "" || p.Token == "" {
			s.log.Warn("Impressora ignorada: sem device_id ou token", "name", p.Name)
			continue
		}
		if _, exists := s.managers[p.DeviceID]; exists {
			s.log.Warn("device_id duplicado ignorado", "device_id", p.DeviceID)
			continue
		}

		m := NewManager(wsURL, p, s.store, s.log, s.collector)
		s.managers[p.DeviceID] = m
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			m.Run(runCtx)
		}()
		s.log.Info("Worker iniciado", "device_id", p.DeviceID, "name", p.Name)
	}
	return nil
}

// Stop signals every worker and waits for them to exit. Workers observe
// the signal at their reconnect boundary, so in-flight jobs finish first.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.log.Info("Todos os workers finalizados")
}

// Restart tears down all workers and starts fresh from the stored
// configuration. Used by the web UI after settings change.
func (s *Supervisor) Restart() error {
	s.Stop()
	return s.Start()
}

// Status reports each device's connection state.
func (s *Supervisor) Status() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make(map[string]string, len(s.managers))
	for deviceID, m := range s.managers {
		status[deviceID] = m.State()
	}
	return status
}
