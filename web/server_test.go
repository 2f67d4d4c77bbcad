package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rodrigo1488/agent-service-printer-compuchat/logger"
	"github.com/rodrigo1488/agent-service-printer-compuchat/metrics"
	"github.com/rodrigo1488/agent-service-printer-compuchat/storage"
)

type fakeAgent struct {
	mu       sync.Mutex
	restarts int
	status   map[string]string
}

func (f *fakeAgent) Restart() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	return nil
}

func (f *fakeAgent) Status() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func newTestServer(t *testing.T) (*Server, *fakeAgent, *storage.Store) {
	t.Helper()
	store, err := storage.Open("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	agent := &fakeAgent{status: map[string]string{"dev-1": "connected"}}
	log := logger.New(logger.ERROR, "", 10)
	log.SetConsoleOutput(false)
	return NewServer(store, agent, log, metrics.NewCollector()), agent, store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := doJSON(t, srv.Router(), http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Print Agent is running") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestIndexServesUI(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := doJSON(t, srv.Router(), http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "Print Agent") {
		t.Error("page does not mention the agent")
	}
}

func TestConfigRoundTripRestartsAgent(t *testing.T) {
	srv, agent, _ := newTestServer(t)
	router := srv.Router()

	req := SaveConfigRequest{
		WsURL: "wss://api.example.com/ws",
		Printers: []storage.Printer{
			{DeviceID: "dev-1", Token: "tok-1", Name: "Cozinha", PrinterIP: "10.0.0.5"},
		},
	}
	w := doJSON(t, router, http.MethodPost, "/api/config", req)
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d body = %s", w.Code, w.Body.String())
	}
	if agent.restarts != 1 {
		t.Errorf("restarts = %d, want 1", agent.restarts)
	}

	w = doJSON(t, router, http.MethodGet, "/api/config", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got ConfigResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.WsURL != req.WsURL {
		t.Errorf("ws_url = %q", got.WsURL)
	}
	if len(got.Printers) != 1 || got.Printers[0].DeviceID != "dev-1" {
		t.Fatalf("printers = %+v", got.Printers)
	}
	// Defaults filled on save.
	if got.Printers[0].PrinterPort != 9100 || got.Printers[0].PrinterEncoding != "cp850" {
		t.Errorf("defaults not applied: %+v", got.Printers[0])
	}
}

func TestSaveConfigRejectsBadJSON(t *testing.T) {
	srv, agent, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/config", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if agent.restarts != 0 {
		t.Error("agent restarted on invalid request")
	}
}

func TestGetLogs(t *testing.T) {
	srv, _, store := newTestServer(t)
	router := srv.Router()
	for i := 1; i <= 3; i++ {
		if err := store.AddPrintLog(context.Background(), i, "done", ""); err != nil {
			t.Fatalf("add log: %v", err)
		}
	}

	w := doJSON(t, router, http.MethodGet, "/api/logs?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var logs []storage.PrintLog
	if err := json.Unmarshal(w.Body.Bytes(), &logs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(logs) != 2 || logs[0].JobID != 3 {
		t.Fatalf("logs = %+v", logs)
	}

	w = doJSON(t, router, http.MethodGet, "/api/logs?limit=zero", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", w.Code)
	}
}

func TestStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := doJSON(t, srv.Router(), http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["dev-1"] != "connected" {
		t.Errorf("got = %v", got)
	}
}

func TestTestPrintValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Router()

	w := doJSON(t, router, http.MethodPost, "/api/test-print", TestPrintRequest{ConnectionType: "local"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing local name: status = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodPost, "/api/test-print", TestPrintRequest{ConnectionType: "network"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing IP: status = %d", w.Code)
	}
}

func TestTestPrintSendsToPrinter(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64*1024)
		total := 0
		for {
			n, err := conn.Read(buf[total:])
			total += n
			if err != nil {
				break
			}
		}
		received <- buf[:total]
	}()

	srv, _, _ := newTestServer(t)
	addr := ln.Addr().(*net.TCPAddr)
	req := TestPrintRequest{
		ConnectionType:  "network",
		PrinterType:     "raw",
		PrinterIP:       addr.IP.String(),
		PrinterPort:     addr.Port,
		PrinterEncoding: "cp850",
		PaperWidth:      32,
	}
	w := doJSON(t, srv.Router(), http.MethodPost, "/api/test-print", req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	stream := <-received
	if !bytes.HasPrefix(stream, []byte{0x1B, 0x40}) {
		t.Error("stream does not start with reset")
	}
	if !bytes.Contains(stream, []byte("TESTE")) {
		t.Error("test page content missing from stream")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.collector.JobProcessed("dev-1", "done")
	w := doJSON(t, srv.Router(), http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "print_agent_jobs_total") {
		t.Error("jobs counter missing from exposition")
	}
}
