package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rodrigo1488/agent-service-printer-compuchat/storage"
)

func TestNextDelaySequence(t *testing.T) {
	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 60 * time.Second, 60 * time.Second,
	}
	d := retryFloor
	for i, w := range want {
		if d != w {
			t.Fatalf("attempt %d: delay = %v, want %v", i, d, w)
		}
		d = nextDelay(d)
	}
}

func TestManagerMissingConfigStaysIdle(t *testing.T) {
	store, _ := storage.Open("")
	defer store.Close()

	m := NewManager("", testPrinter(), store, testLogger(), nil)
	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("manager without ws_url should return immediately, not retry")
	}
	if m.State() != StateIdle {
		t.Errorf("state = %s, want idle", m.State())
	}
}

func TestBackoffResetsAfterActiveConnection(t *testing.T) {
	var (
		mu       sync.Mutex
		attempts []time.Time
	)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts = append(attempts, time.Now())
		n := len(attempts)
		mu.Unlock()

		// Attempts 1, 2 and 4 fail; attempt 3 becomes active (ready
		// received) and is closed by the server right after.
		if n == 3 {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				t.Errorf("upgrade failed: %v", err)
				return
			}
			conn.WriteJSON(map[string]string{"event": "ready"})
			conn.Close()
			return
		}
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store, _ := storage.Open("")
	defer store.Close()

	m := NewManager(wsURL(srv), testPrinter(), store, testLogger(), nil)
	m.processor.transport = &fakeTransport{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	deadline := time.After(15 * time.Second)
	for {
		mu.Lock()
		n := len(attempts)
		mu.Unlock()
		if n >= 4 {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatalf("only %d connection attempts before deadline", n)
		case <-time.After(50 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop after cancel")
	}

	mu.Lock()
	gapBeforeActive := attempts[2].Sub(attempts[1])
	gapAfterActive := attempts[3].Sub(attempts[2])
	mu.Unlock()

	// Two failures double the delay to 2s before the active attempt.
	if gapBeforeActive < 1800*time.Millisecond {
		t.Errorf("delay before active connection = %v, want ~2s", gapBeforeActive)
	}
	// The active connection resets the delay to the 1s floor; without the
	// reset the next gap would be ~4s.
	if gapAfterActive > 2500*time.Millisecond {
		t.Errorf("delay after active connection = %v, want ~1s (reset to floor)", gapAfterActive)
	}
}

// wsTestServer upgrades one connection and hands it to handler.
func wsTestServer(t *testing.T, handler func(*testing.T, *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization header = %q", got)
		}
		if got := r.Header.Get("X-Device-Id"); got != "dev-1" {
			t.Errorf("X-Device-Id header = %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		handler(t, conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestManagerEndToEnd(t *testing.T) {
	store, _ := storage.Open("")
	defer store.Close()

	acks := make(chan Ack, 2)
	srv := wsTestServer(t, func(t *testing.T, conn *websocket.Conn) {
		conn.WriteJSON(map[string]string{"event": "ready"})
		conn.WriteMessage(websocket.TextMessage, validJob(42))

		var ack Ack
		if err := conn.ReadJSON(&ack); err != nil {
			t.Errorf("reading ack: %v", err)
			return
		}
		acks <- ack
	})
	defer srv.Close()

	ft := &fakeTransport{}
	m := NewManager(wsURL(srv), testPrinter(), store, testLogger(), nil)
	m.processor.transport = ft

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	select {
	case ack := <-acks:
		if ack.JobID != 42 || ack.Status != "done" {
			t.Errorf("wrong ack: %+v", ack)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no ack received")
	}

	if ft.sends != 1 {
		t.Errorf("transport invoked %d times, want 1", ft.sends)
	}
	logs, _ := store.GetPrintLogs(context.Background(), 10)
	if len(logs) != 1 || logs[0].JobID != 42 {
		t.Errorf("history wrong: %+v", logs)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop after cancel")
	}
	if m.State() != StateStopped {
		t.Errorf("state = %s, want stopped", m.State())
	}
}

func TestManagerAcksInArrivalOrder(t *testing.T) {
	store, _ := storage.Open("")
	defer store.Close()

	acks := make(chan Ack, 3)
	srv := wsTestServer(t, func(t *testing.T, conn *websocket.Conn) {
		for _, id := range []int{1, 2, 3} {
			conn.WriteMessage(websocket.TextMessage, validJob(id))
		}
		for i := 0; i < 3; i++ {
			var ack Ack
			if err := conn.ReadJSON(&ack); err != nil {
				t.Errorf("reading ack: %v", err)
				return
			}
			acks <- ack
		}
	})
	defer srv.Close()

	m := NewManager(wsURL(srv), testPrinter(), store, testLogger(), nil)
	m.processor.transport = &fakeTransport{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	for _, want := range []int{1, 2, 3} {
		select {
		case ack := <-acks:
			if ack.JobID != want {
				t.Fatalf("ack out of order: got job %d, want %d", ack.JobID, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("ack %d never arrived", want)
		}
	}
}

// slowTransport blocks long enough for the stop signal to land mid-job.
type slowTransport struct {
	fakeTransport
	delay time.Duration
}

func (s *slowTransport) Send(text, barcode []byte) error {
	time.Sleep(s.delay)
	return s.fakeTransport.Send(text, barcode)
}

func TestManagerStopMidJobStillAcks(t *testing.T) {
	store, _ := storage.Open("")
	defer store.Close()

	jobSent := make(chan struct{})
	acks := make(chan Ack, 1)
	srv := wsTestServer(t, func(t *testing.T, conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, validJob(99))
		close(jobSent)

		var ack Ack
		if err := conn.ReadJSON(&ack); err != nil {
			t.Errorf("reading ack: %v", err)
			return
		}
		acks <- ack
	})
	defer srv.Close()

	m := NewManager(wsURL(srv), testPrinter(), store, testLogger(), nil)
	m.processor.transport = &slowTransport{delay: 300 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	// Cancel while the job is (very likely) still printing.
	<-jobSent
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case ack := <-acks:
		if ack.JobID != 99 || ack.Status != "done" {
			t.Errorf("wrong ack after stop: %+v", ack)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight job was not acknowledged before shutdown")
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not exit after the in-flight job finished")
	}
}

func TestSupervisorOneWorkerPerDevice(t *testing.T) {
	store, _ := storage.Open("")
	defer store.Close()

	ctx := context.Background()
	store.SetConfig(ctx, "ws_url", "wss://api.example.com/ws/print")
	store.SetPrinters(ctx, []storage.Printer{
		{DeviceID: "dev-a", Token: "ta"},
		{DeviceID: "dev-a", Token: "ta-dup"},
		{DeviceID: "dev-b", Token: "tb"},
		{DeviceID: "", Token: "orphan"},
	})

	s := NewSupervisor(store, testLogger(), nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	status := s.Status()
	if len(status) != 2 {
		t.Fatalf("got %d workers, want 2 (dedup + skip invalid): %v", len(status), status)
	}
	for _, dev := range []string{"dev-a", "dev-b"} {
		if _, ok := status[dev]; !ok {
			t.Errorf("missing worker for %s", dev)
		}
	}
}

func TestSupervisorStopIsIdempotent(t *testing.T) {
	store, _ := storage.Open("")
	defer store.Close()

	s := NewSupervisor(store, testLogger(), nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Stop()
	s.Stop() // second stop must not panic or hang

	if err := s.Start(); err != nil {
		t.Fatalf("restart after stop failed: %v", err)
	}
	s.Stop()
}
