// Package web serves the local configuration UI and JSON API. The UI is a
// single embedded page talking to the API; everything binds to localhost
// on the operator's machine, there is no authentication layer.
package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rodrigo1488/agent-service-printer-compuchat/logger"
	"github.com/rodrigo1488/agent-service-printer-compuchat/metrics"
	"github.com/rodrigo1488/agent-service-printer-compuchat/printer"
	"github.com/rodrigo1488/agent-service-printer-compuchat/receipt"
	"github.com/rodrigo1488/agent-service-printer-compuchat/storage"
)

// Agent is the supervisor surface the UI needs: restart connections after
// a config save and report per-device connection state.
type Agent interface {
	Restart() error
	Status() map[string]string
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type ConfigResponse struct {
	WsURL    string            `json:"ws_url"`
	Printers []storage.Printer `json:"printers"`
}

type SaveConfigRequest struct {
	WsURL    string            `json:"ws_url"`
	Printers []storage.Printer `json:"printers"`
}

// TestPrintRequest carries the printer parameters to exercise. The UI
// sends the form values directly so a printer can be tested before it is
// saved.
type TestPrintRequest struct {
	ConnectionType   string `json:"connection_type"`
	PrinterType      string `json:"printer_type"`
	PrinterIP        string `json:"printer_ip"`
	PrinterPort      int    `json:"printer_port"`
	PrinterNameLocal string `json:"printer_name_local"`
	PrinterEncoding  string `json:"printer_encoding"`
	PaperWidth       int    `json:"paper_width"`
}

// Server is the local HTTP server for configuration and diagnostics.
type Server struct {
	store     *storage.Store
	agent     Agent
	log       *logger.Logger
	collector *metrics.Collector

	httpServer *http.Server
}

func NewServer(store *storage.Store, agent Agent, log *logger.Logger, collector *metrics.Collector) *Server {
	return &Server{
		store:     store,
		agent:     agent,
		log:       log,
		collector: collector,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", s.index)
	r.GET("/health", s.health)

	api := r.Group("/api")
	api.GET("/config", s.getConfig)
	api.POST("/config", s.saveConfig)
	api.GET("/logs", s.getLogs)
	api.GET("/agent/logs", s.getAgentLogs)
	api.GET("/status", s.getStatus)
	api.POST("/test-print", s.testPrint)

	r.GET("/metrics", gin.WrapH(s.collector.Handler()))

	return r
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.log.Info("Web UI listening", "addr", addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Print Agent is running"})
}

func (s *Server) getConfig(c *gin.Context) {
	wsURL, err := s.store.GetConfig(c.Request.Context(), "ws_url")
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	printers, err := s.store.GetPrinters(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, ConfigResponse{WsURL: wsURL, Printers: printers})
}

func (s *Server) saveConfig(c *gin.Context) {
	var req SaveConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	ctx := c.Request.Context()
	if err := s.store.SetConfig(ctx, "ws_url", req.WsURL); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if err := s.store.SetPrinters(ctx, req.Printers); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	s.log.Info("Configuration saved", "printers", len(req.Printers))
	if s.agent != nil {
		if err := s.agent.Restart(); err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) getLogs(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}
	logs, err := s.store.GetPrintLogs(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (s *Server) getAgentLogs(c *gin.Context) {
	c.JSON(http.StatusOK, s.log.Buffer())
}

func (s *Server) getStatus(c *gin.Context) {
	if s.agent == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.agent.Status())
}

func (s *Server) testPrint(c *gin.Context) {
	var req TestPrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if req.ConnectionType == "local" && req.PrinterNameLocal == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Nome da impressora local não especificado"})
		return
	}
	if req.ConnectionType != "local" && req.PrinterIP == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "IP da impressora não especificado"})
		return
	}

	width := req.PaperWidth
	if width == 0 {
		width = 32
	}
	doc, err := receipt.Format(testOrder(), width)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	text, err := receipt.Encode(doc, req.PrinterEncoding)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	t := printer.New(printer.Config{
		ConnectionType: req.ConnectionType,
		PrinterType:    req.PrinterType,
		Host:           req.PrinterIP,
		Port:           req.PrinterPort,
		LocalName:      req.PrinterNameLocal,
		Encoding:       req.PrinterEncoding,
	})
	if err := t.Send(text, doc.Barcode); err != nil {
		s.log.Warn("Falha ao imprimir página de teste", "printer", t.String(), "error", err.Error())
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	s.log.Info("Página de teste enviada", "printer", t.String())
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Teste enviado com sucesso para " + t.String()})
}

// testOrder is the sample receipt used by the test print button.
func testOrder() receipt.Order {
	return receipt.Order{
		FormName: "TESTE DE IMPRESSAO",
		Protocol: "TESTE",
		Responder: receipt.Responder{
			Name: "Página de Teste",
		},
		MenuItems: []receipt.MenuItem{
			{ProductName: "Página de teste", Quantity: 1, ProductValue: 0, Grupo: "Teste"},
		},
		SubmittedAt: time.Now().Format(time.RFC3339),
	}
}
