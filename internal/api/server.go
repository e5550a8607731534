// Package api handles HTTP and WebSocket API endpoints
package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/thereceipt/receipt-interpreter/internal/command"
	"github.com/thereceipt/receipt-interpreter/internal/interpreter"
	"github.com/thereceipt/receipt-interpreter/internal/metrics"
	"github.com/thereceipt/receipt-interpreter/internal/printer"
	"github.com/thereceipt/receipt-interpreter/internal/renderer"
	"github.com/thereceipt/receipt-interpreter/pkg/layout"
	"github.com/thereceipt/receipt-interpreter/pkg/order"
	"github.com/thereceipt/receipt-interpreter/pkg/printcmd"
)

// Options configures a Server
type Options struct {
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics // nil disables /metrics
	Interpreter []interpreter.Option
	PaperWidth  string // default for layouts and printers without one
}

// Server is the API server
type Server struct {
	router     *gin.Engine
	manager    *printer.Manager
	queue      *printer.PrintQueue
	executor   *command.Executor
	interp     *interpreter.Interpreter
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	paperWidth string
	upgrader   websocket.Upgrader
	hub        *hub
}

// NewServer creates a new API server
func NewServer(manager *printer.Manager, queue *printer.PrintQueue, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:     gin.New(),
		manager:    manager,
		queue:      queue,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		paperWidth: opts.PaperWidth,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		hub: newHub(),
	}
	if s.paperWidth == "" {
		s.paperWidth = layout.Paper80
	}

	interpOpts := append([]interpreter.Option{
		interpreter.WithLogger(s.logger),
		interpreter.WithUnresolvedHook(s.observeUnresolved),
	}, opts.Interpreter...)
	s.interp = interpreter.New(interpOpts...)
	s.executor = command.NewExecutor(manager, queue, interpOpts...)

	s.router.Use(gin.Recovery(), requestLogger(s.logger), corsMiddleware())
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	// Receipts
	s.router.POST("/interpret", s.handleInterpret)
	s.router.POST("/render", s.handleRender)
	s.router.POST("/print", s.handlePrint)

	// Printers
	s.router.GET("/printers", s.handleGetPrinters)
	s.router.POST("/printers/detect", s.handleDetect)
	s.router.POST("/printer/:id/name", s.handleSetPrinterName)
	s.router.POST("/printer/:id/paper", s.handleSetPaperWidth)
	s.router.POST("/printer/network", s.handleAddNetworkPrinter)

	// Jobs
	s.router.GET("/jobs", s.handleGetJobs)
	s.router.DELETE("/jobs", s.handleClearJobs)
	s.router.GET("/job/:id", s.handleGetJob)

	// Command endpoint
	s.router.POST("/command", s.handleCommand)

	// WebSocket
	s.router.GET("/ws", s.handleWebSocket)

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}

// Handler exposes the router for an http.Server
func (s *Server) Handler() http.Handler {
	return s.router
}

// receiptRequest names a layout and an optional order, each inline or as
// an http(s) URL. Server-side paths are left to the console commands.
type receiptRequest struct {
	PrinterID string          `json:"printer_id"`
	Layout    json.RawMessage `json:"layout"`
	LayoutURL string          `json:"layout_url"`
	Order     json.RawMessage `json:"order"`
	OrderURL  string          `json:"order_url"`
}

// requestError carries the HTTP status for a failed receipt request
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &requestError{status: http.StatusBadRequest, err: err}
}

func (s *Server) loadReceipt(req *receiptRequest) (*layout.Document, *order.Order, error) {
	var layoutData []byte
	var err error

	switch {
	case req.LayoutURL != "":
		layoutData, err = s.fetch(req.LayoutURL)
	case len(req.Layout) > 0:
		layoutData = req.Layout
	default:
		return nil, nil, badRequest(errors.New("layout or layout_url is required"))
	}
	if err != nil {
		return nil, nil, badRequest(errors.Wrap(err, "failed to load layout"))
	}

	doc, err := layout.Parse(layoutData)
	if err != nil {
		return nil, nil, badRequest(err)
	}

	orderData := []byte(req.Order)
	if req.OrderURL != "" {
		if orderData, err = s.fetch(req.OrderURL); err != nil {
			return nil, nil, badRequest(errors.Wrap(err, "failed to load order"))
		}
	}
	o, err := order.Parse(orderData)
	if err != nil {
		return nil, nil, badRequest(err)
	}

	return doc, o, nil
}

// fetch loads a remote layout or order. Anything but an http(s) URL is
// refused so callers cannot read files on the server.
func (s *Server) fetch(src string) ([]byte, error) {
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Errorf("not an http(s) URL: %q", src)
	}
	return s.executor.Load(src)
}

// interpret loads and interprets a request, recording the outcome. opts
// apply on top of the server's interpreter settings.
func (s *Server) interpret(req *receiptRequest, opts ...interpreter.Option) (*layout.Document, []printcmd.Command, error) {
	doc, o, err := s.loadReceipt(req)
	if err != nil {
		s.observeInterpretation(0, err)
		return nil, nil, err
	}

	in := s.interp
	if doc.PaperWidth == "" && s.paperWidth != "" {
		opts = append([]interpreter.Option{interpreter.WithPaperWidth(s.paperWidth)}, opts...)
	}
	if len(opts) > 0 {
		in = in.With(opts...)
	}

	cmds, err := in.Interpret(doc, o)
	s.observeInterpretation(len(cmds), err)
	if err != nil {
		return nil, nil, badRequest(err)
	}
	return doc, cmds, nil
}

// errorBody describes err, adding the element position for layout faults
func errorBody(err error) gin.H {
	body := gin.H{"success": false, "error": err.Error()}
	var se *layout.StructuralError
	if errors.As(err, &se) {
		body["index"] = se.Index
		body["type"] = se.Type
	}
	return body
}

func statusOf(err error) int {
	var re *requestError
	if errors.As(err, &re) {
		return re.status
	}
	return http.StatusInternalServerError
}

// handleInterpret returns the command sequence for a layout and order
func (s *Server) handleInterpret(c *gin.Context) {
	var req receiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	_, cmds, err := s.interpret(&req)
	if err != nil {
		c.JSON(statusOf(err), errorBody(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"commands": cmds,
		"count":    len(cmds),
	})
}

// handleRender returns a preview: PNG by default, plain text with
// ?format=text. ?width scales the PNG down.
func (s *Server) handleRender(c *gin.Context) {
	var req receiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	doc, cmds, err := s.interpret(&req)
	if err != nil {
		c.JSON(statusOf(err), errorBody(err))
		return
	}

	paperWidth := doc.PaperWidth
	if paperWidth == "" {
		paperWidth = s.paperWidth
	}

	if strings.EqualFold(c.Query("format"), "text") {
		text, err := renderer.RenderText(cmds, renderer.ColumnsFor(paperWidth))
		if err != nil {
			c.JSON(http.StatusInternalServerError, errorBody(err))
			return
		}
		c.String(http.StatusOK, text)
		return
	}

	img, err := renderer.Render(cmds, paperWidth)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}
	if w := c.Query("width"); w != "" {
		width, err := strconv.Atoi(w)
		if err != nil || width <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid width: " + w})
			return
		}
		img = renderer.Thumbnail(img, width)
	}

	c.Header("Content-Type", "image/png")
	c.Status(http.StatusOK)
	if err := renderer.WritePNG(c.Writer, img); err != nil {
		s.logger.Error().Err(err).Msg("failed to write preview")
	}
}

// handlePrint interprets a receipt and queues it for a printer
func (s *Server) handlePrint(c *gin.Context) {
	var req receiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	jobID, err := s.print(&req)
	if err != nil {
		c.JSON(statusOf(err), errorBody(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"job_id":  jobID,
	})
}

func (s *Server) print(req *receiptRequest) (string, error) {
	if req.PrinterID == "" {
		return "", badRequest(errors.New("printer_id is required"))
	}
	p := s.manager.GetPrinter(req.PrinterID)
	if p == nil {
		return "", &requestError{status: http.StatusNotFound, err: errors.Errorf("printer not found: %s", req.PrinterID)}
	}

	_, cmds, err := s.interpret(req, interpreter.WithPaperWidth(p.PaperWidth))
	if err != nil {
		return "", err
	}

	jobID, err := s.queue.Enqueue(req.PrinterID, cmds)
	if err != nil {
		return "", errors.Wrap(err, "failed to queue receipt")
	}
	return jobID, nil
}

// handleGetPrinters returns all known printers
func (s *Server) handleGetPrinters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"printers": s.manager.GetAllPrinters(),
	})
}

// handleDetect rescans local devices
func (s *Server) handleDetect(c *gin.Context) {
	printers, err := s.manager.DetectPrinters()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"printers": printers})
}

// handleSetPrinterName sets a custom name for a printer
func (s *Server) handleSetPrinterName(c *gin.Context) {
	printerID := c.Param("id")

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	if !s.manager.SetPrinterName(printerID, req.Name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleSetPaperWidth records the paper a printer is loaded with
func (s *Server) handleSetPaperWidth(c *gin.Context) {
	printerID := c.Param("id")

	var req struct {
		PaperWidth string `json:"paper_width"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if s.manager.GetPrinter(printerID) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
		return
	}
	if err := s.manager.SetPaperWidth(printerID, req.PaperWidth); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleAddNetworkPrinter manually adds a network printer
func (s *Server) handleAddNetworkPrinter(c *gin.Context) {
	var req struct {
		Host        string `json:"host" binding:"required"`
		Port        int    `json:"port"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "host is required"})
		return
	}

	if req.Port == 0 {
		req.Port = 9100
	}
	if req.Port < 0 || req.Port > 65535 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid port"})
		return
	}

	printerID := s.manager.AddNetworkPrinter(req.Host, req.Port, req.Description)
	p := s.manager.GetPrinter(printerID)
	s.BroadcastPrinterAdded(p)

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"printer_id": printerID,
		"printer":    p,
	})
}

// handleGetJobs returns all print jobs
func (s *Server) handleGetJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.queue.GetAllJobs()})
}

// handleClearJobs drops completed jobs
func (s *Server) handleClearJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cleared": s.queue.ClearCompleted()})
}

// handleGetJob returns a specific print job
func (s *Server) handleGetJob(c *gin.Context) {
	job := s.queue.GetJob(c.Param("id"))
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// handleCommand handles command execution requests
func (s *Server) handleCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}

	result := s.executor.Execute(req.Command)
	if !result.Success {
		c.JSON(http.StatusBadRequest, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) observeInterpretation(n int, err error) {
	if s.metrics != nil {
		s.metrics.ObserveInterpretation(n, err)
	}
}

func (s *Server) observeUnresolved(field string, p interpreter.Presence) {
	if s.metrics != nil {
		s.metrics.ObserveUnresolved(p.String())
	}
}

// ObserveJob forwards a job transition to metrics and WebSocket clients
func (s *Server) ObserveJob(job printer.PrintJob) {
	if s.metrics != nil {
		s.metrics.ObserveJob(string(job.Status))
	}
	s.BroadcastJobUpdate(job)
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
