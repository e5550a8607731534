package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/thereceipt/receipt-interpreter/internal/api"
	"github.com/thereceipt/receipt-interpreter/internal/command"
	"github.com/thereceipt/receipt-interpreter/internal/config"
	"github.com/thereceipt/receipt-interpreter/internal/interpreter"
	"github.com/thereceipt/receipt-interpreter/internal/logging"
	"github.com/thereceipt/receipt-interpreter/internal/metrics"
	"github.com/thereceipt/receipt-interpreter/internal/printer"
	"github.com/thereceipt/receipt-interpreter/internal/registry"
	"github.com/thereceipt/receipt-interpreter/internal/renderer"
	"github.com/thereceipt/receipt-interpreter/internal/tui"
	"golang.org/x/sync/errgroup"
)

// Version is set during build via ldflags
var Version = "dev"

func main() {
	var (
		configPath string
		port       int
		headless   bool
		layoutSrc  string
		orderSrc   string
	)
	flag.StringVar(&configPath, "config", os.Getenv("RECEIPT_CONFIG"), "Path to a YAML config file")
	flag.IntVar(&port, "port", 0, "API port (overrides config)")
	flag.BoolVar(&headless, "headless", false, "Run without the terminal UI")
	flag.StringVar(&layoutSrc, "layout", "", "Layout to open in the preview tab")
	flag.StringVar(&orderSrc, "order", "", "Order to open in the preview tab")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	if err := run(cfg, headless, layoutSrc, orderSrc); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, headless bool, layoutSrc, orderSrc string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The TUI owns the terminal, so its logs go to the status bar once it exists
	var logger zerolog.Logger
	logOut := &deferredWriter{}
	if headless {
		logger = logging.New(cfg.Log, "receipt-interpreter")
	} else {
		logger = logging.NewWithWriter(cfg.Log, "receipt-interpreter", logOut)
	}
	logger.Info().Str("version", Version).Msg("starting")

	reg, err := registry.New(cfg.Printer.RegistryPath, registry.WithLogger(logger))
	if err != nil {
		return errors.Wrap(err, "failed to open printer registry")
	}
	manager := printer.NewManager(reg, logger)
	pool := printer.NewConnectionPool(cfg.Printer.DialTimeout, logger)
	defer pool.DisconnectAll()

	queueOpts := []printer.QueueOption{
		printer.WithMaxRetries(cfg.Printer.MaxRetries),
		printer.WithRetryDelay(cfg.Printer.RetryDelay),
		printer.WithQueueLogger(logger),
	}
	if cfg.Printer.Raster {
		queueOpts = append(queueOpts, printer.WithEncoder(printer.RasterEncoder(renderer.Render, cfg.Receipt.PaperWidth)))
	}
	queue := printer.NewPrintQueue(pool, manager, queueOpts...)
	defer queue.Stop()

	interpOpts := []interpreter.Option{
		interpreter.WithDividerWidth(cfg.Receipt.DividerWidth),
		interpreter.WithLocation(cfg.Location()),
	}

	m := metrics.New()
	server := api.NewServer(manager, queue, api.Options{
		Logger:      logger,
		Metrics:     m,
		Interpreter: interpOpts,
		PaperWidth:  cfg.Receipt.PaperWidth,
	})
	queue.OnJobUpdate(server.ObserveJob)

	var app *tui.App
	if !headless {
		executor := command.NewExecutor(manager, queue, append([]interpreter.Option{interpreter.WithLogger(logger)}, interpOpts...)...)
		app = tui.NewApp(manager, queue, executor, tui.Options{
			Port:        strconv.Itoa(cfg.Server.Port),
			Interpreter: interpOpts,
			Layout:      layoutSrc,
			Order:       orderSrc,
		})
		logOut.Set(app.LogWriter())
	}

	monitor := printer.NewMonitor(manager, cfg.Printer.MonitorInterval, logger)
	monitor.OnPrinterAdded(func(p *printer.Printer) {
		logger.Info().Str("printer", p.DisplayName()).Msg("printer connected")
		server.BroadcastPrinterAdded(p)
		if app != nil {
			app.RefreshPrinters()
		}
	})
	monitor.OnPrinterRemoved(func(p *printer.Printer) {
		logger.Info().Str("printer", p.DisplayName()).Msg("printer disconnected")
		_ = pool.Disconnect(p.ID)
		server.BroadcastPrinterRemoved(p)
		if app != nil {
			app.RefreshPrinters()
		}
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return monitor.Run(ctx)
	})

	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "API server")
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		if app != nil {
			app.Quit()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if app != nil {
		g.Go(func() error {
			// quitting the TUI stops the server
			defer stop()
			return app.Run()
		})
	}

	return g.Wait()
}

// deferredWriter drops writes until a target is set
type deferredWriter struct {
	mu     sync.Mutex
	target io.Writer
}

func (w *deferredWriter) Set(target io.Writer) {
	w.mu.Lock()
	w.target = target
	w.mu.Unlock()
}

func (w *deferredWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.target == nil {
		return len(p), nil
	}
	return w.target.Write(p)
}
