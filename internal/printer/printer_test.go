package printer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/thereceipt/receipt-interpreter/internal/registry"
	"github.com/thereceipt/receipt-interpreter/pkg/printcmd"
)

type fakeConn struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	fail   int
	short  bool
	closed int
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail > 0 {
		c.fail--
		return 0, errors.New("paper jam")
	}
	if c.short {
		return len(p) / 2, nil
	}
	return c.buf.Write(p)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buf.Bytes()...)
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	reg, err := registry.New(filepath.Join(t.TempDir(), "printers.json"))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	m := NewManager(reg, zerolog.Nop())
	m.detectors = map[string]detector{}
	return m
}

func newTestPool(conn *fakeConn) *ConnectionPool {
	pool := NewConnectionPool(time.Second, zerolog.Nop())
	pool.SetDialer(func(ctx context.Context, p *Printer) (Connection, error) {
		return conn, nil
	})
	return pool
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var receipt = []printcmd.Command{
	printcmd.SetAlignment(printcmd.AlignCenter),
	printcmd.PrintText("BYTE BURGERS", printcmd.Style{Bold: true, Size: printcmd.SizeLarge}),
	printcmd.FeedLines(1),
	printcmd.CutPaper(),
}

func TestEncodeCommands(t *testing.T) {
	data, err := EncodeCommands(receipt)
	if err != nil {
		t.Fatalf("EncodeCommands: %v", err)
	}

	if !bytes.HasPrefix(data, []byte{ESC, '@'}) {
		t.Error("Expected stream to start with ESC @")
	}
	if !bytes.HasSuffix(data, []byte{GS, 'V', 0}) {
		t.Error("Expected stream to end with a full cut")
	}

	checks := []struct {
		name string
		seq  []byte
	}{
		{"center", []byte{ESC, 'a', 1}},
		{"bold on", []byte{ESC, 'E', 1}},
		{"large", []byte{GS, '!', 0x11}},
		{"text", append([]byte("BYTE BURGERS"), LF)},
	}
	for _, c := range checks {
		if !bytes.Contains(data, c.seq) {
			t.Errorf("Expected %s sequence % X in output", c.name, c.seq)
		}
	}
}

func TestEncodeCommands_Rejects(t *testing.T) {
	_, err := EncodeCommands([]printcmd.Command{printcmd.FeedLines(0)})
	if err == nil {
		t.Fatal("Expected error for zero line feed")
	}
	var argErr *printcmd.ArgumentError
	if !errors.As(err, &argErr) {
		t.Errorf("Expected ArgumentError, got %v", err)
	}
}

func TestESCPOS_Barcodes(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		typ     printcmd.BarcodeType
		m       byte
		payload string
	}{
		{"code128", "A-42", printcmd.BarcodeCODE128, 73, "{BA-42"},
		{"code39", "12345", printcmd.BarcodeCODE39, 69, "12345"},
		{"ean13", "4006381333931", printcmd.BarcodeEAN13, 67, "4006381333931"},
		{"ean8", "96385074", printcmd.BarcodeEAN8, 68, "96385074"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewESCPOS()
			if err := e.PrintBarcode(tt.data, tt.typ); err != nil {
				t.Fatalf("PrintBarcode: %v", err)
			}
			want := append([]byte{GS, 'k', tt.m, byte(len(tt.payload))}, tt.payload...)
			if !bytes.Contains(e.Bytes(), want) {
				t.Errorf("Expected % X in % X", want, e.Bytes())
			}
		})
	}
}

func TestESCPOS_BarcodeRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		typ  printcmd.BarcodeType
	}{
		{"code128 over 255 bytes", strings.Repeat("A", 300), printcmd.BarcodeCODE128},
		{"code128 prefix pushes past 255", strings.Repeat("A", 254), printcmd.BarcodeCODE128},
		{"code39 over 255 bytes", strings.Repeat("1", 256), printcmd.BarcodeCODE39},
		{"ean13 letters", "40063813339X1", printcmd.BarcodeEAN13},
		{"ean13 too short", "40063813", printcmd.BarcodeEAN13},
		{"ean8 letters", "9638507A", printcmd.BarcodeEAN8},
		{"ean8 too long", "963850741", printcmd.BarcodeEAN8},
		{"qr over capacity", strings.Repeat("x", 7090), printcmd.BarcodeQR},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewESCPOS()
			before := len(e.Bytes())
			err := e.PrintBarcode(tt.data, tt.typ)
			var ae *printcmd.ArgumentError
			if !errors.As(err, &ae) {
				t.Fatalf("Expected *printcmd.ArgumentError, got %v", err)
			}
			if len(e.Bytes()) != before {
				t.Error("Rejected barcode still wrote bytes")
			}
		})
	}

	e := NewESCPOS()
	if err := e.PrintBarcode(strings.Repeat("A", 253), printcmd.BarcodeCODE128); err != nil {
		t.Errorf("Expected 255 byte payload to fit, got %v", err)
	}
	if err := e.PrintBarcode("000000000000", printcmd.BarcodeEAN13); err != nil {
		t.Errorf("Expected 12 digit EAN13 to pass, got %v", err)
	}
	if err := e.PrintQRCode(strings.Repeat("x", 7090)); err == nil {
		t.Error("Expected oversized QR to be rejected")
	}
}

func TestESCPOS_QRCode(t *testing.T) {
	e := NewESCPOS()
	if err := e.PrintQRCode("https://example.com"); err != nil {
		t.Fatalf("PrintQRCode: %v", err)
	}
	n := len("https://example.com") + 3
	store := []byte{GS, '(', 'k', byte(n), 0, 49, 80, 48}
	if !bytes.Contains(e.Bytes(), store) {
		t.Error("Expected QR store sequence")
	}

	// a barcode of type QR goes through the same path
	e2 := NewESCPOS()
	if err := e2.PrintBarcode("https://example.com", printcmd.BarcodeQR); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(e.Bytes(), e2.Bytes()) {
		t.Error("Expected QR barcode to encode like PrintQRCode")
	}
}

func TestESCPOS_Reset(t *testing.T) {
	e := NewESCPOS()
	_ = e.FeedLines(3)
	e.Reset()
	if !bytes.Equal(e.Bytes(), []byte{ESC, '@'}) {
		t.Errorf("Expected only ESC @ after reset, got % X", e.Bytes())
	}
}

func TestImageToBitmap(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 2))
	for x := 0; x < 10; x++ {
		img.Set(x, 0, color.Black)
		img.Set(x, 1, color.White)
	}

	bitmap := imageToBitmap(img)
	want := []byte{0xFF, 0xC0, 0x00, 0x00}
	if !bytes.Equal(bitmap, want) {
		t.Errorf("imageToBitmap = % X, want % X", bitmap, want)
	}
}

func TestRasterEncoder(t *testing.T) {
	var widths []string
	enc := RasterEncoder(func(cmds []printcmd.Command, paperWidth string) (image.Image, error) {
		widths = append(widths, paperWidth)
		return image.NewGray(image.Rect(0, 0, 16, 4)), nil
	}, "80mm")

	data, err := enc(&Printer{ID: "p1"}, receipt)
	if err != nil {
		t.Fatal(err)
	}
	header := []byte{GS, 'v', '0', 0, 2, 0, 4, 0}
	if !bytes.Contains(data, header) {
		t.Errorf("Expected raster header % X", header)
	}

	if _, err := enc(&Printer{ID: "p2", PaperWidth: "58mm"}, receipt); err != nil {
		t.Fatal(err)
	}
	if len(widths) != 2 || widths[0] != "80mm" || widths[1] != "58mm" {
		t.Errorf("Expected default then printer paper width, got %v", widths)
	}

	failing := RasterEncoder(func([]printcmd.Command, string) (image.Image, error) {
		return nil, errors.New("no font")
	}, "80mm")
	if _, err := failing(nil, receipt); err == nil {
		t.Error("Expected render error to propagate")
	}
}

func TestConnectionPool(t *testing.T) {
	conn := &fakeConn{}
	pool := newTestPool(conn)
	p := &Printer{ID: "p1", Type: TypeNetwork}

	if err := pool.Send("p1", []byte("x")); err == nil {
		t.Error("Expected error sending to unconnected printer")
	}

	if err := pool.Connect(context.Background(), p); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !pool.IsConnected("p1") {
		t.Fatal("Expected printer to be connected")
	}
	if err := pool.Send("p1", []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(conn.written()) != "hello" {
		t.Errorf("Expected 'hello', got %q", conn.written())
	}

	if err := pool.Disconnect("p1"); err != nil {
		t.Fatal(err)
	}
	if pool.IsConnected("p1") || conn.closed != 1 {
		t.Error("Expected connection to be closed and removed")
	}
}

func TestConnectionPool_ShortWrite(t *testing.T) {
	conn := &fakeConn{short: true}
	pool := newTestPool(conn)
	_ = pool.Connect(context.Background(), &Printer{ID: "p1"})

	if err := pool.Send("p1", []byte("abcd")); err == nil {
		t.Error("Expected short write error")
	}
}

func TestConnectionPool_UnsupportedType(t *testing.T) {
	pool := NewConnectionPool(time.Second, zerolog.Nop())
	if err := pool.Connect(context.Background(), &Printer{ID: "x", Type: "bluetooth"}); err == nil {
		t.Error("Expected error for unsupported printer type")
	}
}

func TestManager_DetectKeepsNetworkPrinters(t *testing.T) {
	m := newTestManager(t)
	usb := &Printer{ID: "usb-1", Type: TypeUSB, Description: "USB: Epson"}
	m.detectors[TypeUSB] = func() ([]*Printer, error) { return []*Printer{usb}, nil }
	m.detectors[TypeSerial] = func() ([]*Printer, error) { return nil, errors.New("no ports") }

	netID := m.AddNetworkPrinter("10.0.0.7", 9100, "")

	printers, err := m.DetectPrinters()
	if err != nil {
		t.Fatal(err)
	}
	if len(printers) != 2 {
		t.Fatalf("Expected 2 printers, got %d", len(printers))
	}

	net := m.GetPrinter(netID)
	if net == nil {
		t.Fatal("Expected network printer to survive detection")
	}
	if net.Description != "Network: 10.0.0.7:9100" {
		t.Errorf("Unexpected description %q", net.Description)
	}
	if m.GetPrinter("usb-1") == nil {
		t.Error("Expected detected USB printer")
	}
}

func TestManager_NameAndRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printers.json")
	reg, _ := registry.New(path)
	m := NewManager(reg, zerolog.Nop())

	id := m.AddNetworkPrinter("10.0.0.8", 9100, "Bar")
	if !m.SetPrinterName(id, "Bar Printer") {
		t.Fatal("Expected rename to succeed")
	}
	if got := m.GetPrinter(id).DisplayName(); got != "Bar Printer" {
		t.Errorf("DisplayName = %q", got)
	}
	if m.SetPrinterName("missing", "x") {
		t.Error("Expected rename of unknown printer to fail")
	}
	if err := m.SetPaperWidth(id, "58mm"); err != nil {
		t.Fatalf("SetPaperWidth: %v", err)
	}
	if err := m.SetPaperWidth(id, "76mm"); err == nil {
		t.Error("Expected invalid paper width to be rejected")
	}
	if err := m.SetPaperWidth("missing", "80mm"); err == nil {
		t.Error("Expected paper width of unknown printer to fail")
	}
	if got := m.GetPrinter(id).PaperWidth; got != "58mm" {
		t.Errorf("PaperWidth = %q", got)
	}

	reg2, err := registry.New(path)
	if err != nil {
		t.Fatal(err)
	}
	m2 := NewManager(reg2, zerolog.Nop())
	restored := m2.GetPrinter(id)
	if restored == nil {
		t.Fatal("Expected network printer to be restored from the registry")
	}
	if restored.Host != "10.0.0.8" || restored.Name != "Bar Printer" || restored.PaperWidth != "58mm" {
		t.Errorf("Unexpected restored printer %+v", restored)
	}
}

func TestMonitor_Changes(t *testing.T) {
	m := newTestManager(t)

	var mu sync.Mutex
	current := []*Printer{{ID: "a", Type: TypeUSB}}
	m.detectors[TypeUSB] = func() ([]*Printer, error) {
		mu.Lock()
		defer mu.Unlock()
		return append([]*Printer(nil), current...), nil
	}

	var added, removed []string
	mon := NewMonitor(m, time.Hour, zerolog.Nop())
	mon.OnPrinterAdded(func(p *Printer) { added = append(added, p.ID) })
	mon.OnPrinterRemoved(func(p *Printer) { removed = append(removed, p.ID) })

	mon.checkChanges()
	if len(added) != 1 || added[0] != "a" {
		t.Errorf("Expected a added, got %v", added)
	}

	mu.Lock()
	current = []*Printer{{ID: "b", Type: TypeUSB}}
	mu.Unlock()
	mon.checkChanges()

	if len(added) != 2 || added[1] != "b" {
		t.Errorf("Expected b added, got %v", added)
	}
	if len(removed) != 1 || removed[0] != "a" {
		t.Errorf("Expected a removed, got %v", removed)
	}
}

func TestMonitor_RunStops(t *testing.T) {
	m := newTestManager(t)
	mon := NewMonitor(m, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestPrintQueue_Completes(t *testing.T) {
	m := newTestManager(t)
	id := m.AddNetworkPrinter("10.0.0.9", 9100, "")
	conn := &fakeConn{}
	q := NewPrintQueue(newTestPool(conn), m, WithRetryDelay(0))
	defer q.Stop()

	var mu sync.Mutex
	var statuses []JobStatus
	q.OnJobUpdate(func(j PrintJob) {
		mu.Lock()
		statuses = append(statuses, j.Status)
		mu.Unlock()
	})

	jobID, err := q.Enqueue(id, receipt)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitFor(t, "job completion", func() bool {
		j := q.GetJob(jobID)
		return j != nil && j.Status == StatusCompleted
	})

	want, _ := EncodeCommands(receipt)
	if !bytes.Equal(conn.written(), want) {
		t.Error("Expected printer to receive the encoded receipt")
	}

	mu.Lock()
	defer mu.Unlock()
	// queued and printing may be observed in either order
	if len(statuses) != 3 || statuses[2] != StatusCompleted {
		t.Errorf("Unexpected status sequence %v", statuses)
	}
}

func TestPrintQueue_Retries(t *testing.T) {
	m := newTestManager(t)
	id := m.AddNetworkPrinter("10.0.0.9", 9100, "")
	conn := &fakeConn{fail: 2}
	q := NewPrintQueue(newTestPool(conn), m, WithRetryDelay(0), WithMaxRetries(3))
	defer q.Stop()

	jobID, _ := q.Enqueue(id, receipt)
	waitFor(t, "job completion", func() bool {
		j := q.GetJob(jobID)
		return j != nil && j.Status == StatusCompleted
	})

	if j := q.GetJob(jobID); j.Retries != 2 {
		t.Errorf("Expected 2 retries, got %d", j.Retries)
	}
	if conn.closed != 2 {
		t.Errorf("Expected a disconnect per failed attempt, got %d", conn.closed)
	}
}

func TestPrintQueue_Fails(t *testing.T) {
	m := newTestManager(t)
	id := m.AddNetworkPrinter("10.0.0.9", 9100, "")
	conn := &fakeConn{fail: 10}
	q := NewPrintQueue(newTestPool(conn), m, WithRetryDelay(0), WithMaxRetries(2))
	defer q.Stop()

	jobID, _ := q.Enqueue(id, receipt)
	waitFor(t, "job failure", func() bool {
		j := q.GetJob(jobID)
		return j != nil && j.Status == StatusFailed
	})

	j := q.GetJob(jobID)
	if j.Retries != 2 || j.Error == "" {
		t.Errorf("Unexpected failed job %+v", j)
	}
}

func TestPrintQueue_UnknownPrinter(t *testing.T) {
	m := newTestManager(t)
	q := NewPrintQueue(newTestPool(&fakeConn{}), m, WithRetryDelay(0), WithMaxRetries(1))
	defer q.Stop()

	jobID, _ := q.Enqueue("nope", receipt)
	waitFor(t, "job failure", func() bool {
		j := q.GetJob(jobID)
		return j != nil && j.Status == StatusFailed
	})
}

func TestPrintQueue_EnqueueValidation(t *testing.T) {
	q := NewPrintQueue(newTestPool(&fakeConn{}), newTestManager(t))
	defer q.Stop()

	if _, err := q.Enqueue("p", nil); err == nil {
		t.Error("Expected error for empty command list")
	}
	if _, err := q.Enqueue("p", []printcmd.Command{printcmd.PrintBarcode("", printcmd.BarcodeCODE128)}); err == nil {
		t.Error("Expected error for invalid command")
	}
	if len(q.GetAllJobs()) != 0 {
		t.Error("Rejected jobs must not be queued")
	}
}

func TestPrintQueue_OrderAndClear(t *testing.T) {
	m := newTestManager(t)
	id := m.AddNetworkPrinter("10.0.0.9", 9100, "")
	conn := &fakeConn{}
	q := NewPrintQueue(newTestPool(conn), m, WithRetryDelay(0))
	defer q.Stop()

	first := []printcmd.Command{printcmd.PrintText("first", printcmd.DefaultStyle)}
	second := []printcmd.Command{printcmd.PrintText("second", printcmd.DefaultStyle)}
	q.Enqueue(id, first)
	q.Enqueue(id, second)

	waitFor(t, "both jobs", func() bool {
		for _, j := range q.GetAllJobs() {
			if j.Status != StatusCompleted {
				return false
			}
		}
		return true
	})

	out := conn.written()
	if bytes.Index(out, []byte("first")) > bytes.Index(out, []byte("second")) {
		t.Error("Expected jobs for one printer to print in submission order")
	}

	if n := q.ClearCompleted(); n != 2 {
		t.Errorf("Expected 2 cleared, got %d", n)
	}
	if len(q.GetAllJobs()) != 0 {
		t.Error("Expected empty queue after clear")
	}
}

func TestPrintQueue_StopRacesEnqueue(t *testing.T) {
	for round := 0; round < 20; round++ {
		q := NewPrintQueue(newTestPool(&fakeConn{}), newTestManager(t), WithRetryDelay(0))

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, err := q.Enqueue(fmt.Sprintf("p-%d", i), receipt)
				if err != nil && err.Error() != "print queue stopped" {
					t.Errorf("Unexpected enqueue error: %v", err)
				}
			}(i)
		}
		close(start)
		q.Stop()
		wg.Wait()

		if _, err := q.Enqueue("late", receipt); err == nil {
			t.Fatal("Expected enqueue after Stop to fail")
		}
	}
}

func TestPrintQueue_Stopped(t *testing.T) {
	q := NewPrintQueue(newTestPool(&fakeConn{}), newTestManager(t))
	q.Stop()
	if _, err := q.Enqueue("p", receipt); err == nil {
		t.Error("Expected error enqueuing on a stopped queue")
	}
}
