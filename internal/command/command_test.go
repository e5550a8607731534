package command

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/thereceipt/receipt-interpreter/internal/printer"
	"github.com/thereceipt/receipt-interpreter/internal/registry"
	"github.com/thereceipt/receipt-interpreter/pkg/printcmd"
)

const testLayout = `{
  "name": "counter",
  "elements": [
    {"type": "align", "alignment": "center"},
    {"type": "text", "content": "Order {orderId}", "style": {"bold": true}},
    {"type": "items_section"},
    {"type": "dynamic", "field": "totalAmount", "prefix": "TOTAL $"}
  ]
}`

const testOrder = `{
  "orderId": "A-0042",
  "items": [{"name": "Latte", "quantity": 2, "unitPrice": 4.5, "totalPrice": 9}],
  "totalAmount": 9.72
}`

type nullConn struct {
	mu   sync.Mutex
	data []byte
}

func (c *nullConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, p...)
	return len(p), nil
}

func (c *nullConn) Close() error { return nil }

type fixture struct {
	exec    *Executor
	manager *printer.Manager
	queue   *printer.PrintQueue
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	reg, err := registry.New(filepath.Join(dir, "printers.json"))
	if err != nil {
		t.Fatal(err)
	}
	manager := printer.NewManager(reg, zerolog.Nop())
	pool := printer.NewConnectionPool(time.Second, zerolog.Nop())
	conn := &nullConn{}
	pool.SetDialer(func(ctx context.Context, p *printer.Printer) (printer.Connection, error) {
		return conn, nil
	})
	queue := printer.NewPrintQueue(pool, manager, printer.WithRetryDelay(0))
	t.Cleanup(queue.Stop)

	for name, body := range map[string]string{"layout.json": testLayout, "order.json": testOrder} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	return &fixture{exec: NewExecutor(manager, queue), manager: manager, queue: queue, dir: dir}
}

func (f *fixture) path(name string) string {
	return filepath.Join(f.dir, name)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"  help  ", []string{"help"}},
		{"printer rename abc \"Kitchen Printer\"", []string{"printer", "rename", "abc", "Kitchen Printer"}},
		{"print p --compose text:'Hello World' feed:2", []string{"print", "p", "--compose", "text:Hello World", "feed:2"}},
		{`text:"it's"`, []string{"text:it's"}},
	}

	for _, tt := range tests {
		if got := parseCommand(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExecute_UnknownAndEmpty(t *testing.T) {
	f := newFixture(t)

	if r := f.exec.Execute(""); r.Success || r.Error != "empty command" {
		t.Errorf("Unexpected result for empty command: %+v", r)
	}
	if r := f.exec.Execute("frobnicate"); r.Success || !strings.Contains(r.Error, "unknown command") {
		t.Errorf("Unexpected result for unknown command: %+v", r)
	}
	if r := f.exec.Execute("help"); !r.Success || !strings.Contains(r.Message, "interpret <layout-path|url>") {
		t.Error("Expected help text")
	}
}

func TestExecute_Interpret(t *testing.T) {
	f := newFixture(t)

	r := f.exec.Execute("interpret " + f.path("layout.json") + " --order " + f.path("order.json"))
	if !r.Success {
		t.Fatalf("interpret failed: %s", r.Error)
	}

	cmds, ok := r.Data["commands"].([]printcmd.Command)
	if !ok {
		t.Fatalf("Expected commands in data, got %T", r.Data["commands"])
	}
	want := []string{"Order A-0042", "2x Latte  9.00", "TOTAL $9.72"}
	var got []string
	for _, c := range cmds {
		if c.Type == printcmd.TypePrintText {
			got = append(got, c.Content)
		}
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Text lines = %q, want %q", got, want)
	}
	if cmds[len(cmds)-1].Type != printcmd.TypeCutPaper {
		t.Error("Expected implicit cut at the end")
	}
}

func TestExecute_InterpretCompose(t *testing.T) {
	f := newFixture(t)

	r := f.exec.Execute(`interpret --compose text:"Hello World" size:large feed:2 cut`)
	if !r.Success {
		t.Fatalf("interpret failed: %s", r.Error)
	}
	cmds := r.Data["commands"].([]printcmd.Command)
	if len(cmds) != 3 {
		t.Fatalf("Expected 3 commands, got %d: %v", len(cmds), cmds)
	}
	if cmds[0].Content != "Hello World" || cmds[0].TextStyle().Size != printcmd.SizeLarge {
		t.Errorf("Unexpected first command %v", cmds[0])
	}
}

func TestExecute_InterpretErrors(t *testing.T) {
	f := newFixture(t)
	bad := f.path("bad.json")
	os.WriteFile(bad, []byte(`{"elements":[{"type":"text"},{"type":"hologram"}]}`), 0o644)

	tests := []struct {
		cmd  string
		want string
	}{
		{"interpret", "usage"},
		{"interpret " + f.path("missing.json"), "failed to load layout"},
		{"interpret " + bad, "invalid layout"},
		{"interpret " + f.path("layout.json") + " --order", "--order needs"},
		{"interpret " + f.path("layout.json") + " --compose cut", "not both"},
		{"interpret --compose", "--compose needs"},
	}
	for _, tt := range tests {
		r := f.exec.Execute(tt.cmd)
		if r.Success || !strings.Contains(r.Error, tt.want) {
			t.Errorf("%q: expected error containing %q, got %+v", tt.cmd, tt.want, r)
		}
	}
}

func TestExecute_InterpretFromURL(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/layout.json":
			w.Write([]byte(testLayout))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	if r := f.exec.Execute("interpret " + srv.URL + "/layout.json"); !r.Success {
		t.Errorf("Expected URL layout to load: %s", r.Error)
	}
	if r := f.exec.Execute("interpret " + srv.URL + "/nope.json"); r.Success || !strings.Contains(r.Error, "HTTP 404") {
		t.Errorf("Expected HTTP 404 error, got %+v", r)
	}
}

func TestExecute_PrintAndJobs(t *testing.T) {
	f := newFixture(t)

	r := f.exec.Execute("printer add-network 10.0.0.5")
	if !r.Success {
		t.Fatalf("add-network failed: %s", r.Error)
	}
	printerID := r.Data["printer_id"].(string)

	r = f.exec.Execute("print " + printerID + " " + f.path("layout.json") + " --order " + f.path("order.json"))
	if !r.Success {
		t.Fatalf("print failed: %s", r.Error)
	}
	jobID := r.Data["job_id"].(string)

	deadline := time.Now().Add(3 * time.Second)
	for {
		status := f.exec.Execute("job status " + jobID)
		if !status.Success {
			t.Fatalf("job status failed: %s", status.Error)
		}
		if status.Message == string(printer.StatusCompleted) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not complete, last status %s", status.Message)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if r := f.exec.Execute("job list"); !r.Success || len(r.Data["jobs"].([]*printer.PrintJob)) != 1 {
		t.Errorf("Expected one job listed: %+v", r)
	}
	if r := f.exec.Execute("job clear"); !r.Success || r.Message != "Cleared 1 completed job(s)" {
		t.Errorf("Unexpected clear result: %+v", r)
	}
	if r := f.exec.Execute("job status " + jobID); r.Success {
		t.Error("Expected cleared job to be gone")
	}
}

func TestExecute_PrintErrors(t *testing.T) {
	f := newFixture(t)
	id := f.manager.AddNetworkPrinter("10.0.0.6", 9100, "")

	tests := []struct {
		cmd  string
		want string
	}{
		{"print", "usage"},
		{"print nope " + f.path("layout.json"), "printer not found"},
		{"print " + id + " --compose bogus:1", "expected command start"},
		{"print " + id + " --compose feed:0", "compile"},
	}
	for _, tt := range tests {
		r := f.exec.Execute(tt.cmd)
		if r.Success || !strings.Contains(r.Error, tt.want) {
			t.Errorf("%q: expected error containing %q, got %+v", tt.cmd, tt.want, r)
		}
	}
	if len(f.queue.GetAllJobs()) != 0 {
		t.Error("Failed prints must not queue jobs")
	}
}

func TestExecute_Printer(t *testing.T) {
	f := newFixture(t)

	r := f.exec.Execute("printer add-network 10.0.0.7 9101")
	if !r.Success {
		t.Fatal(r.Error)
	}
	id := r.Data["printer_id"].(string)
	if r.Message != "Added network printer: Network: 10.0.0.7:9101" {
		t.Errorf("Unexpected message %q", r.Message)
	}

	if r := f.exec.Execute(`printer rename ` + id + ` "Kitchen Printer"`); !r.Success {
		t.Fatal(r.Error)
	}
	if got := f.manager.GetPrinter(id).Name; got != "Kitchen Printer" {
		t.Errorf("Expected rename to apply, got %q", got)
	}

	if r := f.exec.Execute("printer paper " + id + " 58mm"); !r.Success {
		t.Fatal(r.Error)
	}
	if got := f.manager.GetPrinter(id).PaperWidth; got != "58mm" {
		t.Errorf("Expected 58mm paper, got %q", got)
	}
	if r := f.exec.Execute("printer paper " + id + " default"); !r.Success || f.manager.GetPrinter(id).PaperWidth != "" {
		t.Errorf("Expected paper width reset: %+v", r)
	}

	r = f.exec.Execute("printer list")
	if !r.Success || len(r.Data["printers"].([]*printer.Printer)) != 1 {
		t.Errorf("Expected one printer listed: %+v", r)
	}

	for _, cmd := range []string{"printer", "printer add-network", "printer add-network h port", "printer rename x", "printer rename x y", "printer paper x", "printer paper x 58mm", "printer paper " + id + " 76mm", "printer scan"} {
		if r := f.exec.Execute(cmd); r.Success {
			t.Errorf("%q: expected failure", cmd)
		}
	}
}
