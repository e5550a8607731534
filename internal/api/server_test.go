package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/thereceipt/receipt-interpreter/internal/metrics"
	"github.com/thereceipt/receipt-interpreter/internal/printer"
	"github.com/thereceipt/receipt-interpreter/internal/registry"
)

const sampleLayout = `{
  "paper_width": "58mm",
  "elements": [
    {"type": "align", "alignment": "center"},
    {"type": "text", "content": "Order {orderId}"},
    {"type": "dynamic", "field": "customerName", "prefix": "Hi "},
    {"type": "dynamic", "field": "totalAmount", "prefix": "TOTAL "}
  ]
}`

const sampleOrder = `{"orderId": "A-0042", "totalAmount": 30.195}`

type discardConn struct{}

func (discardConn) Write(p []byte) (int, error) { return len(p), nil }
func (discardConn) Close() error                { return nil }

type testEnv struct {
	server  *Server
	manager *printer.Manager
	queue   *printer.PrintQueue
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	reg, err := registry.New(filepath.Join(t.TempDir(), "printers.json"))
	if err != nil {
		t.Fatal(err)
	}
	manager := printer.NewManager(reg, zerolog.Nop())
	pool := printer.NewConnectionPool(time.Second, zerolog.Nop())
	pool.SetDialer(func(context.Context, *printer.Printer) (printer.Connection, error) {
		return discardConn{}, nil
	})
	queue := printer.NewPrintQueue(pool, manager, printer.WithRetryDelay(0))
	t.Cleanup(queue.Stop)

	m := metrics.New()
	s := NewServer(manager, queue, Options{Logger: zerolog.Nop(), Metrics: m})
	queue.OnJobUpdate(s.ObserveJob)

	return &testEnv{server: s, manager: manager, queue: queue, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return out
}

func receiptBody(layout, order string) string {
	if order == "" {
		return `{"layout": ` + layout + `}`
	}
	return `{"layout": ` + layout + `, "order": ` + order + `}`
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/health", "")
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "ok" {
		t.Errorf("Unexpected health response %d %s", rec.Code, rec.Body)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "OPTIONS", "/interpret", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}

func TestInterpret(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/interpret", receiptBody(sampleLayout, sampleOrder))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Success  bool `json:"success"`
		Count    int  `json:"count"`
		Commands []struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		} `json:"commands"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)

	if !resp.Success || resp.Count != len(resp.Commands) {
		t.Fatalf("Unexpected response %+v", resp)
	}
	var texts []string
	for _, c := range resp.Commands {
		if c.Content != "" {
			texts = append(texts, c.Content)
		}
	}
	// customerName is absent and has no default, so nothing prints for it
	want := []string{"Order A-0042", "TOTAL 30.20"}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Errorf("texts = %q, want %q", texts, want)
	}
	if last := resp.Commands[len(resp.Commands)-1].Type; last != "CutPaper" {
		t.Errorf("Expected trailing CutPaper, got %s", last)
	}
}

func TestInterpret_NullOrder(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{receiptBody(sampleLayout, ""), receiptBody(sampleLayout, "null")} {
		rec := env.do(t, "POST", "/interpret", body)
		if rec.Code != http.StatusOK {
			t.Errorf("Expected 200 for absent order, got %d: %s", rec.Code, rec.Body)
		}
	}
}

func TestInterpret_StructuralError(t *testing.T) {
	env := newTestEnv(t)

	layout := `{"elements": [{"type": "text", "content": "a"}, {"type": "feedLine", "lines": 1}, {"type": "hologram"}]}`
	rec := env.do(t, "POST", "/interpret", receiptBody(layout, sampleOrder))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}

	body := decode(t, rec)
	if body["success"] != false || body["index"] != float64(2) || body["type"] != "hologram" {
		t.Errorf("Unexpected error body %v", body)
	}
}

func TestInterpret_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	layoutFile := filepath.Join(t.TempDir(), "layout.json")
	if err := os.WriteFile(layoutFile, []byte(sampleLayout), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"no layout", `{"order": {}}`},
		{"bad order", receiptBody(sampleLayout, `"nope"`)},
		{"server path ignored", `{"layout_path": "` + layoutFile + `"}`},
		{"file layout url", `{"layout_url": "file://` + layoutFile + `"}`},
		{"bare path layout url", `{"layout_url": "` + layoutFile + `"}`},
		{"bare path order url", `{"layout": ` + sampleLayout + `, "order_url": "` + layoutFile + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "POST", "/interpret", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestInterpret_LayoutURL(t *testing.T) {
	env := newTestEnv(t)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleLayout))
	}))
	defer origin.Close()

	rec := env.do(t, "POST", "/interpret", `{"layout_url": "`+origin.URL+`/layout.json"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
}

func TestRender_PNG(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/render", receiptBody(sampleLayout, sampleOrder))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("Invalid PNG: %v", err)
	}
	if img.Bounds().Dx() != 384 {
		t.Errorf("Expected 58mm width of 384px, got %d", img.Bounds().Dx())
	}

	rec = env.do(t, "POST", "/render?width=100", receiptBody(sampleLayout, sampleOrder))
	img, err = png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil || img.Bounds().Dx() != 100 {
		t.Errorf("Expected 100px thumbnail, err=%v", err)
	}

	if rec := env.do(t, "POST", "/render?width=abc", receiptBody(sampleLayout, sampleOrder)); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid width, got %d", rec.Code)
	}
}

func TestRender_Text(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/render?format=text", receiptBody(sampleLayout, sampleOrder))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	text := rec.Body.String()
	if !strings.Contains(text, "Order A-0042") || !strings.Contains(text, "TOTAL 30.20") {
		t.Errorf("Unexpected text preview:\n%s", text)
	}
}

func TestPrintFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/printer/network", `{"host": "10.0.0.9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("add network printer: %d %s", rec.Code, rec.Body)
	}
	printerID := decode(t, rec)["printer_id"].(string)

	rec = env.do(t, "POST", "/print", `{"printer_id": "`+printerID+`", "layout": `+sampleLayout+`, "order": `+sampleOrder+`}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("print: %d %s", rec.Code, rec.Body)
	}
	jobID := decode(t, rec)["job_id"].(string)

	deadline := time.Now().Add(3 * time.Second)
	for {
		rec = env.do(t, "GET", "/job/"+jobID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("get job: %d", rec.Code)
		}
		if decode(t, rec)["status"] == string(printer.StatusCompleted) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not complete: %s", rec.Body)
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec = env.do(t, "GET", "/jobs", "")
	if jobs := decode(t, rec)["jobs"].([]interface{}); len(jobs) != 1 {
		t.Errorf("Expected 1 job, got %d", len(jobs))
	}
	rec = env.do(t, "DELETE", "/jobs", "")
	if decode(t, rec)["cleared"] != float64(1) {
		t.Errorf("Expected 1 cleared job: %s", rec.Body)
	}

	// the update listener runs after the status is stored
	for !strings.Contains(env.do(t, "GET", "/metrics", "").Body.String(), `receipt_print_jobs_total{status="completed"} 1`) {
		if time.Now().After(deadline) {
			t.Fatal("Expected completed job metric")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPrint_UsesPrinterPaperWidth(t *testing.T) {
	env := newTestEnv(t)
	id := env.manager.AddNetworkPrinter("10.0.0.11", 9100, "Wide")

	if rec := env.do(t, "POST", "/printer/"+id+"/paper", `{"paper_width": "112mm"}`); rec.Code != http.StatusOK {
		t.Fatalf("set paper: %d %s", rec.Code, rec.Body)
	}
	if rec := env.do(t, "POST", "/printer/"+id+"/paper", `{"paper_width": "76mm"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid width, got %d", rec.Code)
	}
	if rec := env.do(t, "POST", "/printer/ghost/paper", `{"paper_width": "58mm"}`); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown printer, got %d", rec.Code)
	}

	rec := env.do(t, "POST", "/print", `{"printer_id": "`+id+`", "layout": {"paper_width": "58mm", "elements": [{"type": "divider"}]}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("print: %d %s", rec.Code, rec.Body)
	}
	job := env.queue.GetJob(decode(t, rec)["job_id"].(string))
	if job == nil {
		t.Fatal("Expected queued job")
	}
	if got := len(job.Commands[0].Content); got != 64 {
		t.Errorf("Expected a 64 column divider for 112mm paper, got %d", got)
	}

	// previews follow the layout
	rec = env.do(t, "POST", "/interpret", `{"layout": {"paper_width": "58mm", "elements": [{"type": "divider"}]}}`)
	cmds := decode(t, rec)["commands"].([]interface{})
	if got := len(cmds[0].(map[string]interface{})["content"].(string)); got != 32 {
		t.Errorf("Expected a 32 column divider for 58mm, got %d", got)
	}
}

func TestPrint_Errors(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, "POST", "/print", receiptBody(sampleLayout, "")); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without printer_id, got %d", rec.Code)
	}
	if rec := env.do(t, "POST", "/print", `{"printer_id": "ghost", "layout": `+sampleLayout+`}`); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown printer, got %d", rec.Code)
	}
	if len(env.queue.GetAllJobs()) != 0 {
		t.Error("Failed prints must not queue jobs")
	}
}

func TestPrinters(t *testing.T) {
	env := newTestEnv(t)
	id := env.manager.AddNetworkPrinter("10.0.0.10", 9100, "Bar")

	rec := env.do(t, "GET", "/printers", "")
	if printers := decode(t, rec)["printers"].([]interface{}); len(printers) != 1 {
		t.Fatalf("Expected 1 printer, got %d", len(printers))
	}

	if rec := env.do(t, "POST", "/printer/"+id+"/name", `{"name": "Bar Printer"}`); rec.Code != http.StatusOK {
		t.Errorf("rename: %d", rec.Code)
	}
	if env.manager.GetPrinter(id).Name != "Bar Printer" {
		t.Error("Expected rename to apply")
	}
	if rec := env.do(t, "POST", "/printer/ghost/name", `{"name": "x"}`); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
	if rec := env.do(t, "POST", "/printer/"+id+"/name", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if rec := env.do(t, "POST", "/printer/network", `{"port": 9100}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without host, got %d", rec.Code)
	}
	if rec := env.do(t, "GET", "/job/ghost", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown job, got %d", rec.Code)
	}
}

func TestCommand(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/command", `{"command": "printer add-network 10.0.0.11"}`)
	if rec.Code != http.StatusOK || decode(t, rec)["success"] != true {
		t.Errorf("Unexpected command response %d %s", rec.Code, rec.Body)
	}

	rec = env.do(t, "POST", "/command", `{"command": "bogus"}`)
	if rec.Code != http.StatusBadRequest || decode(t, rec)["success"] != false {
		t.Errorf("Expected failed command, got %d %s", rec.Code, rec.Body)
	}

	if rec := env.do(t, "POST", "/command", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without command, got %d", rec.Code)
	}
}

func TestMetrics_Interpretations(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "POST", "/interpret", receiptBody(sampleLayout, sampleOrder))
	env.do(t, "POST", "/interpret", receiptBody(`{"elements":[{"type":"nope"}]}`, ""))

	body := env.do(t, "GET", "/metrics", "").Body.String()
	for _, want := range []string{
		`receipt_interpretations_total{result="ok"} 1`,
		`receipt_interpretations_total{result="error"} 1`,
		`receipt_unresolved_fields_total{reason="absent"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in metrics", want)
		}
	}
}

func TestWebSocket(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	type reply struct {
		Event string                 `json:"event"`
		ID    string                 `json:"id"`
		Data  map[string]interface{} `json:"data"`
	}

	req := `{"event": "interpret", "id": "r1", "data": ` + receiptBody(sampleLayout, sampleOrder) + `}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(req)); err != nil {
		t.Fatal(err)
	}
	var r reply
	if err := conn.ReadJSON(&r); err != nil {
		t.Fatal(err)
	}
	if r.Event != EventResponse || r.ID != "r1" || r.Data["success"] != true {
		t.Errorf("Unexpected interpret reply %+v", r)
	}

	conn.WriteMessage(websocket.TextMessage, []byte(`{"event": "print", "id": "r2", "data": {"printer_id": "ghost", "layout": `+sampleLayout+`}}`))
	r = reply{}
	if err := conn.ReadJSON(&r); err != nil {
		t.Fatal(err)
	}
	if r.Event != EventError || r.ID != "r2" || !strings.Contains(r.Data["error"].(string), "printer not found") {
		t.Errorf("Unexpected print reply %+v", r)
	}

	conn.WriteMessage(websocket.TextMessage, []byte(`{"event": "dance"}`))
	r = reply{}
	if err := conn.ReadJSON(&r); err != nil {
		t.Fatal(err)
	}
	if r.Event != EventError {
		t.Errorf("Expected error for unknown event, got %+v", r)
	}

	// the client is registered before the first reply, so broadcasts reach it
	env.server.BroadcastPrinterRemoved(&printer.Printer{ID: "gone"})
	r = reply{}
	if err := conn.ReadJSON(&r); err != nil {
		t.Fatal(err)
	}
	if r.Event != EventPrinterRemoved || r.Data["id"] != "gone" {
		t.Errorf("Unexpected broadcast %+v", r)
	}
}
