package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/thereceipt/receipt-interpreter/internal/command"
	"github.com/thereceipt/receipt-interpreter/internal/config"
	"github.com/thereceipt/receipt-interpreter/internal/designer"
	"github.com/thereceipt/receipt-interpreter/internal/interpreter"
	"github.com/thereceipt/receipt-interpreter/internal/logging"
	"github.com/thereceipt/receipt-interpreter/internal/renderer"
	"github.com/thereceipt/receipt-interpreter/pkg/printcmd"
)

const (
	defaultServerURL = "http://localhost:12212"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

func main() {
	var serverURL, output string
	var asJSON, verbose bool
	flag.StringVar(&serverURL, "server", defaultServerURL, "Server URL")
	flag.StringVar(&serverURL, "s", defaultServerURL, "Server URL (short)")
	flag.StringVar(&output, "o", "", "Output file for render (default: stdout)")
	flag.BoolVar(&asJSON, "json", false, "Print command sequences as JSON")
	flag.BoolVar(&verbose, "v", false, "Log unresolved fields")
	flag.Parse()

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}

	logCfg := config.LogConfig{Level: "warn", Format: "console"}
	if verbose {
		logCfg.Level = "debug"
	}
	logger := logging.New(logCfg, "receipt-cli")
	local := command.NewExecutor(nil, nil, interpreter.WithLogger(logger))

	args := flag.Args()
	var err error
	switch args[0] {
	case "interpret":
		err = runInterpret(local, args[1:], asJSON)
	case "render":
		err = runRender(local, args[1:], output)
	case "compose":
		err = runCompose(args[1:])
	case "print":
		err = runPrint(serverURL, args[1:])
	default:
		err = printResult(executeCommand(serverURL, strings.Join(quoteArgs(args), " ")))
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Receipt Interpreter CLI

Usage:
  receipt-cli [flags] <command>

Flags:
  -s, -server <url>    Server URL (default: %s)
  -o <file>            Output file for render
  -json                Print command sequences as JSON
  -v                   Log unresolved fields

Local commands:
  interpret <layout> [--order <path|url>]
    Print the command sequence a layout produces

  interpret [--order <path|url>] --compose <elements...>
    Interpret a layout composed from arguments

  render <layout> [--order <path|url>] [--text]
    Render a PNG preview (or plain text with --text)

  compose <elements...>
    Write the layout JSON composed from arguments
    Elements:
      text:"Hello" bold size:large    - Text with style
      field:totalAmount prefix:"$ "   - Order field
      items promotions                - Line items
      align:center  feed:2  divider   - Layout control
      barcode:{orderId} type:CODE39   - Barcode
      qrcode:https://example.com      - QR code
      cut                             - Cut paper

Server commands:
  print <printer-id> <layout> [--order <path|url>]
  print <printer-id> [--order <path|url>] --compose <elements...>
  printer list | add-network <host> [port] | rename <id> <name>
  printer paper <id> <58mm|80mm|112mm|default>
  job list | status <id> | clear
  detect
  help

Examples:
  receipt-cli interpret ./layouts/receipt.json --order ./orders/A-0042.json
  receipt-cli -o receipt.png render ./layouts/receipt.json --order ./orders/A-0042.json
  receipt-cli compose text:"Order {orderId}" bold items cut > layout.json
  receipt-cli print printer-123 ./layouts/receipt.json --order ./orders/A-0042.json
  receipt-cli printer rename printer-123 "Kitchen Printer"
  receipt-cli -s http://localhost:8080 printer list

`, defaultServerURL)
}

func runInterpret(local *command.Executor, args []string, asJSON bool) error {
	_, cmds, err := local.Interpret(args)
	if err != nil {
		return err
	}

	if asJSON {
		data, err := printcmd.Marshal(cmds)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	for _, c := range cmds {
		fmt.Println(c.String())
	}
	return nil
}

func runRender(local *command.Executor, args []string, output string) error {
	text := false
	var rest []string
	for _, a := range args {
		if a == "--text" {
			text = true
			continue
		}
		rest = append(rest, a)
	}

	doc, cmds, err := local.Interpret(rest)
	if err != nil {
		return err
	}

	out := io.Writer(os.Stdout)
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return errors.Wrap(err, "create output")
		}
		defer f.Close()
		out = f
	}

	if text {
		s, err := renderer.RenderText(cmds, renderer.ColumnsFor(doc.PaperWidth))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, s)
		return err
	}

	img, err := renderer.Render(cmds, doc.PaperWidth)
	if err != nil {
		return err
	}
	return renderer.WritePNG(out, img)
}

func runCompose(args []string) error {
	d, err := designer.ParseCompose(args)
	if err != nil {
		return err
	}
	data, err := d.CompileJSON()
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// runPrint sends local layouts inline; server paths, URLs and --compose go
// through the command endpoint unchanged
func runPrint(serverURL string, args []string) error {
	if len(args) < 2 || args[1] == "--compose" || args[1] == "--order" || isRemote(args[1]) {
		return printResult(executeCommand(serverURL, strings.Join(quoteArgs(append([]string{"print"}, args...)), " ")))
	}

	layoutData, err := os.ReadFile(args[1])
	if err != nil {
		return errors.Wrap(err, "failed to read layout")
	}
	req := map[string]interface{}{
		"printer_id": args[0],
		"layout":     json.RawMessage(layoutData),
	}

	for i := 2; i < len(args); i++ {
		if args[i] != "--order" || i+1 >= len(args) {
			return errors.Errorf("unexpected argument: %s", args[i])
		}
		src := args[i+1]
		i++
		if isRemote(src) {
			req["order_url"] = src
			continue
		}
		orderData, err := os.ReadFile(src)
		if err != nil {
			return errors.Wrap(err, "failed to read order")
		}
		req["order"] = json.RawMessage(orderData)
	}

	var resp struct {
		Success bool   `json:"success"`
		JobID   string `json:"job_id"`
		Error   string `json:"error"`
	}
	if err := postJSON(serverURL+"/print", req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(resp.Error)
	}
	fmt.Printf("Print job queued: %s\n", resp.JobID)
	return nil
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// quoteArgs re-quotes arguments containing spaces for the server's parser
func quoteArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t") {
			q := `"`
			if strings.Contains(a, `"`) {
				q = "'"
			}
			// keep the key of key:value tokens outside the quotes
			if k, v, ok := strings.Cut(a, ":"); ok && !strings.ContainsAny(k, " \t") {
				out[i] = k + ":" + q + v + q
				continue
			}
			a = q + a + q
		}
		out[i] = a
	}
	return out
}

func executeCommand(serverURL, cmd string) *command.Result {
	var result command.Result
	if err := postJSON(strings.TrimSuffix(serverURL, "/")+"/command", map[string]string{"command": cmd}, &result); err != nil {
		return &command.Result{Success: false, Error: err.Error()}
	}
	return &result
}

// postJSON posts body and decodes the reply, whatever its status
func postJSON(url string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal request")
	}

	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "failed to connect to server")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "failed to parse response (HTTP %d)", resp.StatusCode)
	}
	return nil
}

func printResult(result *command.Result) error {
	if !result.Success {
		if result.Error != "" {
			return errors.New(result.Error)
		}
		return errors.New(result.Message)
	}

	if result.Message != "" {
		fmt.Println(result.Message)
	}

	if printers, ok := result.Data["printers"].([]interface{}); ok {
		fmt.Println("\nPrinters:")
		for _, p := range printers {
			if printer, ok := p.(map[string]interface{}); ok {
				name := printer["name"]
				if name == nil || name == "" {
					name = printer["description"]
				}
				line := fmt.Sprintf("  %s: %s (%s)", printer["id"], name, printer["type"])
				if w, ok := printer["paper_width"].(string); ok && w != "" {
					line += " " + w
				}
				fmt.Println(line)
			}
		}
	}

	if jobs, ok := result.Data["jobs"].([]interface{}); ok {
		fmt.Println("\nJobs:")
		for _, j := range jobs {
			if job, ok := j.(map[string]interface{}); ok {
				fmt.Printf("  %s: %s (printer: %s)\n", job["id"], job["status"], job["printer_id"])
			}
		}
	}

	if printerID, ok := result.Data["printer_id"].(string); ok {
		fmt.Printf("Printer ID: %s\n", printerID)
	}
	return nil
}
