package command

import (
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/thereceipt/receipt-interpreter/internal/designer"
	"github.com/thereceipt/receipt-interpreter/internal/interpreter"
	"github.com/thereceipt/receipt-interpreter/pkg/layout"
	"github.com/thereceipt/receipt-interpreter/pkg/order"
	"github.com/thereceipt/receipt-interpreter/pkg/printcmd"
)

// receiptArgs is the parsed tail of print and interpret
type receiptArgs struct {
	doc   *layout.Document
	order *order.Order
}

// parseReceiptArgs reads <layout> [--order <src>] or [--order <src>] --compose <tokens...>
func (e *Executor) parseReceiptArgs(args []string) (*receiptArgs, error) {
	var layoutSrc, orderSrc string
	var compose []string

	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "--order":
			if i+1 >= len(args) {
				return nil, errors.New("--order needs a path or URL")
			}
			orderSrc = args[i+1]
			i++
		case "--compose":
			compose = args[i+1:]
			if len(compose) == 0 {
				return nil, errors.New("--compose needs at least one element")
			}
			i = len(args)
		default:
			if layoutSrc != "" {
				return nil, errors.Errorf("unexpected argument: %s", arg)
			}
			layoutSrc = arg
		}
	}

	out := &receiptArgs{}
	switch {
	case compose != nil && layoutSrc != "":
		return nil, errors.New("give either a layout or --compose, not both")
	case compose != nil:
		d, err := designer.ParseCompose(compose)
		if err != nil {
			return nil, err
		}
		doc, err := d.Compile()
		if err != nil {
			return nil, err
		}
		out.doc = doc
	case layoutSrc != "":
		data, err := e.Load(layoutSrc)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load layout")
		}
		doc, err := layout.Parse(data)
		if err != nil {
			return nil, errors.Wrap(err, "invalid layout")
		}
		out.doc = doc
	default:
		return nil, errors.New("missing layout")
	}

	if orderSrc != "" {
		data, err := e.Load(orderSrc)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load order")
		}
		o, err := order.Parse(data)
		if err != nil {
			return nil, err
		}
		out.order = o
	}
	return out, nil
}

// Interpret resolves receipt arguments, <layout> [--order <src>] or
// [--order <src>] --compose <tokens...>, and interprets them. opts apply
// after the executor's own.
func (e *Executor) Interpret(args []string, opts ...interpreter.Option) (*layout.Document, []printcmd.Command, error) {
	ra, err := e.parseReceiptArgs(args)
	if err != nil {
		return nil, nil, err
	}
	all := append(append([]interpreter.Option{}, e.opts...), opts...)
	cmds, err := interpreter.Interpret(ra.doc, ra.order, all...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "interpretation stopped")
	}
	return ra.doc, cmds, nil
}

// handlePrint handles print commands
// Usage: print <printer-id> <layout> [--order <src>] | print <printer-id> [--order <src>] --compose <tokens...>
func (e *Executor) handlePrint(args []string) *Result {
	if len(args) < 2 {
		return fail("usage: print <printer-id> <layout-path|url> [--order <path|url>] | print <printer-id> --compose <elements...>")
	}

	printerID := args[0]
	p := e.manager.GetPrinter(printerID)
	if p == nil {
		return fail("printer not found: %s", printerID)
	}

	_, cmds, err := e.Interpret(args[1:], interpreter.WithPaperWidth(p.PaperWidth))
	if err != nil {
		return fail("%v", err)
	}

	jobID, err := e.queue.Enqueue(printerID, cmds)
	if err != nil {
		return fail("failed to queue receipt: %v", err)
	}

	return &Result{
		Success: true,
		Message: "Print job queued: " + jobID,
		Data: map[string]interface{}{
			"job_id":     jobID,
			"printer_id": printerID,
			"commands":   len(cmds),
		},
	}
}

// handleInterpret runs a layout without printing
// Usage: interpret <layout> [--order <src>] | interpret [--order <src>] --compose <tokens...>
func (e *Executor) handleInterpret(args []string) *Result {
	if len(args) == 0 {
		return fail("usage: interpret <layout-path|url> [--order <path|url>]")
	}

	_, cmds, err := e.Interpret(args)
	if err != nil {
		return fail("%v", err)
	}

	lines := make([]string, len(cmds))
	for i, c := range cmds {
		lines[i] = c.String()
	}

	return &Result{
		Success: true,
		Message: strings.Join(lines, "\n"),
		Data: map[string]interface{}{
			"commands": cmds,
		},
	}
}

// handlePrinter handles printer commands
// Usage: printer list | add-network <host> [port] | rename <id> <name> | paper <id> <width|default>
func (e *Executor) handlePrinter(args []string) *Result {
	if len(args) == 0 {
		return fail("usage: printer <list|add-network|rename|paper>")
	}

	switch subcommand := args[0]; subcommand {
	case "list":
		printers := e.manager.GetAllPrinters()
		return &Result{
			Success: true,
			Message: "Found " + strconv.Itoa(len(printers)) + " printer(s)",
			Data: map[string]interface{}{
				"printers": printers,
			},
		}

	case "add-network":
		if len(args) < 2 {
			return fail("usage: printer add-network <host> [port]")
		}
		host := args[1]
		port := 9100
		if len(args) >= 3 {
			var err error
			port, err = strconv.Atoi(args[2])
			if err != nil || port <= 0 || port > 65535 {
				return fail("invalid port: %s", args[2])
			}
		}
		printerID := e.manager.AddNetworkPrinter(host, port, "")
		p := e.manager.GetPrinter(printerID)
		return &Result{
			Success: true,
			Message: "Added network printer: " + p.Description,
			Data: map[string]interface{}{
				"printer_id": printerID,
				"printer":    p,
			},
		}

	case "rename":
		if len(args) < 3 {
			return fail("usage: printer rename <id> <name>")
		}
		printerID := args[1]
		name := strings.Join(args[2:], " ")
		if !e.manager.SetPrinterName(printerID, name) {
			return fail("printer not found: %s", printerID)
		}
		return &Result{
			Success: true,
			Message: "Renamed printer " + printerID + " to " + name,
		}

	case "paper":
		if len(args) != 3 {
			return fail("usage: printer paper <id> <58mm|80mm|112mm|default>")
		}
		printerID, width := args[1], args[2]
		if width == "default" {
			width = ""
		}
		if err := e.manager.SetPaperWidth(printerID, width); err != nil {
			return fail("%v", err)
		}
		if width == "" {
			width = "the default width"
		}
		return &Result{
			Success: true,
			Message: "Printer " + printerID + " now prints on " + width,
		}

	default:
		return fail("unknown printer subcommand: %s. Use: list, add-network, rename, paper", subcommand)
	}
}

// handleJob handles job commands
// Usage: job list | status <id> | clear
func (e *Executor) handleJob(args []string) *Result {
	if len(args) == 0 {
		return fail("usage: job <list|status|clear>")
	}

	switch subcommand := args[0]; subcommand {
	case "list":
		jobs := e.queue.GetAllJobs()
		return &Result{
			Success: true,
			Message: "Found " + strconv.Itoa(len(jobs)) + " job(s)",
			Data: map[string]interface{}{
				"jobs": jobs,
			},
		}

	case "status":
		if len(args) < 2 {
			return fail("usage: job status <id>")
		}
		job := e.queue.GetJob(args[1])
		if job == nil {
			return fail("job not found: %s", args[1])
		}
		return &Result{
			Success: true,
			Message: string(job.Status),
			Data: map[string]interface{}{
				"job": job,
			},
		}

	case "clear":
		n := e.queue.ClearCompleted()
		return &Result{
			Success: true,
			Message: "Cleared " + strconv.Itoa(n) + " completed job(s)",
		}

	default:
		return fail("unknown job subcommand: %s. Use: list, status, clear", subcommand)
	}
}

// handleDetect handles detect command
// Usage: detect
func (e *Executor) handleDetect(args []string) *Result {
	printers, err := e.manager.DetectPrinters()
	if err != nil {
		return fail("detection failed: %v", err)
	}
	return &Result{
		Success: true,
		Message: "Detected " + strconv.Itoa(len(printers)) + " printer(s)",
		Data: map[string]interface{}{
			"count":    len(printers),
			"printers": printers,
		},
	}
}

// handleHelp handles help command
func (e *Executor) handleHelp(args []string) *Result {
	helpText := `Available Commands:

  print <printer-id> <layout-path|url> [--order <path|url>]
    Interpret a layout against an order and print it

  print <printer-id> [--order <path|url>] --compose <elements...>
    Compose a layout from arguments and print it
    Example: print printer-123 --compose text:"Hello" feed:2 cut

  interpret <layout-path|url> [--order <path|url>]
    Show the printer commands a layout produces

  printer list
    List all known printers

  printer add-network <host> [port]
    Add a network printer (default port: 9100)

  printer rename <id> <name>
    Set a custom name for a printer

  printer paper <id> <58mm|80mm|112mm|default>
    Set the paper a printer is loaded with; dividers and raster
    output follow it

  job list
    List all print jobs

  job status <id>
    Get status of a specific job

  job clear
    Clear completed jobs from the queue

  detect
    Scan for USB and serial printers

  help
    Show this help message

Examples:
  print printer-123 ./layouts/receipt.json --order ./orders/A-0042.json
  print printer-123 --order ./orders/A-0042.json --compose text:"Order {orderId}" items field:totalAmount prefix:"TOTAL $" cut
  interpret ./layouts/receipt.json
  printer add-network 192.168.1.100 9100
  printer rename printer-123 "Kitchen Printer"
`

	return &Result{
		Success: true,
		Message: helpText,
	}
}

// Load reads a file path or an http(s) URL
func (e *Executor) Load(src string) ([]byte, error) {
	return Load(e.client, src)
}

// Load reads src from disk, or fetches it with client when it is an
// http(s) URL
func Load(client *http.Client, src string) ([]byte, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		data, err := os.ReadFile(src)
		return data, errors.WithStack(err)
	}

	resp, err := client.Get(src)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", src)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetch %s: HTTP %d", src, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", src)
	}
	return data, nil
}
