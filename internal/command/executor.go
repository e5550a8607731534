// Package command provides the text command system shared by the API,
// the TUI and the remote CLI
package command

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/thereceipt/receipt-interpreter/internal/interpreter"
	"github.com/thereceipt/receipt-interpreter/internal/printer"
)

// Executor executes commands
type Executor struct {
	manager *printer.Manager
	queue   *printer.PrintQueue
	opts    []interpreter.Option
	client  *http.Client
}

// NewExecutor creates a new command executor. opts are applied to every
// interpretation it runs.
func NewExecutor(manager *printer.Manager, queue *printer.PrintQueue, opts ...interpreter.Option) *Executor {
	return &Executor{
		manager: manager,
		queue:   queue,
		opts:    opts,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Result represents the result of executing a command
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

func fail(format string, args ...interface{}) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Execute executes a command string and returns a result
func (e *Executor) Execute(cmdStr string) *Result {
	return e.Run(parseCommand(cmdStr))
}

// Run executes a command already split into words
func (e *Executor) Run(parts []string) *Result {
	if len(parts) == 0 {
		return fail("empty command")
	}

	command := parts[0]
	args := parts[1:]

	switch command {
	case "print":
		return e.handlePrint(args)
	case "interpret":
		return e.handleInterpret(args)
	case "printer":
		return e.handlePrinter(args)
	case "job":
		return e.handleJob(args)
	case "detect":
		return e.handleDetect(args)
	case "help":
		return e.handleHelp(args)
	default:
		return fail("unknown command: %s. Type 'help' for available commands", command)
	}
}

// parseCommand splits a command line on spaces, keeping quoted runs together
func parseCommand(cmdStr string) []string {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return []string{}
	}

	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, char := range cmdStr {
		switch {
		case (char == '"' || char == '\'') && !inQuotes:
			inQuotes = true
			quoteChar = char
		case inQuotes && char == quoteChar:
			inQuotes = false
			quoteChar = 0
		case (char == ' ' || char == '\t') && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(char)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
