package printcmd

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sink accepts printer commands in order. Implementations may buffer,
// stream or execute immediately, but must never merge, drop or reorder
// commands, and must reject invalid arguments with an error.
type Sink interface {
	PrintText(content string, style Style) error
	PrintBarcode(data string, t BarcodeType) error
	PrintQRCode(data string) error
	SetAlignment(a Alignment) error
	FeedLines(count int) error
	CutPaper() error
}

// ArgumentError reports a command a sink refused
type ArgumentError struct {
	Command Type
	Reason  string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Reason)
}

// Check validates a command's arguments. Every sink in this module calls
// it before acting.
func Check(c Command) error {
	switch c.Type {
	case TypePrintText:
		if c.Style != nil {
			if _, ok := ParseSize(string(c.Style.Size)); !ok {
				return &ArgumentError{Command: c.Type, Reason: fmt.Sprintf("invalid size '%s'", c.Style.Size)}
			}
		}
	case TypePrintBarcode:
		if c.Data == "" {
			return &ArgumentError{Command: c.Type, Reason: "empty barcode data"}
		}
		if _, ok := ParseBarcodeType(string(c.BarcodeType)); !ok {
			return &ArgumentError{Command: c.Type, Reason: fmt.Sprintf("invalid barcode type '%s'", c.BarcodeType)}
		}
	case TypePrintQRCode:
		if c.Data == "" {
			return &ArgumentError{Command: c.Type, Reason: "empty QR data"}
		}
	case TypeSetAlignment:
		if _, ok := ParseAlignment(string(c.Alignment)); !ok {
			return &ArgumentError{Command: c.Type, Reason: fmt.Sprintf("invalid alignment '%s'", c.Alignment)}
		}
	case TypeFeedLines:
		if c.Count < 1 {
			return &ArgumentError{Command: c.Type, Reason: fmt.Sprintf("line count must be at least 1, got %d", c.Count)}
		}
	case TypeCutPaper:
	default:
		return &ArgumentError{Command: c.Type, Reason: "unknown command type"}
	}
	return nil
}

// Apply delivers a single command to a sink
func Apply(sink Sink, c Command) error {
	switch c.Type {
	case TypePrintText:
		return sink.PrintText(c.Content, c.TextStyle())
	case TypePrintBarcode:
		return sink.PrintBarcode(c.Data, c.BarcodeType)
	case TypePrintQRCode:
		return sink.PrintQRCode(c.Data)
	case TypeSetAlignment:
		return sink.SetAlignment(c.Alignment)
	case TypeFeedLines:
		return sink.FeedLines(c.Count)
	case TypeCutPaper:
		return sink.CutPaper()
	default:
		return &ArgumentError{Command: c.Type, Reason: "unknown command type"}
	}
}

// Replay drives a sink from a recorded command sequence, stopping at the
// first rejected command
func Replay(cmds []Command, sink Sink) error {
	for i, c := range cmds {
		if err := Apply(sink, c); err != nil {
			return errors.Wrapf(err, "command[%d]", i)
		}
	}
	return nil
}

// AlignmentTrace returns, for every PrintText in cmds (in order), the
// alignment active when it was emitted. The printer starts LEFT.
func AlignmentTrace(cmds []Command) []Alignment {
	current := AlignLeft
	var trace []Alignment
	for _, c := range cmds {
		switch c.Type {
		case TypeSetAlignment:
			current = c.Alignment
		case TypePrintText:
			trace = append(trace, current)
		}
	}
	return trace
}
