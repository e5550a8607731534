// Package interpreter binds a layout document and an optional order into
// an ordered sequence of printer commands
package interpreter

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/thereceipt/receipt-interpreter/pkg/layout"
	"github.com/thereceipt/receipt-interpreter/pkg/order"
	"github.com/thereceipt/receipt-interpreter/pkg/printcmd"
)

// DefaultDividerWidth is the divider length when neither the target
// printer nor the document names a paper width
const DefaultDividerWidth = layout.DefaultColumns

// Interpreter holds configuration only. Every call builds its own state,
// so one Interpreter may serve concurrent requests.
type Interpreter struct {
	logger       zerolog.Logger
	dividerWidth int    // 0 follows the paper width
	paperWidth   string // target device, overrides the document
	loc          *time.Location
	onUnresolved func(field string, p Presence)
}

// Option configures an Interpreter
type Option func(*Interpreter)

// WithLogger sets the logger used for data diagnostics
func WithLogger(l zerolog.Logger) Option {
	return func(in *Interpreter) { in.logger = l }
}

// WithDividerWidth fixes the divider length in characters. Zero keeps the
// length derived from the paper width.
func WithDividerWidth(n int) Option {
	return func(in *Interpreter) {
		if n > 0 {
			in.dividerWidth = n
		}
	}
}

// WithPaperWidth interprets for a printer loaded with this paper, in place
// of the width the document was designed for
func WithPaperWidth(w string) Option {
	return func(in *Interpreter) {
		if w != "" {
			in.paperWidth = w
		}
	}
}

// WithLocation sets the zone used by the date and time fields
func WithLocation(loc *time.Location) Option {
	return func(in *Interpreter) {
		if loc != nil {
			in.loc = loc
		}
	}
}

// WithUnresolvedHook registers a callback for every field or placeholder
// that resolved to nothing
func WithUnresolvedHook(fn func(field string, p Presence)) Option {
	return func(in *Interpreter) { in.onUnresolved = fn }
}

// New creates an interpreter
func New(opts ...Option) *Interpreter {
	in := &Interpreter{
		logger: zerolog.Nop(),
		loc:    time.UTC,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// With returns a copy of in with opts applied on top
func (in *Interpreter) With(opts ...Option) *Interpreter {
	out := *in
	for _, opt := range opts {
		opt(&out)
	}
	return &out
}

// dividerFor returns the divider length for doc
func (in *Interpreter) dividerFor(doc *layout.Document) int {
	switch {
	case in.dividerWidth > 0:
		return in.dividerWidth
	case in.paperWidth != "":
		return layout.Columns(in.paperWidth)
	default:
		return layout.Columns(doc.PaperWidth)
	}
}

// StoppedError reports that a live sink rejected a command after earlier
// commands had already been delivered
type StoppedError struct {
	Emitted int           // commands accepted by the sink
	Command printcmd.Type // rejected command
	Err     error
}

func (e *StoppedError) Error() string {
	return fmt.Sprintf("interpretation stopped after %d commands: %v", e.Emitted, e.Err)
}

func (e *StoppedError) Unwrap() error {
	return e.Err
}

// Interpret is shorthand for New(opts...).Interpret(doc, o)
func Interpret(doc *layout.Document, o *order.Order, opts ...Option) ([]printcmd.Command, error) {
	return New(opts...).Interpret(doc, o)
}

// Run is shorthand for New(opts...).Run(doc, o, sink)
func Run(doc *layout.Document, o *order.Order, sink printcmd.Sink, opts ...Option) error {
	return New(opts...).Run(doc, o, sink)
}

// Interpret validates doc and produces its command sequence for o. A nil
// order is the practice round: every field resolves as absent. Structural
// faults return a *layout.StructuralError and no commands.
func (in *Interpreter) Interpret(doc *layout.Document, o *order.Order) ([]printcmd.Command, error) {
	if err := layout.Validate(doc); err != nil {
		return nil, err
	}

	st := &state{
		in:      in,
		binding: &binding{order: o, loc: in.loc},
		divider: in.dividerFor(doc),
		out:     make([]printcmd.Command, 0, len(doc.Elements)+1),
	}

	for i := range doc.Elements {
		st.index = i
		st.element(&doc.Elements[i])
	}

	if !doc.HasCut() {
		st.emit(printcmd.CutPaper())
	}

	return st.out, nil
}

// Run interprets doc and delivers the commands to sink in order. Nothing
// reaches the sink when the document is malformed. If the sink rejects a
// command, Run stops and returns a *StoppedError.
func (in *Interpreter) Run(doc *layout.Document, o *order.Order, sink printcmd.Sink) error {
	cmds, err := in.Interpret(doc, o)
	if err != nil {
		return err
	}

	for i, c := range cmds {
		if err := printcmd.Apply(sink, c); err != nil {
			return &StoppedError{Emitted: i, Command: c.Type, Err: err}
		}
	}
	return nil
}

// state is local to one Interpret call
type state struct {
	in      *Interpreter
	binding *binding
	divider int
	index   int
	out     []printcmd.Command
}

func (s *state) emit(c printcmd.Command) {
	s.out = append(s.out, c)
}

func (s *state) miss(field string, p Presence) {
	s.in.logger.Debug().
		Int("element", s.index).
		Str("field", field).
		Str("reason", p.String()).
		Msg("field unresolved")
	if s.in.onUnresolved != nil {
		s.in.onUnresolved(field, p)
	}
}

func (s *state) resolve(text string) string {
	return resolveTokens(text, s.binding, s.miss)
}

func (s *state) element(el *layout.Element) {
	switch el.Type {
	case layout.TypeText:
		s.emit(printcmd.PrintText(s.resolve(el.Content), styleOf(el.Style)))

	case layout.TypeAlign:
		a, _ := printcmd.ParseAlignment(el.Alignment)
		s.emit(printcmd.SetAlignment(a))

	case layout.TypeFeedLine:
		s.emit(printcmd.FeedLines(*el.Lines))

	case layout.TypeDivider:
		char := el.Char
		if char == "" {
			char = "-"
		}
		s.emit(printcmd.PrintText(strings.Repeat(char, s.divider), printcmd.DefaultStyle))
		s.emit(printcmd.FeedLines(1))

	case layout.TypeDynamic:
		s.dynamic(el)

	case layout.TypeBarcode:
		bt := printcmd.BarcodeCODE128
		if el.BarcodeType != "" {
			bt, _ = printcmd.ParseBarcodeType(el.BarcodeType)
		}
		data := s.resolve(el.Data)
		if data == "" {
			data = blankPayload(bt, el.Data)
			s.fallback(el, data)
		}
		s.emit(printcmd.PrintBarcode(data, bt))

	case layout.TypeQRCode:
		data := s.resolve(el.Data)
		if data == "" {
			data = el.Data
			s.fallback(el, data)
		}
		s.emit(printcmd.PrintQRCode(data))

	case layout.TypeItemsSection:
		s.items(el)

	case layout.TypeCutPaper:
		s.emit(printcmd.CutPaper())
	}
}

func (s *state) dynamic(el *layout.Element) {
	value, presence := lookup(s.binding, el.Field)
	if presence == Present {
		s.emit(printcmd.PrintText(el.Prefix+value+el.Suffix, styleOf(el.Style)))
		return
	}

	s.miss(el.Field, presence)
	if el.Default != nil {
		s.emit(printcmd.PrintText(s.resolve(*el.Default), styleOf(el.Style)))
	}
}

func (s *state) fallback(el *layout.Element, payload string) {
	s.in.logger.Debug().
		Int("element", s.index).
		Str("type", el.Type).
		Str("payload", payload).
		Msg("code data resolved to empty")
}

// blankPayload stands in for code data that resolved to nothing. Every
// symbology still gets a printable symbol: zeros of the shortest length
// the 1D types encode, and the unresolved template for QR.
func blankPayload(bt printcmd.BarcodeType, raw string) string {
	switch bt {
	case printcmd.BarcodeEAN8:
		return strings.Repeat("0", 7)
	case printcmd.BarcodeEAN13:
		return strings.Repeat("0", 12)
	case printcmd.BarcodeQR:
		return raw
	default:
		return "0"
	}
}

// styleOf fills unset style fields with the defaults
func styleOf(st *layout.Style) printcmd.Style {
	out := printcmd.DefaultStyle
	if st == nil {
		return out
	}
	if st.Bold != nil {
		out.Bold = *st.Bold
	}
	if st.Size != "" {
		if sz, ok := printcmd.ParseSize(st.Size); ok {
			out.Size = sz
		}
	}
	return out
}
