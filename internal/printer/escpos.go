package printer

import (
	"bytes"
	"fmt"
	"image"

	"github.com/thereceipt/receipt-interpreter/pkg/printcmd"
)

// ESC/POS control bytes
const (
	ESC byte = 0x1B
	GS  byte = 0x1D
	LF  byte = 0x0A
)

// ESCPOS is a printcmd.Sink that encodes commands as ESC/POS bytes
type ESCPOS struct {
	buffer *bytes.Buffer
}

var _ printcmd.Sink = (*ESCPOS)(nil)

// NewESCPOS creates an encoder whose buffer starts with ESC @
func NewESCPOS() *ESCPOS {
	e := &ESCPOS{buffer: new(bytes.Buffer)}
	e.Initialize()
	return e
}

// Initialize resets the printer to its power-on state
func (e *ESCPOS) Initialize() {
	e.buffer.Write([]byte{ESC, '@'})
}

// Bytes returns the encoded stream
func (e *ESCPOS) Bytes() []byte {
	return e.buffer.Bytes()
}

// Reset clears the buffer and writes a fresh ESC @
func (e *ESCPOS) Reset() {
	e.buffer.Reset()
	e.Initialize()
}

// PrintText writes content in the requested style followed by LF
func (e *ESCPOS) PrintText(content string, style printcmd.Style) error {
	if err := printcmd.Check(printcmd.PrintText(content, style)); err != nil {
		return err
	}
	size, _ := printcmd.ParseSize(string(style.Size))
	e.setBold(style.Bold)
	e.setSize(size)
	e.buffer.WriteString(content)
	e.buffer.WriteByte(LF)
	return nil
}

// PrintBarcode prints a 1D barcode with human readable text below it, or
// a QR code for the QR type
func (e *ESCPOS) PrintBarcode(data string, t printcmd.BarcodeType) error {
	if err := printcmd.Check(printcmd.PrintBarcode(data, t)); err != nil {
		return err
	}
	t, _ = printcmd.ParseBarcodeType(string(t))
	if t == printcmd.BarcodeQR {
		return e.qr(data)
	}

	payload := data
	var m byte
	switch t {
	case printcmd.BarcodeCODE39:
		m = 69
	case printcmd.BarcodeEAN13:
		m = 67
		if !eanDigits(data, 12) {
			return barcodeArgError("EAN13 data must be 12 or 13 digits, got %q", data)
		}
	case printcmd.BarcodeEAN8:
		m = 68
		if !eanDigits(data, 7) {
			return barcodeArgError("EAN8 data must be 7 or 8 digits, got %q", data)
		}
	default:
		m = 73
		payload = "{B" + data // code set B
	}
	// GS k carries a one byte length
	if len(payload) > 255 {
		return barcodeArgError("%s payload is %d bytes, at most 255 fit", t, len(payload))
	}

	e.buffer.Write([]byte{GS, 'h', 80})  // height in dots
	e.buffer.Write([]byte{GS, 'w', 2})   // module width
	e.buffer.Write([]byte{GS, 'H', 2})   // HRI below
	e.buffer.Write([]byte{GS, 'k', m, byte(len(payload))})
	e.buffer.WriteString(payload)
	e.buffer.WriteByte(LF)
	return nil
}

// PrintQRCode prints a model 2 QR code
func (e *ESCPOS) PrintQRCode(data string) error {
	if err := printcmd.Check(printcmd.PrintQRCode(data)); err != nil {
		return err
	}
	return e.qr(data)
}

// maxQRBytes is the largest payload the GS ( k store function takes
const maxQRBytes = 7089

func (e *ESCPOS) qr(data string) error {
	if len(data) > maxQRBytes {
		return &printcmd.ArgumentError{
			Command: printcmd.TypePrintQRCode,
			Reason:  fmt.Sprintf("QR data is %d bytes, at most %d fit", len(data), maxQRBytes),
		}
	}

	// model 2
	e.buffer.Write([]byte{GS, '(', 'k', 4, 0, 49, 65, 50, 0})
	// module size
	e.buffer.Write([]byte{GS, '(', 'k', 3, 0, 49, 67, 6})
	// error correction M
	e.buffer.Write([]byte{GS, '(', 'k', 3, 0, 49, 69, 49})

	n := len(data) + 3
	e.buffer.Write([]byte{GS, '(', 'k', byte(n & 0xFF), byte((n >> 8) & 0xFF), 49, 80, 48})
	e.buffer.WriteString(data)

	// print stored symbol
	e.buffer.Write([]byte{GS, '(', 'k', 3, 0, 49, 81, 48})
	e.buffer.WriteByte(LF)
	return nil
}

func barcodeArgError(format string, args ...interface{}) error {
	return &printcmd.ArgumentError{Command: printcmd.TypePrintBarcode, Reason: fmt.Sprintf(format, args...)}
}

// eanDigits reports whether data is n digits, or n plus a check digit
func eanDigits(data string, n int) bool {
	if len(data) != n && len(data) != n+1 {
		return false
	}
	for _, r := range data {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SetAlignment sets justification for following lines
func (e *ESCPOS) SetAlignment(a printcmd.Alignment) error {
	if err := printcmd.Check(printcmd.SetAlignment(a)); err != nil {
		return err
	}
	a, _ = printcmd.ParseAlignment(string(a))

	var n byte
	switch a {
	case printcmd.AlignCenter:
		n = 1
	case printcmd.AlignRight:
		n = 2
	}
	e.buffer.Write([]byte{ESC, 'a', n})
	return nil
}

// FeedLines sends count line feeds
func (e *ESCPOS) FeedLines(count int) error {
	if err := printcmd.Check(printcmd.FeedLines(count)); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		e.buffer.WriteByte(LF)
	}
	return nil
}

// CutPaper sends a full cut
func (e *ESCPOS) CutPaper() error {
	e.buffer.Write([]byte{GS, 'V', 0})
	return nil
}

// PartialCut sends partial cut command
func (e *ESCPOS) PartialCut() {
	e.buffer.Write([]byte{GS, 'V', 1})
}

func (e *ESCPOS) setBold(enabled bool) {
	var n byte
	if enabled {
		n = 1
	}
	e.buffer.Write([]byte{ESC, 'E', n})
}

// setSize picks font B for SMALL and character magnification for the rest
func (e *ESCPOS) setSize(size printcmd.Size) {
	font, mag := byte(0), byte(0x00)
	switch size {
	case printcmd.SizeSmall:
		font = 1
	case printcmd.SizeLarge:
		mag = 0x11
	case printcmd.SizeXLarge:
		mag = 0x22
	}
	e.buffer.Write([]byte{ESC, 'M', font})
	e.buffer.Write([]byte{GS, '!', mag})
}

// PrintImage writes img as a GS v 0 raster bit image
func (e *ESCPOS) PrintImage(img image.Image) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	bytesPerLine := (width + 7) / 8

	e.buffer.Write([]byte{
		GS, 'v', '0', 0,
		byte(bytesPerLine & 0xFF), byte((bytesPerLine >> 8) & 0xFF),
		byte(height & 0xFF), byte((height >> 8) & 0xFF),
	})
	e.buffer.Write(imageToBitmap(img))
}

// imageToBitmap converts an image to a 1-bit bitmap, MSB first
func imageToBitmap(img image.Image) []byte {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	bytesPerLine := (width + 7) / 8
	bitmap := make([]byte, bytesPerLine*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			// Threshold at 50% (32768 out of 65535)
			if (r+g+b)/3 < 32768 {
				bitmap[y*bytesPerLine+x/8] |= 1 << (7 - x%8)
			}
		}
	}

	return bitmap
}

// EncodeCommands encodes a command sequence natively
func EncodeCommands(cmds []printcmd.Command) ([]byte, error) {
	e := NewESCPOS()
	if err := printcmd.Replay(cmds, e); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// NativeEncoder encodes with ESC/POS commands, whatever the paper
func NativeEncoder(_ *Printer, cmds []printcmd.Command) ([]byte, error) {
	return EncodeCommands(cmds)
}

// RasterEncoder returns an encoder that prints the receipt as one bitmap
// drawn by render at the printer's paper width, or at defaultWidth when the
// printer has none. Used for printers without barcode or QR support.
func RasterEncoder(render func(cmds []printcmd.Command, paperWidth string) (image.Image, error), defaultWidth string) Encoder {
	return func(p *Printer, cmds []printcmd.Command) ([]byte, error) {
		width := defaultWidth
		if p != nil && p.PaperWidth != "" {
			width = p.PaperWidth
		}
		img, err := render(cmds, width)
		if err != nil {
			return nil, err
		}
		e := NewESCPOS()
		e.PrintImage(img)
		e.buffer.Write([]byte{LF, LF, LF})
		e.CutPaper()
		return e.Bytes(), nil
	}
}
