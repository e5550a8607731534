package renderer

import (
	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/code39"
	"github.com/boombuler/barcode/ean"
	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"
	"github.com/thereceipt/receipt-interpreter/pkg/printcmd"
)

const barcodeHeight = 80

// PrintBarcode draws a 1D barcode. A QR barcode type is drawn as a QR code.
func (c *Canvas) PrintBarcode(data string, t printcmd.BarcodeType) error {
	if err := printcmd.Check(printcmd.PrintBarcode(data, t)); err != nil {
		return err
	}
	t, _ = printcmd.ParseBarcodeType(string(t))
	if t == printcmd.BarcodeQR {
		return c.drawQR(data)
	}

	var code barcode.Barcode
	var err error

	switch t {
	case printcmd.BarcodeCODE39:
		code, err = code39.Encode(data, false, true)
	case printcmd.BarcodeEAN8, printcmd.BarcodeEAN13:
		code, err = ean.Encode(data)
	default:
		code, err = code128.Encode(data)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s barcode", t)
	}

	// Scale barcode, leaving margins
	targetWidth := c.width - 40
	if natural := code.Bounds().Dx() * 2; natural < targetWidth {
		targetWidth = natural
	}
	scaled, err := barcode.Scale(code, targetWidth, barcodeHeight)
	if err != nil {
		return errors.Wrap(err, "failed to scale barcode")
	}

	imgHeight := scaled.Bounds().Dy()
	c.ensureHeight(imgHeight + 20)
	x := c.xFor(float64(scaled.Bounds().Dx()))
	c.ctx.DrawImage(scaled, int(x), int(c.y))
	c.y += float64(imgHeight) + 10

	return nil
}

// PrintQRCode draws a QR code
func (c *Canvas) PrintQRCode(data string) error {
	if err := printcmd.Check(printcmd.PrintQRCode(data)); err != nil {
		return err
	}
	return c.drawQR(data)
}

func (c *Canvas) drawQR(data string) error {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return errors.Wrap(err, "failed to encode QR code")
	}

	qrSize := c.width - 100
	if qrSize > 400 {
		qrSize = 400
	}
	qrImg := qr.Image(qrSize)

	imgHeight := qrImg.Bounds().Dy()
	c.ensureHeight(imgHeight + 20)
	x := c.xFor(float64(qrImg.Bounds().Dx()))
	c.ctx.DrawImage(qrImg, int(x), int(c.y))
	c.y += float64(imgHeight) + 10

	return nil
}
