package escpos

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/receipt"
)

// Options enables output that the plain receipt layout leaves out.
// The zero value produces exactly the same bytes as Encode.
type Options struct {
	Init    bool              // reset the printer first (ESC @)
	Logo    *Raster           // printed centered above the header
	Barcode bool              // print footer.barcode as CODE128
	Cut     bool              // cut the paper at the end
	Charset encoding.Encoding // nil sends UTF-8
}

// Encode renders a receipt as ESC/POS. Only format commands and text are
// emitted: no line feeds, logo, barcode or cut.
func Encode(r receipt.Receipt) []byte {
	return EncodeWithOptions(r, Options{})
}

func EncodeWithOptions(r receipt.Receipt, opts Options) []byte {
	b := New().WithCharset(opts.Charset)

	if opts.Init {
		b.Command(Init)
	}
	if opts.Logo != nil {
		b.Align(AlignCenter).Raster(*opts.Logo).Feed()
	}

	// Header
	b.Align(AlignCenter).
		Bold(true).
		Text(r.Header.BusinessName).
		Bold(false)
	b.Text(r.Header.Address).
		Text(r.Header.Phone)

	// Order info
	b.Align(AlignLeft).
		Textf("Order: %s", r.OrderInfo.OrderNumber).
		Textf("Date: %s", r.OrderInfo.Date)

	for _, item := range r.Items {
		b.Align(AlignLeft).Text(ItemLine(item))
	}

	// Totals
	b.Align(AlignRight).
		Textf("Subtotal: %s", r.Totals.Subtotal).
		Textf("Tax: %s", r.Totals.Tax).
		Textf("Total: %s", r.Totals.Total)

	// Footer
	b.Align(AlignCenter).Text(r.Footer.Message)

	if data, _ := Code128Data(r.Footer.Barcode); opts.Barcode && data != "" {
		b.Feed().Barcode128(data)
	}
	if opts.Cut {
		b.Cut()
	}

	return b.Bytes()
}

// ItemLine formats one item as "{name} x{quantity} @ ${price}"
func ItemLine(item receipt.Item) string {
	return fmt.Sprintf("%s x%d @ $%s", item.Name, item.Quantity, item.Price)
}

var charsets = map[string]encoding.Encoding{
	"cp437":        charmap.CodePage437,
	"cp850":        charmap.CodePage850,
	"cp858":        charmap.CodePage858,
	"cp866":        charmap.CodePage866,
	"iso-8859-1":   charmap.ISO8859_1,
	"iso-8859-15":  charmap.ISO8859_15,
	"windows-1250": charmap.Windows1250,
	"windows-1252": charmap.Windows1252,
}

// Charset resolves a code page name. "" and "utf-8" return nil (raw UTF-8).
func Charset(name string) (encoding.Encoding, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "utf-8" || name == "utf8" {
		return nil, nil
	}
	enc, ok := charsets[name]
	if !ok {
		return nil, fmt.Errorf("unknown charset %q", name)
	}
	return enc, nil
}
