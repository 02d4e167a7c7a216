package escpos

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
)

// Raster is a 1-bit image in GS v 0 layout (MSB first, 1 = black)
type Raster struct {
	WidthBytes int
	Height     int
	Data       []byte
}

// maxBarcodeData is the CODE128 payload limit once the code set prefix is added
const maxBarcodeData = 253

// Builder accumulates ESC/POS commands and text
type Builder struct {
	buf     bytes.Buffer
	charset *encoding.Encoder
}

func New() *Builder {
	return &Builder{}
}

// WithCharset transcodes subsequent text with enc. A nil enc writes raw UTF-8.
func (b *Builder) WithCharset(enc encoding.Encoding) *Builder {
	if enc == nil {
		b.charset = nil
		return b
	}
	b.charset = encoding.ReplaceUnsupported(enc.NewEncoder())
	return b
}

// Command appends a control sequence
func (b *Builder) Command(c Command) *Builder {
	b.buf.WriteString(c.seq)
	return b
}

func (b *Builder) Align(a Alignment) *Builder {
	return b.Command(a.command())
}

func (b *Builder) Bold(on bool) *Builder {
	if on {
		return b.Command(BoldOn)
	}
	return b.Command(BoldOff)
}

// Text appends s verbatim. Bytes that collide with ESC or GS are not escaped.
func (b *Builder) Text(s string) *Builder {
	if b.charset != nil {
		if enc, err := b.charset.String(s); err == nil {
			s = enc
		}
	}
	b.buf.WriteString(s)
	return b
}

func (b *Builder) Textf(format string, args ...any) *Builder {
	return b.Text(fmt.Sprintf(format, args...))
}

// Feed appends a line feed
func (b *Builder) Feed() *Builder {
	b.buf.WriteByte(LF)
	return b
}

// Raster prints a bit image with GS v 0 in normal density
func (b *Builder) Raster(r Raster) *Builder {
	if r.WidthBytes <= 0 || r.Height <= 0 || len(r.Data) < r.WidthBytes*r.Height {
		return b
	}
	b.buf.Write([]byte{GS, 'v', '0', 0x00,
		byte(r.WidthBytes), byte(r.WidthBytes >> 8),
		byte(r.Height), byte(r.Height >> 8),
	})
	b.buf.Write(r.Data[:r.WidthBytes*r.Height])
	return b
}

// Code128Data reduces s to what code set B can encode: printable ASCII,
// at most maxBarcodeData bytes. ok is false when anything was dropped.
func Code128Data(s string) (data string, ok bool) {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			continue
		}
		if sb.Len() == maxBarcodeData {
			break
		}
		sb.WriteByte(s[i])
	}
	data = sb.String()
	return data, data == s
}

// Barcode128 prints data as CODE128 (code set B) with the human readable
// text below it. Bytes code set B cannot encode are dropped and data longer
// than the command allows is truncated.
func (b *Builder) Barcode128(data string) *Builder {
	data, _ = Code128Data(data)
	if data == "" {
		return b
	}
	payload := "{B" + data
	b.buf.Write([]byte{GS, 'H', 0x02})
	b.buf.Write([]byte{GS, 'k', 73, byte(len(payload))})
	b.buf.WriteString(payload)
	return b
}

// Cut performs a feed-and-cut
func (b *Builder) Cut() *Builder {
	return b.Command(CutPaper)
}

func (b *Builder) Len() int {
	return b.buf.Len()
}

// Bytes returns a copy of the accumulated job
func (b *Builder) Bytes() []byte {
	return bytes.Clone(b.buf.Bytes())
}
