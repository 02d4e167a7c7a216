package escpos

import "strings"

// SpanKind classifies a decoded piece of a job
type SpanKind int

const (
	SpanText SpanKind = iota
	SpanFeed
	SpanRaster
	SpanBarcode
	SpanCut
)

// Span is a run of output sharing one print state
type Span struct {
	Kind   SpanKind
	Text   string // text, or barcode data
	Align  Alignment
	Bold   bool
	Double bool
	Raster *Raster
}

// Decode interprets a job the way a printer would, for previews and
// diagnostics. Unknown ESC/GS sequences are skipped as two-byte commands.
func Decode(data []byte) []Span {
	var (
		spans  []Span
		align  Alignment
		bold   bool
		double bool
	)

	emit := func(s Span) {
		s.Align, s.Bold, s.Double = align, bold, double
		spans = append(spans, s)
	}

	i := 0
	for i < len(data) {
		switch data[i] {
		case ESC:
			if i+1 >= len(data) {
				return spans
			}
			switch data[i+1] {
			case '@':
				align, bold, double = AlignLeft, false, false
				i += 2
				continue
			case 'E', 'a', '!':
				if i+2 >= len(data) {
					return spans
				}
				arg := data[i+2]
				switch data[i+1] {
				case 'E':
					bold = arg&0x01 == 1
				case 'a':
					align = Alignment(arg % 48 % 3)
				case '!':
					double = arg&0x10 != 0
				}
				i += 3
				continue
			}
			i += 2

		case GS:
			if i+1 >= len(data) {
				return spans
			}
			n, span, ok := decodeGS(data[i:])
			if !ok {
				return spans
			}
			if span != nil {
				emit(*span)
			}
			i += n

		case LF:
			emit(Span{Kind: SpanFeed})
			i++

		default:
			j := i
			for j < len(data) && data[j] != ESC && data[j] != GS && data[j] != LF {
				j++
			}
			emit(Span{Kind: SpanText, Text: string(data[i:j])})
			i = j
		}
	}

	return spans
}

// decodeGS handles one GS sequence at the start of p. It returns the
// sequence length, and false when the sequence is truncated.
func decodeGS(p []byte) (int, *Span, bool) {
	switch p[1] {
	case 'V':
		if len(p) < 3 {
			return 0, nil, false
		}
		if p[2] == 65 || p[2] == 66 {
			if len(p) < 4 {
				return 0, nil, false
			}
			return 4, &Span{Kind: SpanCut}, true
		}
		return 3, &Span{Kind: SpanCut}, true

	case 'v':
		if len(p) < 8 {
			return 0, nil, false
		}
		w := int(p[4]) | int(p[5])<<8
		h := int(p[6]) | int(p[7])<<8
		size := w * h
		if len(p) < 8+size {
			return 0, nil, false
		}
		r := &Raster{WidthBytes: w, Height: h, Data: append([]byte(nil), p[8:8+size]...)}
		return 8 + size, &Span{Kind: SpanRaster, Raster: r}, true

	case 'k':
		if len(p) < 3 {
			return 0, nil, false
		}
		if p[2] >= 65 {
			if len(p) < 4 || len(p) < 4+int(p[3]) {
				return 0, nil, false
			}
			data := string(p[4 : 4+int(p[3])])
			if len(data) >= 2 && data[0] == '{' {
				data = data[2:]
			}
			return 4 + int(p[3]), &Span{Kind: SpanBarcode, Text: data}, true
		}
		end := strings.IndexByte(string(p[3:]), 0)
		if end < 0 {
			return 0, nil, false
		}
		return 3 + end + 1, &Span{Kind: SpanBarcode, Text: string(p[3 : 3+end])}, true

	case 'H', '!', 'h', 'w':
		if len(p) < 3 {
			return 0, nil, false
		}
		return 3, nil, true
	}

	return 2, nil, true
}

// Texts returns the text spans of a job in order
func Texts(spans []Span) []string {
	var out []string
	for _, s := range spans {
		if s.Kind == SpanText {
			out = append(out, s.Text)
		}
	}
	return out
}
