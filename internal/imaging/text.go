package imaging

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/math/fixed"

	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/escpos"
)

// previewDPI matches the print head resolution
const previewDPI = 203

// PreviewOptions configures receipt preview rendering
type PreviewOptions struct {
	Width    int     // paper width in dots
	FontSize float64 // points
	Margin   int     // dots left blank on each side
}

// DefaultPreviewOptions approximates font A on 58mm paper
func DefaultPreviewOptions() PreviewOptions {
	return PreviewOptions{Width: Width58mm, FontSize: 8, Margin: 8}
}

type glyph struct {
	r    rune
	bold bool
}

type row struct {
	glyphs  []glyph
	align   escpos.Alignment
	raster  *escpos.Raster
	barcode string
	cut     bool
}

type faces struct {
	regular, bold         *truetype.Font
	regularFace, boldFace font.Face
}

func loadFaces(size float64) (*faces, error) {
	regular, err := truetype.Parse(gomono.TTF)
	if err != nil {
		return nil, err
	}
	bold, err := truetype.Parse(gomonobold.TTF)
	if err != nil {
		return nil, err
	}
	opts := &truetype.Options{Size: size, DPI: previewDPI}
	return &faces{
		regular:     regular,
		bold:        bold,
		regularFace: truetype.NewFace(regular, opts),
		boldFace:    truetype.NewFace(bold, opts),
	}, nil
}

func (f *faces) face(bold bool) font.Face {
	if bold {
		return f.boldFace
	}
	return f.regularFace
}

// RenderReceipt draws decoded job spans the way a line printer lays them
// out: text runs on until a line feed or the paper edge.
func RenderReceipt(spans []escpos.Span, opts PreviewOptions) (image.Image, error) {
	if opts.Width <= 0 {
		opts.Width = Width58mm
	}
	if opts.FontSize <= 0 {
		opts.FontSize = DefaultPreviewOptions().FontSize
	}

	fc, err := loadFaces(opts.FontSize)
	if err != nil {
		return nil, err
	}

	contentW := opts.Width - 2*opts.Margin
	rows := layoutRows(spans, fc, contentW)

	metrics := fc.regularFace.Metrics()
	lineH := metrics.Height.Ceil()
	ascent := metrics.Ascent.Ceil()
	barH := 2 * lineH

	height := 2 * opts.Margin
	for _, r := range rows {
		switch {
		case r.raster != nil:
			height += r.raster.Height
		case r.barcode != "":
			height += barH + lineH
		default:
			height += lineH
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, opts.Width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)

	c := freetype.NewContext()
	c.SetDPI(previewDPI)
	c.SetFontSize(opts.FontSize)
	c.SetClip(img.Bounds())
	c.SetDst(img)
	c.SetSrc(&image.Uniform{color.Black})
	c.SetHinting(font.HintingFull)

	y := opts.Margin
	for _, r := range rows {
		switch {
		case r.raster != nil:
			src := PreviewRaster(*r.raster)
			x := alignX(r.align, src.Bounds().Dx(), contentW) + opts.Margin
			draw.Draw(img, image.Rect(x, y, x+src.Bounds().Dx(), y+src.Bounds().Dy()), src, image.Point{}, draw.Src)
			y += r.raster.Height

		case r.barcode != "":
			drawBars(img, r.barcode, opts.Margin, y, contentW, barH)
			y += barH
			text := toGlyphs(r.barcode, false)
			x := alignX(escpos.AlignCenter, measureGlyphs(fc, text), contentW) + opts.Margin
			drawGlyphs(c, fc, text, x, y+ascent)
			y += lineH

		case r.cut:
			for x := opts.Margin; x < opts.Width-opts.Margin; x += 6 {
				for dx := 0; dx < 3; dx++ {
					img.Set(x+dx, y+lineH/2, color.Black)
				}
			}
			y += lineH

		default:
			x := alignX(r.align, measureGlyphs(fc, r.glyphs), contentW) + opts.Margin
			drawGlyphs(c, fc, r.glyphs, x, y+ascent)
			y += lineH
		}
	}

	return img, nil
}

// layoutRows splits spans into printed rows, breaking anywhere at maxWidth
func layoutRows(spans []escpos.Span, fc *faces, maxWidth int) []row {
	var (
		rows    []row
		current row
		started bool
	)

	flush := func() {
		rows = append(rows, current)
		current = row{}
		started = false
	}

	for _, s := range spans {
		switch s.Kind {
		case escpos.SpanFeed:
			flush()

		case escpos.SpanRaster:
			if started {
				flush()
			}
			rows = append(rows, row{raster: s.Raster, align: s.Align})

		case escpos.SpanBarcode:
			if started {
				flush()
			}
			rows = append(rows, row{barcode: s.Text})

		case escpos.SpanCut:
			if started {
				flush()
			}
			rows = append(rows, row{cut: true})

		case escpos.SpanText:
			for _, g := range toGlyphs(s.Text, s.Bold) {
				if !started {
					current.align = s.Align
					started = true
				}
				if g.r == '\r' {
					continue
				}
				test := append(current.glyphs, g)
				if measureGlyphs(fc, test) > maxWidth && len(current.glyphs) > 0 {
					flush()
					current.align = s.Align
					started = true
					test = []glyph{g}
				}
				current.glyphs = test
			}
		}
	}

	if started {
		flush()
	}

	return rows
}

func toGlyphs(s string, bold bool) []glyph {
	out := make([]glyph, 0, len(s))
	for _, r := range s {
		out = append(out, glyph{r: r, bold: bold})
	}
	return out
}

// measureGlyphs returns the width of a row in pixels
func measureGlyphs(fc *faces, glyphs []glyph) int {
	var width fixed.Int26_6
	for _, g := range glyphs {
		adv, ok := fc.face(g.bold).GlyphAdvance(g.r)
		if ok {
			width += adv
		}
	}
	return width.Ceil()
}

func drawGlyphs(c *freetype.Context, fc *faces, glyphs []glyph, x, baseline int) {
	pt := freetype.Pt(x, baseline)
	for _, g := range glyphs {
		if g.bold {
			c.SetFont(fc.bold)
		} else {
			c.SetFont(fc.regular)
		}
		next, err := c.DrawString(string(g.r), pt)
		if err != nil {
			continue
		}
		pt = next
	}
}

func alignX(a escpos.Alignment, contentWidth, maxWidth int) int {
	switch a {
	case escpos.AlignCenter:
		return (maxWidth - contentWidth) / 2
	case escpos.AlignRight:
		return maxWidth - contentWidth
	default:
		return 0
	}
}

// drawBars sketches a barcode from the bits of data. It is a stand-in for
// the printer's CODE128 rendering, not a scannable symbol.
func drawBars(img *image.RGBA, data string, x0, y0, maxWidth, height int) {
	const module = 2

	width := len(data) * 8 * module
	if width > maxWidth {
		width = maxWidth
	}
	x := x0 + (maxWidth-width)/2

	for _, ch := range []byte(data) {
		for bit := 7; bit >= 0; bit-- {
			if x+module > x0+maxWidth {
				return
			}
			if ch>>bit&1 == 1 {
				draw.Draw(img, image.Rect(x, y0, x+module, y0+height), &image.Uniform{color.Black}, image.Point{}, draw.Src)
			}
			x += module
		}
	}
}
