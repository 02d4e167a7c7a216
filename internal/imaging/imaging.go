package imaging

import (
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/Reshmi-Beta-Dev/bluetooth-printer/internal/escpos"
)

// Printable width in dots of common thermal printers at 203 DPI
const (
	Width58mm = 384
	Width80mm = 576
)

// DefaultThreshold separates dark from light pixels
const DefaultThreshold = 128

// LoadImage loads an image from file
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

// SavePNG writes img to path
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadLogo loads an image file and converts it to a printable raster no
// wider than maxWidth dots
func LoadLogo(path string, maxWidth int) (escpos.Raster, error) {
	img, err := LoadImage(path)
	if err != nil {
		return escpos.Raster{}, err
	}
	return Rasterize(img, maxWidth, DefaultThreshold), nil
}

// Rasterize scales img down to fit maxWidth (never up), pads the width to
// a multiple of 8 and packs it 1 bit per pixel, MSB first, 1 = black
func Rasterize(img image.Image, maxWidth int, threshold uint8) escpos.Raster {
	scaled := scaleToWidth(img, maxWidth)
	b := scaled.Bounds()
	width, height := b.Dx(), b.Dy()

	widthBytes := (width + 7) / 8
	data := make([]byte, widthBytes*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if rgbToGray(scaled.At(b.Min.X+x, b.Min.Y+y)) >= threshold {
				continue
			}
			data[y*widthBytes+x/8] |= 1 << (7 - x%8)
		}
	}

	return escpos.Raster{WidthBytes: widthBytes, Height: height, Data: data}
}

// rgbToGray converts a color to grayscale value. Transparent pixels count as
// white paper.
func rgbToGray(c color.Color) uint8 {
	r, g, b, a := c.RGBA()
	if a == 0 {
		return 255
	}
	// Standard luminance formula, values are 16-bit so divide by 256
	gray := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 256
	return uint8(gray)
}

// scaleToWidth shrinks img to maxWidth keeping the aspect ratio
func scaleToWidth(img image.Image, maxWidth int) image.Image {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if maxWidth <= 0 || srcW <= maxWidth {
		return img
	}

	newH := srcH * maxWidth / srcW
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newH))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// PreviewRaster creates a viewable image from raster data
func PreviewRaster(r escpos.Raster) image.Image {
	width := r.WidthBytes * 8
	img := image.NewGray(image.Rect(0, 0, width, r.Height))
	if len(r.Data) < r.WidthBytes*r.Height {
		return img
	}

	for y := 0; y < r.Height; y++ {
		for x := 0; x < width; x++ {
			bit := (r.Data[y*r.WidthBytes+x/8] >> (7 - x%8)) & 1
			if bit == 1 {
				img.SetGray(x, y, color.Gray{0})
			} else {
				img.SetGray(x, y, color.Gray{255})
			}
		}
	}

	return img
}
