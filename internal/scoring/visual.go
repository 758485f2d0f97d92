package scoring

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// VisualSize is the side of the square both screenshots are scaled to
// before comparison.
const VisualSize = 800

const (
	ssimWindow = 7
	ssimK1     = 0.01
	ssimK2     = 0.03
	ssimRange  = 255.0
)

var errEmptyImage = errors.New("empty image data")

// Visual returns the structural similarity of two encoded screenshots in
// [0,1]. It is symmetric and deterministic.
func Visual(reference, candidate []byte) (float64, error) {
	a, err := decodeLuminance(reference, VisualSize)
	if err != nil {
		return 0, fmt.Errorf("failed to decode reference image: %w", err)
	}
	b, err := decodeLuminance(candidate, VisualSize)
	if err != nil {
		return 0, fmt.Errorf("failed to decode candidate image: %w", err)
	}
	return SSIM(a, b), nil
}

func decodeLuminance(data []byte, size int) (*image.Gray, error) {
	if len(data) == 0 {
		return nil, errEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return Luminance(img, size), nil
}

// Luminance converts img to 8-bit luma (ITU-R 601-2) and scales it to a
// size×size square with bilinear interpolation.
func Luminance(img image.Image, size int) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			l := (19595*(r>>8) + 38470*(g>>8) + 7471*(bl>>8) + 1<<15) >> 16
			gray.Pix[gray.PixOffset(x, y)] = uint8(l)
		}
	}

	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), gray, b, draw.Src, nil)
	return dst
}

// SSIM computes the mean structural similarity of two equally sized
// grayscale images over every 7×7 window that lies fully inside them, using
// sample statistics. The result is clamped to [0,1]. Images smaller than the
// window, or of different sizes, score 0.
func SSIM(a, b *image.Gray) float64 {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return 0
	}
	w, h := ab.Dx(), ab.Dy()
	if w < ssimWindow || h < ssimWindow {
		return 0
	}

	t := newMoments(a, b)

	const n = ssimWindow * ssimWindow
	c1 := (ssimK1 * ssimRange) * (ssimK1 * ssimRange)
	c2 := (ssimK2 * ssimRange) * (ssimK2 * ssimRange)

	var total float64
	windows := 0
	for y := 0; y+ssimWindow <= h; y++ {
		for x := 0; x+ssimWindow <= w; x++ {
			sx, sy, sxx, syy, sxy := t.window(x, y, ssimWindow)

			mx := float64(sx) / n
			my := float64(sy) / n
			// Exact integer arithmetic keeps variances non-negative.
			vx := float64(n*sxx-sx*sx) / (n * (n - 1))
			vy := float64(n*syy-sy*sy) / (n * (n - 1))
			cxy := float64(n*sxy-sx*sy) / (n * (n - 1))

			num := (2*mx*my + c1) * (2*cxy + c2)
			den := (mx*mx + my*my + c1) * (vx + vy + c2)
			total += num / den
			windows++
		}
	}

	s := total / float64(windows)
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// moments holds summed-area tables of x, y, x², y² and xy.
type moments struct {
	stride                int
	sx, sy, sxx, syy, sxy []int64
}

func newMoments(a, b *image.Gray) *moments {
	ab, bb := a.Bounds(), b.Bounds()
	w, h := ab.Dx(), ab.Dy()
	stride := w + 1
	size := stride * (h + 1)
	m := &moments{
		stride: stride,
		sx:     make([]int64, size),
		sy:     make([]int64, size),
		sxx:    make([]int64, size),
		syy:    make([]int64, size),
		sxy:    make([]int64, size),
	}

	for y := 0; y < h; y++ {
		var rx, ry, rxx, ryy, rxy int64
		for x := 0; x < w; x++ {
			px := int64(a.Pix[a.PixOffset(ab.Min.X+x, ab.Min.Y+y)])
			py := int64(b.Pix[b.PixOffset(bb.Min.X+x, bb.Min.Y+y)])
			rx += px
			ry += py
			rxx += px * px
			ryy += py * py
			rxy += px * py

			i := (y+1)*stride + x + 1
			up := y*stride + x + 1
			m.sx[i] = m.sx[up] + rx
			m.sy[i] = m.sy[up] + ry
			m.sxx[i] = m.sxx[up] + rxx
			m.syy[i] = m.syy[up] + ryy
			m.sxy[i] = m.sxy[up] + rxy
		}
	}
	return m
}

func (m *moments) window(x, y, size int) (sx, sy, sxx, syy, sxy int64) {
	tl := y*m.stride + x
	tr := tl + size
	bl := (y+size)*m.stride + x
	br := bl + size
	rect := func(t []int64) int64 { return t[br] - t[tr] - t[bl] + t[tl] }
	return rect(m.sx), rect(m.sy), rect(m.sxx), rect(m.syy), rect(m.sxy)
}
