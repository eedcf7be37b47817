package canvas

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"
)

var (
	ErrEmptyCanvas    = errors.New("canvas has no drawable content")
	ErrNoActiveStroke = errors.New("no active stroke")
	ErrInvalidBounds  = errors.New("canvas bounds must be positive")
)

const (
	DefaultWidth  = 1024
	DefaultHeight = 768

	DefaultBrushSize = 3
	MinBrushSize     = 1
	MaxBrushSize     = 40

	// The eraser paints background color with a wider footprint than the pen.
	eraserScale = 4
)

// background keeps the surface opaque so committed output is a flat raster
// with no alpha compositing.
var background = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

type Point struct {
	X float64
	Y float64
}

// Canvas is an opaque raster drawing surface. Freehand strokes, erasing and
// placed stills all render into the same RGBA buffer; Encode flattens it to
// lossless PNG.
type Canvas struct {
	img       *image.RGBA
	width     int
	height    int
	brush     color.RGBA
	brushSize float64
	cursor    Point
	stroking  bool
	touched   bool
}

func NewCanvas(width, height int) (*Canvas, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidBounds, width, height)
	}
	c := &Canvas{
		img:       image.NewRGBA(image.Rect(0, 0, width, height)),
		width:     width,
		height:    height,
		brush:     color.RGBA{R: 0x1e, G: 0x29, B: 0x3b, A: 0xff},
		brushSize: DefaultBrushSize,
	}
	c.fill(background)
	return c, nil
}

func (c *Canvas) Width() int  { return c.width }
func (c *Canvas) Height() int { return c.height }

// Touched reports whether any stroke was drawn or still placed since the
// last Clear. Erasing alone never counts as content.
func (c *Canvas) Touched() bool { return c.touched }

func (c *Canvas) SetBrushColor(col color.RGBA) {
	col.A = 0xff
	c.brush = col
}

func (c *Canvas) SetBrushSize(size float64) {
	if size < MinBrushSize {
		size = MinBrushSize
	}
	if size > MaxBrushSize {
		size = MaxBrushSize
	}
	c.brushSize = size
}

// BeginStroke starts a freehand path at p and stamps the first point.
func (c *Canvas) BeginStroke(p Point) {
	c.stroking = true
	c.cursor = p
	c.stamp(p, c.brush, c.brushSize)
	c.touched = true
}

// StrokeTo extends the active path with a round-capped segment.
func (c *Canvas) StrokeTo(p Point) error {
	if !c.stroking {
		return ErrNoActiveStroke
	}
	c.segment(c.cursor, p, c.brush, c.brushSize)
	c.cursor = p
	return nil
}

func (c *Canvas) EndStroke() {
	c.stroking = false
}

// EraseAt paints background over a spot. It cannot create content, so it
// does not mark the canvas as touched.
func (c *Canvas) EraseAt(p Point) {
	c.stamp(p, background, c.brushSize*eraserScale)
}

// Clear resets the surface to the opaque background and forgets all content.
func (c *Canvas) Clear() {
	c.fill(background)
	c.stroking = false
	c.touched = false
}

// PlaceStill decodes an imported or camera-captured still and renders it as
// the new canvas backdrop: scaled to fit preserving aspect ratio, centered,
// on the opaque background. Any prior strokes are replaced by the still.
func (c *Canvas) PlaceStill(data []byte) error {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode still image: %w", err)
	}

	sb := src.Bounds()
	if sb.Dx() <= 0 || sb.Dy() <= 0 {
		return fmt.Errorf("%w: still is %dx%d", ErrInvalidBounds, sb.Dx(), sb.Dy())
	}

	c.fill(background)
	dst := FitRect(sb.Dx(), sb.Dy(), c.width, c.height)
	xdraw.CatmullRom.Scale(c.img, dst, src, sb, xdraw.Over, nil)
	c.stroking = false
	c.touched = true
	return nil
}

// Encode flattens the surface to PNG.
func (c *Canvas) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, c.img); err != nil {
		return nil, fmt.Errorf("failed to encode canvas: %w", err)
	}
	return buf.Bytes(), nil
}

// At exposes the pixel at (x, y) for inspection.
func (c *Canvas) At(x, y int) color.RGBA {
	return c.img.RGBAAt(x, y)
}

// FitRect computes the centered aspect-fit placement of a srcW x srcH image
// inside a dstW x dstH surface. Deterministic given its inputs.
func FitRect(srcW, srcH, dstW, dstH int) image.Rectangle {
	ratio := math.Min(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
	w := int(math.Round(float64(srcW) * ratio))
	h := int(math.Round(float64(srcH) * ratio))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	x := (dstW - w) / 2
	y := (dstH - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

func (c *Canvas) fill(col color.RGBA) {
	draw.Draw(c.img, c.img.Bounds(), &image.Uniform{C: col}, image.Point{}, draw.Src)
}

// stamp renders a filled disc, giving strokes their round caps.
func (c *Canvas) stamp(p Point, col color.RGBA, size float64) {
	r := size / 2
	if r < 0.5 {
		r = 0.5
	}
	minX := int(math.Floor(p.X - r))
	maxX := int(math.Ceil(p.X + r))
	minY := int(math.Floor(p.Y - r))
	maxY := int(math.Ceil(p.Y + r))

	for y := minY; y <= maxY; y++ {
		if y < 0 || y >= c.height {
			continue
		}
		for x := minX; x <= maxX; x++ {
			if x < 0 || x >= c.width {
				continue
			}
			dx := float64(x) + 0.5 - p.X
			dy := float64(y) + 0.5 - p.Y
			if dx*dx+dy*dy <= r*r {
				c.img.SetRGBA(x, y, col)
			}
		}
	}
}

// segment stamps discs along the line from a to b at sub-pixel steps.
func (c *Canvas) segment(a, b Point, col color.RGBA, size float64) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		c.stamp(b, col, size)
		return
	}

	step := 0.5
	steps := int(math.Ceil(dist / step))
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		c.stamp(Point{X: a.X + dx*t, Y: a.Y + dy*t}, col, size)
	}
}
