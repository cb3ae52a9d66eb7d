// Package imaging decodes layered source images and reads and writes the
// PNG frames produced from them.
package imaging

import (
	"image"
)

// Geometry is a layer's page placement on the source canvas. Offsets are
// stored as magnitudes with separate sign flags.
type Geometry struct {
	Width     int
	Height    int
	XOff      int
	YOff      int
	XNegative bool
	YNegative bool
}

// GeometryFromRect converts a canvas rectangle to page geometry.
func GeometryFromRect(r image.Rectangle) Geometry {
	g := Geometry{Width: r.Dx(), Height: r.Dy(), XOff: r.Min.X, YOff: r.Min.Y}
	if g.XOff < 0 {
		g.XOff, g.XNegative = -g.XOff, true
	}
	if g.YOff < 0 {
		g.YOff, g.YNegative = -g.YOff, true
	}
	return g
}

// Offset returns the signed page offset.
func (g Geometry) Offset() (x, y int) {
	x, y = g.XOff, g.YOff
	if g.XNegative {
		x = -x
	}
	if g.YNegative {
		y = -y
	}
	return x, y
}

// Layer is one decoded image together with its page geometry.
type Layer struct {
	Image image.Image
	Page  Geometry
}
