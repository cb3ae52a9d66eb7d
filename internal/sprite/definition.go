// Package sprite turns source images into frame sets ready for atlas packing.
package sprite

import (
	"strconv"

	"respack/internal/vpath"
)

// Rect is a frame's placement on the sprite canvas and its padded size.
type Rect struct {
	X  int `json:"x"`
	Y  int `json:"y"`
	Dx int `json:"dx"`
	Dy int `json:"dy"`
}

// Definition describes one sprite: its descriptor path, canvas size and frames.
// FramePaths[i] is the PNG holding Frames[i].
type Definition struct {
	Filename     vpath.Path
	SpriteWidth  int
	SpriteHeight int
	Frames       []Rect
	FramePaths   []vpath.Path
}

// FrameCount returns the number of frames.
func (d *Definition) FrameCount() int { return len(d.Frames) }

// FramePath names the PNG for frame index of the sprite whose extensionless
// process path is base: "<base><index>.png".
func FramePath(base vpath.Path, index int) vpath.Path {
	return vpath.FromCanonical(base.String() + strconv.Itoa(index) + ".png")
}
