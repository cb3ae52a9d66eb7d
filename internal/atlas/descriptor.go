package atlas

import (
	"bytes"
	"encoding/json"
	"fmt"

	"respack/internal/sprite"
)

// placedFrame is one frame of a sprite after layout.
type placedFrame struct {
	Texture int
	X, Y    int
	Rect    sprite.Rect
}

// writeDescriptor renders the sprite descriptor:
//
//	<texture count>
//	<texture name>...
//	<sprite width> <sprite height>
//	<frame count>
//	<x> <y> <dx> <dy> <xOff> <yOff> <texture index>...
func writeDescriptor(textures []string, def *sprite.Definition, frames []placedFrame) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%d\n", len(textures))
	for _, name := range textures {
		fmt.Fprintf(&b, "%s\n", name)
	}
	fmt.Fprintf(&b, "%d %d\n", def.SpriteWidth, def.SpriteHeight)
	fmt.Fprintf(&b, "%d\n", len(frames))
	for _, f := range frames {
		fmt.Fprintf(&b, "%d %d %d %d %d %d %d\n", f.X, f.Y, f.Rect.Dx, f.Rect.Dy, f.Rect.X, f.Rect.Y, f.Texture)
	}
	return b.Bytes()
}

type jsonRect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type jsonSize struct {
	W int `json:"w"`
	H int `json:"h"`
}

type jsonFrame struct {
	Frame            jsonRect `json:"frame"`
	Rotated          bool     `json:"rotated"`
	Trimmed          bool     `json:"trimmed"`
	SpriteSourceSize jsonRect `json:"spriteSourceSize"`
	SourceSize       jsonSize `json:"sourceSize"`
}

type jsonTexturePage struct {
	Image  string               `json:"image"`
	Size   jsonSize             `json:"size"`
	Frames map[string]jsonFrame `json:"frames"`
}

type jsonMeta struct {
	App     string `json:"app"`
	Version string `json:"version"`
	Source  string `json:"source"`
}

// jsonAtlas is the TexturePacker multi-page ("textures" array) layout.
type jsonAtlas struct {
	Textures []jsonTexturePage `json:"textures"`
	Meta     jsonMeta          `json:"meta"`
}

// frameName keys a frame in the JSON atlas: "<sprite>/<index>".
func frameName(def *sprite.Definition, index int) string {
	return fmt.Sprintf("%s/%d", def.Filename.Basename(), index)
}

func buildJSON(source string, pages []jsonTexturePage) ([]byte, error) {
	return json.MarshalIndent(jsonAtlas{
		Textures: pages,
		Meta:     jsonMeta{App: "respack", Version: "1.0", Source: source},
	}, "", "  ")
}
