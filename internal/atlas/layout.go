// Package atlas packs sprite frames into texture pages and writes the
// descriptors engines load them with.
package atlas

import (
	"fmt"
	"sort"
)

// item is one frame waiting for a slot.
type item struct {
	def   int
	frame int
	w, h  int
}

// slot is where an item ended up.
type slot struct {
	item
	page int
	x, y int
}

// pageSize is the extent actually used on a page.
type pageSize struct {
	w, h int
}

// shelfLayout places items on pages no larger than limit. Items are sorted by
// height, tallest first, and laid out left to right in rows ("shelves").
// A new page starts when the next shelf would not fit.
func shelfLayout(items []item, limit int) ([]slot, []pageSize, error) {
	sorted := make([]item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].h != sorted[j].h {
			return sorted[i].h > sorted[j].h
		}
		return sorted[i].w > sorted[j].w
	})

	var (
		slots  = make([]slot, 0, len(sorted))
		pages  []pageSize
		page   = -1
		cursor int
		shelfY int
		shelfH int
	)

	newPage := func() {
		pages = append(pages, pageSize{})
		page++
		cursor, shelfY, shelfH = 0, 0, 0
	}

	for _, it := range sorted {
		if it.w > limit || it.h > limit {
			return nil, nil, fmt.Errorf("frame %d of sprite %d (%dx%d) exceeds texture size %d", it.frame, it.def, it.w, it.h, limit)
		}
		if page < 0 {
			newPage()
		}
		if cursor+it.w > limit {
			shelfY += shelfH
			cursor, shelfH = 0, 0
		}
		if shelfY+it.h > limit {
			newPage()
		}

		slots = append(slots, slot{item: it, page: page, x: cursor, y: shelfY})
		cursor += it.w
		if it.h > shelfH {
			shelfH = it.h
		}

		p := &pages[page]
		if cursor > p.w {
			p.w = cursor
		}
		if shelfY+shelfH > p.h {
			p.h = shelfY + shelfH
		}
	}
	return slots, pages, nil
}

// textureDims rounds a used extent up to power-of-two texture dimensions.
func textureDims(used pageSize, square bool) (int, int) {
	w, h := nextPowerOfTwo(used.w), nextPowerOfTwo(used.h)
	if square {
		if w > h {
			h = w
		} else {
			w = h
		}
	}
	return w, h
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
