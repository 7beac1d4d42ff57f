// Package cursor implements the 16x16 mouse cursor overlay of §4.7: a
// save-before-draw, restore-on-hide protocol so the compositor never
// has to re-render the desktop just to erase the pointer.
package cursor

import "github.com/hobbyos-go/kernelcore/internal/fb"

const Size = 16

type State int

const (
	StateArrow State = iota
	StateMove
	StateHand
)

// glyphs are solid-fill placeholders distinguishing the three cursor
// states; the actual bitmap art is supplied externally (the spec treats
// glyph tables as out of scope).
var glyphColor = map[State]uint32{
	StateArrow: 0xFFFFFFFF,
	StateMove:  0xFF00FFFF,
	StateHand:  0xFFFFFF00,
}

// Cursor tracks its last-drawn position and the pixels it overwrote
// there, so Hide can put them back exactly.
type Cursor struct {
	fb    *fb.Framebuffer
	state State
	x, y  int
	saved [Size * Size]uint32
	drawn bool
}

func New(f *fb.Framebuffer) *Cursor {
	return &Cursor{fb: f, state: StateArrow}
}

func (c *Cursor) SetState(s State) { c.state = s }

// Draw saves the Size x Size region under (x,y), then paints the
// cursor. Safe to call repeatedly; it hides any previous draw first.
func (c *Cursor) Draw(x, y int) {
	c.Hide()

	for dy := 0; dy < Size; dy++ {
		for dx := 0; dx < Size; dx++ {
			c.saved[dy*Size+dx] = c.fb.GetPixel(x+dx, y+dy)
		}
	}

	color := glyphColor[c.state]
	for dy := 0; dy < Size; dy++ {
		for dx := 0; dx < Size; dx++ {
			c.fb.PutPixel(x+dx, y+dy, color)
		}
	}

	c.x, c.y = x, y
	c.drawn = true
}

// Hide restores the saved region, undoing the last Draw. A no-op if
// nothing is currently drawn.
func (c *Cursor) Hide() {
	if !c.drawn {
		return
	}

	for dy := 0; dy < Size; dy++ {
		for dx := 0; dx < Size; dx++ {
			c.fb.PutPixel(c.x+dx, c.y+dy, c.saved[dy*Size+dx])
		}
	}

	c.drawn = false
}

// Move hides at the old position and draws at the new one, preserving
// whatever windows or graphics sit underneath either position.
func (c *Cursor) Move(x, y int) {
	c.Draw(x, y)
}
