// Package fb provides the linear ARGB8888 framebuffer primitives of
// §4.7: put_pixel, clear, fill_rect, draw_line (integer DDA), and
// draw_triangle (three lines). The backing store is a plain []byte
// slice standing in for the physical framebuffer handed off by the
// bootloader (the same "byte slice as hardware surface" idiom used
// throughout this module for simulated MMIO).
package fb

import "errors"

var ErrOutOfBounds = errors.New("fb: coordinates outside framebuffer")

// Framebuffer describes a linear (base_address, width, height,
// pitch_bytes) surface per the boot contract ("four externally visible
// globals... must be 32" bits per pixel).
type Framebuffer struct {
	Pixels []byte // len == PitchBytes * Height
	Width  int
	Height int
	Pitch  int // bytes per scanline, >= Width*4
}

func New(width, height, pitch int) *Framebuffer {
	return &Framebuffer{
		Pixels: make([]byte, pitch*height),
		Width:  width,
		Height: height,
		Pitch:  pitch,
	}
}

func (f *Framebuffer) offset(x, y int) (int, bool) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0, false
	}

	return y*f.Pitch + x*4, true
}

// PutPixel writes a 0xAARRGGBB color, silently clipping out-of-bounds
// writes (the compositor draws many partially off-screen rectangles).
func (f *Framebuffer) PutPixel(x, y int, c uint32) {
	off, ok := f.offset(x, y)
	if !ok {
		return
	}

	f.Pixels[off+0] = byte(c)
	f.Pixels[off+1] = byte(c >> 8)
	f.Pixels[off+2] = byte(c >> 16)
	f.Pixels[off+3] = byte(c >> 24)
}

// GetPixel reads back a previously written color; used by the cursor's
// save/restore protocol.
func (f *Framebuffer) GetPixel(x, y int) uint32 {
	off, ok := f.offset(x, y)
	if !ok {
		return 0
	}

	return uint32(f.Pixels[off]) | uint32(f.Pixels[off+1])<<8 |
		uint32(f.Pixels[off+2])<<16 | uint32(f.Pixels[off+3])<<24
}

// XorPixel flips each channel against c; applying it twice at the same
// point restores the original image (the outline drag primitive).
func (f *Framebuffer) XorPixel(x, y int, c uint32) {
	f.PutPixel(x, y, f.GetPixel(x, y)^c)
}

func (f *Framebuffer) Clear(c uint32) {
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			f.PutPixel(x, y, c)
		}
	}
}

func (f *Framebuffer) FillRect(x, y, w, h int, c uint32) {
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			f.PutPixel(x+dx, y+dy, c)
		}
	}
}

// DrawLine is an integer DDA stepping max(|dx|,|dy|) times (§4.7).
func (f *Framebuffer) DrawLine(x0, y0, x1, y1 int, c uint32) {
	dx := x1 - x0
	dy := y1 - y0

	steps := abs(dx)
	if abs(dy) > steps {
		steps = abs(dy)
	}

	if steps == 0 {
		f.PutPixel(x0, y0, c)
		return
	}

	xInc := float64(dx) / float64(steps)
	yInc := float64(dy) / float64(steps)

	x, y := float64(x0), float64(y0)

	for i := 0; i <= steps; i++ {
		f.PutPixel(int(x+0.5), int(y+0.5), c)
		x += xInc
		y += yInc
	}
}

// DrawTriangle connects three vertices with three DrawLine calls.
func (f *Framebuffer) DrawTriangle(x0, y0, x1, y1, x2, y2 int, c uint32) {
	f.DrawLine(x0, y0, x1, y1, c)
	f.DrawLine(x1, y1, x2, y2, c)
	f.DrawLine(x2, y2, x0, y0, c)
}

// XorOutlineRect draws (or, called a second time at the same position,
// erases) a one-pixel-wide rectangle border via XorPixel, the
// buffer-free drag-preview primitive of §4.7/§9.
func (f *Framebuffer) XorOutlineRect(x, y, w, h int, c uint32) {
	for dx := 0; dx < w; dx++ {
		f.XorPixel(x+dx, y, c)
		if h > 1 {
			f.XorPixel(x+dx, y+h-1, c)
		}
	}

	for dy := 1; dy < h-1; dy++ {
		f.XorPixel(x, y+dy, c)
		if w > 1 {
			f.XorPixel(x+w-1, y+dy, c)
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}

	return n
}
