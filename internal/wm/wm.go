// Package wm implements the windowing and compositor layer of §4.7: up
// to 16 z-ordered windows with per-window content back-buffers, a
// title-bar drag state machine rendered as a flicker-free XOR outline,
// and a dirty-flag-gated render pass. Grounded on the teacher's
// resource-table idiom (memory.Memory.Slots: a capped slice plus linear
// scan, memory.FindSlot) generalized from "find a free memory slot" to
// "hit-test the topmost window at a point" over the same capped-slice
// shape.
package wm

import (
	"errors"

	"github.com/hobbyos-go/kernelcore/internal/fb"
)

const (
	MaxWindows = 16

	TitleBarHeight  = 20
	BorderWidth     = 1
	CloseButtonSize = 16
	MaxTitleLen     = 63

	colorFocusedTitle   = 0xFF3B6EA5
	colorUnfocusedTitle = 0xFF6E6E6E
	colorBorder         = 0xFF000000
	xorOutlineColor     = 0xFFFFFF
)

var (
	ErrTooManyWindows = errors.New("wm: window limit reached")
	ErrNotMovable     = errors.New("wm: window is not movable")
)

// Window is the fixed record of §3's Window type: position, size,
// content back-buffer, flag set (not enumerations, per §4.7), z-order,
// and optional callbacks.
type Window struct {
	ID                     int
	X, Y                   int
	W, H                   int
	ContentW, ContentH     int
	Back                   []uint32 // ContentW*ContentH, row-major
	Title                  string
	Visible, Movable       bool
	Closable, Focused      bool
	Dirty                  bool
	Z                      int
	OnPaint                func(*Window)
	OnClose                func(*Window)
	UserData               interface{}
}

func (w *Window) contentOrigin() (int, int) {
	return w.X + BorderWidth, w.Y + TitleBarHeight
}

// Contains reports whether (x,y) lies anywhere within the window's
// total (decorated) rectangle.
func (w *Window) Contains(x, y int) bool {
	return x >= w.X && x < w.X+w.W && y >= w.Y && y < w.Y+w.H
}

func (w *Window) inTitleBar(x, y int) bool {
	return x >= w.X && x < w.X+w.W && y >= w.Y && y < w.Y+TitleBarHeight
}

func (w *Window) inCloseButton(x, y int) bool {
	if !w.Closable {
		return false
	}

	bx := w.X + w.W - CloseButtonSize
	by := w.Y

	return x >= bx && x < bx+CloseButtonSize && y >= by && y < by+CloseButtonSize
}

type dragState struct {
	active   bool
	win      *Window
	offsetX  int // cursor position relative to window origin at drag start
	offsetY  int
	curX     int // current outline top-left, for erase-before-redraw
	curY     int
	outlineW int
	outlineH int
}

// Manager maintains up to MaxWindows windows, composites them in
// z-order, and routes keyboard focus and mouse events (§4.7).
type Manager struct {
	fb               *fb.Framebuffer
	windows          []*Window
	nextID           int
	nextZ            int
	globalDirty      bool
	clearDesktop     bool
	desktopColor     uint32
	drag             dragState
}

func NewManager(f *fb.Framebuffer) *Manager {
	return &Manager{fb: f, desktopColor: 0xFF008080}
}

// SetClearDesktopOnRender controls the "global flag" of §4.7 that, when
// set, clears the framebuffer to the desktop color before compositing.
func (m *Manager) SetClearDesktopOnRender(on bool, color uint32) {
	m.clearDesktop = on
	m.desktopColor = color
}

// CreateWindow allocates a new window at the given position/size,
// assigning it the next id and topmost z-order (I-W2).
func (m *Manager) CreateWindow(x, y, totalW, totalH int, title string, movable, closable bool) (*Window, error) {
	if len(m.windows) >= MaxWindows {
		return nil, ErrTooManyWindows
	}

	if len(title) > MaxTitleLen {
		title = title[:MaxTitleLen]
	}

	contentW := totalW - 2*BorderWidth
	contentH := totalH - TitleBarHeight - BorderWidth

	w := &Window{
		ID:       m.nextID,
		X:        x,
		Y:        y,
		W:        totalW,
		H:        totalH,
		ContentW: contentW,
		ContentH: contentH,
		Back:     make([]uint32, contentW*contentH),
		Title:    title,
		Visible:  true,
		Movable:  movable,
		Closable: closable,
		Dirty:    true,
		Z:        m.nextZ,
	}

	m.nextID++
	m.nextZ++
	m.windows = append(m.windows, w)
	m.globalDirty = true

	return w, nil
}

// Destroy removes a window and marks the desktop for a full redraw
// (§9's destroy-mid-drag exclusion: callers must not destroy the window
// currently being dragged — the close-button hit test only fires on
// mouse-down, which is mutually exclusive with an active drag).
func (m *Manager) Destroy(w *Window) {
	for i, cand := range m.windows {
		if cand == w {
			m.windows = append(m.windows[:i], m.windows[i+1:]...)
			break
		}
	}

	if w.OnClose != nil {
		w.OnClose(w)
	}

	m.globalDirty = true
}

// topmostAt returns the visible window with the greatest z-order
// containing (x,y), or nil (I-W3).
func (m *Manager) topmostAt(x, y int) *Window {
	var best *Window

	for _, w := range m.windows {
		if !w.Visible || !w.Contains(x, y) {
			continue
		}

		if best == nil || w.Z > best.Z {
			best = w
		}
	}

	return best
}

func (m *Manager) promote(w *Window) {
	w.Z = m.nextZ
	m.nextZ++
}

// MouseDown implements the press behavior of §4.7: focus + promote the
// topmost hit window; start a drag if the hit is the title bar of a
// movable window; invoke destroy if the hit is a closable close button.
func (m *Manager) MouseDown(x, y int) {
	w := m.topmostAt(x, y)
	if w == nil {
		return
	}

	for _, other := range m.windows {
		if other.Focused && other != w {
			other.Focused = false
			other.Dirty = true
		}
	}

	w.Focused = true
	w.Dirty = true
	m.promote(w)

	if w.inCloseButton(x, y) {
		m.Destroy(w)
		return
	}

	if w.inTitleBar(x, y) && w.Movable {
		m.drag = dragState{
			active:   true,
			win:      w,
			offsetX:  x - w.X,
			offsetY:  y - w.Y,
			curX:     w.X,
			curY:     w.Y,
			outlineW: w.W,
			outlineH: w.H,
		}
		m.fb.XorOutlineRect(m.drag.curX, m.drag.curY, m.drag.outlineW, m.drag.outlineH, xorOutlineColor)
	}
}

// MouseMove erases the previous outline and draws a new one at the
// cursor-anchored position while a drag is active; it is a no-op
// otherwise.
func (m *Manager) MouseMove(x, y int) {
	if !m.drag.active {
		return
	}

	m.fb.XorOutlineRect(m.drag.curX, m.drag.curY, m.drag.outlineW, m.drag.outlineH, xorOutlineColor)

	m.drag.curX = x - m.drag.offsetX
	m.drag.curY = y - m.drag.offsetY

	m.fb.XorOutlineRect(m.drag.curX, m.drag.curY, m.drag.outlineW, m.drag.outlineH, xorOutlineColor)
}

// MouseUp ends an active drag: erases the final outline, commits the
// window's true position, and triggers a full redraw (P-W2: dropping at
// the mouse-down point leaves position unchanged).
func (m *Manager) MouseUp(x, y int) {
	if !m.drag.active {
		return
	}

	m.fb.XorOutlineRect(m.drag.curX, m.drag.curY, m.drag.outlineW, m.drag.outlineH, xorOutlineColor)

	w := m.drag.win
	w.X = x - m.drag.offsetX
	w.Y = y - m.drag.offsetY
	w.Dirty = true

	m.drag = dragState{}
	m.globalDirty = true
}

// Dragging reports whether a title-bar drag is in progress; Render
// early-returns during a drag so the XOR outline isn't painted over.
func (m *Manager) Dragging() bool { return m.drag.active }

// Windows returns the live window list, for callers (status reporting,
// tests) that just need to enumerate rather than hit-test or render.
func (m *Manager) Windows() []*Window { return m.windows }

// Render composites visible windows back-to-front in z-order ascending
// (bubble sort, acceptable for N <= 16 per §4.7), skipping entirely if
// nothing is dirty and no drag is active.
func (m *Manager) Render() {
	if m.drag.active {
		return
	}

	anyDirty := m.globalDirty
	for _, w := range m.windows {
		if w.Dirty {
			anyDirty = true
		}
	}

	if !anyDirty {
		return
	}

	if m.clearDesktop {
		m.fb.Clear(m.desktopColor)
	}

	ordered := append([]*Window(nil), m.windows...)
	bubbleSortByZ(ordered)

	for _, w := range ordered {
		if !w.Visible {
			continue
		}

		m.paintWindow(w)

		if w.OnPaint != nil {
			w.OnPaint(w)
		}

		m.blitContent(w)

		w.Dirty = false
	}

	m.globalDirty = false
}

func bubbleSortByZ(ws []*Window) {
	for i := 0; i < len(ws); i++ {
		for j := 0; j < len(ws)-1-i; j++ {
			if ws[j].Z > ws[j+1].Z {
				ws[j], ws[j+1] = ws[j+1], ws[j]
			}
		}
	}
}

func (m *Manager) paintWindow(w *Window) {
	titleColor := uint32(colorUnfocusedTitle)
	if w.Focused {
		titleColor = colorFocusedTitle
	}

	m.fb.FillRect(w.X, w.Y, w.W, TitleBarHeight, titleColor)
	m.fb.FillRect(w.X, w.Y, w.W, BorderWidth, colorBorder)
	m.fb.FillRect(w.X, w.Y+w.H-BorderWidth, w.W, BorderWidth, colorBorder)
	m.fb.FillRect(w.X, w.Y, BorderWidth, w.H, colorBorder)
	m.fb.FillRect(w.X+w.W-BorderWidth, w.Y, BorderWidth, w.H, colorBorder)

	if w.Closable {
		bx := w.X + w.W - CloseButtonSize
		m.fb.FillRect(bx, w.Y, CloseButtonSize, CloseButtonSize, colorBorder)
	}
}

func (m *Manager) blitContent(w *Window) {
	ox, oy := w.contentOrigin()

	for y := 0; y < w.ContentH; y++ {
		for x := 0; x < w.ContentW; x++ {
			m.fb.PutPixel(ox+x, oy+y, w.Back[y*w.ContentW+x])
		}
	}
}
