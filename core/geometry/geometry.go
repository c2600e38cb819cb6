// Package geometry converts a text selection inside a possibly nested and
// transformed rendering surface into a single anchor point in viewport
// coordinates.
//
// Everything here is pure: identical rectangles, frame offsets and transforms
// always produce the identical anchor, and nothing blocks.
package geometry

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Rect is an axis-aligned rectangle in CSS pixels.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Width returns the horizontal extent of r.
func (r Rect) Width() float64 { return r.Right - r.Left }

// Height returns the vertical extent of r.
func (r Rect) Height() float64 { return r.Bottom - r.Top }

// Point is a position in viewport coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Direction tags which edge of a selection an anchor belongs to.
type Direction int

const (
	// DirNone marks the origin fallback anchor.
	DirNone Direction = iota
	// DirUp marks the top edge of the first fragment.
	DirUp
	// DirDown marks the bottom edge of the last fragment.
	DirDown
)

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	default:
		return ""
	}
}

// MarshalText encodes the direction as "up", "down" or "".
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Anchor is the visually relevant end of a selection.
type Anchor struct {
	Point Point     `json:"point"`
	Dir   Direction `json:"dir,omitempty"`
}

// IsOrigin reports whether a is the fallback anchor returned when no part of
// the selection is in view.
func (a Anchor) IsOrigin() bool {
	return a.Dir == DirNone && a.Point == Point{}
}

// Viewport is the size of the top-level viewport.
type Viewport struct {
	Width  float64
	Height float64
}

// Contains reports whether p lies strictly inside the viewport.
func (v Viewport) Contains(p Point) bool {
	return p.X > 0 && p.Y > 0 && p.X < v.Width && p.Y < v.Height
}

// Frame describes the nested surface that owns a selection's document.
type Frame struct {
	// Rect is the frame's bounding rectangle in viewport coordinates.
	Rect Rect
	// Transform is the frame's computed CSS transform, e.g.
	// "matrix(0.5, 0, 0, 0.5, 0, 0)" or "none".
	Transform string
}

// Range is a read-only view over a selection range.
type Range interface {
	// Collapsed reports a zero-length range.
	Collapsed() bool
	// ClientRects returns the range's visual fragments in the coordinates of
	// its own document.
	ClientRects() []Rect
	// Frame returns the owning nested surface, if any.
	Frame() (Frame, bool)
}

var matrixPattern = regexp.MustCompile(`matrix\((.+)\)`)

// ParseTransform extracts the scale factors (sx, sy) from a CSS transform
// matrix descriptor. Missing or unparseable components default to 1.
func ParseTransform(transform string) (sx, sy float64) {
	sx, sy = 1, 1
	m := matrixPattern.FindStringSubmatch(transform)
	if m == nil {
		return sx, sy
	}
	parts := strings.Split(m[1], ",")
	if v, ok := parseComponent(parts, 0); ok {
		sx = v
	}
	if v, ok := parseComponent(parts, 3); ok {
		sy = v
	}
	return sx, sy
}

func parseComponent(parts []string, i int) (float64, bool) {
	if i >= len(parts) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// ToViewport maps a rectangle from frame document coordinates into viewport
// coordinates by scaling with (sx, sy) and translating by the frame origin.
func ToViewport(frame Rect, r Rect, sx, sy float64) Rect {
	return Rect{
		Left:   sx*r.Left + frame.Left,
		Right:  sx*r.Right + frame.Left,
		Top:    sy*r.Top + frame.Top,
		Bottom: sy*r.Bottom + frame.Top,
	}
}

// Locate computes the anchor for a selection range. It returns false for an
// empty or collapsed range, which carries no anchor.
//
// The start point is the midpoint of the first fragment's top edge and the end
// point is the midpoint of the last fragment's bottom edge. When neither is in
// view the origin anchor is returned. When only one is in view it wins. When
// both are, the start wins iff start.Y > vp.Height - end.Y.
func Locate(r Range, vp Viewport) (Anchor, bool) {
	if r == nil || r.Collapsed() {
		return Anchor{}, false
	}
	rects := r.ClientRects()
	if len(rects) == 0 {
		return Anchor{}, false
	}

	var origin Rect
	sx, sy := 1.0, 1.0
	if f, ok := r.Frame(); ok {
		origin = f.Rect
		sx, sy = ParseTransform(f.Transform)
	}

	first := ToViewport(origin, rects[0], sx, sy)
	last := ToViewport(origin, rects[len(rects)-1], sx, sy)

	start := Anchor{Point: Point{X: (first.Left + first.Right) / 2, Y: first.Top}, Dir: DirUp}
	end := Anchor{Point: Point{X: (last.Left + last.Right) / 2, Y: last.Bottom}, Dir: DirDown}

	startIn, endIn := vp.Contains(start.Point), vp.Contains(end.Point)
	switch {
	case !startIn && !endIn:
		return Anchor{}, true
	case !startIn:
		return end, true
	case !endIn:
		return start, true
	}
	if start.Point.Y > vp.Height-end.Point.Y {
		return start, true
	}
	return end, true
}
