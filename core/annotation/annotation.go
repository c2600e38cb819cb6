// Package annotation indexes annotations by chapter and by canonical location
// and turns draw requests into drawing primitives.
//
// Both lookup structures are only ever mutated together through Register and
// Remove, so every annotation reachable by location is present exactly once
// in its chapter bucket and vice versa.
package annotation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/FocuswithJustin/JuniperReader/core/cfi"
	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
)

// Kind is the visual style of an annotation.
type Kind string

const (
	// KindHighlight fills the annotated text.
	KindHighlight Kind = "highlight"
	// KindUnderline underlines the annotated text.
	KindUnderline Kind = "underline"
)

// Annotation is a user note anchored to a canonical location.
type Annotation struct {
	ID    int64  `json:"id"`
	Value string `json:"value"`
	Kind  Kind   `json:"type"`
	Color string `json:"color,omitempty"`
	Note  string `json:"note,omitempty"`
}

// Chapter returns the 0-based chapter index derived from the annotation's
// location.
func (a Annotation) Chapter() (int, error) {
	return cfi.ChapterIndex(a.Value)
}

// Primitive is an overlay drawing operation.
type Primitive int

const (
	// PrimitiveNone draws nothing.
	PrimitiveNone Primitive = iota
	// PrimitiveHighlight draws a filled rectangle behind the text.
	PrimitiveHighlight
	// PrimitiveUnderline draws a line under the text.
	PrimitiveUnderline
)

func (p Primitive) String() string {
	switch p {
	case PrimitiveHighlight:
		return "highlight"
	case PrimitiveUnderline:
		return "underline"
	default:
		return "none"
	}
}

// MarshalText encodes the primitive by name.
func (p Primitive) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// DrawInstruction tells a rendering surface how to draw one annotation.
type DrawInstruction struct {
	Primitive Primitive `json:"primitive"`
	Color     string    `json:"color,omitempty"`
}

// Index holds annotations keyed by chapter index and by location string.
type Index struct {
	mu         sync.RWMutex
	byChapter  map[int][]Annotation
	byLocation map[string]int
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		byChapter:  make(map[int][]Annotation),
		byLocation: make(map[string]int),
	}
}

// Register adds annotations in order. An annotation whose location has a
// malformed structural prefix is rejected on its own and reported in the
// returned error; the others are still registered. Registering a location
// that is already present replaces that annotation in place.
func (x *Index) Register(annotations ...Annotation) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	var errs []error
	for _, a := range annotations {
		chapter, err := a.Chapter()
		if err != nil {
			logging.AnnotationRejected(a.ID, a.Value, err)
			errs = append(errs, fmt.Errorf("annotation %d: %w", a.ID, err))
			continue
		}

		if _, ok := x.byLocation[a.Value]; ok {
			bucket := x.byChapter[chapter]
			for i := range bucket {
				if bucket[i].Value == a.Value {
					bucket[i] = a
					break
				}
			}
			continue
		}

		x.byChapter[chapter] = append(x.byChapter[chapter], a)
		x.byLocation[a.Value] = chapter
	}
	return errors.Join(errs...)
}

// Remove deletes the annotation at the given location. It reports whether
// an annotation was removed.
func (x *Index) Remove(value string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	chapter, ok := x.byLocation[value]
	if !ok {
		return false
	}
	delete(x.byLocation, value)

	bucket := x.byChapter[chapter]
	for i := range bucket {
		if bucket[i].Value == value {
			bucket = append(bucket[:i:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(x.byChapter, chapter)
	} else {
		x.byChapter[chapter] = bucket
	}
	return true
}

// ByChapter returns the chapter's annotations in registration order.
func (x *Index) ByChapter(index int) []Annotation {
	x.mu.RLock()
	defer x.mu.RUnlock()

	bucket := x.byChapter[index]
	if len(bucket) == 0 {
		return nil
	}
	out := make([]Annotation, len(bucket))
	copy(out, bucket)
	return out
}

// ByLocation looks up an annotation by exact location string. There is no
// range or containment matching.
func (x *Index) ByLocation(value string) (Annotation, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	chapter, ok := x.byLocation[value]
	if !ok {
		return Annotation{}, false
	}
	for _, a := range x.byChapter[chapter] {
		if a.Value == value {
			return a, true
		}
	}
	return Annotation{}, false
}

// OnChapterMount returns the overlays to create when a chapter is mounted, in
// registration order.
func (x *Index) OnChapterMount(index int) []Annotation {
	return x.ByChapter(index)
}

// OnDrawRequest maps an annotation to its drawing primitive. Unknown kinds
// yield false and nothing should be drawn.
func (x *Index) OnDrawRequest(a Annotation) (DrawInstruction, bool) {
	return Draw(a)
}

// Draw maps an annotation kind to a drawing primitive.
func Draw(a Annotation) (DrawInstruction, bool) {
	switch a.Kind {
	case KindHighlight:
		return DrawInstruction{Primitive: PrimitiveHighlight, Color: a.Color}, true
	case KindUnderline:
		return DrawInstruction{Primitive: PrimitiveUnderline, Color: a.Color}, true
	default:
		return DrawInstruction{}, false
	}
}

// Len returns the number of annotations.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byLocation)
}

// Chapters returns the chapter indexes that have annotations, ascending.
func (x *Index) Chapters() []int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]int, 0, len(x.byChapter))
	for c := range x.byChapter {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// All returns every annotation in document order.
func (x *Index) All() []Annotation {
	type located struct {
		a   Annotation
		loc cfi.Location
	}

	x.mu.RLock()
	items := make([]located, 0, len(x.byLocation))
	for _, bucket := range x.byChapter {
		for _, a := range bucket {
			// Registered values always parse.
			loc, _ := cfi.Parse(a.Value)
			items = append(items, located{a: a, loc: loc})
		}
	}
	x.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return cfi.Compare(items[i].loc, items[j].loc) < 0
	})
	out := make([]Annotation, len(items))
	for i, it := range items {
		out[i] = it.a
	}
	return out
}
