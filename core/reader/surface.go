// Package reader opens books of any supported format and coordinates a
// rendering surface with the selection geometry engine and the annotation
// index.
package reader

import (
	"context"

	"github.com/FocuswithJustin/JuniperReader/core/annotation"
	"github.com/FocuswithJustin/JuniperReader/core/book"
	"github.com/FocuswithJustin/JuniperReader/core/geometry"
)

// Surface attribute names and values.
const (
	AttrFlow         = "flow"
	AttrTopMargin    = "top-margin"
	AttrBottomMargin = "bottom-margin"
	AttrGap          = "gap"

	FlowPaginated = "paginated"
	FlowScrolled  = "scrolled"
)

// Range is a live range inside a loaded document.
type Range interface {
	geometry.Range
	// Text returns the text the range covers.
	Text() string
	// CommonAncestor returns the deepest element containing the range.
	CommonAncestor() geometry.Node
	// CompareEnd compares the end boundary of the range with the end
	// boundary of other in document order and returns -1, 0 or +1.
	CompareEnd(other Range) int
}

// Selection is the user's selection in one loaded document. Range is nil
// when nothing is selected.
type Selection struct {
	Range Range
	Text  string
}

// Surface is the paginating renderer a book is shown on. Its methods may be
// called from the event loop and from the selection debouncer concurrently.
type Surface interface {
	Open(ctx context.Context, b book.Book) error
	Next() error
	Prev() error
	GoTo(href string) error
	GoToFraction(fraction float64) error
	CFI(index int, r Range) (string, error)
	AddAnnotation(a annotation.Annotation) error
	SetAttribute(name, value string)
	Attribute(name string) string
	SetStyles(css string)
	Selection(index int) Selection
	LastLocation() (Range, bool)
	FixedLayout() bool
	Viewport() geometry.Viewport
}

// Event is a message from the surface to the orchestrator.
type Event interface {
	eventKind() string
}

// LoadEvent reports that the document for a section has loaded.
type LoadEvent struct {
	Index int
	Doc   geometry.Node
}

// Location is the position within the book in locations.
type Location struct {
	Current int `json:"current"`
	Next    int `json:"next"`
	Total   int `json:"total"`
}

// PageItem is a print page reference from the book's page list.
type PageItem struct {
	Label   string `json:"label"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
}

// RelocateEvent reports a new reading position in section Index.
type RelocateEvent struct {
	Index    int
	CFI      string
	Fraction float64
	Location Location
	TOCItem  *book.TOCItem
	PageItem *PageItem
}

// CreateOverlayEvent asks for the annotations of a section that is being
// mounted.
type CreateOverlayEvent struct {
	Index int
}

// DrawAnnotationEvent asks how to draw an annotation. Draw is called with the
// instruction unless the kind is unknown.
type DrawAnnotationEvent struct {
	Draw       func(annotation.DrawInstruction)
	Annotation annotation.Annotation
}

// ShowAnnotationEvent reports that the user activated an annotation.
type ShowAnnotationEvent struct {
	Value string
}

// PointerDownEvent starts a selection drag in section Index.
type PointerDownEvent struct {
	Index int
}

// PointerUpEvent ends a selection drag in section Index.
type PointerUpEvent struct {
	Index int
}

// SelectionChangeEvent reports a selection change in section Index.
type SelectionChangeEvent struct {
	Index int
}

func (LoadEvent) eventKind() string            { return "load" }
func (RelocateEvent) eventKind() string        { return "relocate" }
func (CreateOverlayEvent) eventKind() string   { return "create-overlay" }
func (DrawAnnotationEvent) eventKind() string  { return "draw-annotation" }
func (ShowAnnotationEvent) eventKind() string  { return "show-annotation" }
func (PointerDownEvent) eventKind() string     { return "pointerdown" }
func (PointerUpEvent) eventKind() string       { return "pointerup" }
func (SelectionChangeEvent) eventKind() string { return "selectionchange" }

// EventKind returns the wire name of an event.
func EventKind(e Event) string {
	return e.eventKind()
}
