package reader

import (
	"context"
	"sync"

	"github.com/FocuswithJustin/JuniperReader/core/annotation"
	"github.com/FocuswithJustin/JuniperReader/core/book"
	"github.com/FocuswithJustin/JuniperReader/core/geometry"
)

type fakeNode struct {
	attrs  map[string]string
	parent *fakeNode
}

func (n *fakeNode) Attr(name string) string { return n.attrs[name] }

func (n *fakeNode) Parent() geometry.Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// fakeRange is a selection range. Its end is compared by the end field.
type fakeRange struct {
	rects    []geometry.Rect
	frame    geometry.Frame
	hasFrame bool
	text     string
	ancestor *fakeNode
	end      int
}

func (r *fakeRange) Collapsed() bool               { return len(r.rects) == 0 }
func (r *fakeRange) ClientRects() []geometry.Rect  { return r.rects }
func (r *fakeRange) Frame() (geometry.Frame, bool) { return r.frame, r.hasFrame }
func (r *fakeRange) Text() string                  { return r.text }
func (r *fakeRange) CompareEnd(other Range) int    { return compare(r.end, other.(*fakeRange).end) }
func (r *fakeRange) CommonAncestor() geometry.Node {
	if r.ancestor == nil {
		return nil
	}
	return r.ancestor
}

func compare(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

type fakeSurface struct {
	mu         sync.Mutex
	openErr    error
	opened     book.Book
	fixed      bool
	attrs      map[string]string
	css        string
	added      []annotation.Annotation
	gotos      []string
	fractions  []float64
	next, prev int
	selection  Selection
	last       *fakeRange
	viewport   geometry.Viewport
	cfi        string
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		attrs:    make(map[string]string),
		viewport: geometry.Viewport{Width: 800, Height: 600},
		cfi:      "epubcfi(/6/4!/4/2,/1:0,/1:5)",
	}
}

func (s *fakeSurface) Open(_ context.Context, b book.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.opened = b
	return nil
}

func (s *fakeSurface) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return nil
}

func (s *fakeSurface) Prev() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prev++
	return nil
}

func (s *fakeSurface) GoTo(href string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gotos = append(s.gotos, href)
	return nil
}

func (s *fakeSurface) GoToFraction(f float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fractions = append(s.fractions, f)
	return nil
}

func (s *fakeSurface) CFI(int, Range) (string, error) { return s.cfi, nil }

func (s *fakeSurface) AddAnnotation(a annotation.Annotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added = append(s.added, a)
	return nil
}

func (s *fakeSurface) SetAttribute(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[name] = value
}

func (s *fakeSurface) Attribute(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attrs[name]
}

func (s *fakeSurface) SetStyles(css string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.css = css
}

func (s *fakeSurface) Selection(int) Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

func (s *fakeSurface) LastLocation() (Range, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil, false
	}
	return s.last, true
}

func (s *fakeSurface) FixedLayout() bool           { return s.fixed }
func (s *fakeSurface) Viewport() geometry.Viewport { return s.viewport }

func (s *fakeSurface) nextCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
