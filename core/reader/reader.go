package reader

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/FocuswithJustin/JuniperReader/core/annotation"
	"github.com/FocuswithJustin/JuniperReader/core/book"
	"github.com/FocuswithJustin/JuniperReader/core/debounce"
	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/geometry"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
)

// SelectionReport describes a finished selection.
type SelectionReport struct {
	Index  int             `json:"index"`
	CFI    string          `json:"cfi"`
	Lang   string          `json:"lang,omitempty"`
	Anchor geometry.Anchor `json:"anchor"`
	Text   string          `json:"text"`
}

// CurrentInfo is the reading position after the last relocate.
type CurrentInfo struct {
	CFI      string        `json:"cfi"`
	Fraction float64       `json:"fraction"`
	Label    string        `json:"label"`
	TOCItem  *book.TOCItem `json:"tocItem,omitempty"`
	PageItem *PageItem     `json:"pageItem,omitempty"`
}

// Options configures a Reader.
type Options struct {
	// Annotations are registered when the reader starts.
	Annotations []annotation.Annotation
	// LastLocation is where reading resumes.
	LastLocation string
	Style        Style
	// SelectionWait is the quiet window before the page-advance check.
	// Zero means debounce.DefaultWait.
	SelectionWait time.Duration

	OnSelection      func(SelectionReport)
	OnShowAnnotation func(a annotation.Annotation, ok bool)
	OnRelocate       func(CurrentInfo)
}

// Reader consumes surface events for one opened book.
type Reader struct {
	view  *View
	index *annotation.Index
	opts  Options
	check *debounce.Debouncer

	mu        sync.Mutex
	loaded    map[int]bool
	selecting bool
	selIndex  int
	current   CurrentInfo
}

// New returns a reader for a view that has a surface.
func New(view *View, opts Options) *Reader {
	r := &Reader{
		view:   view,
		index:  annotation.NewIndex(),
		opts:   opts,
		loaded: make(map[int]bool),
	}
	wait := opts.SelectionWait
	if wait <= 0 {
		wait = debounce.DefaultWait
	}
	r.check = debounce.New(wait, r.extendSelection)
	return r
}

// Start registers the initial annotations, applies the style and moves to the
// last location. Rejected annotations are reported in the returned error but
// do not stop the reader.
func (r *Reader) Start() error {
	var errs []error
	if err := r.index.Register(r.opts.Annotations...); err != nil {
		errs = append(errs, err)
	}
	ApplyStyle(r.view.Surface, r.opts.Style)
	if r.opts.LastLocation != "" {
		if err := r.view.Surface.GoTo(r.opts.LastLocation); err != nil {
			errs = append(errs, errors.Wrap(err, "go to last location"))
		}
	}
	return errors.Join(errs...)
}

// Run handles events until the channel is closed or ctx is done.
func (r *Reader) Run(ctx context.Context, events <-chan Event) error {
	defer r.check.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.Handle(ev)
		}
	}
}

// Handle processes one event.
func (r *Reader) Handle(ev Event) {
	switch ev := ev.(type) {
	case LoadEvent:
		logging.SurfaceEvent("load", ev.Index)
		r.mu.Lock()
		r.loaded[ev.Index] = true
		r.mu.Unlock()
	case RelocateEvent:
		r.relocate(ev)
	case CreateOverlayEvent:
		logging.SurfaceEvent("create-overlay", ev.Index)
		for _, a := range r.index.OnChapterMount(ev.Index) {
			if err := r.view.Surface.AddAnnotation(a); err != nil {
				logging.Warn("add annotation failed", "id", a.ID, "value", a.Value, "error", err)
			}
		}
	case DrawAnnotationEvent:
		if d, ok := r.index.OnDrawRequest(ev.Annotation); ok && ev.Draw != nil {
			ev.Draw(d)
		}
	case ShowAnnotationEvent:
		a, ok := r.index.ByLocation(ev.Value)
		if r.opts.OnShowAnnotation != nil {
			r.opts.OnShowAnnotation(a, ok)
		}
	case PointerDownEvent:
		r.mu.Lock()
		r.selecting = true
		r.selIndex = ev.Index
		r.mu.Unlock()
	case PointerUpEvent:
		r.mu.Lock()
		r.selecting = false
		r.mu.Unlock()
		if report, ok := r.Report(ev.Index); ok && r.opts.OnSelection != nil {
			r.opts.OnSelection(report)
		}
	case SelectionChangeEvent:
		if r.view.Surface.FixedLayout() {
			return
		}
		r.mu.Lock()
		r.selIndex = ev.Index
		r.mu.Unlock()
		r.check.Trigger()
	}
}

// relocate records the new position. A relocate for a section whose load
// has not been seen is dropped.
func (r *Reader) relocate(ev RelocateEvent) {
	r.mu.Lock()
	if !r.loaded[ev.Index] {
		r.mu.Unlock()
		logging.Warn("relocate before load dropped", "index", ev.Index, "cfi", ev.CFI)
		return
	}
	info := CurrentInfo{
		CFI:      ev.CFI,
		Fraction: ev.Fraction,
		Label:    locationLabel(ev),
		TOCItem:  ev.TOCItem,
		PageItem: ev.PageItem,
	}
	r.current = info
	r.mu.Unlock()

	if r.opts.OnRelocate != nil {
		r.opts.OnRelocate(info)
	}
}

func locationLabel(ev RelocateEvent) string {
	if ev.PageItem != nil {
		return "Page " + ev.PageItem.Label
	}
	return "Loc " + strconv.Itoa(ev.Location.Current)
}

// Report builds the selection report for section index. It reports false
// when there is no selection or the selection is collapsed.
func (r *Reader) Report(index int) (SelectionReport, bool) {
	s := r.view.Surface
	sel := s.Selection(index)
	if sel.Range == nil || sel.Range.Collapsed() {
		return SelectionReport{}, false
	}
	anchor, ok := geometry.Locate(sel.Range, s.Viewport())
	if !ok {
		return SelectionReport{}, false
	}
	cfi, err := s.CFI(index, sel.Range)
	if err != nil {
		logging.Warn("selection location unavailable", "index", index, "error", err)
	}
	text := sel.Text
	if text == "" {
		text = sel.Range.Text()
	}
	var lang string
	if n := sel.Range.CommonAncestor(); n != nil {
		lang = geometry.Lang(n)
	}
	return SelectionReport{Index: index, CFI: cfi, Lang: lang, Anchor: anchor, Text: text}, true
}

// extendSelection turns the page when a drag selection reaches the end of
// the visible page. It runs from the debouncer.
func (r *Reader) extendSelection() {
	r.mu.Lock()
	selecting, index := r.selecting, r.selIndex
	r.mu.Unlock()
	if !selecting {
		return
	}

	s := r.view.Surface
	if s.Attribute(AttrFlow) != FlowPaginated {
		return
	}
	last, ok := s.LastLocation()
	if !ok || last == nil {
		return
	}
	sel := s.Selection(index)
	if sel.Range == nil || sel.Range.Collapsed() {
		return
	}
	if sel.Range.CompareEnd(last) >= 0 {
		if err := s.Next(); err != nil {
			logging.Warn("page advance failed", "error", err)
		}
	}
}

// Annotations returns the annotation index.
func (r *Reader) Annotations() *annotation.Index { return r.index }

// AddAnnotation registers a and draws it at once if its section is loaded.
func (r *Reader) AddAnnotation(a annotation.Annotation) error {
	if err := r.index.Register(a); err != nil {
		return err
	}
	chapter, _ := a.Chapter()
	r.mu.Lock()
	loaded := r.loaded[chapter]
	r.mu.Unlock()
	if loaded {
		return r.view.Surface.AddAnnotation(a)
	}
	return nil
}

// RemoveAnnotation removes the annotation at value.
func (r *Reader) RemoveAnnotation(value string) bool {
	return r.index.Remove(value)
}

// Current returns the position after the last accepted relocate.
func (r *Reader) Current() CurrentInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Book returns the opened book.
func (r *Reader) Book() book.Book { return r.view.Book }

// TOC returns the book's table of contents.
func (r *Reader) TOC() []book.TOCItem { return r.view.Book.TOC() }

// Next turns to the next page.
func (r *Reader) Next() error { return r.view.Surface.Next() }

// Prev turns to the previous page.
func (r *Reader) Prev() error { return r.view.Surface.Prev() }

// GoTo moves to an href or location.
func (r *Reader) GoTo(href string) error { return r.view.Surface.GoTo(href) }

// GoToFraction moves to a fraction of the whole book.
func (r *Reader) GoToFraction(f float64) error {
	if f < 0 || f > 1 {
		return errors.Wrapf(errors.ErrInvalidInput, "fraction %v out of range", f)
	}
	return r.view.Surface.GoToFraction(f)
}

// SetScroll switches between scrolled and paginated flow.
func (r *Reader) SetScroll(scroll bool) {
	r.view.Surface.SetAttribute(AttrFlow, Flow(scroll))
}

// SetStyle applies a new style.
func (r *Reader) SetStyle(style Style) {
	r.mu.Lock()
	r.opts.Style = style
	r.mu.Unlock()
	ApplyStyle(r.view.Surface, style)
}
