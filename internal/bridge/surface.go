package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/FocuswithJustin/JuniperReader/core/annotation"
	"github.com/FocuswithJustin/JuniperReader/core/book"
	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/geometry"
	"github.com/FocuswithJustin/JuniperReader/core/reader"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
)

// DefaultRequestTimeout bounds how long a surface waits for the browser to
// answer a request.
const DefaultRequestTimeout = 5 * time.Second

// ErrClosed is returned by surface calls after the session has ended.
var ErrClosed = errors.New("bridge session closed")

// Surface is a reader.Surface rendered by a browser on the other end of a
// WebSocket. Calls become command frames; calls that need an answer become
// request frames matched to reply frames by ID.
type Surface struct {
	send    func(Outbound) error
	timeout time.Duration
	payload OpenPayload

	mu       sync.Mutex
	nextID   int64
	pending  map[int64]chan Inbound
	attrs    map[string]string
	css      string
	viewport geometry.Viewport
	book     book.Book
	closed   bool
}

// NewSurface returns a surface that writes frames with send. payload
// carries the session fields of the open frame; the book fields are filled
// in by Open.
func NewSurface(send func(Outbound) error, timeout time.Duration, payload OpenPayload) *Surface {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Surface{
		send:    send,
		timeout: timeout,
		payload: payload,
		pending: make(map[int64]chan Inbound),
		attrs:   make(map[string]string),
	}
}

// Open sends the book's description to the browser.
func (s *Surface) Open(ctx context.Context, b book.Book) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.book = b
	p := s.payload
	s.mu.Unlock()

	p.Metadata = b.Metadata()
	p.TOC = b.TOC()
	p.Sections = b.Sections()
	p.FixedLayout = b.FixedLayout()
	return s.send(Outbound{Type: TypeOpen, Data: p})
}

func (s *Surface) command(name string, data any) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return s.send(Outbound{Type: TypeCommand, Name: name, Data: data})
}

// Next turns to the next page.
func (s *Surface) Next() error { return s.command("next", nil) }

// Prev turns to the previous page.
func (s *Surface) Prev() error { return s.command("prev", nil) }

// GoTo moves to an href or canonical location.
func (s *Surface) GoTo(href string) error {
	return s.command("goto", map[string]string{"href": href})
}

// GoToFraction moves to a fraction of the book.
func (s *Surface) GoToFraction(fraction float64) error {
	return s.command("fraction", map[string]float64{"fraction": fraction})
}

// AddAnnotation asks the browser to draw an overlay for a.
func (s *Surface) AddAnnotation(a annotation.Annotation) error {
	return s.command("addAnnotation", a)
}

// RemoveAnnotation asks the browser to drop the overlay at value.
func (s *Surface) RemoveAnnotation(value string) error {
	return s.command("removeAnnotation", map[string]string{"value": value})
}

// SetAttribute sets a renderer attribute.
func (s *Surface) SetAttribute(name, value string) {
	s.mu.Lock()
	s.attrs[name] = value
	s.mu.Unlock()
	if err := s.command("setAttribute", map[string]string{"name": name, "value": value}); err != nil {
		logging.Warn("set attribute failed", "name", name, "error", err)
	}
}

// Attribute returns the last value set for name.
func (s *Surface) Attribute(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attrs[name]
}

// SetStyles injects the reader stylesheet.
func (s *Surface) SetStyles(css string) {
	s.mu.Lock()
	s.css = css
	s.mu.Unlock()
	if err := s.command("setStyles", map[string]string{"css": css}); err != nil {
		logging.Warn("set styles failed", "error", err)
	}
}

// Styles returns the last stylesheet set.
func (s *Surface) Styles() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.css
}

// CFI returns the canonical location of r. Ranges that came from the
// browser already carry it; others are asked for.
func (s *Surface) CFI(index int, r reader.Range) (string, error) {
	if wr, ok := r.(*WireRange); ok && wr.Location != "" {
		return wr.Location, nil
	}
	raw, err := s.request("cfi", map[string]int{"index": index})
	if err != nil {
		return "", err
	}
	var loc string
	if err := json.Unmarshal(raw, &loc); err != nil {
		return "", errors.Wrap(err, "decode cfi reply")
	}
	return loc, nil
}

// Selection asks the browser for the selection in section index. A failed
// request is logged and reported as no selection.
func (s *Surface) Selection(index int) reader.Selection {
	raw, err := s.request("selection", map[string]int{"index": index})
	if err != nil {
		logging.Warn("selection request failed", "index", index, "error", err)
		return reader.Selection{}
	}
	var reply SelectionReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		logging.Warn("selection reply malformed", "index", index, "error", err)
		return reader.Selection{}
	}
	sel := reader.Selection{Text: reply.Text}
	if reply.Range != nil {
		sel.Range = reply.Range
	}
	return sel
}

// LastLocation asks the browser for the range of the last visible position.
func (s *Surface) LastLocation() (reader.Range, bool) {
	raw, err := s.request("lastLocation", nil)
	if err != nil {
		logging.Warn("last location request failed", "error", err)
		return nil, false
	}
	var r *WireRange
	if err := json.Unmarshal(raw, &r); err != nil || r == nil {
		return nil, false
	}
	return r, true
}

// FixedLayout reports whether the open book is pre-paginated.
func (s *Surface) FixedLayout() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book != nil && s.book.FixedLayout()
}

// Viewport returns the size last reported by the browser.
func (s *Surface) Viewport() geometry.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

func (s *Surface) setViewport(width, height float64) {
	s.mu.Lock()
	s.viewport = geometry.Viewport{Width: width, Height: height}
	s.mu.Unlock()
}

func (s *Surface) request(method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.nextID++
	id := s.nextID
	ch := make(chan Inbound, 1)
	s.pending[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.send(Outbound{Type: TypeRequest, ID: id, Name: method, Data: params}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case in, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if in.Error != "" {
			return nil, &requestError{method: method, msg: in.Error}
		}
		return in.Result, nil
	case <-timer.C:
		return nil, errors.Wrapf(context.DeadlineExceeded, "%s request %d", method, id)
	}
}

// resolve delivers a reply frame to the waiting request. It reports false
// for unknown IDs.
func (s *Surface) resolve(in Inbound) bool {
	s.mu.Lock()
	ch, ok := s.pending[in.ID]
	if ok {
		delete(s.pending, in.ID)
	}
	s.mu.Unlock()
	if ok {
		ch <- in
	}
	return ok
}

// close fails every pending request and refuses further calls.
func (s *Surface) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}
