package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/FocuswithJustin/JuniperReader/core/annotation"
	"github.com/FocuswithJustin/JuniperReader/core/book"
	"github.com/FocuswithJustin/JuniperReader/core/cfi"
	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/geometry"
	"github.com/FocuswithJustin/JuniperReader/core/reader"
)

// Frame types sent by the browser.
const (
	TypeEvent      = "event"
	TypeReply      = "reply"
	TypeViewport   = "viewport"
	TypeNavigate   = "navigate"
	TypeAnnotate   = "annotate"
	TypeUnannotate = "unannotate"
	TypeStyle      = "style"
	TypeScroll     = "scroll"
)

// Frame types sent to the browser.
const (
	TypeHello      = "hello"
	TypeOpen       = "open"
	TypeCommand    = "command"
	TypeRequest    = "request"
	TypeDraw       = "draw"
	TypeRelocated  = "relocated"
	TypeSelection  = "selection"
	TypeAnnotation = "annotation"
	TypeAnnotated  = "annotated"
	TypeRemoved    = "removed"
	TypeLibrary    = "library"
	TypeError      = "error"
)

// Outbound is one frame sent to the browser.
type Outbound struct {
	Type string `json:"type"`
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Inbound is one frame received from the browser. Which fields are set
// depends on Type and, for events, on Kind.
type Inbound struct {
	Type string `json:"type"`
	Kind string `json:"kind,omitempty"`
	ID   int64  `json:"id,omitempty"`

	// reply
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	// events
	Index      int                    `json:"index,omitempty"`
	Doc        *WireNode              `json:"doc,omitempty"`
	CFI        string                 `json:"cfi,omitempty"`
	Fraction   float64                `json:"fraction,omitempty"`
	Location   reader.Location        `json:"location,omitempty"`
	TOCItem    *book.TOCItem          `json:"tocItem,omitempty"`
	PageItem   *reader.PageItem       `json:"pageItem,omitempty"`
	Value      string                 `json:"value,omitempty"`
	Annotation *annotation.Annotation `json:"annotation,omitempty"`

	// viewport
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`

	// navigate: "next", "prev", "goto" or "fraction"
	Op   string `json:"op,omitempty"`
	Href string `json:"href,omitempty"`

	Style  *reader.Style `json:"style,omitempty"`
	Scroll bool          `json:"scroll,omitempty"`
}

// WireNode is an element and its ancestors as the browser reports them.
type WireNode struct {
	Attrs map[string]string `json:"attrs,omitempty"`
	Up    *WireNode         `json:"parent,omitempty"`
}

// Attr returns the named attribute.
func (n *WireNode) Attr(name string) string {
	return n.Attrs[name]
}

// Parent returns the parent element, or nil at the root.
func (n *WireNode) Parent() geometry.Node {
	if n.Up == nil {
		return nil
	}
	return n.Up
}

// WireFrame is the nested surface of a range.
type WireFrame struct {
	Rect      geometry.Rect `json:"rect"`
	Transform string        `json:"transform"`
}

// WireRange is a live range reduced to what the orchestrator reads.
type WireRange struct {
	IsCollapsed bool            `json:"collapsed"`
	Rects       []geometry.Rect `json:"rects"`
	Owner       *WireFrame      `json:"frame,omitempty"`
	Content     string          `json:"text"`
	Ancestor    *WireNode       `json:"ancestor,omitempty"`
	// Location is the canonical location of the range.
	Location string `json:"cfi"`
}

// Collapsed reports a zero-length range.
func (r *WireRange) Collapsed() bool { return r.IsCollapsed }

// ClientRects returns the fragments in the document's coordinates.
func (r *WireRange) ClientRects() []geometry.Rect { return r.Rects }

// Frame returns the owning frame, if any.
func (r *WireRange) Frame() (geometry.Frame, bool) {
	if r.Owner == nil {
		return geometry.Frame{}, false
	}
	return geometry.Frame{Rect: r.Owner.Rect, Transform: r.Owner.Transform}, true
}

// Text returns the covered text.
func (r *WireRange) Text() string { return r.Content }

// CommonAncestor returns the deepest containing element.
func (r *WireRange) CommonAncestor() geometry.Node {
	if r.Ancestor == nil {
		return nil
	}
	return r.Ancestor
}

// CompareEnd compares end points by canonical location. A range whose
// location cannot be parsed sorts before every other.
func (r *WireRange) CompareEnd(other reader.Range) int {
	o, ok := other.(*WireRange)
	if !ok {
		return -1
	}
	a, err := cfi.Parse(r.Location)
	if err != nil {
		return -1
	}
	b, err := cfi.Parse(o.Location)
	if err != nil {
		return 1
	}
	return cfi.ComparePaths(a.EndPoint(), b.EndPoint())
}

// SelectionReply is the browser's answer to a selection request.
type SelectionReply struct {
	Range *WireRange `json:"range"`
	Text  string     `json:"text"`
}

// OpenPayload describes the book a session shows.
type OpenPayload struct {
	Session     string         `json:"session"`
	Fingerprint string         `json:"fingerprint"`
	Base        string         `json:"base"`
	Format      string         `json:"format"`
	Metadata    book.Metadata  `json:"metadata"`
	TOC         []book.TOCItem `json:"toc"`
	Sections    []book.Section `json:"sections"`
	FixedLayout bool           `json:"fixedLayout"`
}

// DrawPayload tells the browser how to draw one annotation.
type DrawPayload struct {
	Value string                     `json:"value"`
	Draw  annotation.DrawInstruction `json:"draw"`
}

// ShowPayload answers a show-annotation event.
type ShowPayload struct {
	Found      bool                   `json:"found"`
	Annotation *annotation.Annotation `json:"annotation,omitempty"`
}

// decodeEvent turns an event frame into a surface event. Draw requests are
// answered through draw.
func decodeEvent(in Inbound, draw func(annotation.Annotation, annotation.DrawInstruction)) (reader.Event, error) {
	switch in.Kind {
	case "load":
		var doc geometry.Node
		if in.Doc != nil {
			doc = in.Doc
		}
		return reader.LoadEvent{Index: in.Index, Doc: doc}, nil
	case "relocate":
		return reader.RelocateEvent{
			Index:    in.Index,
			CFI:      in.CFI,
			Fraction: in.Fraction,
			Location: in.Location,
			TOCItem:  in.TOCItem,
			PageItem: in.PageItem,
		}, nil
	case "create-overlay":
		return reader.CreateOverlayEvent{Index: in.Index}, nil
	case "draw-annotation":
		if in.Annotation == nil {
			return nil, errors.Wrap(errors.ErrInvalidInput, "draw-annotation without annotation")
		}
		a := *in.Annotation
		return reader.DrawAnnotationEvent{
			Annotation: a,
			Draw:       func(d annotation.DrawInstruction) { draw(a, d) },
		}, nil
	case "show-annotation":
		return reader.ShowAnnotationEvent{Value: in.Value}, nil
	case "pointerdown":
		return reader.PointerDownEvent{Index: in.Index}, nil
	case "pointerup":
		return reader.PointerUpEvent{Index: in.Index}, nil
	case "selectionchange":
		return reader.SelectionChangeEvent{Index: in.Index}, nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unknown event kind %q", in.Kind)
	}
}

// requestError is an error reported by the browser for a request.
type requestError struct {
	method string
	msg    string
}

func (e *requestError) Error() string {
	return fmt.Sprintf("%s: %s", e.method, e.msg)
}
