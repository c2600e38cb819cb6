package bridge

import (
	"encoding/json"
	"testing"

	"github.com/FocuswithJustin/JuniperReader/core/annotation"
	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/geometry"
	"github.com/FocuswithJustin/JuniperReader/core/reader"
)

func decode(t *testing.T, frame string) Inbound {
	t.Helper()
	var in Inbound
	if err := json.Unmarshal([]byte(frame), &in); err != nil {
		t.Fatalf("unmarshal %s: %v", frame, err)
	}
	return in
}

func TestDecodeLoadEvent(t *testing.T) {
	in := decode(t, `{"type":"event","kind":"load","index":3,
		"doc":{"attrs":{"id":"body"},"parent":{"attrs":{"xml:lang":"de"}}}}`)
	ev, err := decodeEvent(in, nil)
	if err != nil {
		t.Fatalf("decodeEvent() error = %v", err)
	}
	load, ok := ev.(reader.LoadEvent)
	if !ok || load.Index != 3 {
		t.Fatalf("decodeEvent() = %#v", ev)
	}
	if got := geometry.Lang(load.Doc); got != "de" {
		t.Errorf("Lang(doc) = %q, want de", got)
	}
}

func TestDecodeRelocateEvent(t *testing.T) {
	in := decode(t, `{"type":"event","kind":"relocate","index":1,"cfi":"epubcfi(/6/4!/4/2)",
		"fraction":0.5,"location":{"current":7},"tocItem":{"label":"One","href":"a.xhtml"}}`)
	ev, err := decodeEvent(in, nil)
	if err != nil {
		t.Fatalf("decodeEvent() error = %v", err)
	}
	rel := ev.(reader.RelocateEvent)
	if rel.CFI != "epubcfi(/6/4!/4/2)" || rel.Fraction != 0.5 || rel.TOCItem == nil || rel.TOCItem.Label != "One" {
		t.Errorf("relocate = %+v", rel)
	}
}

func TestDecodeDrawAnnotation(t *testing.T) {
	in := decode(t, `{"type":"event","kind":"draw-annotation",
		"annotation":{"value":"epubcfi(/6/4!/4/2)","type":"underline","color":"#f00"}}`)
	var got annotation.DrawInstruction
	var value string
	ev, err := decodeEvent(in, func(a annotation.Annotation, d annotation.DrawInstruction) {
		value, got = a.Value, d
	})
	if err != nil {
		t.Fatalf("decodeEvent() error = %v", err)
	}
	draw := ev.(reader.DrawAnnotationEvent)
	draw.Draw(annotation.DrawInstruction{Primitive: annotation.PrimitiveUnderline, Color: "#f00"})
	if value != "epubcfi(/6/4!/4/2)" || got.Primitive != annotation.PrimitiveUnderline {
		t.Errorf("draw callback got %q %+v", value, got)
	}

	if _, err := decodeEvent(decode(t, `{"type":"event","kind":"draw-annotation"}`), nil); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("missing annotation error = %v", err)
	}
}

func TestDecodeEventKinds(t *testing.T) {
	tests := map[string]string{
		"create-overlay":  "create-overlay",
		"show-annotation": "show-annotation",
		"pointerdown":     "pointerdown",
		"pointerup":       "pointerup",
		"selectionchange": "selectionchange",
	}
	for kind, want := range tests {
		ev, err := decodeEvent(Inbound{Type: TypeEvent, Kind: kind}, nil)
		if err != nil {
			t.Errorf("decodeEvent(%s) error = %v", kind, err)
			continue
		}
		if got := reader.EventKind(ev); got != want {
			t.Errorf("EventKind = %q, want %q", got, want)
		}
	}
	if _, err := decodeEvent(Inbound{Type: TypeEvent, Kind: "wheel"}, nil); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("unknown kind error = %v", err)
	}
}

func TestWireRange(t *testing.T) {
	var r WireRange
	err := json.Unmarshal([]byte(`{"collapsed":false,"rects":[{"left":10,"top":20,"right":30,"bottom":40}],
		"frame":{"rect":{"left":100,"top":0,"right":600,"bottom":800},"transform":"scale(2)"},
		"text":"hello","cfi":"epubcfi(/6/4!/4/2,/1:0,/1:5)"}`), &r)
	if err != nil {
		t.Fatal(err)
	}
	if r.Collapsed() || len(r.ClientRects()) != 1 || r.Text() != "hello" {
		t.Errorf("range = %+v", r)
	}
	f, ok := r.Frame()
	if !ok || f.Rect.Left != 100 || f.Transform != "scale(2)" {
		t.Errorf("Frame() = %+v, %v", f, ok)
	}
	if r.CommonAncestor() != nil {
		t.Error("CommonAncestor() should be nil without an ancestor")
	}
}

func TestWireRangeCompareEnd(t *testing.T) {
	a := &WireRange{Location: "epubcfi(/6/4!/4/2,/1:0,/1:5)"}
	b := &WireRange{Location: "epubcfi(/6/4!/4/2/1:10)"}
	c := &WireRange{Location: "epubcfi(/6/4!/4/2/1:5)"}
	bad := &WireRange{Location: "nonsense"}

	if got := a.CompareEnd(b); got >= 0 {
		t.Errorf("CompareEnd(earlier, later) = %d", got)
	}
	if got := b.CompareEnd(a); got <= 0 {
		t.Errorf("CompareEnd(later, earlier) = %d", got)
	}
	if got := a.CompareEnd(c); got != 0 {
		t.Errorf("CompareEnd(equal) = %d", got)
	}
	if got := bad.CompareEnd(a); got != -1 {
		t.Errorf("CompareEnd(unparseable self) = %d, want -1", got)
	}
	if got := a.CompareEnd(bad); got != 1 {
		t.Errorf("CompareEnd(unparseable other) = %d, want 1", got)
	}
}
