package xml

import (
	"testing"

	"github.com/FocuswithJustin/JuniperReader/core/geometry"
)

const opf = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="id" xml:lang="fr">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>  Le Petit Prince </dc:title>
    <dc:creator>Antoine de Saint-Exupéry</dc:creator>
  </metadata>
  <manifest>
    <item id="c1" href="c1.xhtml" media-type="application/xhtml+xml"/>
    <item id="c2" href="c2.xhtml" media-type="application/xhtml+xml" properties="nav"/>
  </manifest>
</package>`

func TestParseAndQuery(t *testing.T) {
	doc, err := ParseString(opf)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	if got := doc.Root().Name(); got != "package" {
		t.Errorf("Root().Name() = %q, want package", got)
	}

	title, err := doc.XPathFirst("//*[local-name()='metadata']/*[local-name()='title']")
	if err != nil {
		t.Fatalf("XPathFirst() error = %v", err)
	}
	if got := title.Text(); got != "Le Petit Prince" {
		t.Errorf("title = %q, want trimmed text", got)
	}

	items, err := doc.XPath("//*[local-name()='item']")
	if err != nil {
		t.Fatalf("XPath() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("found %d items, want 2", len(items))
	}
	if got := items[1].Attr("properties"); got != "nav" {
		t.Errorf("Attr(properties) = %q, want nav", got)
	}

	missing, err := doc.XPathFirst("//*[local-name()='spine']")
	if err != nil || missing != nil {
		t.Errorf("XPathFirst(missing) = (%v, %v), want (nil, nil)", missing, err)
	}
}

func TestInvalidInput(t *testing.T) {
	if _, err := ParseString("<open><unclosed></open>"); err == nil {
		t.Error("ParseString() accepted malformed XML")
	}
	doc, _ := ParseString(opf)
	if _, err := doc.XPath("//*["); err == nil {
		t.Error("XPath() accepted invalid expression")
	}
}

func TestChildrenAndRelativeQuery(t *testing.T) {
	doc, _ := ParseString(opf)
	manifest, _ := doc.XPathFirst("//*[local-name()='manifest']")
	children := manifest.Children()
	if len(children) != 2 || children[0].Attr("id") != "c1" {
		t.Fatalf("Children() = %d nodes", len(children))
	}
	item, _ := manifest.XPathFirst("*[@id='c2']")
	if item == nil || item.Attr("href") != "c2.xhtml" {
		t.Errorf("relative XPathFirst() = %v", item)
	}
}

func TestLangThroughAncestors(t *testing.T) {
	doc, err := ParseString(`<html xmlns="http://www.w3.org/1999/xhtml" xml:lang="zh"><body><p lang="en"><span>hi</span></p><p><em>你好</em></p></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	spans, _ := doc.XPath("//*[local-name()='span']")
	ems, _ := doc.XPath("//*[local-name()='em']")

	if got := geometry.Lang(spans[0]); got != "en" {
		t.Errorf("Lang(span) = %q, want en", got)
	}
	if got := geometry.Lang(ems[0]); got != "zh" {
		t.Errorf("Lang(em) = %q, want zh from xml:lang", got)
	}
	if doc.Root().Parent() != nil {
		t.Error("document element has a parent element")
	}
}

func TestParseLenient(t *testing.T) {
	if _, err := ParseString(`<p>a&nbsp;b<br></p>`); err == nil {
		t.Fatal("strict ParseString() accepted HTML entity and void element")
	}
	doc, err := ParseLenient([]byte(`<p>a&nbsp;b<br></p>`))
	if err != nil {
		t.Fatalf("ParseLenient() error = %v", err)
	}
	if got := doc.Root().Text(); got != "a\u00a0b" {
		t.Errorf("Text() = %q", got)
	}

	// "Привет" in windows-1251.
	cp1251 := append([]byte(`<?xml version="1.0" encoding="windows-1251"?><t>`), 0xcf, 0xf0, 0xe8, 0xe2, 0xe5, 0xf2)
	cp1251 = append(cp1251, []byte(`</t>`)...)
	doc, err = ParseLenient(cp1251)
	if err != nil {
		t.Fatalf("ParseLenient(cp1251) error = %v", err)
	}
	if got := doc.Root().Text(); got != "Привет" {
		t.Errorf("Text() = %q, want Привет", got)
	}
}
