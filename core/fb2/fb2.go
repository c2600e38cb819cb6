// Package fb2 reads FictionBook 2 documents and presents each top-level
// section of the main body as an XHTML section.
package fb2

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/FocuswithJustin/JuniperReader/core/book"
	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/loader"
	"github.com/FocuswithJustin/JuniperReader/core/xml"
)

const xhtmlType = "application/xhtml+xml"

// Book is an opened FictionBook. It implements book.Book.
type Book struct {
	metadata  book.Metadata
	sections  []book.Section
	toc       []book.TOCItem
	resources book.Resources
	cover     string
}

// Open parses a FictionBook document. A declared non-UTF-8 encoding such as
// windows-1251 is honoured.
func Open(ctx context.Context, data []byte) (*Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := xml.ParseLenient(data)
	if err != nil {
		return nil, &errors.UnsupportedError{Name: "FictionBook", Reason: "malformed XML", Err: err}
	}
	root := doc.Root()
	if root == nil || root.Name() != "FictionBook" {
		return nil, errors.NewUnsupported("FictionBook", "missing FictionBook root element")
	}

	b := &Book{resources: make(book.Resources)}
	b.readDescription(doc)
	b.readBinaries(doc)

	bodies, _ := doc.XPath("/*[local-name()='FictionBook']/*[local-name()='body']")
	if len(bodies) == 0 {
		return nil, errors.NewUnsupported("FictionBook", "no body")
	}

	c := &converter{ids: make(map[string]string)}
	var parts []part
	for i, body := range bodies {
		notes := i > 0 && body.Attr("name") != ""
		parts = append(parts, c.split(body.Raw(), notes)...)
	}
	c.indexIDs(parts)

	for i, p := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		html := c.document(p, b.metadata.Language)
		b.resources[p.href] = &loader.Blob{Name: p.href, MediaType: xhtmlType, Data: []byte(html)}
		b.sections = append(b.sections, book.Section{
			ID:        fmt.Sprintf("section-%d", i),
			Href:      p.href,
			MediaType: xhtmlType,
			Size:      int64(len(html)),
			Linear:    !p.notes,
		})
		if item, ok := c.tocItem(p.node, p.href); ok && !p.notes {
			b.toc = append(b.toc, item)
		}
	}
	return b, nil
}

func (b *Book) readDescription(doc *xml.Document) {
	info, _ := doc.XPathFirst("//*[local-name()='description']/*[local-name()='title-info']")
	if info == nil {
		return
	}
	field := func(from *xml.Node, local string) string {
		n, _ := from.XPathFirst("*[local-name()='" + local + "']")
		return n.Text()
	}

	b.metadata.Title = field(info, "book-title")
	b.metadata.Language = field(info, "lang")
	if ann, _ := info.XPathFirst("*[local-name()='annotation']"); ann != nil {
		b.metadata.Description = ann.Text()
	}
	authors, _ := info.XPath("*[local-name()='author']")
	for _, a := range authors {
		name := strings.Join(strings.Fields(strings.Join([]string{
			field(a, "first-name"), field(a, "middle-name"), field(a, "last-name"),
		}, " ")), " ")
		if name == "" {
			name = field(a, "nickname")
		}
		if name != "" {
			b.metadata.Authors = append(b.metadata.Authors, name)
		}
	}
	if pub, _ := doc.XPathFirst("//*[local-name()='publish-info']/*[local-name()='publisher']"); pub != nil {
		b.metadata.Publisher = pub.Text()
	}
	if id, _ := doc.XPathFirst("//*[local-name()='document-info']/*[local-name()='id']"); id != nil {
		b.metadata.Identifier = id.Text()
	}
	if img, _ := info.XPathFirst("*[local-name()='coverpage']/*[local-name()='image']"); img != nil {
		b.cover = binaryHref(strings.TrimPrefix(xlinkHref(img.Raw()), "#"))
	}
}

func (b *Book) readBinaries(doc *xml.Document) {
	bins, _ := doc.XPath("/*[local-name()='FictionBook']/*[local-name()='binary']")
	for _, bin := range bins {
		data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(bin.Text()), ""))
		if err != nil {
			continue
		}
		name := binaryHref(bin.Attr("id"))
		b.resources[name] = &loader.Blob{Name: name, MediaType: bin.Attr("content-type"), Data: data}
	}
}

func binaryHref(id string) string {
	return "binary/" + id
}

// Metadata returns the title-info metadata.
func (b *Book) Metadata() book.Metadata { return b.metadata }

// TOC returns the section titles.
func (b *Book) TOC() []book.TOCItem { return b.toc }

// Sections returns the generated XHTML sections.
func (b *Book) Sections() []book.Section { return b.sections }

// FixedLayout is false; FictionBook is reflowable.
func (b *Book) FixedLayout() bool { return false }

// Cover returns the href of the cover image, if any.
func (b *Book) Cover() string { return b.cover }

// Load returns a generated section or an embedded binary.
func (b *Book) Load(ctx context.Context, href string) (*loader.Blob, error) {
	return b.resources.Load(ctx, href)
}

// xlinkHref returns an element's xlink href regardless of the prefix used.
func xlinkHref(n *xmlquery.Node) string {
	for _, a := range n.Attr {
		if a.Name.Local == "href" {
			return a.Value
		}
	}
	return ""
}
