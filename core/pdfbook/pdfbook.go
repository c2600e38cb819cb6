// Package pdfbook presents a PDF document as a fixed-layout book with one
// section per page.
package pdfbook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"
	"seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/destination"
	"seehuhn.de/go/pdf/outline"
	"seehuhn.de/go/pdf/pagetree"

	"github.com/FocuswithJustin/JuniperReader/core/book"
	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/loader"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
)

// MediaType is the media type of the single document resource.
const MediaType = "application/pdf"

// DocumentHref is the href every page section points into.
const DocumentHref = "document.pdf"

// Book is an opened PDF document. It implements book.Book.
type Book struct {
	metadata book.Metadata
	sections []book.Section
	toc      []book.TOCItem
	data     []byte
}

// Open reads the page tree, document information and outline of a PDF.
func Open(ctx context.Context, rs io.ReadSeeker) (*Book, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rs)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, err := pdf.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, &errors.UnsupportedError{Name: "PDF", Reason: "unreadable document", Err: err}
	}
	defer r.Close()
	if meta := r.GetMeta(); meta == nil || meta.Catalog == nil {
		return nil, errors.NewUnsupported("PDF", "missing document catalog")
	}

	pages, err := pagetree.FindPages(r)
	if err != nil {
		return nil, &errors.UnsupportedError{Name: "PDF", Reason: "unreadable page tree", Err: err}
	}
	if len(pages) == 0 {
		return nil, errors.NewUnsupported("PDF", "document has no pages")
	}

	b := &Book{data: data}
	b.readInfo(r.GetMeta())

	pageIndex := make(map[pdf.Reference]int, len(pages))
	for i, ref := range pages {
		if ref != 0 {
			pageIndex[ref] = i
		}
		b.sections = append(b.sections, book.Section{
			ID:        fmt.Sprintf("page-%d", i+1),
			Href:      PageHref(i),
			MediaType: MediaType,
			Size:      int64(len(data)),
			Linear:    true,
		})
	}

	tree, err := outline.Read(r)
	if err != nil {
		logging.Debug("pdf outline unreadable", "error", err)
	} else if tree != nil {
		b.toc = tocItems(tree.Items, pageIndex)
	}
	return b, nil
}

func (b *Book) readInfo(meta *pdf.MetaInfo) {
	if meta == nil {
		return
	}
	if info := meta.Info; info != nil {
		b.metadata.Title = strings.TrimSpace(string(info.Title))
		if author := strings.TrimSpace(string(info.Author)); author != "" {
			b.metadata.Authors = []string{author}
		}
		b.metadata.Description = strings.TrimSpace(string(info.Subject))
	}
	if meta.Catalog != nil && meta.Catalog.Lang != language.Und {
		b.metadata.Language = meta.Catalog.Lang.String()
	}
	if len(meta.ID) > 0 && len(meta.ID[0]) > 0 {
		b.metadata.Identifier = fmt.Sprintf("%x", meta.ID[0])
	}
}

// tocItems converts outline items. An item whose destination cannot be
// resolved to a page points at the first page.
func tocItems(items []*outline.Item, pageIndex map[pdf.Reference]int) []book.TOCItem {
	var out []book.TOCItem
	for _, item := range items {
		page := 0
		if dest, ok := item.Destination.(*destination.XYZ); ok {
			if ref, ok := dest.Page.(pdf.Reference); ok {
				page = pageIndex[ref]
			}
		}
		out = append(out, book.TOCItem{
			Label:    item.Title,
			Href:     PageHref(page),
			Subitems: tocItems(item.Children, pageIndex),
		})
	}
	return out
}

// PageHref returns the section href for a zero-based page index.
func PageHref(i int) string {
	return fmt.Sprintf("%s#page=%d", DocumentHref, i+1)
}

// Metadata returns the document information.
func (b *Book) Metadata() book.Metadata { return b.metadata }

// TOC returns the outline.
func (b *Book) TOC() []book.TOCItem { return b.toc }

// Sections returns one section per page.
func (b *Book) Sections() []book.Section { return b.sections }

// FixedLayout is always true.
func (b *Book) FixedLayout() bool { return true }

// Load returns the whole document for any page href.
func (b *Book) Load(ctx context.Context, href string) (*loader.Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if book.StripFragment(href) != DocumentHref {
		return nil, errors.NewNotFound("resource", href)
	}
	return &loader.Blob{Name: DocumentHref, MediaType: MediaType, Data: b.data}, nil
}
