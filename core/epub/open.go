package epub

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/FocuswithJustin/JuniperReader/core/book"
	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/loader"
	"github.com/FocuswithJustin/JuniperReader/core/xml"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
)

const containerPath = "META-INF/container.xml"

// ManifestItem is one resource declared in the package document.
type ManifestItem struct {
	ID         string
	Href       string // resolved against the package root
	MediaType  string
	Properties string
}

// HasProperty reports whether the item declares the given property.
func (m ManifestItem) HasProperty(p string) bool {
	for _, f := range strings.Fields(m.Properties) {
		if f == p {
			return true
		}
	}
	return false
}

// Book is an opened EPUB package. It implements book.Book.
type Book struct {
	loader      loader.Loader
	packagePath string
	metadata    book.Metadata
	manifest    []ManifestItem
	byHref      map[string]ManifestItem
	sections    []book.Section
	toc         []book.TOCItem
	fixed       bool
}

// Open reads the package referenced by META-INF/container.xml and its
// navigation document (or NCX when there is none).
func Open(ctx context.Context, l loader.Loader) (*Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	container, err := loadXML(l, containerPath, false)
	if err != nil {
		return nil, err
	}
	rootfile, err := container.XPathFirst("//*[local-name()='rootfile'][@full-path]")
	if err != nil {
		return nil, err
	}
	if rootfile == nil {
		return nil, errors.NewUnsupported(containerPath, "no rootfile declared")
	}

	b := &Book{
		loader:      l,
		packagePath: rootfile.Attr("full-path"),
		byHref:      make(map[string]ManifestItem),
	}
	opf, err := loadXML(l, b.packagePath, false)
	if err != nil {
		return nil, err
	}
	if err := b.readPackage(opf); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.readTOC(opf)
	return b, nil
}

func loadXML(l loader.Loader, name string, lenient bool) (*xml.Document, error) {
	text, ok, err := l.LoadText(name)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", name)
	}
	if !ok {
		return nil, errors.NewUnsupported(name, "missing from package")
	}
	parse := xml.ParseString
	if lenient {
		parse = func(s string) (*xml.Document, error) { return xml.ParseLenient([]byte(s)) }
	}
	doc, err := parse(text)
	if err != nil {
		return nil, &errors.UnsupportedError{Name: name, Reason: "malformed XML", Err: err}
	}
	return doc, nil
}

func (b *Book) readPackage(opf *xml.Document) error {
	root := opf.Root()
	if root == nil || root.Name() != "package" {
		return errors.NewUnsupported(b.packagePath, "not a package document")
	}

	b.metadata = book.Metadata{
		Title:       firstText(opf, "title"),
		Language:    firstText(opf, "language"),
		Publisher:   firstText(opf, "publisher"),
		Description: firstText(opf, "description"),
		Identifier:  b.identifier(opf, root.Attr("unique-identifier")),
	}
	creators, _ := opf.XPath("//*[local-name()='metadata']/*[local-name()='creator']")
	for _, c := range creators {
		if name := c.Text(); name != "" {
			b.metadata.Authors = append(b.metadata.Authors, name)
		}
	}

	layout, _ := opf.XPathFirst("//*[local-name()='metadata']/*[local-name()='meta'][@property='rendition:layout']")
	b.fixed = layout != nil && layout.Text() == "pre-paginated"

	items, err := opf.XPath("//*[local-name()='manifest']/*[local-name()='item']")
	if err != nil {
		return err
	}
	byID := make(map[string]ManifestItem, len(items))
	for _, it := range items {
		m := ManifestItem{
			ID:         it.Attr("id"),
			Href:       resolve(b.packagePath, it.Attr("href")),
			MediaType:  it.Attr("media-type"),
			Properties: it.Attr("properties"),
		}
		b.manifest = append(b.manifest, m)
		byID[m.ID] = m
		b.byHref[m.Href] = m
	}

	refs, err := opf.XPath("//*[local-name()='spine']/*[local-name()='itemref']")
	if err != nil {
		return err
	}
	for _, ref := range refs {
		m, ok := byID[ref.Attr("idref")]
		if !ok {
			continue
		}
		b.sections = append(b.sections, book.Section{
			ID:        m.ID,
			Href:      m.Href,
			MediaType: m.MediaType,
			Size:      b.loader.Size(m.Href),
			Linear:    ref.Attr("linear") != "no",
		})
	}
	if len(b.sections) == 0 {
		return errors.NewUnsupported(b.packagePath, "empty spine")
	}
	return nil
}

func firstText(opf *xml.Document, local string) string {
	n, _ := opf.XPathFirst("//*[local-name()='metadata']/*[local-name()='" + local + "']")
	return n.Text()
}

func (b *Book) identifier(opf *xml.Document, uniqueID string) string {
	ids, _ := opf.XPath("//*[local-name()='metadata']/*[local-name()='identifier']")
	for _, id := range ids {
		if uniqueID != "" && id.Attr("id") == uniqueID {
			return id.Text()
		}
	}
	if len(ids) > 0 {
		return ids[0].Text()
	}
	return ""
}

// readTOC prefers the EPUB 3 navigation document and falls back to the NCX.
// A missing or unreadable navigation source leaves the TOC empty.
func (b *Book) readTOC(opf *xml.Document) {
	for _, m := range b.manifest {
		if !m.HasProperty("nav") {
			continue
		}
		doc, err := loadXML(b.loader, m.Href, true)
		if err != nil {
			logging.Debug("epub_nav_unreadable", "href", m.Href, "error", err.Error())
			continue
		}
		if toc := navTOC(doc, m.Href); len(toc) > 0 {
			b.toc = toc
			return
		}
	}

	spine, _ := opf.XPathFirst("//*[local-name()='spine']")
	ncxID := ""
	if spine != nil {
		ncxID = spine.Attr("toc")
	}
	for _, m := range b.manifest {
		if (ncxID != "" && m.ID == ncxID) || (ncxID == "" && m.MediaType == "application/x-dtbncx+xml") {
			doc, err := loadXML(b.loader, m.Href, false)
			if err != nil {
				logging.Debug("epub_ncx_unreadable", "href", m.Href, "error", err.Error())
				return
			}
			b.toc = ncxTOC(doc, m.Href)
			return
		}
	}
}

func navTOC(doc *xml.Document, base string) []book.TOCItem {
	nav, _ := doc.XPathFirst("//*[local-name()='nav'][@*[local-name()='type']='toc']")
	if nav == nil {
		nav, _ = doc.XPathFirst("//*[local-name()='nav']")
	}
	if nav == nil {
		return nil
	}
	ol, _ := nav.XPathFirst("*[local-name()='ol']")
	return navList(ol, base)
}

func navList(ol *xml.Node, base string) []book.TOCItem {
	if ol == nil {
		return nil
	}
	var out []book.TOCItem
	for _, li := range ol.Children() {
		if li.Name() != "li" {
			continue
		}
		var item book.TOCItem
		for _, c := range li.Children() {
			switch c.Name() {
			case "a":
				item.Label = c.Text()
				item.Href = resolve(base, c.Attr("href"))
			case "span":
				if item.Label == "" {
					item.Label = c.Text()
				}
			case "ol":
				item.Subitems = navList(c, base)
			}
		}
		out = append(out, item)
	}
	return out
}

func ncxTOC(doc *xml.Document, base string) []book.TOCItem {
	navMap, _ := doc.XPathFirst("//*[local-name()='navMap']")
	if navMap == nil {
		return nil
	}
	return ncxPoints(navMap, base)
}

func ncxPoints(parent *xml.Node, base string) []book.TOCItem {
	var out []book.TOCItem
	for _, p := range parent.Children() {
		if p.Name() != "navPoint" {
			continue
		}
		label, _ := p.XPathFirst("*[local-name()='navLabel']/*[local-name()='text']")
		content, _ := p.XPathFirst("*[local-name()='content']")
		item := book.TOCItem{Label: label.Text(), Subitems: ncxPoints(p, base)}
		if content != nil {
			item.Href = resolve(base, content.Attr("src"))
		}
		out = append(out, item)
	}
	return out
}

// resolve interprets href relative to the document at base and returns a
// package-root-relative path, keeping any fragment.
func resolve(base, href string) string {
	if href == "" {
		return ""
	}
	if u, err := url.Parse(href); err == nil && u.Scheme != "" {
		return href
	}
	p, frag := href, ""
	if i := strings.IndexByte(href, '#'); i >= 0 {
		p, frag = href[:i], href[i:]
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	if p == "" {
		return base + frag
	}
	return path.Join(path.Dir(base), p) + frag
}

// Metadata returns the package metadata.
func (b *Book) Metadata() book.Metadata { return b.metadata }

// TOC returns the navigation tree.
func (b *Book) TOC() []book.TOCItem { return b.toc }

// Sections returns the spine.
func (b *Book) Sections() []book.Section { return b.sections }

// FixedLayout reports a pre-paginated rendition.
func (b *Book) FixedLayout() bool { return b.fixed }

// Manifest returns every declared resource.
func (b *Book) Manifest() []ManifestItem { return b.manifest }

// PackagePath returns the location of the package document.
func (b *Book) PackagePath() string { return b.packagePath }

// SpineIndex returns the spine position of href, or -1.
func (b *Book) SpineIndex(href string) int {
	href = book.StripFragment(href)
	for i, s := range b.sections {
		if s.Href == href {
			return i
		}
	}
	return -1
}

// Load returns a package resource, typed with its manifest media type.
func (b *Book) Load(ctx context.Context, href string) (*loader.Blob, error) {
	mediaType := "application/octet-stream"
	if m, ok := b.byHref[book.StripFragment(href)]; ok && m.MediaType != "" {
		mediaType = m.MediaType
	}
	return book.LoadFrom(ctx, b.loader, href, mediaType)
}
