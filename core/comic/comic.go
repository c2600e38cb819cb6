// Package comic exposes the images of a comic archive as fixed-layout pages.
package comic

import (
	"context"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/JuniperReader/core/book"
	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/loader"
	"github.com/FocuswithJustin/JuniperReader/core/xml"
)

var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".avif": "image/avif",
	".jxl":  "image/jxl",
	".svg":  "image/svg+xml",
}

// Book is an opened comic archive. It implements book.Book.
type Book struct {
	loader   loader.Loader
	metadata book.Metadata
	pages    []book.Section
	toc      []book.TOCItem
	types    map[string]string
}

// Open lists the image entries of l as pages in natural name order.
// The loader must enumerate its entries. name is the archive file name and
// supplies the title when there is no ComicInfo.xml.
func Open(ctx context.Context, l loader.Loader, name string) (*Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lister, ok := l.(loader.Lister)
	if !ok {
		return nil, errors.NewUnsupported(name, "comic loader cannot list entries")
	}

	b := &Book{loader: l, types: make(map[string]string)}
	var names []string
	for _, e := range lister.Entries() {
		if skip(e.Name) {
			continue
		}
		mt, ok := imageTypes[strings.ToLower(path.Ext(e.Name))]
		if !ok {
			continue
		}
		names = append(names, e.Name)
		b.types[e.Name] = mt
	}
	if len(names) == 0 {
		return nil, errors.NewUnsupported(name, "no images in comic archive")
	}
	sort.SliceStable(names, func(i, j int) bool { return naturalLess(names[i], names[j]) })

	lastDir := "\x00"
	for i, n := range names {
		b.pages = append(b.pages, book.Section{
			ID:        pageID(i),
			Href:      n,
			MediaType: b.types[n],
			Size:      l.Size(n),
			Linear:    true,
		})
		if dir := path.Dir(n); dir != lastDir {
			lastDir = dir
			label := path.Base(dir)
			if dir == "." {
				label = titleFromName(name)
			}
			b.toc = append(b.toc, book.TOCItem{Label: label, Href: n})
		}
	}
	if len(b.toc) == 1 {
		b.toc = nil
	}

	b.metadata = book.Metadata{Title: titleFromName(name)}
	b.readComicInfo()
	return b, nil
}

func skip(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") {
		return true
	}
	return strings.HasPrefix(path.Base(name), ".")
}

func pageID(i int) string {
	return "page-" + strconv.Itoa(i+1)
}

func titleFromName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// readComicInfo applies the optional ComicRack metadata file.
func (b *Book) readComicInfo() {
	text, ok, err := b.loader.LoadText("ComicInfo.xml")
	if err != nil || !ok {
		return
	}
	doc, err := xml.ParseString(text)
	if err != nil {
		return
	}
	field := func(local string) string {
		n, _ := doc.XPathFirst("/*[local-name()='ComicInfo']/*[local-name()='" + local + "']")
		return n.Text()
	}
	if title := field("Title"); title != "" {
		b.metadata.Title = title
		if series := field("Series"); series != "" {
			b.metadata.Title = series + ": " + title
		}
	} else if series := field("Series"); series != "" {
		b.metadata.Title = series
	}
	for _, role := range []string{"Writer", "Penciller", "Artist"} {
		for _, who := range strings.Split(field(role), ",") {
			if who = strings.TrimSpace(who); who != "" {
				b.metadata.Authors = append(b.metadata.Authors, who)
			}
		}
	}
	b.metadata.Language = field("LanguageISO")
	b.metadata.Publisher = field("Publisher")
	b.metadata.Description = field("Summary")
}

// naturalLess orders names so that embedded numbers compare by value:
// "page2.jpg" sorts before "page10.jpg".
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		da, db := isDigit(a[0]), isDigit(b[0])
		switch {
		case da && db:
			na, ra := leadingDigits(a)
			nb, rb := leadingDigits(b)
			ta, tb := strings.TrimLeft(na, "0"), strings.TrimLeft(nb, "0")
			if len(ta) != len(tb) {
				return len(ta) < len(tb)
			}
			if ta != tb {
				return ta < tb
			}
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			a, b = ra, rb
		case da != db:
			return da
		default:
			ca, cb := lower(a[0]), lower(b[0])
			if ca != cb {
				return ca < cb
			}
			a, b = a[1:], b[1:]
		}
	}
	return len(a) < len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

func leadingDigits(s string) (digits, rest string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// Metadata returns the comic metadata.
func (b *Book) Metadata() book.Metadata { return b.metadata }

// TOC returns one entry per folder when pages are grouped into folders.
func (b *Book) TOC() []book.TOCItem { return b.toc }

// Sections returns the pages.
func (b *Book) Sections() []book.Section { return b.pages }

// FixedLayout is always true for comics.
func (b *Book) FixedLayout() bool { return true }

// Load returns a page image.
func (b *Book) Load(ctx context.Context, href string) (*loader.Blob, error) {
	mt := b.types[book.StripFragment(href)]
	if mt == "" {
		mt = "application/octet-stream"
	}
	return book.LoadFrom(ctx, b.loader, href, mt)
}
