// Package epub reads EPUB packages through a loader and builds minimal EPUB 3
// packages for fixtures and samples.
package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/JuniperReader/core/book"
	"github.com/FocuswithJustin/JuniperReader/core/encoding"
)

// MediaType is the EPUB mimetype entry content.
const MediaType = "application/epub+zip"

// Builder assembles an EPUB 3 package with an NCX fallback.
type Builder struct {
	Metadata    book.Metadata
	Chapters    []Chapter
	FixedLayout bool

	cover     []byte
	coverMime string
	css       string
	modified  time.Time
}

// Chapter is one spine document.
type Chapter struct {
	Title   string
	Content string // XHTML body markup
}

// packageFile is one entry of the built package.
type packageFile struct {
	name  string
	data  []byte
	store bool
}

// New creates a Builder with a random urn:uuid identifier.
func New() *Builder {
	return &Builder{
		Metadata: book.Metadata{
			Language:   "en",
			Identifier: "urn:uuid:" + uuid.NewString(),
		},
		modified: time.Now().UTC(),
	}
}

// SetTitle sets the book title.
func (b *Builder) SetTitle(title string) *Builder {
	b.Metadata.Title = title
	return b
}

// AddAuthor appends a creator.
func (b *Builder) AddAuthor(author string) *Builder {
	b.Metadata.Authors = append(b.Metadata.Authors, author)
	return b
}

// SetLanguage sets the book language.
func (b *Builder) SetLanguage(lang string) *Builder {
	b.Metadata.Language = lang
	return b
}

// SetIdentifier sets the unique identifier.
func (b *Builder) SetIdentifier(id string) *Builder {
	b.Metadata.Identifier = id
	return b
}

// SetCover sets the cover image.
func (b *Builder) SetCover(data []byte, mimeType string) *Builder {
	b.cover = data
	b.coverMime = mimeType
	return b
}

// SetCSS replaces the default stylesheet.
func (b *Builder) SetCSS(css string) *Builder {
	b.css = css
	return b
}

// AddChapter appends a chapter.
func (b *Builder) AddChapter(title, content string) *Builder {
	b.Chapters = append(b.Chapters, Chapter{Title: title, Content: content})
	return b
}

// Build returns the zipped package.
func (b *Builder) Build() ([]byte, error) {
	files, err := b.files()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		method := zip.Deflate
		if f.store {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.name, Method: method, Modified: b.modified})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(f.data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteDir writes the package unpacked under dir.
func (b *Builder) WriteDir(dir string) error {
	files, err := b.files()
	if err != nil {
		return err
	}
	for _, f := range files {
		path := filepath.Join(dir, filepath.FromSlash(f.name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		if err := os.WriteFile(path, f.data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}
	return nil
}

func (b *Builder) files() ([]packageFile, error) {
	if len(b.Chapters) == 0 {
		return nil, fmt.Errorf("EPUB must have at least one chapter")
	}

	files := []packageFile{
		{name: "mimetype", data: []byte(MediaType), store: true},
		{name: "META-INF/container.xml", data: []byte(containerXML)},
		{name: "OEBPS/content.opf", data: []byte(b.packageDocument())},
		{name: "OEBPS/toc.ncx", data: []byte(b.ncx())},
		{name: "OEBPS/nav.xhtml", data: []byte(b.nav())},
		{name: "OEBPS/style.css", data: []byte(b.stylesheet())},
	}
	if len(b.cover) > 0 {
		files = append(files, packageFile{name: "OEBPS/" + b.coverHref(), data: b.cover})
	}
	for i, ch := range b.Chapters {
		files = append(files, packageFile{name: "OEBPS/" + chapterHref(i), data: []byte(b.chapterDocument(ch))})
	}
	return files, nil
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

func chapterHref(i int) string {
	return fmt.Sprintf("text/chapter%d.xhtml", i+1)
}

func (b *Builder) coverHref() string {
	if strings.Contains(b.coverMime, "png") {
		return "images/cover.png"
	}
	return "images/cover.jpg"
}

// packageDocument writes metadata, manifest and spine in that order, so the
// spine is the third child of <package> and chapter i sits at spine
// position 2(i+1).
func (b *Builder) packageDocument() string {
	var meta, manifest, spine strings.Builder

	fmt.Fprintf(&meta, "    <dc:identifier id=\"BookId\">%s</dc:identifier>\n", encoding.EscapeXML(b.Metadata.Identifier))
	fmt.Fprintf(&meta, "    <dc:title>%s</dc:title>\n", encoding.EscapeXML(b.Metadata.Title))
	for _, a := range b.Metadata.Authors {
		fmt.Fprintf(&meta, "    <dc:creator>%s</dc:creator>\n", encoding.EscapeXML(a))
	}
	fmt.Fprintf(&meta, "    <dc:language>%s</dc:language>\n", encoding.EscapeXML(b.Metadata.Language))
	if b.Metadata.Publisher != "" {
		fmt.Fprintf(&meta, "    <dc:publisher>%s</dc:publisher>\n", encoding.EscapeXML(b.Metadata.Publisher))
	}
	if b.Metadata.Description != "" {
		fmt.Fprintf(&meta, "    <dc:description>%s</dc:description>\n", encoding.EscapeXML(b.Metadata.Description))
	}
	fmt.Fprintf(&meta, "    <meta property=\"dcterms:modified\">%s</meta>\n", b.modified.Format("2006-01-02T15:04:05Z"))
	if b.FixedLayout {
		meta.WriteString("    <meta property=\"rendition:layout\">pre-paginated</meta>\n")
	}

	manifest.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	manifest.WriteString("    <item id=\"ncx\" href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n")
	manifest.WriteString("    <item id=\"style\" href=\"style.css\" media-type=\"text/css\"/>\n")
	if len(b.cover) > 0 {
		fmt.Fprintf(&manifest, "    <item id=\"cover-image\" href=\"%s\" media-type=\"%s\" properties=\"cover-image\"/>\n",
			b.coverHref(), encoding.EscapeXMLAttr(b.coverMime))
	}
	for i := range b.Chapters {
		fmt.Fprintf(&manifest, "    <item id=\"chapter%d\" href=\"%s\" media-type=\"application/xhtml+xml\"/>\n", i+1, chapterHref(i))
		fmt.Fprintf(&spine, "    <itemref idref=\"chapter%d\"/>\n", i+1)
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="BookId">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
%s  </metadata>
  <manifest>
%s  </manifest>
  <spine toc="ncx">
%s  </spine>
</package>`, meta.String(), manifest.String(), spine.String())
}

func (b *Builder) ncx() string {
	var points strings.Builder
	for i, ch := range b.Chapters {
		fmt.Fprintf(&points, `    <navPoint id="navpoint%d" playOrder="%d">
      <navLabel><text>%s</text></navLabel>
      <content src="%s"/>
    </navPoint>
`, i+1, i+1, encoding.EscapeXML(ch.Title), chapterHref(i))
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head>
    <meta name="dtb:uid" content="%s"/>
    <meta name="dtb:depth" content="1"/>
  </head>
  <docTitle><text>%s</text></docTitle>
  <navMap>
%s  </navMap>
</ncx>`, encoding.EscapeXMLAttr(b.Metadata.Identifier), encoding.EscapeXML(b.Metadata.Title), points.String())
}

func (b *Builder) nav() string {
	var items strings.Builder
	for i, ch := range b.Chapters {
		fmt.Fprintf(&items, "      <li><a href=\"%s\">%s</a></li>\n", chapterHref(i), encoding.EscapeXML(ch.Title))
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
  <title>Contents</title>
</head>
<body>
  <nav epub:type="toc" id="toc">
    <ol>
%s    </ol>
  </nav>
</body>
</html>`, items.String())
}

func (b *Builder) stylesheet() string {
	if b.css != "" {
		return b.css
	}
	return `body {
  font-family: serif;
  margin: 1em;
  line-height: 1.6;
}
p {
  text-indent: 1.5em;
  margin: 0.5em 0;
}
`
}

func (b *Builder) chapterDocument(ch Chapter) string {
	lang := encoding.EscapeXMLAttr(b.Metadata.Language)
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xml:lang="%s" lang="%s">
<head>
  <title>%s</title>
  <link rel="stylesheet" type="text/css" href="../style.css"/>
</head>
<body>
  <h1>%s</h1>
  %s
</body>
</html>`, lang, lang, encoding.EscapeXML(ch.Title), encoding.EscapeXML(ch.Title), ch.Content)
}
