// Package mobi reads Mobipocket and PalmDOC books. The text stream is split
// on page breaks into HTML sections; embedded images and fonts become
// resources.
package mobi

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/JuniperReader/core/book"
	"github.com/FocuswithJustin/JuniperReader/core/encoding"
	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/loader"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
)

const htmlType = "text/html"

// EXTH record types read into the metadata.
const (
	exthAuthor      = 100
	exthPublisher   = 101
	exthDescription = 103
	exthISBN        = 104
	exthCoverOffset = 201
	exthTitle       = 503
	exthLanguage    = 524
)

// Options configures the codec.
type Options struct {
	// Unzlib inflates zlib streams such as compressed FONT records. Fonts are
	// skipped when it is nil.
	Unzlib func([]byte) ([]byte, error)
}

// Codec opens MOBI books.
type Codec struct {
	opts Options
}

// New returns a codec with the given options.
func New(opts Options) *Codec {
	return &Codec{opts: opts}
}

// Book is an opened MOBI or PalmDOC book. It implements book.Book.
type Book struct {
	metadata  book.Metadata
	sections  []book.Section
	toc       []book.TOCItem
	resources book.Resources
	cover     string
}

var (
	pageBreak = regexp.MustCompile(`(?i)<mbp:pagebreak[^>]*>`)
	filepos   = regexp.MustCompile(`(?i)filepos=["']?0*(\d+)["']?`)
	recindex  = regexp.MustCompile(`(?i)recindex=["']?0*(\d+)["']?`)
	heading   = regexp.MustCompile(`(?is)<h[1-3][^>]*>(.*?)</h[1-3]>`)
	tags      = regexp.MustCompile(`<[^>]*>`)
)

// Open parses a Palm database holding a MOBI or PalmDOC book.
func (c *Codec) Open(ctx context.Context, data []byte) (*Book, error) {
	if !Probe(bytes.NewReader(data), int64(len(data))) {
		return nil, errors.NewUnsupported("MOBI", "not a MOBI or PalmDOC database")
	}
	db, err := parsePDB(data)
	if err != nil {
		return nil, &errors.UnsupportedError{Name: "MOBI", Reason: "malformed database", Err: err}
	}
	h, err := parseHeader(db.records[0])
	if err != nil {
		return nil, &errors.UnsupportedError{Name: "MOBI", Reason: "malformed header", Err: err}
	}
	switch {
	case h.encryption != 0:
		return nil, errors.NewUnsupported("MOBI", "encrypted book")
	case h.compression == compressionHuffCDC:
		return nil, errors.NewUnsupported("MOBI", "HUFF/CDIC compression")
	case h.compression != compressionNone && h.compression != compressionPalmDOC:
		return nil, errors.NewUnsupported("MOBI", fmt.Sprintf("unknown compression %d", h.compression))
	}

	raw, err := c.text(ctx, db, h)
	if err != nil {
		return nil, err
	}

	b := &Book{resources: make(book.Resources)}
	b.readMetadata(db, h)
	images := c.readResources(db, h, b.resources)
	if h.exth != nil {
		if v, ok := exthUint(h.exth[exthCoverOffset]); ok {
			if href, found := images[int(v)+1]; found {
				b.cover = href
			}
		}
	}

	if err := b.split(raw, h.encoding, images); err != nil {
		return nil, err
	}
	return b, nil
}

// text returns the concatenated, decompressed text records.
func (c *Codec) text(ctx context.Context, db *pdb, h *header) ([]byte, error) {
	var buf bytes.Buffer
	last := min(h.textRecords, len(db.records)-1)
	for i := 1; i <= last; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := db.records[i]
		if h.mobi {
			rec = trimTrailing(rec, h.trailingBits)
		}
		if h.compression == compressionPalmDOC {
			out, err := decompressPalmDOC(rec)
			if err != nil {
				return nil, errors.NewDecode(fmt.Sprintf("record %d", i), err)
			}
			rec = out
		}
		buf.Write(rec)
	}
	text := buf.Bytes()
	if h.textLength > 0 && int(h.textLength) < len(text) {
		text = text[:h.textLength]
	}
	return text, nil
}

func (b *Book) readMetadata(db *pdb, h *header) {
	b.metadata.Title = db.name
	if h.title != "" {
		b.metadata.Title = h.decode([]byte(h.title))
	}
	for kind, values := range h.exth {
		for _, v := range values {
			s := strings.TrimSpace(h.decode(v))
			if s == "" {
				continue
			}
			switch kind {
			case exthAuthor:
				b.metadata.Authors = append(b.metadata.Authors, s)
			case exthPublisher:
				b.metadata.Publisher = s
			case exthDescription:
				b.metadata.Description = s
			case exthISBN:
				b.metadata.Identifier = s
			case exthTitle:
				b.metadata.Title = s
			case exthLanguage:
				b.metadata.Language = s
			}
		}
	}
}

func (h *header) decode(data []byte) string {
	s, err := encoding.DecodeCodePage(data, h.encoding)
	if err != nil {
		return string(data)
	}
	return s
}

func exthUint(values [][]byte) (uint32, bool) {
	if len(values) == 0 || len(values[0]) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(values[0]), true
}

// readResources collects image and font records after the first image
// index. The returned map is keyed by the one-based recindex used in the
// markup.
func (c *Codec) readResources(db *pdb, h *header, res book.Resources) map[int]string {
	images := make(map[int]string)
	if h.firstImage <= 0 || h.firstImage >= len(db.records) {
		return images
	}
	for i := h.firstImage; i < len(db.records); i++ {
		rec := db.records[i]
		index := i - h.firstImage + 1
		if mt := imageType(rec); mt != "" {
			href := fmt.Sprintf("images/%05d", index)
			res[href] = &loader.Blob{Name: href, MediaType: mt, Data: rec}
			images[index] = href
			continue
		}
		if len(rec) >= 4 && string(rec[:4]) == "FONT" {
			font, err := c.font(rec)
			if err != nil {
				logging.Debug("mobi font skipped", "record", i, "error", err)
				continue
			}
			href := fmt.Sprintf("fonts/%05d", index)
			res[href] = &loader.Blob{Name: href, MediaType: fontType(font), Data: font}
		}
	}
	return images
}

func imageType(rec []byte) string {
	switch {
	case bytes.HasPrefix(rec, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(rec, []byte("\x89PNG")):
		return "image/png"
	case bytes.HasPrefix(rec, []byte("GIF8")):
		return "image/gif"
	case bytes.HasPrefix(rec, []byte("BM")) && len(rec) > 14:
		return "image/bmp"
	default:
		return ""
	}
}

func fontType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("OTTO")):
		return "font/otf"
	case bytes.HasPrefix(data, []byte("wOFF")):
		return "font/woff"
	default:
		return "font/ttf"
	}
}

// font unpacks a FONT record: an optional XOR obfuscation of the leading
// bytes followed by an optional zlib stream.
func (c *Codec) font(rec []byte) ([]byte, error) {
	if len(rec) < 24 {
		return nil, fmt.Errorf("font header truncated")
	}
	flags := binary.BigEndian.Uint32(rec[8:])
	start := int(binary.BigEndian.Uint32(rec[12:]))
	keyLen := int(binary.BigEndian.Uint32(rec[16:]))
	keyStart := int(binary.BigEndian.Uint32(rec[20:]))
	if start > len(rec) {
		return nil, fmt.Errorf("font data offset out of range")
	}
	data := append([]byte(nil), rec[start:]...)

	if flags&2 != 0 && keyLen > 0 && keyStart+keyLen <= len(rec) {
		key := rec[keyStart : keyStart+keyLen]
		for i := 0; i < min(1040, len(data)); i++ {
			data[i] ^= key[i%keyLen]
		}
	}
	if flags&1 != 0 {
		if c.opts.Unzlib == nil {
			return nil, fmt.Errorf("compressed font and no zlib decompressor")
		}
		out, err := c.opts.Unzlib(data)
		if err != nil {
			return nil, err
		}
		data = out
	}
	return data, nil
}

// split cuts the raw text on page breaks, rewrites filepos links and image
// references, and decodes each part.
func (b *Book) split(raw []byte, codePage int, images map[int]string) error {
	bounds := pageBreak.FindAllIndex(raw, -1)
	type chunk struct{ start, end int }
	var chunks []chunk
	prev := 0
	for _, m := range bounds {
		chunks = append(chunks, chunk{prev, m[0]})
		prev = m[1]
	}
	chunks = append(chunks, chunk{prev, len(raw)})

	skip := make([]bool, len(chunks))
	for i, ch := range chunks {
		skip[i] = len(chunks) > 1 && len(bytes.TrimSpace(raw[ch.start:ch.end])) == 0
	}
	href := func(i int) string { return fmt.Sprintf("part%04d.html", i) }
	locate := func(pos int) string {
		found := 0
		for i, ch := range chunks {
			if pos >= ch.start {
				found = i
			}
		}
		for found < len(chunks)-1 && skip[found] {
			found++
		}
		return href(found)
	}

	for i, ch := range chunks {
		if skip[i] {
			continue
		}
		part := raw[ch.start:ch.end]
		part = filepos.ReplaceAllFunc(part, func(m []byte) []byte {
			pos, err := strconv.Atoi(string(filepos.FindSubmatch(m)[1]))
			if err != nil {
				return m
			}
			return []byte(fmt.Sprintf(`href="%s#filepos%d"`, locate(pos), pos))
		})
		part = recindex.ReplaceAllFunc(part, func(m []byte) []byte {
			n, _ := strconv.Atoi(string(recindex.FindSubmatch(m)[1]))
			if src, ok := images[n]; ok {
				return []byte(`src="` + src + `"`)
			}
			return m
		})

		text, err := encoding.DecodeCodePage(part, codePage)
		if err != nil {
			return errors.NewDecode(href(i), err)
		}
		doc := "<html><head><meta charset=\"utf-8\"/></head><body>" + text + "</body></html>"
		name := href(i)
		b.resources[name] = &loader.Blob{Name: name, MediaType: htmlType, Data: []byte(doc)}
		b.sections = append(b.sections, book.Section{
			ID:        fmt.Sprintf("part%04d", i),
			Href:      name,
			MediaType: htmlType,
			Size:      int64(len(doc)),
			Linear:    true,
		})
		if m := heading.FindStringSubmatch(text); m != nil {
			label := strings.Join(strings.Fields(tags.ReplaceAllString(m[1], "")), " ")
			if label != "" {
				b.toc = append(b.toc, book.TOCItem{Label: label, Href: name})
			}
		}
	}
	return nil
}

// Metadata returns the header and EXTH metadata.
func (b *Book) Metadata() book.Metadata { return b.metadata }

// TOC returns one entry per section that opens with a heading.
func (b *Book) TOC() []book.TOCItem { return b.toc }

// Sections returns the page-break delimited parts.
func (b *Book) Sections() []book.Section { return b.sections }

// FixedLayout is false.
func (b *Book) FixedLayout() bool { return false }

// Cover returns the href of the cover image, if the book names one.
func (b *Book) Cover() string { return b.cover }

// Load returns a section or an embedded resource.
func (b *Book) Load(ctx context.Context, href string) (*loader.Blob, error) {
	return b.resources.Load(ctx, href)
}
