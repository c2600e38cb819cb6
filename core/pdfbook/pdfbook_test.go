package pdfbook

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/FocuswithJustin/JuniperReader/core/errors"
)

// buildPDF writes a minimal PDF 1.7 file with the given page count, an
// information dictionary and a two-level outline.
func buildPDF(t *testing.T, pages int) []byte {
	t.Helper()

	var objs []string
	kids := ""
	firstPage := 4
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", firstPage+i)
	}
	outlineRoot := firstPage + pages
	objs = append(objs,
		fmt.Sprintf("<< /Type /Catalog /Pages 2 0 R /Outlines %d 0 R >>", outlineRoot),
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages),
		"<< /Title (Field Notes) /Author (A. Walker) >>",
	)
	for i := 0; i < pages; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}
	first, second, child := outlineRoot+1, outlineRoot+2, outlineRoot+3
	objs = append(objs,
		fmt.Sprintf("<< /Type /Outlines /First %d 0 R /Last %d 0 R /Count 2 >>", first, second),
		fmt.Sprintf("<< /Title (Introduction) /Parent %d 0 R /Next %d 0 R >>", outlineRoot, second),
		fmt.Sprintf("<< /Title (Methods) /Parent %d 0 R /Prev %d 0 R /First %d 0 R /Last %d 0 R /Count 1 >>", outlineRoot, first, child, child),
		fmt.Sprintf("<< /Title (Sampling) /Parent %d 0 R >>", second),
	)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 3 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestOpen(t *testing.T) {
	data := buildPDF(t, 3)
	b, err := Open(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if !b.FixedLayout() {
		t.Error("FixedLayout() = false")
	}
	md := b.Metadata()
	if md.Title != "Field Notes" {
		t.Errorf("Title = %q", md.Title)
	}
	if len(md.Authors) != 1 || md.Authors[0] != "A. Walker" {
		t.Errorf("Authors = %q", md.Authors)
	}

	secs := b.Sections()
	if len(secs) != 3 {
		t.Fatalf("Sections() = %d, want 3", len(secs))
	}
	for i, s := range secs {
		if want := PageHref(i); s.Href != want {
			t.Errorf("section %d href = %q, want %q", i, s.Href, want)
		}
	}

	toc := b.TOC()
	if len(toc) != 2 || toc[0].Label != "Introduction" || toc[1].Label != "Methods" {
		t.Fatalf("TOC() = %+v", toc)
	}
	if len(toc[1].Subitems) != 1 || toc[1].Subitems[0].Label != "Sampling" {
		t.Errorf("Methods subitems = %+v", toc[1].Subitems)
	}
	if toc[0].Href != "document.pdf#page=1" {
		t.Errorf("unresolved destination href = %q", toc[0].Href)
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	data := buildPDF(t, 2)
	b, err := Open(ctx, bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	blob, err := b.Load(ctx, PageHref(1))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if blob.MediaType != MediaType || !bytes.Equal(blob.Data, data) {
		t.Errorf("Load() = %s, %d bytes", blob.MediaType, len(blob.Data))
	}
	if _, err := b.Load(ctx, "other.pdf"); !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("Load(other) error = %v, want ErrFileNotFound", err)
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	_, err := Open(context.Background(), bytes.NewReader([]byte("%PDF-1.7\nnot really")))
	if !errors.Is(err, errors.ErrUnsupportedFormat) {
		t.Errorf("Open() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestPageHref(t *testing.T) {
	if got := PageHref(0); got != "document.pdf#page=1" {
		t.Errorf("PageHref(0) = %q", got)
	}
}
