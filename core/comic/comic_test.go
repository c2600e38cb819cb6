package comic

import (
	"archive/zip"
	"bytes"
	"context"
	"sort"
	"testing"

	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/loader"
)

func zipLoader(t *testing.T, names ...string) *loader.Zip {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, n := range names {
		w, err := zw.Create(n)
		if err != nil {
			t.Fatal(err)
		}
		body := []byte("img:" + n)
		if n == "ComicInfo.xml" {
			body = []byte(`<?xml version="1.0"?><ComicInfo><Series>Nemo</Series><Title>Slumberland</Title><Writer>Winsor McCay</Writer><LanguageISO>en</LanguageISO></ComicInfo>`)
		}
		if _, err := w.Write(body); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	l, err := loader.NewZip(context.Background(), bytes.NewReader(buf.Bytes()), int64(buf.Len()), "test.cbz")
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestOpenOrdersPagesNaturally(t *testing.T) {
	l := zipLoader(t, "page10.jpg", "page2.PNG", "notes.txt", "page1.jpg", ".hidden.jpg", "__MACOSX/page1.jpg")
	b, err := Open(context.Background(), l, "Little Nemo.cbz")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var hrefs []string
	for _, p := range b.Sections() {
		hrefs = append(hrefs, p.Href)
	}
	want := []string{"page1.jpg", "page2.PNG", "page10.jpg"}
	if len(hrefs) != len(want) {
		t.Fatalf("pages = %v, want %v", hrefs, want)
	}
	for i := range want {
		if hrefs[i] != want[i] {
			t.Errorf("page[%d] = %s, want %s", i, hrefs[i], want[i])
		}
	}
	if b.Sections()[1].MediaType != "image/png" {
		t.Errorf("media type = %s, want image/png", b.Sections()[1].MediaType)
	}
	if !b.FixedLayout() {
		t.Error("comic is not fixed layout")
	}
	if got := b.Metadata().Title; got != "Little Nemo" {
		t.Errorf("Title = %q, want file name without extension", got)
	}
	if b.TOC() != nil {
		t.Errorf("TOC() = %+v, want nil for a flat archive", b.TOC())
	}

	blob, err := b.Load(context.Background(), "page10.jpg")
	if err != nil || string(blob.Data) != "img:page10.jpg" || blob.MediaType != "image/jpeg" {
		t.Errorf("Load() = (%+v, %v)", blob, err)
	}
}

func TestOpenFoldersAndComicInfo(t *testing.T) {
	l := zipLoader(t, "ComicInfo.xml", "ch2/01.jpg", "ch1/02.jpg", "ch1/01.jpg")
	b, err := Open(context.Background(), l, "nemo.cbz")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	toc := b.TOC()
	if len(toc) != 2 || toc[0].Label != "ch1" || toc[0].Href != "ch1/01.jpg" || toc[1].Label != "ch2" {
		t.Errorf("TOC() = %+v", toc)
	}
	md := b.Metadata()
	if md.Title != "Nemo: Slumberland" || len(md.Authors) != 1 || md.Language != "en" {
		t.Errorf("Metadata() = %+v", md)
	}
}

func TestOpenWithoutImages(t *testing.T) {
	_, err := Open(context.Background(), zipLoader(t, "readme.txt"), "empty.cbz")
	if !errors.Is(err, errors.ErrUnsupportedFormat) {
		t.Errorf("Open() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestNaturalLess(t *testing.T) {
	names := []string{"img10.png", "img2.png", "IMG1.png", "img02.png", "cover.png", "img1a.png", "10.png", "9.png"}
	sort.Slice(names, func(i, j int) bool { return naturalLess(names[i], names[j]) })
	want := []string{"9.png", "10.png", "cover.png", "IMG1.png", "img1a.png", "img2.png", "img02.png", "img10.png"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("sorted = %v, want %v", names, want)
			break
		}
	}
}
