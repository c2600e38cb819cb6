package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/FocuswithJustin/JuniperReader/core/annotation"
	"github.com/FocuswithJustin/JuniperReader/core/errors"
)

const book = "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "notes.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDriverInfo(t *testing.T) {
	info := GetInfo()
	if info.DriverName == "" || info.Package == "" {
		t.Errorf("GetInfo() = %+v, want driver name and package", info)
	}
	if info.IsCGO != (info.DriverType == "cgo") {
		t.Errorf("IsCGO = %v with DriverType %q", info.IsCGO, info.DriverType)
	}
}

func TestSaveAndList(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	first, err := s.Save(ctx, book, annotation.Annotation{Value: "epubcfi(/6/8!/4/4,/1:0,/1:20)", Color: "blue", Note: "this is"})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if first.ID == 0 {
		t.Error("Save() did not assign an ID")
	}
	if first.Kind != annotation.KindHighlight {
		t.Errorf("Kind = %q, want default highlight", first.Kind)
	}
	if _, err := s.Save(ctx, book, annotation.Annotation{Value: "epubcfi(/6/6!/4/2,/1:0,/1:5)", Kind: annotation.KindUnderline}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := s.Save(ctx, "other", annotation.Annotation{Value: "epubcfi(/6/4!/4/2,/1:0,/1:5)"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	again, err := s.Save(ctx, book, annotation.Annotation{Value: first.Value, Kind: annotation.KindUnderline, Color: "red"})
	if err != nil {
		t.Fatalf("Save() update error = %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("updated ID = %d, want %d", again.ID, first.ID)
	}

	got, err := s.List(ctx, book)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List() = %d annotations, want 2", len(got))
	}
	if got[0].Value != first.Value || got[0].Color != "red" || got[0].Kind != annotation.KindUnderline || got[0].Note != "" {
		t.Errorf("List()[0] = %+v, want updated first annotation", got[0])
	}
	if got[1].Kind != annotation.KindUnderline {
		t.Errorf("List()[1].Kind = %q, want underline", got[1].Kind)
	}
}

func TestSaveRejectsMalformedLocation(t *testing.T) {
	s := openTemp(t)
	_, err := s.Save(context.Background(), book, annotation.Annotation{Value: "not a location"})
	if !errors.Is(err, errors.ErrMalformedLocation) {
		t.Errorf("Save() error = %v, want ErrMalformedLocation", err)
	}
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	n, err := s.Import(ctx, book, []annotation.Annotation{
		{Value: "epubcfi(/6/8!/4/4,/1:0,/1:20)", Kind: annotation.KindHighlight},
		{Value: "garbage"},
		{Value: "epubcfi(/6/6!/4/6,/1:0,/1:13)", Kind: annotation.KindUnderline, Color: "yellow"},
	})
	if n != 2 {
		t.Errorf("Import() stored %d, want 2", n)
	}
	if !errors.Is(err, errors.ErrMalformedLocation) {
		t.Errorf("Import() error = %v, want ErrMalformedLocation for the rejected entry", err)
	}
	got, err := s.List(ctx, book)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Color != "yellow" {
		t.Errorf("List() after import = %+v", got)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	value := "epubcfi(/6/8!/4/4,/1:0,/1:20)"
	if _, err := s.Save(ctx, book, annotation.Annotation{Value: value}); err != nil {
		t.Fatal(err)
	}

	ok, err := s.Delete(ctx, book, value)
	if err != nil || !ok {
		t.Errorf("Delete() = %v, %v, want true, nil", ok, err)
	}
	ok, err = s.Delete(ctx, book, value)
	if err != nil || ok {
		t.Errorf("second Delete() = %v, %v, want false, nil", ok, err)
	}
	got, _ := s.List(ctx, book)
	if len(got) != 0 {
		t.Errorf("List() after delete = %+v, want empty", got)
	}
}

func TestLastLocation(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	if _, ok, err := s.LastLocation(ctx, book); err != nil || ok {
		t.Errorf("LastLocation() on empty store = %v, %v", ok, err)
	}
	for _, cfi := range []string{"epubcfi(/6/4!/4/2/1:0)", "epubcfi(/6/10!/4/2/1:7)"} {
		if err := s.SetLastLocation(ctx, book, cfi); err != nil {
			t.Fatalf("SetLastLocation(%q) error = %v", cfi, err)
		}
	}
	got, ok, err := s.LastLocation(ctx, book)
	if err != nil || !ok || got != "epubcfi(/6/10!/4/2/1:7)" {
		t.Errorf("LastLocation() = %q, %v, %v, want the latest position", got, ok, err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "notes.db")
	s, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(ctx, book, annotation.Annotation{Value: "epubcfi(/6/4!/4/2,/1:0,/1:5)"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	got, err := s.List(ctx, book)
	if err != nil || len(got) != 1 {
		t.Errorf("List() after reopen = %+v, %v", got, err)
	}
}
