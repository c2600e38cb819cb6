package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/FocuswithJustin/JuniperReader/core/book"
	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/loader"
)

func TestLRUBasicOperations(t *testing.T) {
	c := NewLRU[string, int](Config{MaxSize: 3}, nil)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	for key, want := range map[string]int{"a": 1, "b": 2, "c": 3} {
		if v, ok := c.Get(key); !ok || v != want {
			t.Errorf("Get(%s) = %d, %v; want %d, true", key, v, ok, want)
		}
	}
	if _, ok := c.Get("d"); ok {
		t.Error("Get(d) should return false")
	}

	c.Remove("b")
	if _, ok := c.Get("b"); ok {
		t.Error("Get(b) after Remove should return false")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string, int](Config{MaxSize: 2}, nil)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a")
	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a was used recently and should remain")
	}
	if s := c.Stats(); s.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", s.Evictions)
	}
}

func TestLRUByteLimit(t *testing.T) {
	sizeOf := func(s string) int64 { return int64(len(s)) }
	c := NewLRU[int, string](Config{MaxBytes: 10}, sizeOf)

	c.Put(1, "aaaa")
	c.Put(2, "bbbb")
	c.Put(3, "cccc")
	if _, ok := c.Get(1); ok {
		t.Error("entry 1 should have been evicted to fit 12 bytes into 10")
	}
	if s := c.Stats(); s.TotalBytes != 8 || s.Size != 2 {
		t.Errorf("Stats() = %+v, want 8 bytes in 2 entries", s)
	}

	if c.Put(4, "this value is too large") {
		t.Error("Put() accepted a value larger than MaxBytes")
	}

	c.Put(2, "b")
	if s := c.Stats(); s.TotalBytes != 5 {
		t.Errorf("TotalBytes after replace = %d, want 5", s.TotalBytes)
	}
}

func TestLRUStats(t *testing.T) {
	c := NewLRU[string, int](Config{MaxSize: 10}, nil)
	c.Put("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("x")
	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 || s.Size != 1 || s.MaxSize != 10 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestLRUConcurrentAccess(t *testing.T) {
	c := NewLRU[int, int](Config{MaxSize: 50}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Put(n*1000+j, j)
				c.Get(n*1000 + j)
			}
		}(i)
	}
	wg.Wait()
	if c.Len() > 50 {
		t.Errorf("Len() = %d, exceeds MaxSize 50", c.Len())
	}
}

type countingBook struct {
	loads map[string]int
}

func (b *countingBook) Metadata() book.Metadata { return book.Metadata{} }
func (b *countingBook) TOC() []book.TOCItem     { return nil }
func (b *countingBook) Sections() []book.Section {
	return nil
}
func (b *countingBook) FixedLayout() bool { return false }

func (b *countingBook) Load(_ context.Context, href string) (*loader.Blob, error) {
	b.loads[href]++
	if href == "missing.xhtml" {
		return nil, errors.NewNotFound("resource", href)
	}
	return &loader.Blob{Name: href, MediaType: "application/xhtml+xml", Data: []byte(fmt.Sprintf("<p>%s</p>", href))}, nil
}

func TestResourcesLoadThrough(t *testing.T) {
	ctx := context.Background()
	b := &countingBook{loads: map[string]int{}}
	r := NewResources(DefaultConfig())

	for _, href := range []string{"ch1.xhtml", "ch1.xhtml#p3", "ch2.xhtml"} {
		blob, err := r.Load(ctx, b, "fp1", href)
		if err != nil {
			t.Fatalf("Load(%q) error = %v", href, err)
		}
		if blob.Name != book.StripFragment(href) {
			t.Errorf("Load(%q).Name = %q", href, blob.Name)
		}
	}
	if b.loads["ch1.xhtml"] != 1 {
		t.Errorf("ch1.xhtml loaded %d times, want 1", b.loads["ch1.xhtml"])
	}

	if _, err := r.Load(ctx, b, "fp1", "missing.xhtml"); !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrFileNotFound", err)
	}
	r.Load(ctx, b, "fp1", "missing.xhtml")
	if b.loads["missing.xhtml"] != 2 {
		t.Errorf("failed load was cached: %d loads", b.loads["missing.xhtml"])
	}

	r.Load(ctx, b, "fp2", "ch1.xhtml")
	if n := r.Forget("fp1"); n != 2 {
		t.Errorf("Forget(fp1) = %d, want 2", n)
	}
	if s := r.Stats(); s.Size != 1 {
		t.Errorf("Size after Forget = %d, want 1", s.Size)
	}
}
