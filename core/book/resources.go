package book

import (
	"context"

	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/loader"
)

// Resources is an in-memory resource table for codecs that synthesize their
// sections, keyed by href.
type Resources map[string]*loader.Blob

// Load returns the resource at href.
func (r Resources) Load(ctx context.Context, href string) (*loader.Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := StripFragment(href)
	if b, ok := r[name]; ok {
		return b, nil
	}
	return nil, errors.NewNotFound("resource", name)
}

// LoadFrom loads href through l, mapping an absent entry to a NotFoundError.
func LoadFrom(ctx context.Context, l loader.Loader, href, mediaType string) (*loader.Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := StripFragment(href)
	b, ok, err := l.LoadBlob(name, mediaType)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotFound("resource", name)
	}
	return b, nil
}
