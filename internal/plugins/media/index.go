package media

import (
	"context"
	"net/url"
)

// MediaIndex answers listing queries. Every call rescans storage; results
// are never cached. The filesystem implementation can be swapped for a real
// index without touching the handlers.
type MediaIndex interface {
	Images(ctx context.Context) ([]string, error)
	Videos(ctx context.Context) ([]string, error)

	// Media returns images followed by videos, taken from one scan.
	Media(ctx context.Context) ([]string, error)

	// Details returns the decoded view of Media.
	Details(ctx context.Context) ([]MediaDetail, error)
}

// dirIndex implements MediaIndex by classifying the uploads directory.
type dirIndex struct {
	store Store
}

// NewMediaIndex creates an index over the store's uploads directory.
func NewMediaIndex(store Store) MediaIndex {
	return &dirIndex{store: store}
}

func (x *dirIndex) Images(ctx context.Context) ([]string, error) {
	images, _, err := x.scan(ctx)
	return images, err
}

func (x *dirIndex) Videos(ctx context.Context) ([]string, error) {
	_, videos, err := x.scan(ctx)
	return videos, err
}

func (x *dirIndex) Media(ctx context.Context) ([]string, error) {
	images, videos, err := x.scan(ctx)
	if err != nil {
		return nil, err
	}
	return append(images, videos...), nil
}

func (x *dirIndex) Details(ctx context.Context) ([]MediaDetail, error) {
	names, err := x.Media(ctx)
	if err != nil {
		return nil, err
	}

	details := make([]MediaDetail, 0, len(names))
	for _, name := range names {
		details = append(details, describe(name))
	}
	return details, nil
}

// scan lists the uploads directory once and partitions it. Both slices are
// non-nil so they encode as [] rather than null.
func (x *dirIndex) scan(ctx context.Context) (images, videos []string, err error) {
	names, err := x.store.List(ctx, x.store.UploadsDir())
	if err != nil {
		return nil, nil, err
	}

	images = make([]string, 0, len(names))
	videos = make([]string, 0)
	for _, name := range names {
		switch Classify(name) {
		case KindImage:
			images = append(images, name)
		case KindVideo:
			videos = append(videos, name)
		}
	}
	return images, videos, nil
}

// describe decodes one stored filename into its public view.
func describe(name string) MediaDetail {
	fn := DecodeFilename(name)
	d := MediaDetail{
		Filename:     name,
		Kind:         Classify(name),
		Photographer: fn.Photographer,
		URL:          UploadsURLPrefix + "/" + url.PathEscape(name),
	}
	if fn.HasTimestamp() {
		ts := fn.Timestamp
		d.UploadedAt = &ts
	}
	if d.Kind == KindVideo {
		d.ThumbnailURL = ThumbnailsURLPrefix + "/" + url.PathEscape(ThumbnailName(name))
	}
	return d
}
