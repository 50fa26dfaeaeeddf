// Package blob stores document attachments (delivery notes, invoices) and
// returns a public URL for each uploaded object.
package blob

import (
	"context"
	"errors"
	"io"
)

var ErrDisabled = errors.New("attachment storage is not configured")

type Storage interface {
	Upload(ctx context.Context, folder string, filename string, contentType string, content io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}

// Disabled is the fallback when no bucket is configured; every upload fails
// with ErrDisabled so the API can report the feature as unavailable.
type Disabled struct{}

func (Disabled) Upload(_ context.Context, _ string, _ string, _ string, _ io.Reader) (string, error) {
	return "", ErrDisabled
}

func (Disabled) Delete(_ context.Context, _ string) error {
	return ErrDisabled
}
