// Package media turns uploaded images into bounded JPEG objects and stores them.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

var (
	// ErrInvalidDataURL is returned for input that is not a base64 image data URL.
	ErrInvalidDataURL = errors.New("invalid image data url")
	// ErrTooLarge is returned when the decoded payload exceeds the configured limit.
	ErrTooLarge = errors.New("image too large")
	// ErrUnsupportedImage is returned when the payload cannot be decoded as an image.
	ErrUnsupportedImage = errors.New("unsupported image")
)

// Options bounds processed images.
type Options struct {
	MaxBytes    int
	MaxWidth    int
	MaxHeight   int
	MaxPixels   int
	JPEGQuality int
	URLPrefix   string
}

// Uploader decodes, re-encodes and stores images.
type Uploader struct {
	storage Storage
	opts    Options
}

// NewUploader creates an Uploader writing to storage.
func NewUploader(storage Storage, opts Options) *Uploader {
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 80
	}
	opts.URLPrefix = strings.TrimRight(opts.URLPrefix, "/")
	return &Uploader{storage: storage, opts: opts}
}

// IsDataURL reports whether s looks like an inline data URL rather than a stored URL.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// DecodeDataURL returns the media type and payload of a base64 "data:image/...;base64," URL.
func DecodeDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	mediaType, ok := strings.CutSuffix(meta, ";base64")
	if !ok || !strings.HasPrefix(mediaType, "image/") {
		return "", nil, ErrInvalidDataURL
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidDataURL, err)
	}
	return mediaType, data, nil
}

// Process decodes any supported image, applies EXIF orientation, fits it within the
// configured bounds and re-encodes it as JPEG. Images whose header declares more than
// MaxPixels pixels are rejected before decoding.
func (u *Uploader) Process(data []byte) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedImage, err)
	}
	if u.opts.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(u.opts.MaxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, u.opts.MaxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedImage, err)
	}

	b := img.Bounds()
	if u.opts.MaxWidth > 0 && u.opts.MaxHeight > 0 &&
		(b.Dx() > u.opts.MaxWidth || b.Dy() > u.opts.MaxHeight) {
		img = imaging.Fit(img, u.opts.MaxWidth, u.opts.MaxHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(u.opts.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// StoreDataURL processes the image in dataURL and stores it under prefix.
// It returns the public URL of the stored object.
func (u *Uploader) StoreDataURL(ctx context.Context, prefix, dataURL string) (string, error) {
	_, data, err := DecodeDataURL(dataURL)
	if err != nil {
		return "", err
	}
	if u.opts.MaxBytes > 0 && len(data) > u.opts.MaxBytes {
		return "", ErrTooLarge
	}

	out, err := u.Process(data)
	if err != nil {
		return "", err
	}

	key := path.Join(prefix, uuid.NewString()+".jpg")
	if err := u.storage.Write(ctx, key, bytes.NewReader(out), "image/jpeg"); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return u.URL(key), nil
}

// URL returns the public URL for key.
func (u *Uploader) URL(key string) string {
	return u.opts.URLPrefix + "/" + key
}

// KeyFromURL returns the storage key of a URL produced by URL. The second result is
// false for URLs this uploader did not produce.
func (u *Uploader) KeyFromURL(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, u.opts.URLPrefix+"/")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// Delete removes the object behind url when it was produced by this uploader.
func (u *Uploader) Delete(ctx context.Context, url string) error {
	key, ok := u.KeyFromURL(url)
	if !ok {
		return nil
	}
	return u.storage.Delete(ctx, key)
}
