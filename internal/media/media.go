// Package media accepts member uploads, stores them in a pluggable backend and
// probes video durations in the background.
package media

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillswap/backend/internal/logging"
	"github.com/skillswap/backend/internal/metrics"
)

var (
	// ErrUnsupportedType is returned for content types not accepted for the upload kind.
	ErrUnsupportedType = errors.New("unsupported media type")
	// ErrTooLarge is returned when an upload exceeds its kind's size limit.
	ErrTooLarge = errors.New("media exceeds size limit")
	// ErrEmpty is returned for zero-byte uploads.
	ErrEmpty = errors.New("media is empty")
	// ErrBackendUnavailable indicates no storage backend is configured.
	ErrBackendUnavailable = errors.New("media backend unavailable")
	// ErrNotRemovable is returned by Discard when the backend cannot delete objects.
	ErrNotRemovable = errors.New("media backend cannot remove objects")
)

// Kind distinguishes upload categories, each with its own limits.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

const (
	MaxImageBytes int64 = 5 << 20
	MaxVideoBytes int64 = 100 << 20
)

type rule struct {
	maxBytes int64
	types    map[string]string
}

var rules = map[Kind]rule{
	KindImage: {
		maxBytes: MaxImageBytes,
		types: map[string]string{
			"image/jpeg": ".jpg",
			"image/jpg":  ".jpg",
			"image/png":  ".png",
			"image/webp": ".webp",
		},
	},
	KindVideo: {
		maxBytes: MaxVideoBytes,
		types: map[string]string{
			"video/mp4":       ".mp4",
			"video/quicktime": ".mov",
			"video/x-msvideo": ".avi",
		},
	},
}

// Upload is a single file handed to the Broker.
type Upload struct {
	Kind        Kind
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Asset describes a stored upload.
type Asset struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	ETag string `json:"etag"`
	Size int64  `json:"size"`
	Kind Kind   `json:"kind"`
	Type string `json:"contentType"`
}

// Backend persists an object under key and returns its public URL.
type Backend interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// Remover is implemented by backends that can delete stored objects.
type Remover interface {
	Delete(ctx context.Context, key string) error
}

// MaxBytes reports the size limit of kind, or zero for unknown kinds.
func MaxBytes(kind Kind) int64 {
	return rules[kind].maxBytes
}

// Validate checks the declared content type and size of an upload.
func Validate(kind Kind, contentType string, size int64) error {
	r, ok := rules[kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrUnsupportedType, kind)
	}
	if _, ok := r.types[normalizeType(contentType)]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	if size > r.maxBytes {
		return ErrTooLarge
	}
	return nil
}

// Broker validates uploads and hands them to the configured backend.
type Broker struct {
	Backend Backend
	NowFunc func() time.Time
}

// Upload validates and stores u. The body is read at most once; bodies that turn
// out larger than the limit are rejected even when Size understated them.
func (b Broker) Upload(ctx context.Context, u Upload) (Asset, error) {
	asset, err := b.upload(ctx, u)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		switch {
		case errors.Is(err, ErrUnsupportedType), errors.Is(err, ErrTooLarge), errors.Is(err, ErrEmpty):
			outcome = "rejected"
		}
	}
	metrics.Uploads.WithLabelValues(string(u.Kind), outcome).Inc()
	return asset, err
}

func (b Broker) upload(ctx context.Context, u Upload) (Asset, error) {
	if b.Backend == nil {
		return Asset{}, ErrBackendUnavailable
	}
	if err := Validate(u.Kind, u.ContentType, u.Size); err != nil {
		return Asset{}, err
	}
	if u.Body == nil {
		return Asset{}, ErrEmpty
	}
	buffered := bufio.NewReader(u.Body)
	if _, err := buffered.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return Asset{}, ErrEmpty
		}
		return Asset{}, fmt.Errorf("read upload: %w", err)
	}

	now := time.Now().UTC()
	if b.NowFunc != nil {
		now = b.NowFunc().UTC()
	}
	contentType := normalizeType(u.ContentType)
	key := ObjectKey(u.Kind, contentType, now)

	limit := rules[u.Kind].maxBytes
	hash := sha256.New()
	counter := &countingReader{r: io.LimitReader(buffered, limit+1)}
	body := io.TeeReader(counter, hash)

	ctx, span := logging.StartSpan(ctx, "media.upload")
	defer span.End()

	url, err := b.Backend.Put(ctx, key, contentType, &guardedReader{r: body, counter: counter, limit: limit})
	if counter.n > limit {
		return Asset{}, ErrTooLarge
	}
	if err != nil {
		span.Fail(err)
		return Asset{}, fmt.Errorf("store %s: %w", key, err)
	}

	return Asset{
		Key:  key,
		URL:  url,
		ETag: hex.EncodeToString(hash.Sum(nil)),
		Size: counter.n,
		Kind: u.Kind,
		Type: contentType,
	}, nil
}

// Discard removes stored assets that ended up unused, such as uploads whose video
// row could not be written.
func (b Broker) Discard(ctx context.Context, assets ...Asset) error {
	remover, ok := b.Backend.(Remover)
	if !ok {
		return ErrNotRemovable
	}
	var errs []error
	for _, a := range assets {
		if a.Key == "" {
			continue
		}
		if err := remover.Delete(ctx, a.Key); err != nil {
			errs = append(errs, fmt.Errorf("discard %s: %w", a.Key, err))
			continue
		}
		metrics.Uploads.WithLabelValues(string(a.Kind), "discarded").Inc()
	}
	return errors.Join(errs...)
}

// ObjectKey builds <kind>/<yyyy>/<mm>/<uuid><ext>.
func ObjectKey(kind Kind, contentType string, at time.Time) string {
	ext := rules[kind].types[normalizeType(contentType)]
	return path.Join(string(kind), at.Format("2006"), at.Format("01"), uuid.NewString()+ext)
}

func normalizeType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// guardedReader fails the backend write once more than limit bytes have been read.
type guardedReader struct {
	r       io.Reader
	counter *countingReader
	limit   int64
}

func (g *guardedReader) Read(p []byte) (int, error) {
	n, err := g.r.Read(p)
	if g.counter.n > g.limit {
		return n, ErrTooLarge
	}
	return n, err
}
