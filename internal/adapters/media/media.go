// Package media stores uploaded hazard photos and videos on disk and serves
// them back under /uploads/hazards/.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/okian/surfwatch/internal/domain/model"
	"github.com/okian/surfwatch/pkg/logger"
	"github.com/peterbourgon/diskv"
)

// URLPrefix is where stored media is served from.
const URLPrefix = "/uploads/hazards/"

// Sub-directory of the upload root holding hazard media.
const hazardsDir = "hazards"

var (
	// ErrTooLarge is returned when an upload exceeds the per-file limit.
	ErrTooLarge = errors.New("file exceeds size limit")
	// ErrInvalidName is returned for names that were not generated by Save.
	ErrInvalidName = errors.New("invalid media name")
)

var (
	storedName = regexp.MustCompile(`^hazard_\d+_[0-9a-f]{8}\.[a-z0-9]{1,5}$`)
	extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)
)

var mimeExt = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"video/x-msvideo": ".avi",
}

// Upload is one incoming file.
type Upload struct {
	OriginalName string
	MimeType     string
	Body         io.Reader
}

// Store persists media blobs.
type Store interface {
	// Save writes up under a generated collision-resistant name.
	Save(ctx context.Context, up Upload) (model.Media, error)
	// Open returns the stored bytes for a generated name.
	Open(name string) (io.ReadCloser, error)
	// Delete removes a stored file. Missing files are not an error.
	Delete(name string) error
}

// DiskStore is a Store backed by a flat diskv directory.
type DiskStore struct {
	dv      *diskv.Diskv
	root    string
	maxSize int64
	clock   clockwork.Clock
	log     logger.Logger
}

// Option configures a DiskStore.
type Option func(*DiskStore)

// WithMaxSize caps the bytes accepted per file. Zero or less disables it.
func WithMaxSize(n int64) Option {
	return func(d *DiskStore) { d.maxSize = n }
}

// WithClock sets the clock used for generated names.
func WithClock(c clockwork.Clock) Option {
	return func(d *DiskStore) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *DiskStore) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDiskStore stores files under uploadDir/hazards.
func NewDiskStore(uploadDir string, opts ...Option) *DiskStore {
	root := filepath.Join(uploadDir, hazardsDir)
	d := &DiskStore{
		root:    root,
		maxSize: model.DefaultMaxFileSize,
		clock:   clockwork.NewRealClock(),
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.dv = diskv.New(diskv.Options{
		BasePath:     root,
		Transform:    func(string) []string { return []string{} },
		CacheSizeMax: 0,
		FilePerm:     0o644,
		PathPerm:     0o755,
	})
	return d
}

// Root returns the directory files are written to.
func (d *DiskStore) Root() string { return d.root }

// Save implements Store.
func (d *DiskStore) Save(ctx context.Context, up Upload) (model.Media, error) {
	kind, ok := model.MediaKindOf(up.MimeType)
	if !ok {
		return model.Media{}, fmt.Errorf("unsupported media type %q", up.MimeType)
	}
	if err := ctx.Err(); err != nil {
		return model.Media{}, err
	}

	name := d.newName(up.OriginalName, up.MimeType)
	body := &countingReader{r: up.Body}
	var src io.Reader = body
	if d.maxSize > 0 {
		src = io.LimitReader(body, d.maxSize+1)
	}
	if err := d.dv.WriteStream(name, src, true); err != nil {
		return model.Media{}, fmt.Errorf("write %s: %w", name, err)
	}
	if d.maxSize > 0 && body.n > d.maxSize {
		_ = d.dv.Erase(name)
		return model.Media{}, fmt.Errorf("%w: %s", ErrTooLarge, up.OriginalName)
	}

	d.log.Debug(ctx, "media stored",
		logger.String("name", name),
		logger.String("mime", up.MimeType),
		logger.Int64("bytes", body.n),
	)
	return model.Media{
		Kind:         kind,
		Path:         URLPrefix + name,
		Filename:     name,
		OriginalName: path.Base(strings.ReplaceAll(up.OriginalName, "\\", "/")),
		MimeType:     up.MimeType,
		Size:         body.n,
	}, nil
}

// Open implements Store.
func (d *DiskStore) Open(name string) (io.ReadCloser, error) {
	if !storedName.MatchString(name) {
		return nil, ErrInvalidName
	}
	return d.dv.ReadStream(name, false)
}

// Delete implements Store.
func (d *DiskStore) Delete(name string) error {
	if !storedName.MatchString(name) {
		return ErrInvalidName
	}
	if !d.dv.Has(name) {
		return nil
	}
	return d.dv.Erase(name)
}

// ServeHTTP serves stored files by their generated name.
func (d *DiskStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := path.Base(r.URL.Path)
	rc, err := d.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer rc.Close()

	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, rc); err != nil {
		d.log.Warn(r.Context(), "media write failed", logger.String("name", name), logger.Error(err))
	}
}

func (d *DiskStore) newName(original, mimeType string) string {
	return fmt.Sprintf("hazard_%d_%s%s", d.clock.Now().UnixNano(), uuid.NewString()[:8], extensionFor(original, mimeType))
}

func extensionFor(original, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	if extPattern.MatchString(ext) {
		return ext
	}
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if e, ok := mimeExt[mt]; ok {
		return e
	}
	return ".bin"
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
