// Package archive persists completed briefs as a JSON record plus a
// standalone HTML document and reads them back for download.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-brief-automator/internal/brief"
	"github.com/JakeFAU/seo-brief-automator/internal/storage"
)

const (
	timestampLayout = "20060102_150405"
	maxNameLength   = 100
)

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	// ErrInvalidName is returned for download names outside the archive.
	ErrInvalidName = errors.New("invalid brief filename")
)

// Config controls where documents are written inside the blob store.
type Config struct {
	Prefix string
}

// Entry describes one saved brief.
type Entry struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Created  time.Time `json:"created_at"`
}

// Saver writes brief documents to a BlobStore.
type Saver struct {
	blobs  storage.BlobStore
	clock  brief.Clock
	prefix string
	logger *zap.Logger
}

var _ brief.DocumentSaver = (*Saver)(nil)

// New constructs a Saver.
func New(blobs storage.BlobStore, clock brief.Clock, cfg Config, logger *zap.Logger) (*Saver, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saver{
		blobs:  blobs,
		clock:  clock,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

// SanitizeFilename replaces characters unsafe in file names and truncates
// the result to 100 characters.
func SanitizeFilename(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	if runes := []rune(name); len(runes) > maxNameLength {
		name = string(runes[:maxNameLength])
	}
	return name
}

// Filename builds the JSON document name for contentID at ts.
func Filename(contentID string, ts time.Time) string {
	return fmt.Sprintf("brief_%s_%s.json", SanitizeFilename(contentID), ts.UTC().Format(timestampLayout))
}

// Save writes record as indented JSON and a companion HTML page. It returns
// the JSON filename.
func (s *Saver) Save(ctx context.Context, record brief.CombinedRecord) (string, error) {
	filename := Filename(record.ContentID, s.clock.Now())
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode brief: %w", err)
	}
	if _, err := s.blobs.PutObject(ctx, s.objectPath(filename), "application/json", bytes.NewReader(payload)); err != nil {
		return "", fmt.Errorf("save brief json: %w", err)
	}

	page, err := renderPage(record)
	if err != nil {
		return "", err
	}
	htmlName := strings.TrimSuffix(filename, ".json") + ".html"
	if _, err := s.blobs.PutObject(ctx, s.objectPath(htmlName), "text/html; charset=utf-8", bytes.NewReader(page)); err != nil {
		return "", fmt.Errorf("save brief html: %w", err)
	}
	s.logger.Info("brief saved",
		zap.String("filename", filename),
		zap.String("content_id", record.ContentID),
		zap.Int("bytes", len(payload)),
	)
	return filename, nil
}

// Recent returns up to limit saved JSON briefs, newest first.
func (s *Saver) Recent(ctx context.Context, limit int) ([]Entry, error) {
	objects, err := s.blobs.ListObjects(ctx, s.listPrefix())
	if err != nil {
		return nil, fmt.Errorf("list briefs: %w", err)
	}
	entries := make([]Entry, 0, len(objects))
	for _, obj := range objects {
		name := path.Base(obj.Path)
		if !strings.HasPrefix(name, "brief_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		entries = append(entries, Entry{Filename: name, Size: obj.Size, Created: obj.Updated})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Created.Equal(entries[j].Created) {
			return entries[i].Filename > entries[j].Filename
		}
		return entries[i].Created.After(entries[j].Created)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Open reads a saved document by bare filename and returns its content type.
func (s *Saver) Open(ctx context.Context, filename string) ([]byte, string, error) {
	if filename == "" || filename != path.Base(filename) || strings.ContainsAny(filename, `\:`) {
		return nil, "", fmt.Errorf("%q: %w", filename, ErrInvalidName)
	}
	data, err := s.blobs.GetObject(ctx, s.objectPath(filename))
	if err != nil {
		return nil, "", fmt.Errorf("open brief: %w", err)
	}
	return data, contentTypeFor(filename), nil
}

func (s *Saver) objectPath(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *Saver) listPrefix() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

func contentTypeFor(name string) string {
	switch path.Ext(name) {
	case ".json":
		return "application/json"
	case ".html":
		return "text/html; charset=utf-8"
	case ".md":
		return "text/markdown; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
