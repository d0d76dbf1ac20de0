package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/cerebro-dash/apiserver/internal/storage"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

const (
	exportPrefix = "exports/"
	// Fixed width so keys sort chronologically.
	exportTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// ExportStore is the object storage used for directory exports.
type ExportStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
}

// ExportService snapshots the directory into object storage.
type ExportService struct {
	directory *DirectoryService
	objects   ExportStore
	retain    int
	now       func() time.Time
	newID     func() string
}

// NewExportService returns an export service keeping the newest retain
// exports (all of them when retain <= 0). A nil objects disables export.
func NewExportService(directory *DirectoryService, objects ExportStore, retain int) *ExportService {
	return &ExportService{
		directory: directory,
		objects:   objects,
		retain:    retain,
		now:       time.Now,
		newID:     func() string { return ulid.Make().String() },
	}
}

// Enabled reports whether object storage is configured.
func (s *ExportService) Enabled() bool {
	return s.objects != nil
}

// ExportDirectory writes every directory entry, bots included, as a JSON
// array and returns the object key.
func (s *ExportService) ExportDirectory(ctx context.Context) (string, error) {
	if !s.Enabled() {
		return "", exportDisabled()
	}

	entries, err := s.directory.List(ctx, ListOptions{IncludeBots: true})
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", oops.Code("EXPORT_ENCODE").Wrap(err)
	}

	key := exportPrefix + "directory-" + s.now().UTC().Format(exportTimeLayout) + "-" + s.newID() + ".json"
	if err := s.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return "", oops.Code("EXPORT_UPLOAD").With("key", key).Wrap(err)
	}

	if err := s.prune(ctx); err != nil {
		return key, oops.Code("EXPORT_PRUNE").With("key", key).Wrap(err)
	}
	return key, nil
}

// ListExports returns stored exports, newest first.
func (s *ExportService) ListExports(ctx context.Context) ([]storage.ObjectInfo, error) {
	if !s.Enabled() {
		return nil, exportDisabled()
	}
	objects, err := s.objects.List(ctx, exportPrefix)
	if err != nil {
		return nil, oops.Code("EXPORT_LIST").Wrap(err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key > objects[j].Key })
	return objects, nil
}

// OpenExport opens an export by its file name, as returned in the key's
// last path element.
func (s *ExportService) OpenExport(ctx context.Context, name string) (io.ReadCloser, error) {
	if !s.Enabled() {
		return nil, exportDisabled()
	}
	if name != path.Base(name) || !strings.HasPrefix(name, "directory-") || !strings.HasSuffix(name, ".json") {
		return nil, invalidInput("invalid export name %q", name)
	}
	r, err := s.objects.Get(ctx, exportPrefix+name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, oops.Code("EXPORT_NOT_FOUND").With("name", name).Wrap(err)
		}
		return nil, oops.Code("EXPORT_READ").With("name", name).Wrap(err)
	}
	return r, nil
}

func (s *ExportService) prune(ctx context.Context) error {
	if s.retain <= 0 {
		return nil
	}
	objects, err := s.ListExports(ctx)
	if err != nil {
		return err
	}
	if len(objects) <= s.retain {
		return nil
	}
	for _, obj := range objects[s.retain:] {
		if err := s.objects.Delete(ctx, obj.Key); err != nil {
			return err
		}
	}
	return nil
}

func exportDisabled() error {
	return oops.Code("EXPORT_DISABLED").Wrap(ErrExportDisabled)
}
