// Package storage provides schema repositories.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aevon-lab/eventbridge/internal/schema"
)

var extensions = map[string]schema.Format{
	".yaml":  schema.FormatYaml,
	".proto": schema.FormatProtobuf,
}

// FileSystemRepository reads schemas laid out as root/{collection}/v{version}.yaml|.proto.
// When both files exist for a version the YAML one wins. It is read-only.
type FileSystemRepository struct {
	rootDir string
	strict  bool
}

// NewFileSystemRepository creates a repository over rootDir. strict sets
// StrictMode on every schema it loads.
func NewFileSystemRepository(rootDir string, strict bool) *FileSystemRepository {
	return &FileSystemRepository{rootDir: rootDir, strict: strict}
}

func (r *FileSystemRepository) Create(_ context.Context, s *schema.Schema) error {
	ext := ".yaml"
	if s.Format == schema.FormatProtobuf {
		ext = ".proto"
	}
	return fmt.Errorf("%w: add %s directly", schema.ErrReadOnly,
		filepath.Join(r.rootDir, s.Collection, fmt.Sprintf("v%d%s", s.Version, ext)))
}

func (r *FileSystemRepository) Get(_ context.Context, key schema.Key) (*schema.Schema, error) {
	dir := filepath.Join(r.rootDir, key.Collection)
	yamlPath := filepath.Join(dir, fmt.Sprintf("v%d.yaml", key.Version))
	protoPath := filepath.Join(dir, fmt.Sprintf("v%d.proto", key.Version))

	yamlDef, yamlErr := os.ReadFile(yamlPath)
	if yamlErr != nil && !errors.Is(yamlErr, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read YAML schema: %w", yamlErr)
	}
	protoDef, protoErr := os.ReadFile(protoPath)
	if protoErr != nil && !errors.Is(protoErr, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read protobuf schema: %w", protoErr)
	}

	switch {
	case yamlErr == nil:
		if protoErr == nil {
			slog.Warn("[Schema] Both .yaml and .proto exist, using .yaml",
				"collection", key.Collection, "version", key.Version)
		}
		return r.build(key, yamlPath, yamlDef, schema.FormatYaml), nil
	case protoErr == nil:
		return r.build(key, protoPath, protoDef, schema.FormatProtobuf), nil
	}
	return nil, schema.ErrNotFound
}

func (r *FileSystemRepository) build(key schema.Key, path string, def []byte, format schema.Format) *schema.Schema {
	var createdAt time.Time
	if info, err := os.Stat(path); err == nil {
		createdAt = info.ModTime().UTC()
	}
	return &schema.Schema{
		ID:          fmt.Sprintf("%s-v%d", key.Collection, key.Version),
		Collection:  key.Collection,
		Version:     key.Version,
		Format:      format,
		Definition:  def,
		Fingerprint: schema.ComputeFingerprint(def),
		State:       schema.StateActive,
		StrictMode:  r.strict,
		CreatedAt:   createdAt,
	}
}

func (r *FileSystemRepository) List(ctx context.Context, collection string) ([]*schema.Schema, error) {
	if collection != "" {
		return r.scanCollection(ctx, collection)
	}

	entries, err := os.ReadDir(r.rootDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read schema root: %w", err)
	}

	var out []*schema.Schema
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		found, err := r.scanCollection(ctx, e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

func (r *FileSystemRepository) scanCollection(ctx context.Context, collection string) ([]*schema.Schema, error) {
	entries, err := os.ReadDir(filepath.Join(r.rootDir, collection))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read schemas of %s: %w", collection, err)
	}

	versions := make(map[int]struct{})
	for _, e := range entries {
		if v, ok := parseVersionFile(e); ok {
			versions[v] = struct{}{}
		}
	}

	out := make([]*schema.Schema, 0, len(versions))
	for v := range versions {
		s, err := r.Get(ctx, schema.Key{Collection: collection, Version: v})
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseVersionFile extracts n from a "v{n}.yaml" or "v{n}.proto" entry.
func parseVersionFile(e fs.DirEntry) (int, bool) {
	name := e.Name()
	if e.IsDir() || !strings.HasPrefix(name, "v") {
		return 0, false
	}
	ext := filepath.Ext(name)
	if _, ok := extensions[ext]; !ok {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "v"), ext))
	if err != nil || v < 1 {
		return 0, false
	}
	return v, true
}

func (r *FileSystemRepository) UpdateState(context.Context, schema.Key, schema.State) error {
	return fmt.Errorf("%w: cannot change schema state", schema.ErrReadOnly)
}

func (r *FileSystemRepository) Delete(_ context.Context, key schema.Key) error {
	return fmt.Errorf("%w: remove the %s file instead", schema.ErrReadOnly, key)
}
