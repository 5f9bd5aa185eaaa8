package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Keeps all entries in one JSON document on disk, nesting objects along the dotted path. `config.botName` is stored as `{"config": {"botName": "..."}}`.
//
// Non-string leaves (numbers, booleans) written by hand are returned in their JSON text form.
type FileKVStore struct {
	mu   sync.Mutex
	Path string
	doc  map[string]any
}

var _ KVStore = (*FileKVStore)(nil)

func NewFileKVStore(p string) (*FileKVStore, error) {
	s := &FileKVStore{
		Path: p,
		doc:  make(map[string]any),
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	} else if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.doc); err != nil {
		return nil, fmt.Errorf("parsing kv file %s: %w", p, err)
	}
	return s, nil
}

func (s *FileKVStore) Get(ctx context.Context, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var node any = s.doc
	for _, part := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return "", nil
		}
		node, ok = m[part]
		if !ok {
			return "", nil
		}
	}
	switch v := node.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", unavailable("get", path, err)
		}
		return string(b), nil
	}
}

func (s *FileKVStore) Set(ctx context.Context, path, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// the change goes into a copy of each map along the path, so a failed write leaves the document untouched
	parts := strings.Split(path, ".")
	doc := maps.Clone(s.doc)
	m := doc
	for _, part := range parts[:len(parts)-1] {
		child, ok := m[part].(map[string]any)
		if ok {
			child = maps.Clone(child)
		} else {
			child = make(map[string]any)
		}
		m[part] = child
		m = child
	}
	m[parts[len(parts)-1]] = val

	if err := s.flush(doc); err != nil {
		return unavailable("set", path, err)
	}
	s.doc = doc
	return nil
}

// writes the whole document to a temp file, then renames over the old one
func (s *FileKVStore) flush(doc map[string]any) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}
