package sidecar

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/yomuyume/yomuyume/pkg/errcodes"
)

const Extension = ".toml"

// CategoryPath returns the sidecar of a category directory, which sits next
// to the directory: <library>/<category>.toml.
func CategoryPath(dir string) string {
	return filepath.Clean(dir) + Extension
}

// TitlePath returns the sidecar of a title archive: the archive path with its
// extension swapped for .toml.
func TitlePath(archive string) string {
	return strings.TrimSuffix(archive, filepath.Ext(archive)) + Extension
}

// Document is a parsed sidecar. Keys that aren't understood are kept so that
// writing the document back doesn't lose them.
type Document struct {
	path   string
	values map[string]interface{}
	// broken is set when the file exists but couldn't be parsed. Such a
	// document is never written back.
	broken bool
	dirty  bool
}

// Load reads the sidecar at path. A missing or malformed file yields an empty
// document; the latter is logged.
func Load(ctx context.Context, path string) *Document {
	doc := &Document{path: path, values: map[string]interface{}{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.FromContext(ctx).Err(errcodes.Filesystem(err, "failed to read sidecar")).Warn("sidecar unreadable, using defaults", logger.Data{"path": path})
			doc.broken = true
		}
		return doc
	}

	if err := toml.Unmarshal(data, &doc.values); err != nil {
		logger.FromContext(ctx).Err(errcodes.MetadataParse(err, "failed to parse sidecar")).Warn("malformed sidecar, using defaults", logger.Data{"path": path})
		doc.values = map[string]interface{}{}
		doc.broken = true
	}

	return doc
}

func (doc *Document) Path() string {
	return doc.path
}

// Broken reports whether the file exists but couldn't be read or parsed.
func (doc *Document) Broken() bool {
	return doc.broken
}

// String returns the value of key as a string. Dates and times are rendered
// the way TOML writes them.
func (doc *Document) String(key string) *string {
	return stringValue(doc.values[key])
}

func (doc *Document) Strings(key string) []string {
	list, ok := doc.values[key].([]interface{})
	if !ok {
		return nil
	}
	strs := make([]string, 0, len(list))
	for _, v := range list {
		if s := stringValue(v); s != nil {
			strs = append(strs, *s)
		}
	}
	return strs
}

func (doc *Document) Table(key string) map[string]string {
	table, ok := doc.values[key].(map[string]interface{})
	if !ok {
		return nil
	}
	m := make(map[string]string, len(table))
	for k, v := range table {
		if s := stringValue(v); s != nil {
			m[k] = *s
		}
	}
	return m
}

// Set changes key, marking the document for saving if the value differs. A
// nil value removes the key.
func (doc *Document) Set(key string, value *string) {
	current := doc.String(key)
	switch {
	case value == nil && current == nil:
		if _, ok := doc.values[key]; !ok {
			return
		}
		delete(doc.values, key)
	case value == nil:
		delete(doc.values, key)
	case current != nil && *current == *value:
		return
	default:
		doc.values[key] = *value
	}
	doc.dirty = true
}

// Dirty reports whether Save has anything to write.
func (doc *Document) Dirty() bool {
	return doc.dirty
}

// Save writes the whole document back if it changed. The file is replaced
// atomically.
func (doc *Document) Save() error {
	if !doc.dirty {
		return nil
	}
	if doc.broken {
		return errcodes.MetadataParse(nil, "refusing to overwrite unparsable sidecar %s", doc.path)
	}

	data, err := toml.Marshal(doc.values)
	if err != nil {
		return errors.WithStack(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(doc.path), "."+filepath.Base(doc.path)+".*")
	if err != nil {
		return errors.WithStack(errcodes.Filesystem(err, "failed to create temp sidecar"))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.WithStack(errcodes.Filesystem(err, "failed to write sidecar"))
	}
	if err := tmp.Close(); err != nil {
		return errors.WithStack(errcodes.Filesystem(err, "failed to write sidecar"))
	}
	// Sidecars are edited by hand, so keep them readable for everyone.
	if err := os.Chmod(tmp.Name(), 0644); err != nil { //nolint:gosec
		return errors.WithStack(errcodes.Filesystem(err, "failed to chmod sidecar"))
	}
	if err := os.Rename(tmp.Name(), doc.path); err != nil {
		return errors.WithStack(errcodes.Filesystem(err, "failed to replace sidecar"))
	}

	doc.dirty = false
	return nil
}

// Keys returns the top-level keys, sorted.
func (doc *Document) Keys() []string {
	keys := make([]string, 0, len(doc.values))
	for k := range doc.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringValue(v interface{}) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = t
	case time.Time:
		s = t.Format(time.RFC3339)
	case fmt.Stringer:
		s = t.String()
	case int64, float64, bool:
		s = fmt.Sprint(t)
	default:
		return nil
	}
	return &s
}
