package thumbnail

import (
	"os"
	"path"
	"path/filepath"
	"sort"
)

// Source is a set of candidate image files that the tiers are matched
// against.
type Source interface {
	// Lookup returns the name under which the file called name exists in
	// the source.
	Lookup(name string) (string, bool)
	// List returns every file in the source, in a stable order.
	List() []string
}

// DirSource is the files directly inside a directory.
type DirSource struct {
	dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) Lookup(name string) (string, bool) {
	info, err := os.Stat(filepath.Join(s.dir, filepath.FromSlash(name)))
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return name, true
}

func (s *DirSource) List() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	return names
}

// ListSource is a fixed set of slash-separated relative paths, such as the
// pages of a title. A bare file name also matches a path in a subdirectory
// with that base name.
type ListSource struct {
	names  []string
	exact  map[string]struct{}
	byBase map[string]string
}

func NewListSource(names []string) *ListSource {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	s := &ListSource{
		names:  sorted,
		exact:  make(map[string]struct{}, len(sorted)),
		byBase: make(map[string]string, len(sorted)),
	}
	for _, name := range sorted {
		s.exact[name] = struct{}{}
		base := path.Base(name)
		if _, ok := s.byBase[base]; !ok {
			s.byBase[base] = name
		}
	}
	return s
}

func (s *ListSource) Lookup(name string) (string, bool) {
	if _, ok := s.exact[name]; ok {
		return name, true
	}
	if match, ok := s.byBase[name]; ok {
		return match, true
	}
	return "", false
}

func (s *ListSource) List() []string {
	return s.names
}
