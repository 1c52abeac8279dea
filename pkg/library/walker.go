package library

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/yomuyume/yomuyume/pkg/errcodes"
)

type Category struct {
	Path string
	Name string
}

type Title struct {
	Path string
	// Name is the archive's file name without its extension.
	Name string
	// Ext is the archive's extension without the leading dot.
	Ext string
}

// ListCategories returns the directories directly under root. Failing to read
// root is the one walk error that stops a scan.
func ListCategories(ctx context.Context, root string) ([]Category, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.WithStack(errcodes.Filesystem(err, "failed to read library %s", root))
	}

	categories := make([]Category, 0, len(entries))
	for _, entry := range entries {
		if !isDir(root, entry) {
			continue
		}
		categories = append(categories, Category{
			Path: filepath.Join(root, entry.Name()),
			Name: entry.Name(),
		})
	}

	logger.FromContext(ctx).Debug("listed categories", logger.Data{"root": root, "count": len(categories)})
	return categories, nil
}

// isDir follows symlinks, so a linked category directory still counts.
func isDir(parent string, entry fs.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(parent, entry.Name()))
	return err == nil && info.IsDir()
}

// ListTitles walks dir recursively and returns every file whose extension is
// one of exts. Extensions are matched case-sensitively. Directories that
// can't be read are logged and skipped.
func ListTitles(ctx context.Context, dir string, exts []string) []Title {
	log := logger.FromContext(ctx)

	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		allowed[strings.TrimPrefix(ext, ".")] = struct{}{}
	}

	var titles []Title
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Err(errcodes.Filesystem(err, "failed to read %s", path)).Warn("skipping unreadable directory", logger.Data{"path": path})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		if _, ok := allowed[ext]; !ok || ext == "" {
			return nil
		}
		titles = append(titles, Title{
			Path: path,
			Name: strings.TrimSuffix(d.Name(), "."+ext),
			Ext:  ext,
		})
		return nil
	})

	return titles
}
