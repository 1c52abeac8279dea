package archive

import (
	"archive/zip"
	"encoding/hex"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/spaolacci/murmur3"
	"github.com/yomuyume/yomuyume/pkg/errcodes"
)

// maxMemberSize caps how much of a single member gets extracted, so that a
// decompression bomb can't fill the scratch directory.
const maxMemberSize = 100 * 1024 * 1024

const zipMIME = "application/zip"

// Hash returns the hex-encoded 128-bit murmur3 hash of the file's bytes.
func Hash(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", errors.WithStack(errcodes.Filesystem(err, "failed to open %s", p))
	}
	defer f.Close()

	h := murmur3.New128()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.WithStack(errcodes.Filesystem(err, "failed to read %s", p))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type Archive struct {
	path string
	f    *os.File
	zr   *zip.Reader
}

// Open opens a title archive. Files that aren't zip archives, whatever their
// extension says, are rejected.
func Open(p string) (*Archive, error) {
	mtype, err := mimetype.DetectFile(p)
	if err != nil {
		return nil, errors.WithStack(errcodes.Filesystem(err, "failed to read %s", p))
	}
	if !isZip(mtype) {
		return nil, errors.WithStack(errcodes.Archive(nil, "%s is %s, not a zip archive", p, mtype.String()))
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, errors.WithStack(errcodes.Filesystem(err, "failed to open %s", p))
	}

	stats, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.WithStack(errcodes.Filesystem(err, "failed to stat %s", p))
	}

	// Insecure member names are dealt with on extraction.
	zr, err := zip.NewReader(f, stats.Size())
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && zr != nil) {
		f.Close()
		return nil, errors.WithStack(errcodes.Archive(err, "failed to read %s", p))
	}

	return &Archive{path: p, f: f, zr: zr}, nil
}

func isZip(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is(zipMIME) {
			return true
		}
	}
	return false
}

func (a *Archive) Close() error {
	return errors.WithStack(a.f.Close())
}

// Members lists the names of the files in the archive, sorted, without
// extracting anything.
func (a *Archive) Members() []string {
	names := make([]string, 0, len(a.zr.File))
	for _, f := range a.zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

// Extract writes every member accepted by keep into dest, keeping the
// archive's directory layout, and returns the names it wrote. A nil keep
// extracts everything.
func (a *Archive) Extract(dest string, keep func(name string) bool) ([]string, error) {
	root, err := filepath.Abs(dest)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.WithStack(errcodes.Filesystem(err, "failed to create %s", root))
	}

	var extracted []string
	for _, f := range a.zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if keep != nil && !keep(f.Name) {
			continue
		}

		target, ok := MemberPath(root, f.Name)
		if !ok {
			return extracted, errors.WithStack(errcodes.Archive(nil, "%s has a member outside the archive root: %q", a.path, f.Name))
		}
		if err := extractMember(f, target); err != nil {
			return extracted, errors.WithStack(errcodes.Archive(err, "failed to extract %q from %s", f.Name, a.path))
		}
		extracted = append(extracted, f.Name)
	}

	sort.Strings(extracted)
	return extracted, nil
}

// MemberPath returns where a member is extracted to under root, which must be
// absolute. Names that would land outside of root are refused.
func MemberPath(root, name string) (string, bool) {
	clean := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	target := filepath.Join(root, filepath.FromSlash(clean))
	if target == root || !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}

func extractMember(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}

	_, err = io.Copy(out, io.LimitReader(r, maxMemberSize))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(target)
		return err
	}
	return nil
}
