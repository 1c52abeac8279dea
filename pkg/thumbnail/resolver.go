package thumbnail

import (
	"context"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/robinjoseph08/golib/logger"
	"github.com/yomuyume/yomuyume/pkg/fingerprint"
)

// Tier records which rule picked a thumbnail.
type Tier int

const (
	TierNone Tier = iota
	// TierExact is the configured name taken as a full file name.
	TierExact
	// TierStem is the configured name with one of the formats appended.
	TierStem
	// TierImplicit is a conventional name such as "cover" with one of the
	// formats appended.
	TierImplicit
	// TierFuzzy is the first file whose name contains a conventional name.
	TierFuzzy
	// TierFirstPage is the first hashed page, used when nothing else
	// matched.
	TierFirstPage
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierStem:
		return "stem"
	case TierImplicit:
		return "implicit"
	case TierFuzzy:
		return "fuzzy"
	case TierFirstPage:
		return "first_page"
	default:
		return "none"
	}
}

// FromHint reports whether the configured name is what picked the file.
func (t Tier) FromHint() bool {
	return t == TierExact || t == TierStem
}

type Match struct {
	Name string
	Tier Tier
}

type Result struct {
	Match
	fingerprint.Fingerprint
}

// Encoder fingerprints an image file. *fingerprint.Hasher is one.
type Encoder interface {
	Encode(ctx context.Context, path, ext string) (fingerprint.Fingerprint, bool)
}

type Resolver struct {
	encoder Encoder
	formats []string
	names   []string
}

// New returns a resolver trying formats and the conventional names in the
// given order.
func New(encoder Encoder, formats, names []string) *Resolver {
	normalized := make([]string, 0, len(formats))
	for _, f := range formats {
		normalized = append(normalized, strings.ToLower(strings.TrimPrefix(f, ".")))
	}
	return &Resolver{
		encoder: encoder,
		formats: normalized,
		names:   names,
	}
}

func (r *Resolver) supported(name string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" {
		return "", false
	}
	for _, f := range r.formats {
		if f == ext {
			return ext, true
		}
	}
	return "", false
}

// Find runs the tiers against src. ownName is the name of the directory or
// title being resolved, which is tried after the conventional names.
func (r *Resolver) Find(src Source, hint *string, ownName string) (Match, bool) {
	if hint != nil && *hint != "" {
		if _, ok := r.supported(*hint); ok {
			if name, ok := src.Lookup(*hint); ok {
				return Match{Name: name, Tier: TierExact}, true
			}
		}

		stem := *hint
		if ext, ok := r.supported(stem); ok {
			stem = stem[:len(stem)-len(ext)-1]
		}
		for _, f := range r.formats {
			if name, ok := r.lookupAnyCase(src, stem, f); ok {
				return Match{Name: name, Tier: TierStem}, true
			}
		}
	}

	names := r.implicitNames(ownName)
	for _, n := range names {
		for _, f := range r.formats {
			if name, ok := r.lookupAnyCase(src, n, f); ok {
				return Match{Name: name, Tier: TierImplicit}, true
			}
		}
	}

	var candidates []string
	for _, name := range src.List() {
		if _, ok := r.supported(name); ok {
			candidates = append(candidates, name)
		}
	}
	for _, n := range names {
		needle := strings.ToLower(n)
		if needle == "" {
			continue
		}
		for _, name := range candidates {
			if strings.Contains(strings.ToLower(path.Base(name)), needle) {
				return Match{Name: name, Tier: TierFuzzy}, true
			}
		}
	}

	return Match{}, false
}

// lookupAnyCase tries stem.format, then stem.FORMAT.
func (r *Resolver) lookupAnyCase(src Source, stem, format string) (string, bool) {
	if name, ok := src.Lookup(stem + "." + format); ok {
		return name, true
	}
	return src.Lookup(stem + "." + strings.ToUpper(format))
}

func (r *Resolver) implicitNames(ownName string) []string {
	names := append([]string(nil), r.names...)
	if ownName != "" {
		names = append(names, ownName)
	}
	return names
}

// ResolveDir picks a thumbnail among the files directly in dir and
// fingerprints it. If the picked file can't be fingerprinted there is no
// thumbnail; other files aren't tried.
func (r *Resolver) ResolveDir(ctx context.Context, dir string, hint *string, ownName string) (*Result, bool) {
	match, ok := r.Find(NewDirSource(dir), hint, ownName)
	if !ok {
		return nil, false
	}
	return r.encode(ctx, dir, match)
}

// ResolveFile fingerprints a match whose file lives under dir.
func (r *Resolver) ResolveFile(ctx context.Context, dir string, match Match) (*Result, bool) {
	return r.encode(ctx, dir, match)
}

func (r *Resolver) encode(ctx context.Context, dir string, match Match) (*Result, bool) {
	ext, _ := r.supported(match.Name)
	fp, ok := r.encoder.Encode(ctx, filepath.Join(dir, filepath.FromSlash(match.Name)), ext)
	if !ok {
		logger.FromContext(ctx).Warn("thumbnail could not be hashed", logger.Data{"dir": dir, "name": match.Name})
		return nil, false
	}
	return &Result{Match: match, Fingerprint: fp}, true
}

// ResolvePages picks a thumbnail among pages that have already been
// fingerprinted, so the result is always one of the keys of pages. Without a
// match the first page is used.
func (r *Resolver) ResolvePages(pages map[string]fingerprint.Fingerprint, hint *string, ownName string) (*Result, bool) {
	if len(pages) == 0 {
		return nil, false
	}

	keys := make([]string, 0, len(pages))
	for k := range pages {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	match, ok := r.Find(NewListSource(keys), hint, ownName)
	if !ok {
		match = Match{Name: keys[0], Tier: TierFirstPage}
	}
	return &Result{Match: match, Fingerprint: pages[match.Name]}, true
}

// UpdateHint returns the value a sidecar's thumbnail hint should have after
// resolution, and whether it differs from hint. A hint that picked a file is
// rewritten to that file's full name; a hint that picked nothing is
// cleared. Without a hint nothing is written.
func UpdateHint(hint *string, res *Result) (*string, bool) {
	if hint == nil {
		return nil, false
	}
	if res != nil && res.Tier.FromHint() {
		if res.Name == *hint {
			return hint, false
		}
		name := res.Name
		return &name, true
	}
	return nil, true
}
