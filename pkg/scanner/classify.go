package scanner

import (
	"github.com/yomuyume/yomuyume/pkg/models"
)

// Outcome is what a pass does with one title archive.
type Outcome int

const (
	// OutcomeUnchanged means the archive's bytes match the stored title at
	// the same path. Only metadata is refreshed.
	OutcomeUnchanged Outcome = iota + 1
	// OutcomeMoved means the archive is byte-identical to a title whose
	// stored path no longer exists. That title is repointed at the new path
	// and its pages are kept. A copy whose original is still on disk is not
	// moved; it becomes a new title.
	OutcomeMoved
	// OutcomeReencode means the archive is new or its bytes changed, so its
	// pages have to be extracted and hashed.
	OutcomeReencode
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeMoved:
		return "moved"
	case OutcomeReencode:
		return "encoded"
	default:
		return "unknown"
	}
}

// Decision is the result of classifying a title archive.
type Decision struct {
	Outcome Outcome
	// Title is the stored row the outcome applies to. It is nil when a
	// brand-new title has to be inserted.
	Title *models.Title
	// Replaced is the row stored at the archive's path when a moved title
	// is being put in its place. It has to be deleted first.
	Replaced *models.Title
}

// classify decides what to do with an archive whose content hash is hash.
// byPath is the title stored at the archive's path, and moved is a title with
// the same hash whose own archive is gone. Either may be nil.
func classify(byPath, moved *models.Title, hash string) Decision {
	if byPath != nil && byPath.Hash == hash {
		return Decision{Outcome: OutcomeUnchanged, Title: byPath}
	}
	if moved != nil {
		return Decision{Outcome: OutcomeMoved, Title: moved, Replaced: byPath}
	}
	return Decision{Outcome: OutcomeReencode, Title: byPath}
}

// findMoved returns the first candidate that isn't stored at path and whose
// stored path no longer exists. A candidate whose archive still exists is a
// copy, not a rename.
func findMoved(candidates []*models.Title, path string, exists func(string) bool) *models.Title {
	for _, c := range candidates {
		if c.Path == path {
			continue
		}
		if !exists(c.Path) {
			return c
		}
	}
	return nil
}
