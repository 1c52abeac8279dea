package errcodes

import (
	"io/fs"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestNotFound(t *testing.T) {
	err := errors.WithStack(NotFound("Title"))

	assert.ErrorIs(t, err, NotFound("Title"))
	assert.NotErrorIs(t, err, NotFound("Category"))
	assert.Equal(t, "Title not found.", err.Error())
}

func TestKinds(t *testing.T) {
	err := errors.Wrap(Archive(fs.ErrNotExist, "failed to open %s", "a.zip"), "title")

	assert.ErrorIs(t, err, ErrArchive)
	assert.NotErrorIs(t, err, ErrFilesystem)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, "title: failed to open a.zip: file does not exist", err.Error())

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, KindArchive, e.Kind)
}

func TestWithoutCause(t *testing.T) {
	err := Subprocess(nil, "djxl is not configured")
	assert.Equal(t, "djxl is not configured", err.Error())
	assert.ErrorIs(t, err, ErrSubprocess)
}
