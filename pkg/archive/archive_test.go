package archive

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yomuyume/yomuyume/pkg/errcodes"
	"github.com/yomuyume/yomuyume/pkg/testutils"
)

func TestHash(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.zip")
	b := filepath.Join(dir, "b.zip")
	c := filepath.Join(dir, "c.zip")
	testutils.WriteFile(t, a, []byte("same bytes"))
	testutils.WriteFile(t, b, []byte("same bytes"))
	testutils.WriteFile(t, c, []byte("other bytes"))

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	hc, err := Hash(c)
	require.NoError(t, err)

	assert.Len(t, ha, 32)
	assert.Equal(t, ha, hb)
	assert.NotEqual(t, ha, hc)

	_, err = Hash(filepath.Join(dir, "missing.zip"))
	assert.ErrorIs(t, err, errcodes.ErrFilesystem)
}

func TestOpen_NotZip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "fake.cbz")
	testutils.WriteFile(t, p, []byte("this is plain text, not an archive"))

	_, err := Open(p)
	assert.ErrorIs(t, err, errcodes.ErrArchive)
}

func TestMembersAndExtract(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "title.cbz")
	png := testutils.PNG(t, 4, 4, color.RGBA{R: 10})
	testutils.WriteZip(t, p, []testutils.Member{
		{Name: "2.png", Content: png},
		{Name: "1.png", Content: png},
		{Name: "chapter/3.png", Content: png},
		{Name: "notes.txt", Content: []byte("hi")},
	})

	a, err := Open(p)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{"1.png", "2.png", "chapter/3.png", "notes.txt"}, a.Members())

	dest := filepath.Join(dir, "scratch")
	names, err := a.Extract(dest, func(name string) bool {
		return filepath.Ext(name) == ".png"
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.png", "2.png", "chapter/3.png"}, names)

	data, err := os.ReadFile(filepath.Join(dest, "chapter", "3.png"))
	require.NoError(t, err)
	assert.Equal(t, png, data)
	assert.NoFileExists(t, filepath.Join(dest, "notes.txt"))
}

func TestExtract_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "evil.zip")
	testutils.WriteZip(t, p, []testutils.Member{
		{Name: "../../escape.png", Content: []byte("x")},
	})

	a, err := Open(p)
	require.NoError(t, err)
	defer a.Close()

	dest := filepath.Join(dir, "scratch")
	_, err = a.Extract(dest, nil)
	// The member is re-rooted under dest rather than escaping it.
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dest, "escape.png"))
	assert.NoFileExists(t, filepath.Join(dir, "escape.png"))
}

func TestMemberPath(t *testing.T) {
	root := "/tmp/scratch"
	target, ok := MemberPath(root, "a/b.png")
	assert.True(t, ok)
	assert.Equal(t, "/tmp/scratch/a/b.png", target)

	target, ok = MemberPath(root, "../../etc/passwd")
	assert.True(t, ok)
	assert.Equal(t, "/tmp/scratch/etc/passwd", target)

	_, ok = MemberPath(root, "..")
	assert.False(t, ok)
}
