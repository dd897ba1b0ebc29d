package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFilename(t *testing.T) {
	assert.Equal(t, "holiday_square_1091x1000.jpg", OutputFilename("holiday", "_square", 1091, 1000, "jpg"))
	assert.Equal(t, "holiday_546x500.webp", OutputFilename("holiday", "", 546, 500, "webp"))
	assert.Equal(t, "a_b_wide_10x5.jpg", OutputFilename("a:b", "_wide", 10, 5, "jpg"))
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "photo", BaseName("/tmp/photo.JPG"))
	assert.Equal(t, "archive.tar", BaseName("archive.tar.gz"))
	assert.Equal(t, "noext", BaseName("noext"))
}

func TestGetFileExtension(t *testing.T) {
	assert.Equal(t, "jpg", GetFileExtension("a/b/Photo.JPG"))
	assert.Equal(t, "", GetFileExtension("README"))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", SanitizeFilename(" a/b\\c. "))
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "1.5 KB", FormatFileSize(1536))
	assert.Equal(t, "2.0 MB", FormatFileSize(2*1024*1024))
}

func TestEnsureDirAndFileExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))

	assert.False(t, FileExists(dir))

	file := filepath.Join(dir, "x.jpg")
	require.NoError(t, os.WriteFile(file, []byte{1}, 0o644))
	assert.True(t, FileExists(file))
	assert.False(t, FileExists(filepath.Join(dir, "missing.jpg")))
}
