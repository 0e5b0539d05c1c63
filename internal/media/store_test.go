package media

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndURL(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, "/media/")
	require.NoError(t, err)

	url, err := s.Save("sess-1", "3EB0ABC", "image/jpeg", []byte{0xff, 0xd8, 0xff})
	require.NoError(t, err)
	assert.Equal(t, "/media/sess-1/3EB0ABC.jpg", url)

	data, err := os.ReadFile(filepath.Join(dir, "sess-1", "3EB0ABC.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)
}

func TestSaveSanitizesIDs(t *testing.T) {
	s, err := NewStore(t.TempDir(), "/media")
	require.NoError(t, err)

	url, err := s.Save("sess/../1", "id with spaces", "application/pdf", []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, "/media/sess_.._1/id_with_spaces.pdf", url)
	assert.NotContains(t, url, " ")
}

func TestReDownloadOverwrites(t *testing.T) {
	s, err := NewStore(t.TempDir(), "/media")
	require.NoError(t, err)

	_, err = s.Save("s1", "M1", "audio/ogg", []byte("one"))
	require.NoError(t, err)
	url, err := s.Save("s1", "M1", "audio/ogg", []byte("two"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(s.Dir(), "s1", "M1.ogg"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
	assert.Equal(t, "/media/s1/M1.ogg", url)
}

func TestUnknownMimeGetsBinExtension(t *testing.T) {
	s, err := NewStore(t.TempDir(), "/media")
	require.NoError(t, err)

	url, err := s.Save("s1", "M2", "application/x-unknown", []byte{1})
	require.NoError(t, err)
	assert.Equal(t, "/media/s1/M2.bin", url)
}
