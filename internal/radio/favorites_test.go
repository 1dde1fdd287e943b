package radio

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "radio_favorites.txt")

	stations := []Station{
		{Name: "Radio One", URLResolved: "http://example.com/stream", Country: "UK", Codec: "MP3", Bitrate: 128, Votes: 42},
		{Name: "Weird:::Name", URLResolved: "http://example.com/2", Country: "US", Codec: "AAC", Bitrate: 96, Votes: 0},
	}

	require.NoError(t, Save(path, stations))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, "Radio One", loaded[0].Name)
	assert.Equal(t, 128, loaded[0].Bitrate)
	assert.NotContains(t, loaded[1].Name, fieldSep, "separator must be sanitised out of a field value")
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
