package library

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSample(t *testing.T) (*Library, int32, int32) {
	t.Helper()
	l := New("Music")
	albumID, err := l.AddChild(0, "Album", true)
	require.NoError(t, err)
	trackID, err := l.AddChild(albumID, "track01.mp3", false)
	require.NoError(t, err)
	return l, albumID, trackID
}

func TestSetEnqueuedPropagatesToAncestors(t *testing.T) {
	l, albumID, trackID := buildSample(t)

	require.NoError(t, l.SetEnqueued(trackID, true))

	album, ok := l.Entry(albumID)
	require.True(t, ok)
	assert.True(t, album.IsEnqueued)

	require.NoError(t, l.SetEnqueued(trackID, false))
	album, _ = l.Entry(albumID)
	assert.False(t, album.IsEnqueued)
}

func TestSetEnqueuedKeepsAncestorTrueWithOtherDescendant(t *testing.T) {
	l, albumID, trackID := buildSample(t)
	track2ID, err := l.AddChild(albumID, "track02.mp3", false)
	require.NoError(t, err)

	require.NoError(t, l.SetEnqueued(trackID, true))
	require.NoError(t, l.SetEnqueued(track2ID, true))
	require.NoError(t, l.SetEnqueued(trackID, false))

	album, _ := l.Entry(albumID)
	assert.True(t, album.IsEnqueued, "album must stay enqueued while track02 still is")
}

func TestFullPath(t *testing.T) {
	l, albumID, trackID := buildSample(t)
	assert.Equal(t, "Album", l.FullPath(albumID))
	assert.Equal(t, "Album/track01.mp3", l.FullPath(trackID))
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	l, _, trackID := buildSample(t)
	require.NoError(t, l.SetEnqueued(trackID, true))

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, Serialize(l, w))

	reloaded, err := Deserialize(bufio.NewReader(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)

	var buf2 bytes.Buffer
	w2 := bufio.NewWriter(&buf2)
	require.NoError(t, Serialize(reloaded, w2))

	assert.Equal(t, buf.String(), buf2.String(), "serialise -> deserialise -> serialise must be byte-identical")
}
