package queue

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaylistAddDeleteCountInvariant(t *testing.T) {
	p := New()
	a := p.Add("/music/a.mp3", 10)
	b := p.Add("/music/b.mp3", 20)
	c := p.Add("/music/c.mp3", 30)

	assert.Equal(t, 3, p.Count())
	assertForwardBackwardAgree(t, p)

	p.Delete(b)
	assert.Equal(t, 2, p.Count())
	assert.Equal(t, c, a.Next)
	assert.Equal(t, a, c.Prev)
	assertForwardBackwardAgree(t, p)
}

func TestPlaylistFindByID(t *testing.T) {
	p := New()
	p.Add("/music/a.mp3", 1)
	b := p.Add("/music/b.mp3", 2)

	found := p.FindByID(b.ID)
	require.NotNil(t, found)
	assert.Equal(t, "/music/b.mp3", found.FilePath)

	assert.Nil(t, p.FindByID(999))
}

func TestPlaylistTotalDuration(t *testing.T) {
	p := New()
	p.Add("/a.mp3", 10)
	p.Add("/b.mp3", 15.5)
	assert.InDelta(t, 25.5, p.TotalDuration(), 1e-9)

	p.Add("/c.mp3", 4.5)
	assert.InDelta(t, 30.0, p.TotalDuration(), 1e-9)
}

func TestPlaylistDeepCopyIsIndependent(t *testing.T) {
	p := New()
	p.Add("/a.mp3", 1)
	n := p.Add("/b.mp3", 2)

	cp := p.DeepCopy()
	require.Equal(t, p.Count(), cp.Count())

	p.Delete(n)
	assert.Equal(t, 1, p.Count())
	assert.Equal(t, 2, cp.Count(), "deep copy must not be affected by mutating the source")
}

func TestShuffleFromPlacesCurrentFirst(t *testing.T) {
	p := New()
	p.Add("/a.mp3", 1)
	second := p.Add("/b.mp3", 1)
	p.Add("/c.mp3", 1)
	p.Add("/d.mp3", 1)

	rng := rand.New(rand.NewSource(1))
	shuffled := p.ShuffleFrom(second, rng)

	require.Equal(t, 4, shuffled.Count())
	assert.Equal(t, second.ID, shuffled.Head().ID)
}

func TestShuffleToggleRoundTripRestoresOrder(t *testing.T) {
	unshuffled := New()
	unshuffled.Add("/a.mp3", 1)
	unshuffled.Add("/b.mp3", 1)
	unshuffled.Add("/c.mp3", 1)

	rng := rand.New(rand.NewSource(42))
	active := unshuffled.ShuffleFrom(unshuffled.Head(), rng)
	assert.Equal(t, 3, active.Count())

	restored := unshuffled.DeepCopy()
	assertSameOrder(t, unshuffled, restored)
}

func assertForwardBackwardAgree(t *testing.T, p *Playlist) {
	t.Helper()
	forward := 0
	for n := p.Head(); n != nil; n = n.Next {
		forward++
	}
	backward := 0
	for n := p.Tail(); n != nil; n = n.Prev {
		backward++
	}
	assert.Equal(t, p.Count(), forward)
	assert.Equal(t, p.Count(), backward)
}

func assertSameOrder(t *testing.T, a, b *Playlist) {
	t.Helper()
	an, bn := a.Head(), b.Head()
	for an != nil && bn != nil {
		assert.Equal(t, an.ID, bn.ID)
		assert.Equal(t, an.FilePath, bn.FilePath)
		an, bn = an.Next, bn.Next
	}
	assert.Nil(t, an)
	assert.Nil(t, bn)
}
