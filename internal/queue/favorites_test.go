package queue

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadFavoritesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "favorites.m3u")

	p := New()
	p.Add(filepath.Join(dir, "one.mp3"), 180)
	p.Add(filepath.Join(dir, "two.flac"), 240)

	if err := SaveFavorites(path, p); err != nil {
		t.Fatalf("SaveFavorites() error = %v", err)
	}

	got, err := LoadFavorites(path)
	if err != nil {
		t.Fatalf("LoadFavorites() error = %v", err)
	}
	if got.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", got.Count())
	}

	want := p.Nodes()
	gotNodes := got.Nodes()
	for i := range want {
		if gotNodes[i].FilePath != want[i].FilePath || gotNodes[i].DurationSeconds != want[i].DurationSeconds {
			t.Fatalf("node %d = %+v, want %+v", i, gotNodes[i], want[i])
		}
	}
}
