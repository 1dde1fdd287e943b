package queue

import "github.com/climp-core/climp/internal/media"

// LoadFavorites reads a favorites M3U file into a fresh Playlist, preserving
// the duration annotations written by SaveFavorites.
func LoadFavorites(path string) (*Playlist, error) {
	entries, err := media.ParseFavoritesM3U(path)
	if err != nil {
		return nil, err
	}
	p := New()
	for _, e := range entries {
		p.Add(e.Path, e.DurationSeconds)
	}
	return p, nil
}

// SaveFavorites persists p as a favorites M3U file at path.
func SaveFavorites(path string, p *Playlist) error {
	nodes := p.Nodes()
	entries := make([]media.FavoriteEntry, 0, len(nodes))
	for _, n := range nodes {
		entries = append(entries, media.FavoriteEntry{Path: n.FilePath, DurationSeconds: n.DurationSeconds})
	}
	return media.WriteFavoritesM3U(path, entries)
}
