package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenNoConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.ReplayGain != ReplayGainOff {
		t.Fatalf("ReplayGain = %q, want %q", s.ReplayGain, ReplayGainOff)
	}
	if s.DefaultShuffle {
		t.Fatal("DefaultShuffle should default to false")
	}
	if s.DefaultRepeat != "off" {
		t.Fatalf("DefaultRepeat = %q, want off", s.DefaultRepeat)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	confDir := filepath.Join(dir, "climp")
	if err := os.MkdirAll(confDir, 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := "music_roots:\n  - /music\nreplay_gain: album\ndefault_shuffle: true\n"
	if err := os.WriteFile(filepath.Join(confDir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(s.MusicRoots) != 1 || s.MusicRoots[0] != "/music" {
		t.Fatalf("MusicRoots = %v, want [/music]", s.MusicRoots)
	}
	if s.ReplayGain != ReplayGainAlbum {
		t.Fatalf("ReplayGain = %q, want album", s.ReplayGain)
	}
	if !s.DefaultShuffle {
		t.Fatal("DefaultShuffle should be true from config file")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	confDir := filepath.Join(dir, "climp")
	if err := os.MkdirAll(confDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(confDir, "config.yaml"), []byte("replay_gain: track\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CLIMP_REPLAY_GAIN", "album")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.ReplayGain != ReplayGainAlbum {
		t.Fatalf("ReplayGain = %q, want album (env should override file)", s.ReplayGain)
	}
}
