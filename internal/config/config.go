// Package config loads process settings from $XDG_CONFIG_HOME/climp/config.yaml
// with CLIMP_* environment overrides, via viper. It models only the fields
// the playback core itself consumes; theming/keybinding configuration is
// out of scope.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ReplayGainMode names a gain-normalisation mode. Settings loads it; no
// part of the playback core reads it or applies gain.
type ReplayGainMode string

const (
	ReplayGainOff   ReplayGainMode = "off"
	ReplayGainTrack ReplayGainMode = "track"
	ReplayGainAlbum ReplayGainMode = "album"
)

// Settings is the subset of user configuration the playback core reads.
type Settings struct {
	MusicRoots         []string       `mapstructure:"music_roots"`
	FavoritesPath      string         `mapstructure:"favorites_path"`
	LibraryCachePath   string         `mapstructure:"library_cache_path"`
	RadioFavoritesPath string         `mapstructure:"radio_favorites_path"`
	ReplayGain         ReplayGainMode `mapstructure:"replay_gain"`
	DefaultShuffle     bool           `mapstructure:"default_shuffle"`
	DefaultRepeat      string         `mapstructure:"default_repeat"`
}

// Load reads config.yaml from $XDG_CONFIG_HOME/climp (falling back to
// ~/.config/climp), applying CLIMP_* environment overrides, e.g.
// CLIMP_MUSIC_ROOTS or CLIMP_REPLAY_GAIN.
func Load() (Settings, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir())

	v.SetEnvPrefix("CLIMP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("replay_gain", string(ReplayGainOff))
	v.SetDefault("default_shuffle", false)
	v.SetDefault("default_repeat", "off")
	v.SetDefault("favorites_path", filepath.Join(configDir(), "favorites.m3u"))
	v.SetDefault("library_cache_path", filepath.Join(configDir(), "library.cache"))
	v.SetDefault("radio_favorites_path", filepath.Join(configDir(), "radio_favorites.txt"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Settings{}, err
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "climp")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/climp"
	}
	return filepath.Join(home, ".config", "climp")
}
