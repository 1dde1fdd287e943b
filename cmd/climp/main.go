// Command climp is the playback-core CLI: it enqueues local files or a
// music-root directory, drives the Engine, and prints transport events to
// the terminal. Rendering a visualiser or a full TUI is out of scope here;
// this is the thin shell that exercises the engine end to end.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/climp-core/climp/internal/config"
	"github.com/climp-core/climp/internal/event"
	"github.com/climp-core/climp/internal/library"
	"github.com/climp-core/climp/internal/logging"
	"github.com/climp-core/climp/internal/media"
	"github.com/climp-core/climp/internal/player"
	"github.com/climp-core/climp/internal/procguard"
	"github.com/climp-core/climp/internal/queue"
	"github.com/climp-core/climp/internal/util"
)

func main() {
	log := logging.New("main")

	pidPath, err := procguard.Acquire()
	if err != nil {
		fmt.Fprintf(os.Stderr, "climp: %v\n", err)
		os.Exit(1)
	}
	defer procguard.Release(pidPath)

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: climp <file-or-directory> [more files...]\n")
		os.Exit(1)
	}

	settings, err := config.Load()
	if err != nil {
		log.Warn("config load failed, using defaults", "err", err)
	}

	playlist, err := buildPlaylist(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "climp: %v\n", err)
		os.Exit(1)
	}
	if playlist.Count() == 0 {
		fmt.Fprintf(os.Stderr, "climp: no playable audio files found\n")
		os.Exit(1)
	}

	bus := event.NewBus()
	sub, cancel := bus.Subscribe()
	defer cancel()

	eng := player.NewEngine(bus)
	eng.LoadPlaylist(playlist)

	if settings.DefaultShuffle {
		eng.ShuffleToggle()
	}

	go logEvents(log, sub)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	_, activePlaylist, _ := eng.Playlists()
	head := activePlaylist.Head()
	if rc := eng.Play(head); rc != 0 {
		fmt.Fprintf(os.Stderr, "climp: failed to play %s\n", head.FilePath)
		os.Exit(1)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			eng.Stop()
			return
		case <-ticker.C:
			clk := eng.Clock()
			duration := time.Duration(head.DurationSeconds * float64(time.Second))
			clk.Tick(duration)
			fmt.Printf("\r%s / %s", util.FormatDuration(clk.Elapsed()), head.FilePath)
		}
	}
}

// buildPlaylist expands each argument: a file is enqueued directly, a
// directory is scanned into a Library tree and every supported audio file
// under it is enqueued in tree order.
func buildPlaylist(args []string) (*queue.Playlist, error) {
	p := queue.New()
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if media.IsSupportedExt(filepath.Ext(arg)) {
				p.Add(arg, 0)
			}
			continue
		}

		lib, err := library.Scan(arg)
		if err != nil {
			return nil, err
		}
		enqueueDir(p, lib, lib.Root(), arg)
	}
	return p, nil
}

func enqueueDir(p *queue.Playlist, lib *library.Library, dir *library.LibraryEntry, base string) {
	for _, childID := range dir.ChildIDs {
		child, ok := lib.Entry(childID)
		if !ok {
			continue
		}
		full := filepath.Join(base, lib.FullPath(child.ID))
		if child.IsDirectory {
			enqueueDir(p, lib, child, base)
			continue
		}
		if media.IsSupportedExt(filepath.Ext(full)) {
			p.Add(full, 0)
		}
	}
}

func logEvents(log logging.Logger, sub <-chan event.Event) {
	for ev := range sub {
		switch ev.Kind {
		case event.KindTrackChanged:
			log.Info("track changed", "file", ev.FilePath)
		case event.KindPlaybackStatus:
			log.Info("playback status", "status", ev.Status)
		case event.KindError:
			log.Error("playback error", "message", ev.ErrorMessage)
		}
	}
}
