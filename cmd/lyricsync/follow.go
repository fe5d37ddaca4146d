package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/player"
	"lyrics-sync-go/services/providers/local"
	"lyrics-sync-go/services/reconcile"
	"lyrics-sync-go/services/session"
	"lyrics-sync-go/services/syncer"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	pollInterval time.Duration
	viewport     int
)

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "print the active lyric line of the playing track",
	Long: `polls the mpris player, loads lyrics on every track change and prints
each line as it becomes active.`,
	RunE: runFollow,
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, followCmd} {
		c.Flags().DurationVar(&pollInterval, "interval", 100*time.Millisecond, "player poll interval")
		c.Flags().IntVar(&viewport, "viewport", 10, "visible rows used for scroll targeting")
	}
	rootCmd.AddCommand(followCmd)
}

// follower connects a session to a scheduler and prints line changes.
type follower struct {
	out       io.Writer
	session   *session.Session
	scheduler *syncer.Scheduler
	viewport  int

	// mu orders installs against track changes.
	mu         sync.Mutex
	lastActive int
}

func newFollower(out io.Writer, r session.Reconciler, settings syncer.Settings, viewport int) *follower {
	f := &follower{
		out:        out,
		session:    session.New(r),
		scheduler:  syncer.New(settings, syncer.RowLayout{Viewport: viewport}),
		viewport:   viewport,
		lastActive: -1,
	}
	f.session.OnCommit(f.install)
	return f
}

// install swaps the scheduler onto a committed document. Commits arrive on
// the loading goroutine. A commit that lost to a track change is dropped.
func (f *follower) install(c session.Commit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.Generation != f.session.Generation() {
		return
	}
	f.scheduler.SetLayout(syncer.RowLayout{Lines: len(c.Document.Lines), Viewport: f.viewport})
	f.scheduler.SetDocument(c.Document)
	f.scheduler.SetTicking(true)

	label := string(c.Outcome.Source)
	if c.Provisional {
		label += " (provisional)"
	}
	if c.Document.IsNotFound() {
		fmt.Fprintln(f.out, "-- no lyrics found")
		return
	}
	fmt.Fprintf(f.out, "-- %s, %d lines, %s sync\n", label, len(c.Document.Lines), c.Document.SyncGranularity())
	if c.Document.SyncGranularity() == lyrics.SyncNone {
		for _, line := range c.Document.Lines {
			fmt.Fprintln(f.out, line.Text)
		}
	}
}

// trackChanged starts a load for t. The previous track's load loses its
// generation before this returns, so it can no longer install.
func (f *follower) trackChanged(ctx context.Context, t *player.Track) {
	req := session.Request{Request: reconcile.Request{Params: t.Params(), MediaIsVideo: t.IsVideo()}}

	f.mu.Lock()
	ticket := f.session.Begin(req)
	f.scheduler.SetDocument(nil)
	f.lastActive = -1
	fmt.Fprintf(f.out, "\n== %s - %s\n", t.Artist, t.Title)
	f.mu.Unlock()

	go func() {
		if _, err := ticket.Run(ctx); err != nil && !errors.Is(err, session.ErrSuperseded) && ctx.Err() == nil {
			log.Errorf("%s Load failed: %v", logcolors.LogSession, err)
		}
	}()
}

// tick advances the scheduler and prints the active line when it changes.
func (f *follower) tick(sample syncer.Sample, nowMs int64) {
	frame := f.scheduler.Tick(sample, nowMs)
	if frame.ActiveLine < 0 || frame.ActiveLine == f.lastActive {
		return
	}
	c := f.session.Current()
	if c == nil || frame.ActiveLine >= len(c.Document.Lines) {
		return
	}
	f.lastActive = frame.ActiveLine
	line := c.Document.Lines[frame.ActiveLine]
	text := line.Text
	if line.Translation != nil {
		text += "  (" + line.Translation.Text + ")"
	}
	fmt.Fprintf(f.out, "[%s] %s\n", formatTimestamp(float64(line.StartTimeMs)/1000), text)
}

func (f *follower) handle(ctx context.Context, snap player.Snapshot) {
	if snap.TrackChanged {
		f.trackChanged(ctx, snap.Track)
	}
	f.tick(snap.Sample, time.Now().UnixMilli())
}

func runFollow(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, conn, err := player.Connect(mprisService)
	if err != nil {
		return fmt.Errorf("failed to attach to a player: %w", err)
	}
	defer conn.Close()

	if config.Get().Configuration.LocalLyricsDir != "" {
		go func() {
			if err := local.Default.Watch(ctx); err != nil && ctx.Err() == nil {
				log.Warnf("%s Local lyrics will not refresh: %v", logcolors.LogWatcher, err)
			}
		}()
	}

	f := newFollower(cmd.OutOrStdout(), reconcile.NewEngineFromConfig(), syncer.SettingsFromConfig(), viewport)
	err = p.Watch(ctx, pollInterval, func(snap player.Snapshot) { f.handle(ctx, snap) })
	f.session.Cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func formatTimestamp(seconds float64) string {
	minutes := int(seconds) / 60
	secs := seconds - float64(minutes*60)
	return fmt.Sprintf("%d:%05.2f", minutes, secs)
}
