// Package player reads playback state from an MPRIS media player on the
// D-Bus session bus and turns it into scheduler samples.
package player

import (
	"context"
	"errors"
	"fmt"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/services/syncer"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"
)

const (
	mprisPrefix      = "org.mpris.MediaPlayer2."
	mprisPath        = "/org/mpris/MediaPlayer2"
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"
)

// ErrNoPlayer is returned when no MPRIS player is on the bus.
var ErrNoPlayer = errors.New("no mpris player found")

// PropertySource reads D-Bus properties. dbus.BusObject implements it.
type PropertySource interface {
	GetProperty(p string) (dbus.Variant, error)
}

// Track is the metadata of the playing item.
type Track struct {
	Title           string
	Artist          string
	Album           string
	TrackID         string
	URL             string
	DurationSeconds float64
}

// Params converts the track into a lookup.
func (t *Track) Params() providers.Params {
	return providers.Params{
		Song:            t.Title,
		Artist:          t.Artist,
		Album:           t.Album,
		DurationSeconds: t.DurationSeconds,
		MediaID:         t.TrackID,
	}
}

// IsVideo guesses whether the item is a video release from its URL.
func (t *Track) IsVideo() bool {
	if t.URL == "" {
		return false
	}
	u, err := url.Parse(t.URL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(u.Host, "www.")
	if host == "youtube.com" || host == "youtu.be" || host == "music.youtube.com" {
		return u.Query().Get("v") != "" || host == "youtu.be"
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".mp4", ".mkv", ".webm", ".mov", ".avi":
		return true
	}
	return false
}

// Same reports whether other describes the same item.
func (t *Track) Same(other *Track) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.TrackID != "" && other.TrackID != "" {
		return t.TrackID == other.TrackID
	}
	return t.Title == other.Title && t.Artist == other.Artist && t.Album == other.Album
}

// Player polls one MPRIS player.
type Player struct {
	obj PropertySource
	now func() time.Time
}

// New wraps a player object.
func New(obj PropertySource) *Player {
	return &Player{obj: obj, now: time.Now}
}

// ListPlayers returns the MPRIS bus names on conn.
func ListPlayers(conn *dbus.Conn) ([]string, error) {
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return nil, fmt.Errorf("failed to list dbus names: %w", err)
	}
	var players []string
	for _, name := range names {
		if strings.HasPrefix(name, mprisPrefix) {
			players = append(players, name)
		}
	}
	return players, nil
}

// Connect opens the session bus and attaches to service, or to the first
// player found when service is empty. The caller closes the connection.
func Connect(service string) (*Player, *dbus.Conn, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	if service == "" {
		players, err := ListPlayers(conn)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		if len(players) == 0 {
			conn.Close()
			return nil, nil, ErrNoPlayer
		}
		service = players[0]
	} else if !strings.HasPrefix(service, mprisPrefix) {
		service = mprisPrefix + service
	}

	log.Infof("%s Following %s", logcolors.LogPlayer, service)
	return New(conn.Object(service, mprisPath)), conn, nil
}

// Track reads the current metadata.
func (p *Player) Track() (*Track, error) {
	prop, err := p.obj.GetProperty(mprisPlayerIface + ".Metadata")
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata property: %w", err)
	}
	metadata, ok := prop.Value().(map[string]dbus.Variant)
	if !ok {
		return nil, fmt.Errorf("unexpected metadata type %T", prop.Value())
	}

	t := &Track{
		Title:           stringValue(metadata, "xesam:title"),
		Artist:          firstString(metadata, "xesam:artist"),
		Album:           stringValue(metadata, "xesam:album"),
		URL:             stringValue(metadata, "xesam:url"),
		DurationSeconds: microsToSeconds(metadata["mpris:length"].Value()),
	}
	if id, ok := metadata["mpris:trackid"].Value().(dbus.ObjectPath); ok {
		t.TrackID = string(id)
	} else {
		t.TrackID = stringValue(metadata, "mpris:trackid")
	}
	if t.Title == "" {
		return nil, errors.New("missing title in metadata")
	}
	return t, nil
}

// Sample reads position and playback status.
func (p *Player) Sample() (syncer.Sample, error) {
	status, err := p.obj.GetProperty(mprisPlayerIface + ".PlaybackStatus")
	if err != nil {
		return syncer.Sample{}, fmt.Errorf("failed to get playback status: %w", err)
	}
	pos, err := p.obj.GetProperty(mprisPlayerIface + ".Position")
	if err != nil {
		return syncer.Sample{}, fmt.Errorf("failed to get position property: %w", err)
	}

	playing, _ := status.Value().(string)
	return syncer.Sample{
		PositionSeconds:    microsToSeconds(pos.Value()),
		CaptureWallClockMs: p.now().UnixMilli(),
		IsPlaying:          playing == "Playing",
	}, nil
}

// Snapshot is one poll.
type Snapshot struct {
	Track        *Track
	Sample       syncer.Sample
	TrackChanged bool
}

// Watch polls every interval until ctx is done. Poll failures (a player
// between tracks, or restarting) are skipped.
func (p *Player) Watch(ctx context.Context, interval time.Duration, fn func(Snapshot)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var current *Track
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if snap, err := p.poll(current); err != nil {
			log.Debugf("%s Poll failed: %v", logcolors.LogPlayer, err)
		} else {
			current = snap.Track
			fn(snap)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Player) poll(current *Track) (Snapshot, error) {
	t, err := p.Track()
	if err != nil {
		return Snapshot{}, err
	}
	sample, err := p.Sample()
	if err != nil {
		return Snapshot{}, err
	}
	changed := !t.Same(current)
	if changed {
		log.Infof("%s Now playing %q by %q", logcolors.LogPlayer, t.Title, t.Artist)
	}
	return Snapshot{Track: t, Sample: sample, TrackChanged: changed}, nil
}

func stringValue(metadata map[string]dbus.Variant, key string) string {
	s, _ := metadata[key].Value().(string)
	return s
}

func firstString(metadata map[string]dbus.Variant, key string) string {
	switch v := metadata[key].Value().(type) {
	case []string:
		return strings.Join(v, ", ")
	case string:
		return v
	default:
		return ""
	}
}

func microsToSeconds(v any) float64 {
	switch n := v.(type) {
	case int64:
		if n > 0 {
			return float64(n) / 1e6
		}
	case uint64:
		return float64(n) / 1e6
	case int32:
		if n > 0 {
			return float64(n) / 1e6
		}
	}
	return 0
}
