package local

import (
	"context"
	"fmt"
	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/notifier"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/services/timedtext"
	"lyrics-sync-go/utils"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

const (
	// ProviderName is the identifier for the local folder provider
	ProviderName = "local"

	// SourceLabel is shown to users as the lyrics origin
	SourceLabel = "Local"
)

// Default is the registered instance, kept so the host can start its watcher.
var Default *LocalProvider

// LocalProvider serves lyric files from a folder.
type LocalProvider struct {
	index     *Index
	buildOnce sync.Once
}

// NewProvider creates a provider for dir. An empty dir disables it.
func NewProvider(dir string) *LocalProvider {
	p := &LocalProvider{}
	if dir != "" {
		p.index = NewIndex(dir)
	}
	return p
}

// Name returns the provider identifier
func (p *LocalProvider) Name() string {
	return ProviderName
}

// Sources returns the slots one fetch fills
func (p *LocalProvider) Sources() []providers.SourceID {
	return []providers.SourceID{providers.SourceLocalSynced}
}

// Index returns the file index, or nil when no folder is configured.
func (p *LocalProvider) Index() *Index {
	return p.index
}

// ensureIndex builds the index on first use.
func (p *LocalProvider) ensureIndex() {
	p.buildOnce.Do(func() {
		if err := p.index.Rebuild(); err != nil {
			log.Warnf("%s %v", logcolors.LogLocal, err)
			notifier.PublishLocalIndexFailed(p.index.Dir(), err)
		}
	})
}

// Watch builds the index and keeps it current until ctx is done.
func (p *LocalProvider) Watch(ctx context.Context) error {
	if p.index == nil {
		return nil
	}
	p.ensureIndex()
	return p.index.Watch(ctx)
}

// Fetch reads and parses the matching file
func (p *LocalProvider) Fetch(ctx context.Context, params providers.Params) (map[providers.SourceID]*providers.Result, error) {
	if p.index == nil {
		return nil, nil
	}
	p.ensureIndex()

	path, ok := p.index.Lookup(params.Artist, params.Song)
	if !ok {
		return nil, providers.NewProviderError(ProviderName,
			fmt.Sprintf("no file for %s - %s", params.Artist, params.Song), providers.ErrNoLyrics)
	}

	doc, err := ReadFile(path, params.DurationMs())
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "failed to load "+filepath.Base(path), err)
	}

	log.Infof("%s Loaded %s (%d lines, %s sync)", logcolors.LogLocal, filepath.Base(path), len(doc.Lines), doc.SyncGranularity())

	return map[providers.SourceID]*providers.Result{
		providers.SourceLocalSynced: {
			Document:    doc,
			SourceLabel: SourceLabel,
			SourceLink:  "file://" + filepath.ToSlash(path),
		},
	}, nil
}

// ReadFile parses an .lrc or .ttml file, decoding legacy GBK text if needed.
func ReadFile(path string, songDurationMs int64) (*lyrics.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	content, err := utils.DecodeText(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ExtTTML:
		return timedtext.ParseTTML(content, songDurationMs)
	default:
		doc, _, err := timedtext.ParseLRC(content, songDurationMs)
		return doc, err
	}
}

// init registers the local provider with the global registry
func init() {
	Default = NewProvider(config.Get().Configuration.LocalLyricsDir)
	providers.Register(Default)
}
