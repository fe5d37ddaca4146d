// Package hostref turns the lyrics text a host page already shows into a
// low-latency reference source.
package hostref

import (
	"context"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/providers"
)

const (
	// ProviderName is the identifier for the host reference provider
	ProviderName = "hostref"

	// SourceLabel is shown to users as the lyrics origin
	SourceLabel = "Host"
)

// HostRefProvider builds unsynced lines from Params.ReferenceLyrics. It never
// touches the network.
type HostRefProvider struct{}

// NewProvider creates a new host reference provider
func NewProvider() *HostRefProvider {
	return &HostRefProvider{}
}

// Name returns the provider identifier
func (p *HostRefProvider) Name() string {
	return ProviderName
}

// Sources returns the slots one fetch fills
func (p *HostRefProvider) Sources() []providers.SourceID {
	return []providers.SourceID{providers.SourceHostPlain}
}

// Fetch splits the reference text into lines. Results are never cacheable:
// the text belongs to the host page.
func (p *HostRefProvider) Fetch(ctx context.Context, params providers.Params) (map[providers.SourceID]*providers.Result, error) {
	doc := lyrics.FromPlainText(params.ReferenceLyrics)
	if doc == nil {
		return nil, providers.NewProviderError(ProviderName, "no reference lyrics supplied", providers.ErrNoLyrics)
	}
	return map[providers.SourceID]*providers.Result{
		providers.SourceHostPlain: {
			Document:    doc,
			SourceLabel: SourceLabel,
		},
	}, nil
}

// init registers the host reference provider with the global registry
func init() {
	providers.Register(NewProvider())
}
