package legacy

// OAuthTokenResponse is the client-credentials token reply.
type OAuthTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

// TrackResponse is the catalog search reply.
type TrackResponse struct {
	Tracks struct {
		Items []TrackItem `json:"items"`
	} `json:"tracks"`
}

// TrackItem is one catalog hit.
type TrackItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
}

// LyricsResponse wraps LyricsData.
type LyricsResponse struct {
	Lyrics LyricsData `json:"lyrics"`
}

// LyricsData is the line-synced payload. SyncType is "LINE_SYNCED" or
// "UNSYNCED".
type LyricsData struct {
	SyncType string       `json:"syncType"`
	Language string       `json:"language"`
	Lines    []LegacyLine `json:"lines"`
}

// LegacyLine carries its times as decimal strings.
type LegacyLine struct {
	StartTimeMs string `json:"startTimeMs"`
	EndTimeMs   string `json:"endTimeMs"`
	Words       string `json:"words"`
}
