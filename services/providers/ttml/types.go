package ttml

// SearchResponse is the catalog search reply; only songs are requested.
type SearchResponse struct {
	Results struct {
		Songs struct {
			Data []Track `json:"data"`
		} `json:"songs"`
	} `json:"results"`
}

// Track is one catalog song.
type Track struct {
	ID         string `json:"id"`
	Attributes struct {
		Name             string `json:"name"`
		ArtistName       string `json:"artistName"`
		AlbumName        string `json:"albumName"`
		DurationInMillis int64  `json:"durationInMillis"`
		URL              string `json:"url"`
	} `json:"attributes"`
}

// LyricsResponse carries the TTML body. Some songs only have it under
// ttmlLocalizations.
type LyricsResponse struct {
	Data []struct {
		Attributes struct {
			TTML              string `json:"ttml"`
			TTMLLocalizations string `json:"ttmlLocalizations"`
		} `json:"attributes"`
	} `json:"data"`
}

// TrackScore is the weighted match of a track against the query. Every
// component is in [0, 1].
type TrackScore struct {
	Track       *Track
	TotalScore  float64
	NameScore   float64
	ArtistScore float64
	AlbumScore  float64
}
