package kugou

// SearchResponse is the lyrics search reply.
type SearchResponse struct {
	Status     int               `json:"status"`
	ErrCode    int               `json:"errcode"`
	ErrMsg     string            `json:"errmsg"`
	Candidates []LyricsCandidate `json:"candidates"`
}

// LyricsCandidate is one lyrics upload matching a song hash.
type LyricsCandidate struct {
	ID          string `json:"id"`
	AccessKey   string `json:"accesskey"`
	ProductFrom string `json:"product_from"` // "官方..." for official uploads
	Singer      string `json:"singer"`
	Song        string `json:"song"`
	Duration    int64  `json:"duration"` // ms
	Language    string `json:"language"`
	KRCType     int    `json:"krctype"` // 1 = synced
	Score       int    `json:"score"`
}

// DownloadResponse carries one candidate's LRC, base64-encoded.
type DownloadResponse struct {
	Status    int    `json:"status"`
	Info      string `json:"info"`
	ErrorCode int    `json:"error_code"`
	Content   string `json:"content"`
}

// SongSearchResponse is the song search reply.
type SongSearchResponse struct {
	Status  int `json:"status"`
	ErrCode int `json:"errcode"`
	Data    struct {
		Info []SongInfo `json:"info"`
	} `json:"data"`
}

// SongInfo is one song search hit. Each quality tier has its own hash.
type SongInfo struct {
	Hash       string `json:"hash"`
	SQHash     string `json:"sqhash"`
	Hash320    string `json:"320hash"`
	SongName   string `json:"songname"`
	SingerName string `json:"singername"`
	Duration   int64  `json:"duration"` // seconds
}
