package model

// PlaylistEntry is a single video listed in a playlist
type PlaylistEntry struct {
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
}

// Playlist is an expanded playlist whose entries can be submitted as a batch
type Playlist struct {
	ID      string           `json:"id"`
	URL     string           `json:"url"`
	Entries []*PlaylistEntry `json:"entries"`
}

// NewPlaylist creates a new playlist instance
func NewPlaylist(id, url string) *Playlist {
	return &Playlist{
		ID:      id,
		URL:     url,
		Entries: make([]*PlaylistEntry, 0),
	}
}

// AddEntry adds a video to the playlist, skipping duplicates and empty ids
func (p *Playlist) AddEntry(entry *PlaylistEntry) {
	if entry == nil || entry.VideoID == "" {
		return
	}
	for _, e := range p.Entries {
		if e.VideoID == entry.VideoID {
			return
		}
	}
	p.Entries = append(p.Entries, entry)
}

// URLs returns the watch URLs of all entries in playlist order
func (p *Playlist) URLs() []string {
	urls := make([]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		urls = append(urls, e.URL)
	}
	return urls
}
