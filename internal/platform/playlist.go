package platform

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/ytdlp/v2"

	"github.com/ytget/yt-audio/internal/model"
)

// Timeout constants
const (
	DefaultPlaylistParseTimeout = 60 * time.Second
)

// URL parameters and separators
const (
	PlaylistParam  = "list="
	ParamSeparator = "&"
)

// URL templates
const (
	YouTubeVideoURLTemplate = "https://www.youtube.com/watch?v=%s"
)

// itemsFetcher loads every entry of the playlist with the given id
type itemsFetcher func(ctx context.Context, playlistID string) ([]model.PlaylistEntry, error)

// PlaylistExpander resolves YouTube playlist URLs to their video entries.
type PlaylistExpander struct {
	timeout time.Duration
	fetch   itemsFetcher
}

// NewPlaylistExpander creates an expander backed by ytdlp/v2
func NewPlaylistExpander() *PlaylistExpander {
	return &PlaylistExpander{
		timeout: DefaultPlaylistParseTimeout,
		fetch:   fetchPlaylistItems,
	}
}

// SetTimeout sets the timeout for one expansion
func (p *PlaylistExpander) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		p.timeout = timeout
	}
}

// Expand fetches the entries of the playlist referenced by playlistURL.
// Entries come back in playlist order with duplicate videos removed.
func (p *PlaylistExpander) Expand(ctx context.Context, playlistURL string) (*model.Playlist, error) {
	playlistID, err := ExtractPlaylistID(playlistURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	items, err := p.fetch(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}

	playlist := model.NewPlaylist(playlistID, playlistURL)
	for i := range items {
		entry := items[i]
		if entry.URL == "" && entry.VideoID != "" {
			entry.URL = fmt.Sprintf(YouTubeVideoURLTemplate, entry.VideoID)
		}
		playlist.AddEntry(&entry)
	}
	return playlist, nil
}

// fetchPlaylistItems uses the ytdlp/v2 innertube client
func fetchPlaylistItems(ctx context.Context, playlistID string) ([]model.PlaylistEntry, error) {
	items, err := ytdlp.New().GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, err
	}

	entries := make([]model.PlaylistEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, model.PlaylistEntry{
			VideoID: it.VideoID,
			Title:   it.Title,
			URL:     fmt.Sprintf(YouTubeVideoURLTemplate, it.VideoID),
		})
	}
	return entries, nil
}

// IsPlaylistURL reports whether rawURL points at a whole playlist. Watch URLs
// that merely carry a list= parameter name a single video and return false.
func IsPlaylistURL(rawURL string) bool {
	if _, err := ExtractPlaylistID(rawURL); err != nil {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	return u.Query().Get("v") == ""
}

// ExtractPlaylistID returns the list= parameter of a playlist URL. Supported forms:
//   - https://www.youtube.com/playlist?list=PLAYLIST_ID
//   - https://www.youtube.com/watch?v=VIDEO_ID&list=PLAYLIST_ID&start_radio=1
func ExtractPlaylistID(rawURL string) (string, error) {
	if u, err := url.Parse(rawURL); err == nil {
		if id := u.Query().Get("list"); id != "" {
			return id, nil
		}
	}

	// fall back to plain splitting for URLs net/url rejects
	if !strings.Contains(rawURL, PlaylistParam) {
		return "", fmt.Errorf("URL does not contain playlist parameter: %s", rawURL)
	}
	parts := strings.SplitN(rawURL, PlaylistParam, 2)
	playlistID := strings.Split(parts[1], ParamSeparator)[0]
	if playlistID == "" {
		return "", fmt.Errorf("empty playlist ID in URL: %s", rawURL)
	}
	return playlistID, nil
}
