package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Chapter is one recorded-and-transcribed memory segment. Field names
// match the backend's JSON.
type Chapter struct {
	ID              int64  `json:"id"`
	UserID          int64  `json:"user_id"`
	Title           string `json:"title"`
	AnchorPrompt    string `json:"anchor_prompt,omitempty"`
	SegmentIndex    int    `json:"segment_index"`
	AudioURL        string `json:"audio_url,omitempty"`
	TranscriptText  string `json:"transcript_text,omitempty"`
	PolishedText    string `json:"polished_text,omitempty"`
	PolishedByModel string `json:"polished_by_model,omitempty"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// HasText reports whether the server has produced any text for the
// chapter yet, raw transcript or polished. This is the completion
// predicate the upload watcher keys on.
func (ch Chapter) HasText() bool {
	return strings.TrimSpace(ch.TranscriptText) != "" || strings.TrimSpace(ch.PolishedText) != ""
}

// BestText prefers the polished narrative, falling back to the raw
// transcript.
func (ch Chapter) BestText() string {
	if strings.TrimSpace(ch.PolishedText) != "" {
		return ch.PolishedText
	}
	return ch.TranscriptText
}

// GetChapters fetches the full chapter listing via the mobile capture
// endpoint.
func (c *Client) GetChapters(ctx context.Context) ([]Chapter, error) {
	var chapters []Chapter
	if err := c.doJSON(ctx, http.MethodGet, "/get_chapters", nil, &chapters); err != nil {
		return nil, err
	}
	return chapters, nil
}

// Polish triggers a server-side re-polish of the chapter's transcript
// and returns the updated chapter.
func (c *Client) Polish(ctx context.Context, chapterID int64) (Chapter, error) {
	var ch Chapter
	path := fmt.Sprintf("/chapters/%d/polish", chapterID)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &ch); err != nil {
		return Chapter{}, err
	}
	return ch, nil
}

// Stats is the admin resource-count snapshot.
type Stats struct {
	Users    int64 `json:"users"`
	Chapters int64 `json:"chapters"`
	Books    int64 `json:"books"`
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := c.doJSON(ctx, http.MethodGet, "/admin/stats", nil, &s); err != nil {
		return Stats{}, err
	}
	return s, nil
}

// Health returns the admin health report as an opaque record.
func (c *Client) Health(ctx context.Context) (Record, error) {
	payload, err := c.do(ctx, http.MethodGet, "/admin/health", nil)
	if err != nil {
		return nil, err
	}
	return asRecord(payload), nil
}

// SeedDemo populates the backend with demo data.
func (c *Client) SeedDemo(ctx context.Context) (Record, error) {
	payload, err := c.do(ctx, http.MethodPost, "/admin/seed_demo", nil)
	if err != nil {
		return nil, err
	}
	return asRecord(payload), nil
}

// ClearDemo removes previously seeded demo data.
func (c *Client) ClearDemo(ctx context.Context) (Record, error) {
	payload, err := c.do(ctx, http.MethodPost, "/admin/clear_demo", nil)
	if err != nil {
		return nil, err
	}
	return asRecord(payload), nil
}
