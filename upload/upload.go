// Package upload submits finished recordings to the chapter service
// and watches for server-side transcription to complete.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"bioweaver/api"
	"bioweaver/log"
)

// UploadError is returned for a non-2xx response from the upload
// endpoint.
type UploadError struct {
	Status int
	Body   string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed with HTTP %d: %s", e.Status, e.Body)
}

// Upload is one chapter submission. Title is required; UserID defaults
// to "1" as the backend expects.
type Upload struct {
	UserID       string
	Title        string
	AnchorPrompt string
	FileName     string // defaults from Ext when empty
	Ext          string
	MIME         string
	Data         []byte
	Seconds      int // recorded duration, for the upload log event
}

// Uploader posts multipart chapter uploads. It shares the API client's
// base URL, credential and connection pool.
type Uploader struct {
	base       string
	adminToken string
	client     *http.Client
}

func NewUploader(c *api.Client) *Uploader {
	return &Uploader{
		base:       c.BaseURL(),
		adminToken: c.AdminToken(),
		client:     c.HTTPClient(),
	}
}

// Submit uploads the recording and returns the created chapter record,
// including the server-assigned id the watcher needs.
func (u *Uploader) Submit(ctx context.Context, up Upload) (api.Chapter, error) {
	if strings.TrimSpace(up.Title) == "" {
		return api.Chapter{}, fmt.Errorf("upload: title is required")
	}
	userID := up.UserID
	if userID == "" {
		userID = "1"
	}
	fileName := up.FileName
	if fileName == "" {
		ext := up.Ext
		if ext == "" {
			ext = "bin"
		}
		fileName = "chapter." + ext
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	writer.WriteField("user_id", userID)
	writer.WriteField("title", up.Title)
	if up.AnchorPrompt != "" {
		writer.WriteField("anchor_prompt", up.AnchorPrompt)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	if up.MIME != "" {
		header.Set("Content-Type", up.MIME)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return api.Chapter{}, err
	}
	if _, err := part.Write(up.Data); err != nil {
		return api.Chapter{}, err
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.base+"/upload_audio", &body)
	if err != nil {
		return api.Chapter{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if u.adminToken != "" {
		req.Header.Set("X-Admin-Token", u.adminToken)
	}

	start := time.Now()
	resp, err := u.client.Do(req)
	if err != nil {
		return api.Chapter{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return api.Chapter{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return api.Chapter{}, &UploadError{Status: resp.StatusCode, Body: string(raw)}
	}

	var ch api.Chapter
	if err := json.Unmarshal(raw, &ch); err != nil {
		return api.Chapter{}, fmt.Errorf("decode upload response: %w", err)
	}
	log.Upload(log.UploadMetrics{
		ChapterID:  ch.ID,
		AudioS:     float64(up.Seconds),
		BlobKB:     float64(len(up.Data)) / 1024,
		MIME:       up.MIME,
		UploadMs:   float64(time.Since(start).Milliseconds()),
		StatusCode: resp.StatusCode,
	})
	return ch, nil
}
