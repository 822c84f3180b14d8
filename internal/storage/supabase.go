// Package storage uploads avatar images to Supabase Storage over its REST API.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotConfigured is returned by a Client without URL or key.
var ErrNotConfigured = errors.New("storage is not configured")

// UploadError reports a failed call to the storage service.  Status is the
// upstream status of a rejected upload, or http.StatusBadGateway when the
// service could not be reached; Err then holds the transport error.
type UploadError struct {
	Status  int
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage upload failed (%d): %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("storage upload failed (%d): %s", e.Status, e.Message)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Client talks to one bucket.
type Client struct {
	BaseURL    string
	ServiceKey string
	Bucket     string
	HTTP       *http.Client
	Now        func() time.Time
}

// NewClient returns a Client for bucket at baseURL.  An empty baseURL or key
// yields a client whose Upload returns ErrNotConfigured.
func NewClient(baseURL, serviceKey, bucket string) *Client {
	if bucket == "" {
		bucket = "avatars"
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ServiceKey: serviceKey,
		Bucket:     bucket,
		HTTP:       &http.Client{Timeout: 20 * time.Second},
		Now:        time.Now,
	}
}

// Configured reports whether uploads can be attempted.
func (c *Client) Configured() bool {
	return c != nil && c.BaseURL != "" && c.ServiceKey != ""
}

// ObjectPath builds "<userID>/<unixMillis>-<hex12>.<ext>".
func (c *Client) ObjectPath(userID uint64, filename, contentType string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d/%d-%s.%s", userID, c.Now().UnixMilli(), id, Extension(filename, contentType))
}

// Extension picks the file extension from filename, else from the mime
// subtype, keeping only [a-z0-9].  Falls back to "png".
func Extension(filename, contentType string) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if ext == "" {
		if _, sub, ok := strings.Cut(contentType, "/"); ok {
			ext = sub
		}
	}
	ext = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		}
		return -1
	}, strings.ToLower(ext))
	if ext == "" {
		return "png"
	}
	return ext
}

// PublicURL is the public address of an object in the bucket.
func (c *Client) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.BaseURL, c.Bucket, objectPath)
}

// Upload stores data under objectPath, replacing any existing object, and
// returns its public URL.
func (c *Client) Upload(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.BaseURL, c.Bucket, objectPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.ServiceKey)
	req.Header.Set("apikey", c.ServiceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", &UploadError{Status: http.StatusBadGateway, Message: "storage service unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &UploadError{Status: resp.StatusCode, Message: upstreamMessage(body, resp.Status)}
	}
	return c.PublicURL(objectPath), nil
}

// upstreamMessage extracts "message" or "error" from a JSON body, else the
// raw text, else the status line.
func upstreamMessage(body []byte, status string) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return status
}
