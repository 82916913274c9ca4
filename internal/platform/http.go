package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/crosspost/crosspost/internal/models"
)

const (
	maxResponseBytes = 8 << 20
	// MaxMediaBytes bounds a fetched media file
	MaxMediaBytes = 512 << 20
)

// NewHTTPClient returns the client used for platform calls
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// MessageFunc extracts a platform error message from a response body
type MessageFunc func(body []byte) string

// Do sends req with hc and decodes a 2xx JSON body into out (if non-nil).
// Non-2xx responses become *Error, with KindUnauthorized for 401.
func Do(hc *http.Client, p models.Platform, req *http.Request, out interface{}, extract MessageFunc) error {
	resp, err := hc.Do(req)
	if err != nil {
		return Transport(p, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Transport(p, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg string
		if extract != nil {
			msg = extract(body)
		}
		pe := Rejected(p, resp.StatusCode, msg)
		if resp.StatusCode == http.StatusUnauthorized {
			pe.Kind = KindUnauthorized
		}
		return pe
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Platform: p, Kind: KindTransport, StatusCode: resp.StatusCode, Message: "invalid JSON response", Err: err}
	}
	return nil
}

// MediaFile is a downloaded media item
type MediaFile struct {
	Data        []byte
	ContentType string
	Name        string
}

// FetchMedia downloads a remote media URL
func FetchMedia(ctx context.Context, hc *http.Client, rawURL string) (*MediaFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid media url %q: %w", rawURL, err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch media %s: status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read media %s: %w", rawURL, err)
	}
	if len(data) > MaxMediaBytes {
		return nil, fmt.Errorf("media %s exceeds %d bytes", rawURL, MaxMediaBytes)
	}

	ctype := resp.Header.Get("Content-Type")
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	if mt, _, err := mime.ParseMediaType(ctype); err == nil {
		ctype = mt
	}

	return &MediaFile{Data: data, ContentType: ctype, Name: MediaName(rawURL)}, nil
}

// MediaName returns the last path element of a media URL
func MediaName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(rawURL)
}

// MediaExt returns the lower-cased extension of a media URL path
func MediaExt(rawURL string) string {
	return strings.ToLower(path.Ext(MediaName(rawURL)))
}

// Wait sleeps for d or until ctx is done
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
