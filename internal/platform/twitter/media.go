package twitter

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/crosspost/crosspost/internal/models"
	"github.com/crosspost/crosspost/internal/platform"
	"github.com/crosspost/crosspost/pkg/telemetry"
)

const maxStatusChecks = 20

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
}

// IsVideo reports whether a media URL points at a video by extension
func IsVideo(mediaURL string) bool {
	_, ok := videoTypes[platform.MediaExt(mediaURL)]
	return ok
}

type uploadResponse struct {
	MediaIDString  string          `json:"media_id_string"`
	ProcessingInfo *processingInfo `json:"processing_info,omitempty"`
}

type processingInfo struct {
	State          string `json:"state"`
	CheckAfterSecs int    `json:"check_after_secs"`
	Error          *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// UploadMedia uploads up to MaxMedia items and returns their media ids.
// An item that fails is logged and dropped; the rest still upload.
func (c *Client) UploadMedia(ctx context.Context, mediaURLs []string) []string {
	if len(mediaURLs) > MaxMedia {
		c.logger.Info("Too many media items, extra items ignored",
			zap.Int("count", len(mediaURLs)), zap.Int("max", MaxMedia))
		mediaURLs = mediaURLs[:MaxMedia]
	}

	ids := make([]string, 0, len(mediaURLs))
	for _, mediaURL := range mediaURLs {
		id, err := c.uploadOne(ctx, mediaURL)
		if err != nil {
			c.logger.Warn("Twitter media upload failed, skipping item",
				zap.String("media_url", mediaURL), zap.Error(err))
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (c *Client) uploadOne(ctx context.Context, mediaURL string) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "twitter.upload_media")
	defer span.End()

	file, err := platform.FetchMedia(ctx, c.media, mediaURL)
	if err != nil {
		return "", err
	}

	if mediaType, ok := videoTypes[platform.MediaExt(mediaURL)]; ok {
		return c.uploadChunked(ctx, file, mediaType)
	}
	return c.uploadSimple(ctx, file)
}

func (c *Client) uploadURL() string {
	return c.cfg.UploadBaseURL + "/1.1/media/upload.json"
}

func (c *Client) uploadSimple(ctx context.Context, file *platform.MediaFile) (string, error) {
	body, contentType, err := multipartBody(map[string]string{"media_category": "tweet_image"}, "image.jpg", file.Data)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL(), body)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	var resp uploadResponse
	if err := platform.Do(c.http, models.PlatformTwitter, req, &resp, errorMessage); err != nil {
		return "", err
	}
	if resp.MediaIDString == "" {
		return "", platform.Rejected(models.PlatformTwitter, 0, "upload returned no media id")
	}
	return resp.MediaIDString, nil
}

// uploadChunked runs INIT, APPEND for each chunk, then FINALIZE
func (c *Client) uploadChunked(ctx context.Context, file *platform.MediaFile, mediaType string) (string, error) {
	total := len(file.Data)

	var initResp uploadResponse
	err := c.command(ctx, url.Values{
		"command":        {"INIT"},
		"total_bytes":    {strconv.Itoa(total)},
		"media_type":     {mediaType},
		"media_category": {"tweet_video"},
	}, &initResp)
	if err != nil {
		return "", fmt.Errorf("INIT failed: %w", err)
	}
	mediaID := initResp.MediaIDString
	if mediaID == "" {
		return "", platform.Rejected(models.PlatformTwitter, 0, "INIT returned no media id")
	}

	for segment, offset := 0, 0; offset < total; segment, offset = segment+1, offset+ChunkSize {
		end := offset + ChunkSize
		if end > total {
			end = total
		}
		if err := c.appendChunk(ctx, mediaID, segment, file.Data[offset:end]); err != nil {
			return "", fmt.Errorf("APPEND segment %d failed: %w", segment, err)
		}
	}

	var finalResp uploadResponse
	if err := c.command(ctx, url.Values{"command": {"FINALIZE"}, "media_id": {mediaID}}, &finalResp); err != nil {
		return "", fmt.Errorf("FINALIZE failed: %w", err)
	}

	if c.cfg.PollProcessing && finalResp.ProcessingInfo != nil {
		if err := c.awaitProcessing(ctx, mediaID, finalResp.ProcessingInfo); err != nil {
			return "", err
		}
	}

	return mediaID, nil
}

func (c *Client) appendChunk(ctx context.Context, mediaID string, segment int, chunk []byte) error {
	fields := map[string]string{
		"command":       "APPEND",
		"media_id":      mediaID,
		"segment_index": strconv.Itoa(segment),
	}
	body, contentType, err := multipartBody(fields, "video.mp4", chunk)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL(), body)
	if err != nil {
		return fmt.Errorf("failed to build append request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	return platform.Do(c.http, models.PlatformTwitter, req, nil, errorMessage)
}

// command sends a query-string upload command (INIT, FINALIZE, STATUS)
func (c *Client) command(ctx context.Context, params url.Values, out interface{}) error {
	method := http.MethodPost
	if params.Get("command") == "STATUS" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, c.uploadURL()+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", params.Get("command"), err)
	}
	return platform.Do(c.http, models.PlatformTwitter, req, out, errorMessage)
}

func (c *Client) awaitProcessing(ctx context.Context, mediaID string, info *processingInfo) error {
	for i := 0; i < maxStatusChecks; i++ {
		switch info.State {
		case "succeeded":
			return nil
		case "failed":
			msg := "media processing failed"
			if info.Error != nil && info.Error.Message != "" {
				msg = info.Error.Message
			}
			return platform.Rejected(models.PlatformTwitter, 0, msg)
		}

		wait := time.Duration(info.CheckAfterSecs) * time.Second
		if wait <= 0 {
			wait = time.Second
		}
		if err := platform.Wait(ctx, wait); err != nil {
			return err
		}

		var resp uploadResponse
		if err := c.command(ctx, url.Values{"command": {"STATUS"}, "media_id": {mediaID}}, &resp); err != nil {
			return fmt.Errorf("STATUS failed: %w", err)
		}
		if resp.ProcessingInfo == nil {
			return nil
		}
		info = resp.ProcessingInfo
	}
	return platform.Rejected(models.PlatformTwitter, 0, "media processing did not finish")
}

func multipartBody(fields map[string]string, filename string, data []byte) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	part, err := w.CreateFormFile("media", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create media part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write media part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}
