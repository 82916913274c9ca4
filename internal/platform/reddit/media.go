package reddit

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/crosspost/crosspost/internal/models"
	"github.com/crosspost/crosspost/internal/platform"
	"github.com/crosspost/crosspost/pkg/telemetry"
)

// Asset is an uploaded media item ready to be referenced by a submission
type Asset struct {
	ID  string
	URL string
}

type leaseResponse struct {
	Args struct {
		Action string `json:"action"`
		Fields []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"fields"`
		AssetID string `json:"asset_id"`
	} `json:"args"`
	Asset struct {
		AssetID string `json:"asset_id"`
	} `json:"asset"`
}

// UploadMedia downloads mediaURL, leases an upload slot, and posts the
// file to the pre-signed storage target the lease names.
func (c *Client) UploadMedia(ctx context.Context, mediaURL string) (*Asset, error) {
	ctx, span := telemetry.StartSpan(ctx, "reddit.upload_media")
	defer span.End()

	file, err := platform.FetchMedia(ctx, c.base, mediaURL)
	if err != nil {
		return nil, platform.Transport(models.PlatformReddit, err)
	}

	filename := uploadName(file.ContentType)

	var lease leaseResponse
	err = c.postForm(ctx, c.cfg.APIBaseURL+"/api/media/asset.json", url.Values{
		"filepath": {filename},
		"mimetype": {file.ContentType},
	}, &lease)
	if err != nil {
		return nil, fmt.Errorf("upload lease failed: %w", err)
	}

	action := lease.Args.Action
	if strings.HasPrefix(action, "//") {
		action = "https:" + action
	}
	if action == "" {
		return nil, platform.Rejected(models.PlatformReddit, 0, "upload lease returned no target")
	}

	assetID := lease.Asset.AssetID
	if assetID == "" {
		assetID = lease.Args.AssetID
	}

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	var key string
	for _, f := range lease.Args.Fields {
		if f.Name == "key" {
			key = f.Value
		}
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, fmt.Errorf("failed to write lease field %s: %w", f.Name, err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", file.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("failed to write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build storage upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	// The storage target is not Reddit's API and must not see the bearer token.
	if err := platform.Do(c.base, models.PlatformReddit, req, nil, nil); err != nil {
		return nil, fmt.Errorf("storage upload failed: %w", err)
	}

	assetURL := action
	if key != "" {
		assetURL = strings.TrimSuffix(action, "/") + "/" + key
	}
	return &Asset{ID: assetID, URL: assetURL}, nil
}

func uploadName(contentType string) string {
	ext := "bin"
	if i := strings.Index(contentType, "/"); i >= 0 && i < len(contentType)-1 {
		ext = contentType[i+1:]
	}
	return fmt.Sprintf("reddit_upload_%d.%s", time.Now().UnixNano(), ext)
}
