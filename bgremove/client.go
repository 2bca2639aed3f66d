package bgremove

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const DefaultBaseURL = "https://api.remove.bg"

var (
	// ErrQuotaExceeded is returned when the account has no credits left.
	ErrQuotaExceeded = errors.New("bgremove: quota exceeded")
	ErrNotConfigured = errors.New("bgremove: api key not configured")
)

type Client struct {
	key     string
	baseURL string
	http    *retryablehttp.Client
}

func NewClient(apiKey, baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 60 * time.Second
	rc.Logger = nil

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{key: apiKey, baseURL: baseURL, http: rc}
}

func (c *Client) Enabled() bool { return c != nil && c.key != "" }

// RemoveBackground uploads an image and returns the cut-out as a PNG with
// an alpha channel.
func (c *Client) RemoveBackground(ctx context.Context, img []byte, filename string) ([]byte, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image_file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(img); err != nil {
		return nil, err
	}
	_ = mw.WriteField("size", "auto")
	_ = mw.WriteField("type", "car")
	_ = mw.WriteField("format", "png")
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1.0/removebg", body.Bytes())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "image/png")
	req.Header.Set("X-Api-Key", c.key)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired {
		return nil, ErrQuotaExceeded
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("bgremove error %d: %s", resp.StatusCode, errorTitle(resp.Body))
	}
	return ioReadAllLimit(resp.Body, 32<<20)
}

// errorTitle pulls the first error title out of a vendor error body.
func errorTitle(r io.Reader) string {
	var body struct {
		Errors []struct {
			Title string `json:"title"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&body); err != nil || len(body.Errors) == 0 {
		return "unknown error"
	}
	return body.Errors[0].Title
}

func ioReadAllLimit(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errors.New("payload too large")
	}
	return b, nil
}
