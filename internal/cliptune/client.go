package cliptune

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Ticket is a single-use write credential issued by the generation service:
// a pre-signed PUT URL plus the stable content URI the upload will land at.
type Ticket struct {
	PutURL string `json:"put_url"`
	GCSURI string `json:"gcs_uri"`
}

// GenerateParams carries the user-supplied generation parameters. All values
// are strings; callers apply the literal fallback defaults before submission.
type GenerateParams struct {
	Instrumental     string
	SongTitle        string
	VideoDuration    string
	VideoURL         string
	YouTubeURLs      string
	ExtraDescription string
	Lyrics           string
}

// RemoteError is a failed call to the generation service or the upload
// target. Body holds whatever diagnostic payload the remote returned.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       []byte
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("cliptune %s failed: status %d", e.Op, e.StatusCode)
}

// Details returns the remote diagnostic payload: decoded JSON when the body
// parses, the raw text otherwise.
func (e *RemoteError) Details() any {
	if len(e.Body) == 0 {
		return e.Error()
	}
	var decoded any
	if err := json.Unmarshal(e.Body, &decoded); err == nil {
		return decoded
	}
	return string(e.Body)
}

type Client struct {
	baseURL        string
	httpClient     *http.Client
	generateClient *http.Client
}

// New builds a client for the generation service. generateTimeout bounds
// only the generate call, which blocks while the remote performs the
// asynchronous media generation; ticket and upload calls carry no timeout.
func New(baseURL string, generateTimeout time.Duration) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		generateClient: &http.Client{Timeout: generateTimeout},
	}
}

// RequestUploadTicket obtains a one-time write ticket.
func (c *Client) RequestUploadTicket(ctx context.Context) (Ticket, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload-ticket", nil)
	if err != nil {
		return Ticket{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Ticket{}, fmt.Errorf("request upload ticket: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Ticket{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Ticket{}, &RemoteError{Op: "upload-ticket", StatusCode: resp.StatusCode, Body: body}
	}
	var ticket Ticket
	if err := json.Unmarshal(body, &ticket); err != nil {
		return Ticket{}, fmt.Errorf("decode upload ticket: %w", err)
	}
	return ticket, nil
}

// Upload streams the binary payload to the pre-signed write URL. No body
// size cap is applied.
func (c *Client) Upload(ctx context.Context, putURL, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, putURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		diag, _ := io.ReadAll(resp.Body)
		return &RemoteError{Op: "upload", StatusCode: resp.StatusCode, Body: diag}
	}
	return nil
}

// Generate submits the generation job and returns the remote response body
// verbatim. The remote performs asynchronous media generation before
// responding, so this call tolerates an extended wait.
func (c *Client) Generate(ctx context.Context, p GenerateParams) (json.RawMessage, error) {
	form := url.Values{}
	form.Set("instrumental", p.Instrumental)
	form.Set("song_title", p.SongTitle)
	form.Set("video_duration", p.VideoDuration)
	form.Set("video_url", p.VideoURL)
	form.Set("youtube_urls", p.YouTubeURLs)
	form.Set("extra_description", p.ExtraDescription)
	form.Set("lyrics", p.Lyrics)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.generateClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteError{Op: "generate", StatusCode: resp.StatusCode, Body: body}
	}
	return json.RawMessage(body), nil
}
