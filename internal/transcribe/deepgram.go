package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Deepgram calls the prerecorded /v1/listen endpoint.
type Deepgram struct {
	client   *resty.Client
	model    string
	language string
}

type DeepgramOptions struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Timeout  time.Duration
}

func NewDeepgram(opts DeepgramOptions) *Deepgram {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.deepgram.com"
	}
	if opts.Model == "" {
		opts.Model = "nova-2"
	}
	if opts.Language == "" {
		opts.Language = "fr"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(opts.BaseURL).
		SetHeader("Authorization", "Token "+opts.APIKey).
		SetTimeout(opts.Timeout)
	return &Deepgram{client: c, model: opts.Model, language: opts.Language}
}

func (d *Deepgram) Name() string { return "deepgram" }

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

type listenError struct {
	ErrCode string `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

func (d *Deepgram) Transcribe(ctx context.Context, audio Audio) (string, error) {
	mime := audio.MimeType
	if mime == "" {
		mime = "audio/webm"
	}
	resp, err := d.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"model":        d.model,
			"language":     d.language,
			"smart_format": "true",
		}).
		SetHeader("Content-Type", mime).
		SetBody(audio.Data).
		Post("/v1/listen")
	if err != nil {
		return "", fmt.Errorf("deepgram request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		var le listenError
		if json.Unmarshal(resp.Body(), &le) == nil && le.ErrMsg != "" {
			return "", fmt.Errorf("deepgram status %d: %s", resp.StatusCode(), le.ErrMsg)
		}
		return "", fmt.Errorf("deepgram status %d: %s", resp.StatusCode(), resp.String())
	}

	var lr listenResponse
	if err := json.Unmarshal(resp.Body(), &lr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(lr.Results.Channels) == 0 || len(lr.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return lr.Results.Channels[0].Alternatives[0].Transcript, nil
}
