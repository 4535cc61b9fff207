// Package apiclient is the HTTP client of the SayCal API used by the voice
// panel and the CLI.
package apiclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/paul-bouzian/saycal/internal/auth"
	"github.com/paul-bouzian/saycal/internal/client/recorder"
	"github.com/paul-bouzian/saycal/internal/model"
	"github.com/paul-bouzian/saycal/internal/quota"
)

const ndjson = "application/x-ndjson"

// maxLine bounds one NDJSON line; result lines carry event summaries.
const maxLine = 1 << 20

type Client struct {
	http *resty.Client
	tz   string
}

// Option configures a Client during construction in New.
type Option func(*Client) error

// WithHTTPTimeout bounds one request, including reading a streamed response.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("http timeout must be > 0")
		}
		c.http.SetTimeout(d)
		return nil
	}
}

// WithTimezone sends the IANA zone relative dates are resolved in.
func WithTimezone(tz string) Option {
	return func(c *Client) error {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
		c.tz = tz
		return nil
	}
}

// WithLanguage selects the language of server error messages.
func WithLanguage(lang string) Option {
	return func(c *Client) error {
		c.http.SetHeader("Accept-Language", lang)
		return nil
	}
}

func WithDebugLogging(enabled bool) Option {
	return func(c *Client) error {
		c.http.SetDebug(enabled)
		return nil
	}
}

// New constructs a Client for baseURL authenticating with token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("baseURL cannot be empty")
	}
	if token == "" {
		return nil, errors.New("token cannot be empty")
	}
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(token).
			SetTimeout(60 * time.Second),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewWithDevMode uses the shared development key accepted by a server
// running in dev mode.
func NewWithDevMode(baseURL string, opts ...Option) (*Client, error) {
	return New(baseURL, auth.LocalDevAPIKey, opts...)
}

type errorBody struct {
	Error   string       `json:"error"`
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Reason  model.Reason `json:"reason"`
}

func (b errorBody) err(status int) error {
	msg := b.Message
	if msg == "" {
		msg = b.Error
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	reason := b.Reason
	if reason == "" {
		reason = model.ReasonInternal
		if status == http.StatusUnauthorized {
			reason = model.ReasonUnauthenticated
		}
	}
	return model.NewVoiceError(reason, errors.New(msg))
}

func decodeError(status int, body []byte) error {
	var b errorBody
	_ = json.Unmarshal(body, &b)
	return b.err(status)
}

type streamLine struct {
	Stage  model.Stage        `json:"stage"`
	Result *model.VoiceResult `json:"result"`
	Error  *errorBody         `json:"error"`
}

// Submit sends one voice command and streams its stages to onStage. Server
// failures come back as *model.VoiceError with the server's reason and
// message.
func (c *Client) Submit(ctx context.Context, clip recorder.Blob, history []model.ConversationTurn, onStage func(model.Stage)) (*model.VoiceResult, error) {
	if history == nil {
		history = []model.ConversationTurn{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	fields := map[string]string{"history": string(raw)}
	if c.tz != "" {
		fields["tz"] = c.tz
	}
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", ndjson).
		SetDoNotParseResponse(true).
		SetMultipartFormData(fields)
	if !clip.Empty() {
		mime := clip.MimeType
		if mime == "" {
			mime = recorder.MimeTypeWAV
		}
		req.SetMultipartField("audio", "command.wav", mime, bytes.NewReader(clip.Data))
	}

	resp, err := req.Post("/api/voice/commands")
	if err != nil {
		return nil, fmt.Errorf("submit voice command: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(body, maxLine))
		return nil, decodeError(resp.StatusCode(), b)
	}
	if resp.Header().Get("Content-Type") != ndjson {
		var res model.VoiceResult
		if err := json.NewDecoder(body).Decode(&res); err != nil {
			return nil, fmt.Errorf("decode voice result: %w", err)
		}
		return &res, nil
	}
	return readStream(body, onStage)
}

func readStream(r io.Reader, onStage func(model.Stage)) (*model.VoiceResult, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var line streamLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			return nil, fmt.Errorf("decode voice stream: %w", err)
		}
		switch {
		case line.Error != nil:
			return nil, line.Error.err(line.Error.Code)
		case line.Result != nil:
			return line.Result, nil
		case line.Stage != "" && onStage != nil:
			onStage(line.Stage)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read voice stream: %w", err)
	}
	return nil, errors.New("voice stream ended without a result")
}

// Quota returns the caller's voice quota.
func (c *Client) Quota(ctx context.Context) (quota.Quota, error) {
	var q quota.Quota
	if err := c.get(ctx, "/api/voice/quota", nil, &q); err != nil {
		return quota.Quota{}, err
	}
	return q, nil
}

// ListEvents returns the caller's events overlapping [from, to).
func (c *Client) ListEvents(ctx context.Context, from, to time.Time) ([]*model.Event, error) {
	var out struct {
		Events []*model.Event `json:"events"`
	}
	params := map[string]string{
		"start": from.Format(time.RFC3339),
		"end":   to.Format(time.RFC3339),
	}
	if err := c.get(ctx, "/api/events", params, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// Plan returns the caller's billing plan.
func (c *Client) Plan(ctx context.Context) (model.Plan, error) {
	var out struct {
		Plan model.Plan `json:"plan"`
	}
	if err := c.get(ctx, "/api/billing/plan", nil, &out); err != nil {
		return "", err
	}
	return out.Plan, nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return decodeError(resp.StatusCode(), resp.Body())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
