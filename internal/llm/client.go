package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"
)

// Options configures the chat-completion client.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	RetryCount  int
	Temperature float64
	TopP        float64
	MaxTokens   int
	Debug       bool
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	http   *resty.Client
	opts   Options
	logger hclog.Logger
}

// hclogAdapter forwards resty log output to an hclog.Logger.
type hclogAdapter struct {
	logger hclog.Logger
}

func (a *hclogAdapter) Errorf(format string, v ...interface{}) {
	a.logger.Error(fmt.Sprintf(format, v...))
}

func (a *hclogAdapter) Warnf(format string, v ...interface{}) {
	a.logger.Warn(fmt.Sprintf(format, v...))
}

func (a *hclogAdapter) Debugf(format string, v ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, v...))
}

// NewClient builds a chat client from the given options.
func NewClient(opts Options, logger hclog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.1
	}
	if opts.TopP == 0 {
		opts.TopP = 0.1
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4000
	}

	logger = logger.Named("llm-client")
	http := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetDebug(opts.Debug).
		SetLogger(&hclogAdapter{logger: logger})
	if opts.APIKey != "" {
		http.SetAuthToken(opts.APIKey)
	}

	return &Client{http: http, opts: opts, logger: logger}
}

// Defaults returns a request pre-filled with the client's model and sampling
// parameters, so cache keys include the effective values.
func (c *Client) Defaults(system, prompt string) Request {
	req := NewRequest(system, prompt)
	req.Model = c.opts.Model
	req.Temperature = c.opts.Temperature
	req.TopP = c.opts.TopP
	req.MaxTokens = c.opts.MaxTokens
	return req
}

// chatPayload is the wire form of a completion call. The response_format hint
// asks conforming backends to emit a bare JSON object.
type chatPayload struct {
	Request
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends one completion request and returns the model's text response.
func (c *Client) Chat(req Request) (string, error) {
	if req.Model == "" {
		req.Model = c.opts.Model
	}

	payload := chatPayload{Request: req}
	payload.ResponseFormat.Type = "json_object"

	var decoded chatResponse
	started := time.Now()
	resp, err := c.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		SetResult(&decoded).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	c.logger.Debug("chat completion finished", "status", resp.StatusCode(), "elapsed", time.Since(started))

	if resp.IsError() {
		return "", fmt.Errorf("chat completion returned status %d: %s", resp.StatusCode(), firstErrorLine(resp.String()))
	}
	// Resty only fills SetResult for JSON content types. Some backends send
	// JSON bodies without declaring one, so decode the body directly before
	// treating the response as empty.
	if decoded.Error == nil && len(decoded.Choices) == 0 {
		if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
			return "", fmt.Errorf("chat completion returned an unparseable body: %s", firstErrorLine(resp.String()))
		}
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("chat completion returned service error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}

// ChatJSON sends one completion request and extracts the embedded JSON
// document from the response text.
func (c *Client) ChatJSON(req Request) (json.RawMessage, error) {
	text, err := c.Chat(req)
	if err != nil {
		return nil, err
	}
	return ExtractJSON(text)
}

func firstErrorLine(body string) string {
	body = strings.TrimSpace(body)
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		body = body[:idx]
	}
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return body
}
