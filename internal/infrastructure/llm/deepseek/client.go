package deepseek

import (
	"net/http"
	"strings"
	"time"
)

// Client talks to an OpenAI-compatible API (DeepSeek in production). The
// request timeout is enforced locally, independent of provider-side limits.
type Client struct {
	baseURL    string
	apiKey     string
	chatModel  string
	embedModel string
	httpClient *http.Client
}

type Options struct {
	RequestTimeout time.Duration
}

func New(baseURL, apiKey, chatModel, embedModel string) *Client {
	return NewWithOptions(baseURL, apiKey, chatModel, embedModel, Options{})
}

func NewWithOptions(baseURL, apiKey, chatModel, embedModel string, options Options) *Client {
	timeout := options.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
	}
}
