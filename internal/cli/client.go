package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/viper"

	"github.com/trustnet/trustnet-cache/internal/api"
)

// Client talks to a running admin server
type Client struct {
	rest *resty.Client
}

// envelope mirrors api.APIResponse with the payload left undecoded
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *api.APIError   `json:"error"`
}

// NewClient creates a client from the server.url, auth.token and client.*
// settings
func NewClient() (*Client, error) {
	baseURL := viper.GetString("server.url")
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	timeout := time.Duration(viper.GetInt("client.timeout")) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	rest := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "trustnet-cache-cli/"+Version).
		SetRetryCount(viper.GetInt("client.retries")).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == http.StatusBadGateway || r.StatusCode() == http.StatusGatewayTimeout
		})

	if token := viper.GetString("auth.token"); token != "" {
		rest.SetAuthToken(token)
	}

	return &Client{rest: rest}, nil
}

// do sends a request and decodes the payload of a successful response into out
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	req := c.rest.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("HTTP %d: unexpected response body", resp.StatusCode())
	}
	if resp.IsError() || !env.Success {
		if env.Error != nil {
			return fmt.Errorf("API error (%s): %s", env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode())
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func keyPath(key string) string {
	return "/api/v1/cache/keys/" + url.PathEscape(key)
}
