package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// APIError is an error response from the Bot API.
type APIError struct {
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram API error %d: %s", e.ErrorCode, e.Description)
}

// envelope is the standard Bot API response wrapper.
type envelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	APIError
}

// Client issues the live profile-fetch calls the sync engine needs when an
// operation references a chat it has never seen. It deliberately decodes
// into the raw-retaining payload types rather than a published client
// library, so unpromoted response fields survive into overflow storage.
type Client struct {
	httpClient *http.Client
	apiURL     string
	logger     *slog.Logger
}

// NewClient creates a Bot API client. apiURL is the base URL up to and
// including the "bot" prefix, e.g. "https://api.telegram.org/bot".
func NewClient(apiURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     apiURL,
		logger:     logger.With("component", "telegram_client"),
	}
}

// GetChat fetches the full chat snapshot for a numeric id (decimal string)
// or an "@username" handle.
func (c *Client) GetChat(ctx context.Context, token, chatRef string) (*ChatFullInfo, error) {
	params := url.Values{}
	params.Set("chat_id", chatRef)

	var info ChatFullInfo
	if err := c.call(ctx, token, "getChat", params, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetMe fetches the identity of the bot owning the token.
func (c *Client) GetMe(ctx context.Context, token string) (*User, error) {
	var me User
	if err := c.call(ctx, token, "getMe", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (c *Client) call(ctx context.Context, token, method string, params url.Values, result any) error {
	endpoint := c.apiURL + token + "/" + method
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if !env.OK {
		c.logger.DebugContext(ctx, "Bot API call rejected",
			"method", method, "error_code", env.ErrorCode, "description", env.Description)
		return &APIError{ErrorCode: env.ErrorCode, Description: env.Description}
	}

	if err := json.Unmarshal(env.Result, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}
