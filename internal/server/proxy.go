package server

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/tgfleet/botgate/internal/crypto"
	"github.com/tgfleet/botgate/internal/telegram"
)

// Headers that describe the proxy hop rather than the payload; the relayed
// body is already decoded, so passing these through would corrupt it.
var skippedResponseHeaders = map[string]struct{}{
	"Content-Length":    {},
	"Content-Encoding":  {},
	"Transfer-Encoding": {},
	"Connection":        {},
}

// authorizeToken matches a path token against the registered bots. Tokens
// are stored encrypted, so every candidate is decrypted and compared in
// constant time.
func (s *Server) authorizeToken(ctx context.Context, token string) (int64, bool) {
	if !telegram.BotTokenRegex.MatchString(token) {
		return 0, false
	}
	bots, err := s.store.GetAllBots(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list bots for token check", "error", err)
		return 0, false
	}
	for _, bot := range bots {
		stored, err := s.cipher.Decrypt(bot.Token, crypto.PurposeBotToken)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to decrypt bot token", "bot_id", bot.ID, "error", err)
			continue
		}
		if subtle.ConstantTimeCompare([]byte(stored), []byte(token)) == 1 {
			return bot.ID, true
		}
	}
	return 0, false
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"ok":          false,
		"error_code":  http.StatusNotFound,
		"description": "Not Found",
	})
}

// handleProxy forwards one Bot API call upstream for a registered bot and,
// when the call succeeds, feeds the exchange through the sync engine. The
// upstream response is always relayed untouched; synchronization failures
// are logged and never surface to the calling bot.
func (s *Server) handleProxy(c *gin.Context) {
	ctx := c.Request.Context()

	token := c.Param("token")
	botID, ok := s.authorizeToken(ctx, token)
	if !ok {
		notFound(c)
		return
	}
	method := c.Param("method")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok": false, "error_code": http.StatusBadRequest, "description": "Bad Request",
		})
		return
	}

	endpoint := s.apiURL + token + "/" + method
	if raw := c.Request.URL.RawQuery; raw != "" {
		endpoint += "?" + raw
	}
	req, err := http.NewRequestWithContext(ctx, c.Request.Method, endpoint, bytes.NewReader(body))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"ok": false, "error_code": http.StatusBadGateway, "description": "Bad Gateway",
		})
		return
	}
	if ct := c.GetHeader("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	resp, err := s.upstream.Do(req)
	if err != nil {
		s.logger.WarnContext(ctx, "Upstream request failed",
			"bot_id", botID, "api_method", method, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"ok": false, "error_code": http.StatusBadGateway, "description": "Bad Gateway",
		})
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read upstream response",
			"bot_id", botID, "api_method", method, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"ok": false, "error_code": http.StatusBadGateway, "description": "Bad Gateway",
		})
		return
	}

	if gjson.GetBytes(respBody, "ok").Bool() {
		params := parseParams(c, body)
		result := json.RawMessage(gjson.GetBytes(respBody, "result").Raw)
		if err := s.engine.LogRequest(ctx, botID, token, method, params, result); err != nil {
			s.logger.WarnContext(ctx, "Failed to record API exchange",
				"bot_id", botID, "api_method", method, "error", err)
		}
	}

	for name, values := range resp.Header {
		if _, skip := skippedResponseHeaders[name]; skip {
			continue
		}
		for _, v := range values {
			c.Writer.Header().Add(name, v)
		}
	}
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
}

// handleFileProxy streams a file download from the upstream file endpoint.
func (s *Server) handleFileProxy(c *gin.Context) {
	ctx := c.Request.Context()

	token := c.Param("token")
	if _, ok := s.authorizeToken(ctx, token); !ok {
		notFound(c)
		return
	}

	endpoint := s.fileAPIURL + token + c.Param("file_path")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.Status(http.StatusBadGateway)
		return
	}

	resp, err := s.upstream.Do(req)
	if err != nil {
		s.logger.WarnContext(ctx, "Upstream file request failed", "error", err)
		c.Status(http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	c.Writer.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		c.Writer.Header().Set("Content-Length", cl)
	}
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		s.logger.WarnContext(ctx, "File stream interrupted", "error", err)
	}
}

// parseParams normalizes the request parameters of a Bot API call into a
// generic map regardless of encoding. JSON bodies keep their structure;
// form and query parameters are decoded per value, since Telegram accepts
// JSON-serialized values inside form fields.
func parseParams(c *gin.Context, body []byte) map[string]any {
	contentType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))

	if contentType == "application/json" && len(body) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		params := make(map[string]any)
		if err := dec.Decode(&params); err == nil {
			mergeQueryParams(params, c.Request.URL.Query())
			return params
		}
	}

	params := make(map[string]any)
	if contentType == "application/x-www-form-urlencoded" && len(body) > 0 {
		if form, err := url.ParseQuery(string(body)); err == nil {
			for key, values := range form {
				if len(values) > 0 {
					params[key] = decodeFormValue(values[0])
				}
			}
		}
	}
	mergeQueryParams(params, c.Request.URL.Query())
	return params
}

func mergeQueryParams(params map[string]any, query url.Values) {
	for key, values := range query {
		if _, exists := params[key]; exists || len(values) == 0 {
			continue
		}
		params[key] = decodeFormValue(values[0])
	}
}

// decodeFormValue recovers structure from a form-encoded parameter value.
// Arrays, objects, numbers, and booleans arrive JSON-serialized; anything
// that does not parse is a plain string.
func decodeFormValue(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return value
	}
	switch trimmed[0] {
	case '[', '{', '"', 't', 'f', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		dec := json.NewDecoder(strings.NewReader(trimmed))
		dec.UseNumber()
		var out any
		if err := dec.Decode(&out); err == nil && !dec.More() {
			return out
		}
	}
	return value
}
