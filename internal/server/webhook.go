package server

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tgfleet/botgate/internal/crypto"
	"github.com/tgfleet/botgate/internal/database"
	"github.com/tgfleet/botgate/internal/telegram"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// handleWebhook receives one update pushed by Telegram for a registered
// bot, records its entities, and forwards the raw update to the bot's
// configured backend. The catalog write is committed before forwarding, so
// a crashed backend never loses a sighting.
func (s *Server) handleWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	botID, err := strconv.ParseInt(c.Param("bot_id"), 10, 64)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	wh, err := s.store.GetWebhook(ctx, botID)
	if errors.Is(err, database.ErrNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load webhook credentials", "bot_id", botID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	secret, err := s.cipher.Decrypt(wh.SecretToken, crypto.PurposeWebhookToken)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to decrypt webhook secret", "bot_id", botID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	provided := c.GetHeader(secretTokenHeader)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
		c.Status(http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	var update telegram.Update
	if err := update.UnmarshalJSON(body); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if err := s.engine.HandleUpdate(ctx, botID, &update); err != nil {
		s.logger.WarnContext(ctx, "Failed to record webhook update",
			"bot_id", botID, "update_id", update.ID, "error", err)
	}

	s.forwardWebhook(ctx, botID, wh, body)
	c.Status(http.StatusOK)
}

// forwardWebhook relays the raw update to the bot's backend. Delivery is
// best effort; the backend polls getUpdates or retries on its own schedule
// when it misses pushes.
func (s *Server) forwardWebhook(ctx context.Context, botID int64, wh *database.BotWebhook, body []byte) {
	if len(wh.RedirectURL) == 0 {
		return
	}

	target, err := s.cipher.Decrypt(wh.RedirectURL, crypto.PurposeWebhookURL)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to decrypt redirect URL", "bot_id", botID, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to build redirect request", "bot_id", botID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if len(wh.RedirectToken) > 0 {
		token, err := s.cipher.Decrypt(wh.RedirectToken, crypto.PurposeRedirectToken)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to decrypt redirect token", "bot_id", botID, "error", err)
			return
		}
		req.Header.Set(secretTokenHeader, token)
	}

	resp, err := s.redirects.Do(req)
	if err != nil {
		s.logger.WarnContext(ctx, "Webhook redirect failed", "bot_id", botID, "error", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		s.logger.WarnContext(ctx, "Webhook redirect rejected",
			"bot_id", botID, "status", resp.StatusCode)
	}
}
