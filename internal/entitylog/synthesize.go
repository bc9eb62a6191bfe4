package entitylog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tgfleet/botgate/internal/database"
	"github.com/tgfleet/botgate/internal/telegram"
)

// Copy and forward methods return only the new message ids, not message
// objects. The synthesizer reconstructs the messages that must now exist in
// the destination chat by cloning the stored source rows and patching in
// the identity and the request parameters, then feeds the clones through
// the ordinary extraction path.

// SynthesizeCopy records the result of a copyMessage call.
func (e *Engine) SynthesizeCopy(ctx context.Context, botID int64, token string, params map[string]any, newID int64) error {
	return e.store.InTx(ctx, func(s database.Store) error {
		return e.synthesizeCopy(ctx, s, botID, token, params, newID)
	})
}

func (e *Engine) synthesizeCopy(ctx context.Context, s database.Store, botID int64, token string, params map[string]any, newID int64) error {
	srcID, ok := paramInt64(params, "message_id")
	if !ok {
		return nil
	}
	return e.synthesize(ctx, s, botID, token, params, []int64{srcID}, []int64{newID}, true)
}

// SynthesizeCopies records the result of a copyMessages call. newIDs aligns
// positionally with the message_ids request parameter.
func (e *Engine) SynthesizeCopies(ctx context.Context, botID int64, token string, params map[string]any, newIDs []int64) error {
	return e.store.InTx(ctx, func(s database.Store) error {
		return e.synthesizeCopies(ctx, s, botID, token, params, newIDs)
	})
}

func (e *Engine) synthesizeCopies(ctx context.Context, s database.Store, botID int64, token string, params map[string]any, newIDs []int64) error {
	return e.synthesize(ctx, s, botID, token, params, paramInt64s(params, "message_ids"), newIDs, true)
}

// SynthesizeForwards records the result of a forwardMessages call.
func (e *Engine) SynthesizeForwards(ctx context.Context, botID int64, token string, params map[string]any, newIDs []int64) error {
	return e.store.InTx(ctx, func(s database.Store) error {
		return e.synthesizeForwards(ctx, s, botID, token, params, newIDs)
	})
}

func (e *Engine) synthesizeForwards(ctx context.Context, s database.Store, botID int64, token string, params map[string]any, newIDs []int64) error {
	return e.synthesize(ctx, s, botID, token, params, paramInt64s(params, "message_ids"), newIDs, false)
}

func (e *Engine) synthesize(ctx context.Context, s database.Store, botID int64, token string, params map[string]any, srcIDs, newIDs []int64, isCopy bool) error {
	if len(srcIDs) == 0 || len(srcIDs) != len(newIDs) {
		return nil
	}

	srcChatID, err := e.resolveChatRef(ctx, s, params["from_chat_id"])
	if err != nil {
		if errors.Is(err, database.ErrNotFound) || errors.Is(err, errBadChatRef) {
			e.logger.DebugContext(ctx, "Skipping synthesis, unknown source chat",
				"bot_id", botID, "from_chat_id", params["from_chat_id"])
			return nil
		}
		return err
	}

	destChatID, err := e.resolveDestination(ctx, s, botID, token, params["chat_id"])
	if err != nil {
		if errors.Is(err, database.ErrNotFound) || errors.Is(err, errBadChatRef) {
			e.logger.DebugContext(ctx, "Skipping synthesis, unknown destination chat",
				"bot_id", botID, "chat_id", params["chat_id"])
			return nil
		}
		return err
	}

	rows, err := s.GetMessages(ctx, srcChatID, srcIDs)
	if err != nil {
		return err
	}
	byID := make(map[int64]*database.Message, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}

	var clones []*telegram.Message
	for i, srcID := range srcIDs {
		row, ok := byID[srcID]
		if !ok {
			continue
		}
		payload := rowToPayload(row)
		payload["message_id"] = newIDs[i]
		payload["chat"] = map[string]any{"id": destChatID, "type": ""}
		patchFromParams(payload, params, isCopy)

		msg, err := payloadToMessage(payload)
		if err != nil {
			return fmt.Errorf("failed to rebuild message %d: %w", srcID, err)
		}
		clones = append(clones, msg)
	}
	if len(clones) == 0 {
		return nil
	}

	_, err = e.logObject(ctx, s, botID, clones)
	return err
}

// patchFromParams applies the request parameters that change the derived
// message relative to its source.
func patchFromParams(payload map[string]any, params map[string]any, isCopy bool) {
	if threadID, ok := paramInt64(params, "message_thread_id"); ok {
		payload["message_thread_id"] = threadID
	}
	if b, _ := params["protect_content"].(bool); b {
		payload["has_protected_content"] = true
	}
	if !isCopy {
		return
	}

	// Copy-only parameters. Each named parameter replaces exactly its own
	// field; unmentioned fields keep the source value.
	if b, _ := params["remove_caption"].(bool); b {
		delete(payload, "caption")
		delete(payload, "caption_entities")
	}
	if caption, ok := params["caption"].(string); ok {
		payload["caption"] = caption
		if entities, ok := params["caption_entities"]; ok {
			payload["caption_entities"] = entities
		} else {
			delete(payload, "caption_entities")
		}
	}
	if v, ok := params["show_caption_above_media"]; ok {
		payload["show_caption_above_media"] = v
	}
	if v, ok := params["reply_markup"]; ok {
		payload["reply_markup"] = v
	}
}

// rowToPayload reconstructs the wire shape of a stored message. Referenced
// entities are reduced to identity stubs; they already exist in the catalog,
// so extraction will not overwrite them.
func rowToPayload(msg *database.Message) map[string]any {
	p := map[string]any{
		"message_id": msg.ID,
		"date":       msg.Date.Unix(),
		"chat":       map[string]any{"id": msg.ChatID, "type": ""},
	}
	for k, v := range msg.OtherData {
		p[k] = v
	}
	if msg.MessageThreadID != nil {
		p["message_thread_id"] = *msg.MessageThreadID
	}
	if msg.Text != nil {
		p["text"] = *msg.Text
	}
	if msg.Caption != nil {
		p["caption"] = *msg.Caption
	}
	if msg.FromUserID != nil {
		p["from"] = map[string]any{"id": *msg.FromUserID, "first_name": "", "is_bot": false}
	}
	if msg.SenderChatID != nil {
		p["sender_chat"] = map[string]any{"id": *msg.SenderChatID, "type": ""}
	}
	if msg.SenderBoostCount != nil {
		p["sender_boost_count"] = *msg.SenderBoostCount
	}
	if msg.SenderBusinessBotID != nil {
		p["sender_business_bot"] = map[string]any{"id": *msg.SenderBusinessBotID, "first_name": "", "is_bot": true}
	}
	if msg.BusinessConnectionID != nil {
		p["business_connection_id"] = *msg.BusinessConnectionID
	}
	for key, set := range map[string]bool{
		"is_topic_message":      msg.IsTopicMessage,
		"is_automatic_forward":  msg.IsAutomaticForward,
		"has_media_spoiler":     msg.HasMediaSpoiler,
		"has_protected_content": msg.HasProtectedContent,
		"is_from_offline":       msg.IsFromOffline,
		"is_paid_post":          msg.IsPaidPost,
	} {
		if set {
			p[key] = true
		}
	}
	if msg.AuthorSignature != nil {
		p["author_signature"] = *msg.AuthorSignature
	}
	if msg.PaidStarCount != nil {
		p["paid_star_count"] = *msg.PaidStarCount
	}
	return p
}

// payloadToMessage round-trips a payload map through JSON so the clone gets
// the same decoded shape as a message received on the wire.
func payloadToMessage(payload map[string]any) (*telegram.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var msg telegram.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

var errBadChatRef = errors.New("unusable chat reference")

// resolveChatRef resolves a chat_id request parameter, which may be a
// number, a numeric string, or an "@username" handle, to a catalog chat id.
func (e *Engine) resolveChatRef(ctx context.Context, s database.Store, ref any) (int64, error) {
	switch v := ref.(type) {
	case json.Number:
		id, err := v.Int64()
		if err != nil {
			return 0, errBadChatRef
		}
		return id, nil
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		if username, ok := strings.CutPrefix(v, "@"); ok {
			return s.GetChatIDByUsername(ctx, username)
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, errBadChatRef
		}
		return id, nil
	default:
		return 0, errBadChatRef
	}
}

// resolveDestination resolves the destination chat of a copy or forward,
// allowing a single live fetch when the chat is not yet in the catalog.
func (e *Engine) resolveDestination(ctx context.Context, s database.Store, botID int64, token string, ref any) (int64, error) {
	id, err := e.resolveChatRef(ctx, s, ref)
	if err == nil {
		if _, getErr := s.GetChat(ctx, id); getErr == nil {
			return id, nil
		} else if !errors.Is(getErr, database.ErrNotFound) {
			return 0, getErr
		}
	} else if !errors.Is(err, database.ErrNotFound) {
		return 0, err
	}

	refStr, ok := chatRefString(ref)
	if !ok {
		return 0, errBadChatRef
	}
	info, err := e.fetchChatInfo(ctx, s, botID, token, refStr)
	if err != nil {
		var apiErr *telegram.APIError
		if errors.As(err, &apiErr) {
			return 0, database.ErrNotFound
		}
		return 0, err
	}
	return info.ID, nil
}

func chatRefString(ref any) (string, bool) {
	switch v := ref.(type) {
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case string:
		return v, v != ""
	default:
		return "", false
	}
}

// paramInt64 reads an integer request parameter regardless of how the
// request encoded it.
func paramInt64(params map[string]any, key string) (int64, bool) {
	switch v := params[key].(type) {
	case json.Number:
		id, err := v.Int64()
		return id, err == nil
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		return id, err == nil
	default:
		return 0, false
	}
}

// paramInt64s reads an integer array request parameter.
func paramInt64s(params map[string]any, key string) []int64 {
	raw, ok := params[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case json.Number:
			id, err := v.Int64()
			if err != nil {
				return nil
			}
			out = append(out, id)
		case float64:
			out = append(out, int64(v))
		default:
			return nil
		}
	}
	return out
}
