package entitylog

import (
	"context"
	"encoding/json"

	"github.com/tgfleet/botgate/internal/database"
	"github.com/tgfleet/botgate/internal/telegram"
)

// HandleUpdate records every entity sighted in one inbound update. Edited
// message updates additionally overwrite the stored message content.
func (e *Engine) HandleUpdate(ctx context.Context, botID int64, update *telegram.Update) error {
	err := e.store.InTx(ctx, func(s database.Store) error {
		return e.handleUpdate(ctx, s, botID, update)
	})
	return e.tolerateConflict(ctx, botID, err)
}

func (e *Engine) handleUpdate(ctx context.Context, s database.Store, botID int64, update *telegram.Update) error {
	if update == nil {
		return nil
	}
	if edited := update.Edited(); edited != nil {
		return e.logEdited(ctx, s, botID, edited)
	}
	_, err := e.logObject(ctx, s, botID, update)
	return err
}

// LogRequest records the entities surfaced by one successful Bot API call.
// method is the bare API method name, params the decoded request parameters,
// and result the raw "result" member of the response envelope. The whole
// call commits as one transaction; a failure rolls back every sighting the
// call produced.
//
// Synchronization never owns the exchange it observes: any failure here is
// reported to the caller for logging but the proxied response has already
// been decided.
func (e *Engine) LogRequest(ctx context.Context, botID int64, token, method string, params map[string]any, result json.RawMessage) error {
	err := e.store.InTx(ctx, func(s database.Store) error {
		return e.logRequest(ctx, s, botID, token, method, params, result)
	})
	return e.tolerateConflict(ctx, botID, err)
}

func (e *Engine) logRequest(ctx context.Context, s database.Store, botID int64, token, method string, params map[string]any, result json.RawMessage) error {
	switch {
	case method == "getUpdates":
		var updates []*telegram.Update
		if err := json.Unmarshal(result, &updates); err != nil {
			return err
		}
		for _, u := range updates {
			if err := e.handleUpdate(ctx, s, botID, u); err != nil {
				return err
			}
		}
		return nil

	case method == "sendMediaGroup":
		var messages []*telegram.Message
		if err := json.Unmarshal(result, &messages); err != nil {
			return err
		}
		_, err := e.logObject(ctx, s, botID, messages)
		return err

	case method == "copyMessage":
		var id telegram.MessageID
		if err := json.Unmarshal(result, &id); err != nil {
			return err
		}
		return e.synthesizeCopy(ctx, s, botID, token, params, id.ID)

	case method == "copyMessages":
		var ids []telegram.MessageID
		if err := json.Unmarshal(result, &ids); err != nil {
			return err
		}
		return e.synthesizeCopies(ctx, s, botID, token, params, messageIDValues(ids))

	case method == "forwardMessages":
		var ids []telegram.MessageID
		if err := json.Unmarshal(result, &ids); err != nil {
			return err
		}
		return e.synthesizeForwards(ctx, s, botID, token, params, messageIDValues(ids))

	case method == "getChat" || method == "getChatFullInfo":
		var info telegram.ChatFullInfo
		if err := json.Unmarshal(result, &info); err != nil {
			return err
		}
		return e.refreshChatInfo(ctx, s, botID, &info)

	case method == "getMe":
		var me telegram.User
		if err := json.Unmarshal(result, &me); err != nil {
			return err
		}
		return e.refreshSelf(ctx, s, botID, &me)

	case isMethod(telegram.MessageReturnedMethods, method):
		var msg telegram.Message
		if err := json.Unmarshal(result, &msg); err != nil {
			return err
		}
		_, err := e.logObject(ctx, s, botID, &msg)
		return err

	case isMethod(telegram.EditedMessageReturnedMethods, method):
		// Inline-message edits return plain true; there is no stored
		// message to update for those.
		if len(result) == 0 || result[0] != '{' {
			return nil
		}
		var msg telegram.Message
		if err := json.Unmarshal(result, &msg); err != nil {
			return err
		}
		return e.logEdited(ctx, s, botID, &msg)

	default:
		return nil
	}
}

// tolerateConflict downgrades constraint races to a debug event. A conflict
// means another writer recorded the same entity first; the catalog already
// holds what this pass tried to add.
func (e *Engine) tolerateConflict(ctx context.Context, botID int64, err error) error {
	if err == nil {
		return nil
	}
	if database.IsConflict(err) {
		e.logger.DebugContext(ctx, "Lost entity insert race", "bot_id", botID, "error", err)
		return nil
	}
	return err
}

func isMethod(set map[string]struct{}, method string) bool {
	_, ok := set[method]
	return ok
}

func messageIDValues(ids []telegram.MessageID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = id.ID
	}
	return out
}
