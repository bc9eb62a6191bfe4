package entitylog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tgfleet/botgate/internal/database"
	"github.com/tgfleet/botgate/internal/telegram"
)

// Engine reconciles extracted entity sightings against the catalog on
// behalf of one or more bots.
type Engine struct {
	store  database.Store
	client *telegram.Client
	logger *slog.Logger
}

// NewEngine creates a sync engine over the given store and API client.
func NewEngine(store database.Store, client *telegram.Client, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		client: client,
		logger: logger.With("component", "entitylog"),
	}
}

// LogResult summarizes one reconciliation pass.
type LogResult struct {
	NewUsers       int
	NewChats       int
	NewMessages    int
	NewFiles       int
	NewBotMessages int
	NewBotFiles    int

	// Inserted tracks message identities created by this pass, so the edit
	// path can tell a freshly recorded message from a stale one.
	Inserted map[database.MessageKey]bool
}

// LogObject extracts every entity sighted in the payload graph rooted at
// node and records the new ones atomically, associating message and file
// sightings with botID. Existing rows are never modified.
func (e *Engine) LogObject(ctx context.Context, botID int64, node any) (*LogResult, error) {
	var res *LogResult
	err := e.store.InTx(ctx, func(s database.Store) error {
		var txErr error
		res, txErr = e.logObject(ctx, s, botID, node)
		return txErr
	})
	return res, err
}

func (e *Engine) logObject(ctx context.Context, s database.Store, botID int64, node any) (*LogResult, error) {
	res := &LogResult{Inserted: make(map[database.MessageKey]bool)}

	ents := Collect(node)
	if ents.Empty() {
		return res, nil
	}

	report, err := s.CheckEntities(ctx, botID, ents.Keys())
	if err != nil {
		return nil, err
	}

	// Files go first: chat avatar columns reference them. Users and chats
	// precede messages for the sender and owning-chat references.
	var files []database.File
	var sightings []database.FileSighting
	for _, id := range ents.FileOrder {
		sighting := ents.Files[id]
		state := report.Files[id]
		if !state.Exists {
			files = append(files, buildFileRow(sighting))
		}
		if !state.Exists || !state.BotLinked {
			sightings = append(sightings, database.FileSighting{
				FileUniqueID: id,
				FileID:       sighting.Meta.FileID,
			})
		}
	}
	if err := s.InsertFiles(ctx, files); err != nil {
		return nil, err
	}

	var users []database.User
	for _, id := range ents.UserOrder {
		if !report.Users[id] {
			users = append(users, buildUserRow(ents.Users[id]))
		}
	}
	if err := s.InsertUsers(ctx, users); err != nil {
		return nil, err
	}

	var chats []database.Chat
	for _, id := range ents.ChatOrder {
		if !report.Chats[id] {
			chats = append(chats, buildChatRow(ents.Chats[id]))
		}
	}
	if err := s.InsertChats(ctx, chats); err != nil {
		return nil, err
	}

	var messages []database.Message
	var links []database.MessageKey
	for _, key := range ents.MessageOrder {
		state := report.Messages[key]
		if !state.Exists {
			messages = append(messages, buildMessageRow(ents.Messages[key]))
			res.Inserted[key] = true
		}
		if !state.Exists || !state.BotLinked {
			links = append(links, key)
		}
	}
	if err := s.InsertMessages(ctx, messages); err != nil {
		return nil, err
	}

	if err := s.InsertBotMessages(ctx, botID, links); err != nil {
		return nil, err
	}
	if err := s.InsertBotFiles(ctx, botID, sightings); err != nil {
		return nil, err
	}

	res.NewUsers = len(users)
	res.NewChats = len(chats)
	res.NewMessages = len(messages)
	res.NewFiles = len(files)
	res.NewBotMessages = len(links)
	res.NewBotFiles = len(sightings)

	e.logger.DebugContext(ctx, "Recorded entity sightings",
		"bot_id", botID,
		"new_users", res.NewUsers,
		"new_chats", res.NewChats,
		"new_messages", res.NewMessages,
		"new_files", res.NewFiles)
	return res, nil
}

// logEdited records an edited message. The surrounding entities are logged
// as usual; the message row itself is overwritten with the edited content
// unless this very call created it.
func (e *Engine) logEdited(ctx context.Context, s database.Store, botID int64, msg *telegram.Message) error {
	res, err := e.logObject(ctx, s, botID, msg)
	if err != nil {
		return err
	}
	key := database.MessageKey{ChatID: msg.ChatID(), MessageID: msg.ID}
	if res.Inserted[key] {
		return nil
	}
	row := buildMessageRow(msg)
	if err := s.UpdateMessageContent(ctx, &row); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to apply message edit: %w", err)
	}
	return nil
}
