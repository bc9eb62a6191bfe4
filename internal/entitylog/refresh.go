package entitylog

import (
	"context"
	"fmt"

	"github.com/tgfleet/botgate/internal/database"
	"github.com/tgfleet/botgate/internal/telegram"
)

// rawBool reads an unpromoted boolean out of a raw payload map.
func rawBool(raw map[string]any, key string) bool {
	b, _ := raw[key].(bool)
	return b
}

// RefreshSelf applies a bot's own getMe snapshot: the user identity is
// upserted and the bot capability flags are refreshed.
func (e *Engine) RefreshSelf(ctx context.Context, botID int64, me *telegram.User) error {
	return e.store.InTx(ctx, func(s database.Store) error {
		return e.refreshSelf(ctx, s, botID, me)
	})
}

func (e *Engine) refreshSelf(ctx context.Context, s database.Store, botID int64, me *telegram.User) error {
	if me == nil || me.ID == 0 {
		return nil
	}
	row := buildUserRow(me)
	if err := s.UpsertUsers(ctx, []database.User{row}); err != nil {
		return err
	}
	bot := database.Bot{
		ID:                      me.ID,
		CanJoinGroups:           rawBool(me.Raw, "can_join_groups"),
		CanReadAllGroupMessages: rawBool(me.Raw, "can_read_all_group_messages"),
		SupportsInlineQueries:   rawBool(me.Raw, "supports_inline_queries"),
		CanConnectToBusiness:    rawBool(me.Raw, "can_connect_to_business"),
		HasMainWebApp:           rawBool(me.Raw, "has_main_web_app"),
	}
	if err := s.UpdateBotFlags(ctx, &bot); err != nil {
		return fmt.Errorf("failed to refresh bot %d flags: %w", botID, err)
	}
	return nil
}

// refreshChats upserts authoritative compact chat snapshots. Reference and
// overflow columns are left untouched for existing rows.
func refreshChats(ctx context.Context, s database.Store, chats []*telegram.Chat) error {
	rows := make([]database.Chat, 0, len(chats))
	for _, ch := range chats {
		if ch == nil || ch.ID == 0 {
			continue
		}
		row := buildChatRow(ch)
		row.OtherData = nil
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	return s.UpsertChats(ctx, rows)
}

// RefreshChatInfo applies an authoritative getChat snapshot for botID: the
// nested entities are logged, the personal and parent chat identities are
// overwritten, the avatar files are recorded, and the chat row itself is
// inserted or fully overwritten.
func (e *Engine) RefreshChatInfo(ctx context.Context, botID int64, info *telegram.ChatFullInfo) error {
	return e.store.InTx(ctx, func(s database.Store) error {
		return e.refreshChatInfo(ctx, s, botID, info)
	})
}

func (e *Engine) refreshChatInfo(ctx context.Context, s database.Store, botID int64, info *telegram.ChatFullInfo) error {
	if info == nil || info.ID == 0 {
		return nil
	}
	if _, err := e.logObject(ctx, s, botID, info); err != nil {
		return err
	}
	// The snapshot is authoritative for the nested chats too; insert alone
	// would leave stale identities in place.
	if err := refreshChats(ctx, s, []*telegram.Chat{info.PersonalChat, info.ParentChat}); err != nil {
		return err
	}
	if err := e.recordAvatar(ctx, s, botID, info.Photo); err != nil {
		return err
	}
	row := buildChatInfoRow(info)
	return s.UpsertChatInfo(ctx, &row)
}

// recordAvatar records the two avatar file handles of a chat photo. Avatar
// files only ever surface through getChat, as a bare id pair.
func (e *Engine) recordAvatar(ctx context.Context, s database.Store, botID int64, photo *telegram.ChatPhoto) error {
	if photo == nil {
		return nil
	}
	keys := database.EntityKeys{
		Files: []string{photo.SmallFileUniqueID, photo.BigFileUniqueID},
	}
	report, err := s.CheckEntities(ctx, botID, keys)
	if err != nil {
		return err
	}

	handles := []database.FileSighting{
		{FileUniqueID: photo.SmallFileUniqueID, FileID: photo.SmallFileID},
		{FileUniqueID: photo.BigFileUniqueID, FileID: photo.BigFileID},
	}
	var files []database.File
	var sightings []database.FileSighting
	seen := make(map[string]bool, len(handles))
	for _, h := range handles {
		if h.FileUniqueID == "" || seen[h.FileUniqueID] {
			continue
		}
		seen[h.FileUniqueID] = true
		state := report.Files[h.FileUniqueID]
		if !state.Exists {
			files = append(files, database.File{
				FileUniqueID: h.FileUniqueID,
				FileType:     string(telegram.FileKindChatPhoto),
			})
		}
		if !state.Exists || !state.BotLinked {
			sightings = append(sightings, h)
		}
	}
	if err := s.InsertFiles(ctx, files); err != nil {
		return err
	}
	return s.InsertBotFiles(ctx, botID, sightings)
}

// fetchChatInfo fetches a chat live from the Bot API and applies the
// snapshot. chatRef is a decimal chat id or an "@username" handle.
func (e *Engine) fetchChatInfo(ctx context.Context, s database.Store, botID int64, token, chatRef string) (*telegram.ChatFullInfo, error) {
	info, err := e.client.GetChat(ctx, token, chatRef)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chat %s: %w", chatRef, err)
	}
	if err := e.refreshChatInfo(ctx, s, botID, info); err != nil {
		return nil, err
	}
	return info, nil
}
