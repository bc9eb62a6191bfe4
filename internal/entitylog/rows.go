package entitylog

import (
	"time"

	"github.com/tgfleet/botgate/internal/database"
	"github.com/tgfleet/botgate/internal/telegram"
)

// Fields promoted to chat columns or represented as relations; everything
// else in a chat payload goes to overflow.
var chatPromotedFields = map[string]struct{}{
	"id": {}, "type": {}, "title": {}, "username": {},
	"first_name": {}, "last_name": {}, "is_forum": {}, "is_direct_messages": {},
	"personal_chat": {}, "parent_chat": {}, "pinned_message": {}, "photo": {},
}

// Fields promoted to message columns or represented as relations.
var messagePromotedFields = map[string]struct{}{
	"message_id": {}, "chat": {}, "message_thread_id": {},
	"text": {}, "caption": {}, "from": {}, "sender_chat": {},
	"sender_boost_count": {}, "sender_business_bot": {},
	"date": {}, "edit_date": {}, "business_connection_id": {},
	"is_topic_message": {}, "is_automatic_forward": {},
	"has_media_spoiler": {}, "has_protected_content": {},
	"is_from_offline": {}, "is_paid_post": {},
	"author_signature": {}, "paid_star_count": {},
}

// Service markers are dropped from overflow unless actually set; the API
// only ever sends them as true.
var messageConditionalFields = map[string]struct{}{
	"delete_chat_photo": {}, "group_chat_created": {},
	"supergroup_chat_created": {}, "channel_chat_created": {},
}

// Fields promoted to file columns.
var filePromotedFields = map[string]struct{}{
	"file_unique_id": {}, "file_id": {}, "file_size": {},
	"mime_type": {}, "file_type": {},
}

// stripBotScoped returns a copy of v with every "file_id" key removed at any
// depth. Bot-scoped download handles must not leak into shared catalog rows;
// they are recorded per bot instead. Input maps are shared with live payload
// structs, so the copy never mutates them.
func stripBotScoped(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if k == "file_id" {
				continue
			}
			out[k] = stripBotScoped(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = stripBotScoped(val)
		}
		return out
	default:
		return t
	}
}

// overflow partitions a raw payload map into the overflow portion: every
// field not promoted to a column, with bot-scoped handles stripped. Returns
// nil when nothing overflows.
func overflow(raw map[string]any, promoted, conditional map[string]struct{}) database.Extra {
	var out database.Extra
	for k, v := range raw {
		if _, ok := promoted[k]; ok {
			continue
		}
		if _, ok := conditional[k]; ok {
			if b, isBool := v.(bool); !isBool || !b {
				continue
			}
		}
		if out == nil {
			out = make(database.Extra)
		}
		out[k] = stripBotScoped(v)
	}
	return out
}

func buildUserRow(u *telegram.User) database.User {
	return database.User{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Username:     u.Username,
		LanguageCode: u.LanguageCode,
		IsPremium:    u.IsPremium,
		IsBot:        u.IsBot,
	}
}

// buildChatRow maps a compact chat sighting to a row. Reference columns stay
// NULL; only the authoritative getChat path fills them.
func buildChatRow(ch *telegram.Chat) database.Chat {
	return database.Chat{
		ID:               ch.ID,
		Type:             ch.Type,
		Title:            ch.Title,
		Username:         ch.Username,
		FirstName:        ch.FirstName,
		LastName:         ch.LastName,
		IsForum:          ch.IsForum,
		IsDirectMessages: ch.IsDirectMessages,
		OtherData:        overflow(ch.Raw, chatPromotedFields, nil),
	}
}

// buildChatInfoRow maps an authoritative chat snapshot to a full row
// including reference columns.
func buildChatInfoRow(info *telegram.ChatFullInfo) database.Chat {
	row := buildChatRow(&info.Chat)
	if info.PersonalChat != nil {
		row.PersonalChatID = &info.PersonalChat.ID
	}
	if info.ParentChat != nil {
		row.ParentChatID = &info.ParentChat.ID
	}
	if info.PinnedMessage != nil {
		row.PinnedMessageID = &info.PinnedMessage.ID
	}
	if info.Photo != nil {
		row.PhotoSmallID = &info.Photo.SmallFileUniqueID
		row.PhotoBigID = &info.Photo.BigFileUniqueID
	}
	return row
}

func buildMessageRow(m *telegram.Message) database.Message {
	row := database.Message{
		ID:                   m.ID,
		ChatID:               m.ChatID(),
		MessageType:          string(m.Kind()),
		MessageThreadID:      m.ThreadID,
		Text:                 m.Text,
		Caption:              m.Caption,
		SenderBoostCount:     m.SenderBoostCount,
		Date:                 time.Unix(m.Date, 0).UTC(),
		BusinessConnectionID: m.BusinessConnectionID,
		IsTopicMessage:       m.IsTopicMessage,
		IsAutomaticForward:   m.IsAutomaticForward,
		HasMediaSpoiler:      m.HasMediaSpoiler,
		HasProtectedContent:  m.HasProtectedContent,
		IsFromOffline:        m.IsFromOffline,
		IsPaidPost:           m.IsPaidPost,
		AuthorSignature:      m.AuthorSignature,
		PaidStarCount:        m.PaidStarCount,
		OtherData:            overflow(m.Raw, messagePromotedFields, messageConditionalFields),
	}
	if m.From != nil {
		row.FromUserID = &m.From.ID
	}
	if m.SenderChat != nil {
		row.SenderChatID = &m.SenderChat.ID
	}
	if m.SenderBusinessBot != nil {
		row.SenderBusinessBotID = &m.SenderBusinessBot.ID
	}
	if m.EditDate != nil {
		t := time.Unix(*m.EditDate, 0).UTC()
		row.EditDate = &t
	}
	return row
}

func buildFileRow(s FileSighting) database.File {
	return database.File{
		FileUniqueID: s.Meta.UniqueID,
		FileType:     string(s.Kind),
		FileSize:     s.Meta.Size,
		MimeType:     s.Meta.MimeType,
		OtherData:    overflow(s.Meta.Raw, filePromotedFields, nil),
	}
}
