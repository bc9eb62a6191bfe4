package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates an insert lost a uniqueness or foreign key race.
	ErrConflict = errors.New("constraint conflict")
)

const sqliteConstraintCode = 19

// IsConflict reports whether err is a SQLite constraint violation, either
// directly or wrapped in ErrConflict.
func IsConflict(err error) bool {
	if errors.Is(err, ErrConflict) {
		return true
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqliteConstraintCode
	}
	return false
}

// Extra holds the overflow portion of a Telegram object: every field that is
// not promoted to its own column, serialized as JSON in a TEXT column.
type Extra map[string]any

// Value implements driver.Valuer. A nil or empty map is stored as NULL.
func (e Extra) Value() (driver.Value, error) {
	if len(e) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(map[string]any(e))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal overflow data: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (e *Extra) Scan(src any) error {
	if src == nil {
		*e = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported overflow data type %T", src)
	}
	if len(data) == 0 {
		*e = nil
		return nil
	}
	m := make(map[string]any)
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to unmarshal overflow data: %w", err)
	}
	*e = m
	return nil
}

// User is a catalog row for a Telegram user.
type User struct {
	ID           int64     `db:"id"`
	FirstName    string    `db:"first_name"`
	LastName     *string   `db:"last_name"`
	Username     *string   `db:"username"`
	LanguageCode *string   `db:"language_code"`
	IsPremium    bool      `db:"is_premium"`
	IsBot        bool      `db:"is_bot"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Chat is a catalog row for a Telegram chat.
type Chat struct {
	ID               int64     `db:"id"`
	Type             string    `db:"type"`
	Title            *string   `db:"title"`
	Username         *string   `db:"username"`
	FirstName        *string   `db:"first_name"`
	LastName         *string   `db:"last_name"`
	IsForum          bool      `db:"is_forum"`
	IsDirectMessages bool      `db:"is_direct_messages"`
	PersonalChatID   *int64    `db:"personal_chat_id"`
	ParentChatID     *int64    `db:"parent_chat_id"`
	PinnedMessageID  *int64    `db:"pinned_message_id"`
	PhotoSmallID     *string   `db:"photo_small_id"`
	PhotoBigID       *string   `db:"photo_big_id"`
	OtherData        Extra     `db:"other_data"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// Message is a catalog row for a message. The primary key is (ChatID, ID);
// message ids are only unique within a chat.
type Message struct {
	ID                   int64      `db:"id"`
	ChatID               int64      `db:"chat_id"`
	MessageType          string     `db:"message_type"`
	MessageThreadID      *int64     `db:"message_thread_id"`
	Text                 *string    `db:"text"`
	Caption              *string    `db:"caption"`
	FromUserID           *int64     `db:"from_user_id"`
	SenderChatID         *int64     `db:"sender_chat_id"`
	SenderBoostCount     *int64     `db:"sender_boost_count"`
	SenderBusinessBotID  *int64     `db:"sender_business_bot_id"`
	Date                 time.Time  `db:"date"`
	EditDate             *time.Time `db:"edit_date"`
	BusinessConnectionID *string    `db:"business_connection_id"`
	IsTopicMessage       bool       `db:"is_topic_message"`
	IsAutomaticForward   bool       `db:"is_automatic_forward"`
	HasMediaSpoiler      bool       `db:"has_media_spoiler"`
	HasProtectedContent  bool       `db:"has_protected_content"`
	IsFromOffline        bool       `db:"is_from_offline"`
	IsPaidPost           bool       `db:"is_paid_post"`
	AuthorSignature      *string    `db:"author_signature"`
	PaidStarCount        *int64     `db:"paid_star_count"`
	OtherData            Extra      `db:"other_data"`
}

// File is a catalog row for a file shape, keyed by its stable unique id.
type File struct {
	FileUniqueID string    `db:"file_unique_id"`
	FileType     string    `db:"file_type"`
	FileSize     *int64    `db:"file_size"`
	MimeType     *string   `db:"mime_type"`
	OtherData    Extra     `db:"other_data"`
	Timestamp    time.Time `db:"timestamp"`
}

// Bot is a registered bot account with its encrypted API token.
type Bot struct {
	ID                      int64     `db:"id"`
	Token                   []byte    `db:"token"`
	CanJoinGroups           bool      `db:"can_join_groups"`
	CanReadAllGroupMessages bool      `db:"can_read_all_group_messages"`
	SupportsInlineQueries   bool      `db:"supports_inline_queries"`
	CanConnectToBusiness    bool      `db:"can_connect_to_business"`
	HasMainWebApp           bool      `db:"has_main_web_app"`
	CreatedAt               time.Time `db:"created_at"`
	UpdatedAt               time.Time `db:"updated_at"`
}

// BotWebhook holds a bot's webhook credentials. All secrets are encrypted.
type BotWebhook struct {
	BotID         int64     `db:"bot_id"`
	SecretToken   []byte    `db:"secret_token"`
	RedirectURL   []byte    `db:"redirect_url"`
	RedirectToken []byte    `db:"redirect_token"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// BotMessage associates a bot with a message it has seen.
type BotMessage struct {
	BotID     int64     `db:"bot_id"`
	ChatID    int64     `db:"chat_id"`
	MessageID int64     `db:"message_id"`
	Timestamp time.Time `db:"timestamp"`
}

// BotFile associates a bot with a file it has seen, carrying the bot-scoped
// file_id needed to download the file with that bot's token.
type BotFile struct {
	BotID        int64     `db:"bot_id"`
	FileUniqueID string    `db:"file_unique_id"`
	FileID       string    `db:"file_id"`
	Timestamp    time.Time `db:"timestamp"`
}

// MessageKey identifies a message by its composite primary key.
type MessageKey struct {
	ChatID    int64
	MessageID int64
}

// FileSighting is a (file_unique_id, file_id) pair observed in bot traffic.
type FileSighting struct {
	FileUniqueID string
	FileID       string
}
