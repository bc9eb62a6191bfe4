package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
)

// EntityKeys is a batch of entity identities to resolve against the catalog.
// Any of the slices may be empty.
type EntityKeys struct {
	Users    []int64
	Chats    []int64
	Messages []MessageKey
	Files    []string
}

// Existence is the resolution result for one message or file identity.
// BotLinked reports whether the requesting bot already has an association
// row for the entity.
type Existence struct {
	Exists    bool
	BotLinked bool
}

// ExistenceReport maps every requested identity to its resolution result.
// Users and chats are global, so only existence is reported for them.
type ExistenceReport struct {
	Users    map[int64]bool
	Chats    map[int64]bool
	Messages map[MessageKey]Existence
	Files    map[string]Existence
}

// Store defines the data access operations for the entity catalog. All
// methods accept a context for cancellation. Implementations obtained from
// InTx run every operation inside the same transaction.
type Store interface {
	// Ping checks database connectivity.
	Ping(ctx context.Context) error
	// InTx runs fn inside a transaction, committing if it returns nil and
	// rolling back otherwise. Calling InTx on a transaction-bound store
	// reuses the open transaction.
	InTx(ctx context.Context, fn func(Store) error) error

	// GetBot fetches a registered bot by id.
	GetBot(ctx context.Context, botID int64) (*Bot, error)
	// GetAllBots lists every registered bot.
	GetAllBots(ctx context.Context) ([]Bot, error)
	// GetWebhook fetches the webhook credentials for a bot.
	GetWebhook(ctx context.Context, botID int64) (*BotWebhook, error)

	// CheckEntities resolves a batch of entity identities in a single
	// query, reporting existence for every key and, for messages and
	// files, whether botID is already associated with the entity.
	CheckEntities(ctx context.Context, botID int64, keys EntityKeys) (*ExistenceReport, error)

	// InsertUsers bulk-inserts user rows.
	InsertUsers(ctx context.Context, users []User) error
	// InsertChats bulk-inserts chat rows.
	InsertChats(ctx context.Context, chats []Chat) error
	// InsertMessages bulk-inserts message rows.
	InsertMessages(ctx context.Context, messages []Message) error
	// InsertFiles bulk-inserts file rows.
	InsertFiles(ctx context.Context, files []File) error
	// InsertBotMessages bulk-inserts bot/message association rows.
	InsertBotMessages(ctx context.Context, botID int64, keys []MessageKey) error
	// InsertBotFiles bulk-inserts bot/file association rows.
	InsertBotFiles(ctx context.Context, botID int64, files []FileSighting) error

	// UpdateMessageContent overwrites the content columns of an existing
	// message row. The (chat_id, id) key is never changed.
	UpdateMessageContent(ctx context.Context, msg *Message) error
	// UpsertUsers inserts or refreshes the identity columns of user rows.
	UpsertUsers(ctx context.Context, users []User) error
	// UpsertChats inserts or refreshes the identity columns of chat rows,
	// leaving reference and overflow columns untouched on update.
	UpsertChats(ctx context.Context, chats []Chat) error
	// UpsertChatInfo inserts or fully refreshes a chat row including its
	// reference and overflow columns.
	UpsertChatInfo(ctx context.Context, chat *Chat) error
	// UpdateBotFlags refreshes a bot's capability flags.
	UpdateBotFlags(ctx context.Context, bot *Bot) error

	// GetChat fetches a chat by id.
	GetChat(ctx context.Context, chatID int64) (*Chat, error)
	// GetChatIDByUsername resolves a public @username to a chat id.
	GetChatIDByUsername(ctx context.Context, username string) (int64, error)
	// GetMessages fetches message rows by id within one chat. Missing ids
	// are silently absent from the result.
	GetMessages(ctx context.Context, chatID int64, ids []int64) ([]Message, error)
}

// queryer is the subset of sqlx operations shared by *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
}

type sqlxStore struct {
	q  queryer
	db *sqlx.DB // nil when transaction-bound
}

// NewStore creates a Store backed by the given database connection pool.
func NewStore(db *sqlx.DB) Store {
	return &sqlxStore{q: db, db: db}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func (s *sqlxStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Error("Failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	if err := fn(&sqlxStore{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil
	return nil
}

func (s *sqlxStore) GetBot(ctx context.Context, botID int64) (*Bot, error) {
	var bot Bot
	err := s.q.GetContext(ctx, &bot, `
		SELECT id, token, can_join_groups, can_read_all_group_messages,
		       supports_inline_queries, can_connect_to_business,
		       has_main_web_app, created_at, updated_at
		FROM bots WHERE id = ?`, botID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bot %d: %w", botID, err)
	}
	return &bot, nil
}

func (s *sqlxStore) GetAllBots(ctx context.Context) ([]Bot, error) {
	var bots []Bot
	err := s.q.SelectContext(ctx, &bots, `
		SELECT id, token, can_join_groups, can_read_all_group_messages,
		       supports_inline_queries, can_connect_to_business,
		       has_main_web_app, created_at, updated_at
		FROM bots ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bots: %w", err)
	}
	return bots, nil
}

func (s *sqlxStore) GetWebhook(ctx context.Context, botID int64) (*BotWebhook, error) {
	var wh BotWebhook
	err := s.q.GetContext(ctx, &wh, `
		SELECT bot_id, secret_token, redirect_url, redirect_token,
		       created_at, updated_at
		FROM bot_webhooks WHERE bot_id = ?`, botID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook for bot %d: %w", botID, err)
	}
	return &wh, nil
}

// Entity kind discriminators in the existence query result.
const (
	kindChat    = 1
	kindUser    = 2
	kindMessage = 3
	kindFile    = 4
)

type existenceRow struct {
	ChatID       sql.NullInt64  `db:"chat_id"`
	UserID       sql.NullInt64  `db:"user_id"`
	MessageID    sql.NullInt64  `db:"message_id"`
	FileUniqueID sql.NullString `db:"file_unique_id"`
	DoesExist    bool           `db:"does_exist"`
	BotLinked    bool           `db:"bot_linked"`
	EntityKind   int            `db:"entity_kind"`
}

// valuesRows renders a VALUES list of n rows of the given width. An empty
// batch renders a single all-NULL row so the CTE stays syntactically valid;
// the query filters NULL keys out, so empty batches contribute no rows.
func valuesRows(n, width int) string {
	if n == 0 {
		return "(" + strings.TrimSuffix(strings.Repeat("NULL, ", width), ", ") + ")"
	}
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", width), ", ") + ")"
	rows := make([]string, n)
	for i := range rows {
		rows[i] = row
	}
	return strings.Join(rows, ", ")
}

func (s *sqlxStore) CheckEntities(ctx context.Context, botID int64, keys EntityKeys) (*ExistenceReport, error) {
	query := fmt.Sprintf(`
		WITH input_chats (chat_id) AS (VALUES %s),
		     input_users (user_id) AS (VALUES %s),
		     input_messages (chat_id, message_id) AS (VALUES %s),
		     input_files (file_unique_id) AS (VALUES %s)
		SELECT i.chat_id AS chat_id, NULL AS user_id, NULL AS message_id,
		       NULL AS file_unique_id, c.id IS NOT NULL AS does_exist,
		       0 AS bot_linked, %d AS entity_kind
		FROM input_chats i
		LEFT JOIN chats c ON c.id = i.chat_id
		WHERE i.chat_id IS NOT NULL
		UNION ALL
		SELECT NULL, i.user_id, NULL, NULL, u.id IS NOT NULL, 0, %d
		FROM input_users i
		LEFT JOIN users u ON u.id = i.user_id
		WHERE i.user_id IS NOT NULL
		UNION ALL
		SELECT i.chat_id, NULL, i.message_id, NULL, m.id IS NOT NULL,
		       bm.bot_id IS NOT NULL, %d
		FROM input_messages i
		LEFT JOIN messages m ON m.chat_id = i.chat_id AND m.id = i.message_id
		LEFT JOIN bot_messages bm
		       ON bm.bot_id = ? AND bm.chat_id = i.chat_id AND bm.message_id = i.message_id
		WHERE i.chat_id IS NOT NULL
		UNION ALL
		SELECT NULL, NULL, NULL, i.file_unique_id,
		       f.file_unique_id IS NOT NULL, bf.bot_id IS NOT NULL, %d
		FROM input_files i
		LEFT JOIN files f ON f.file_unique_id = i.file_unique_id
		LEFT JOIN bot_files bf
		       ON bf.bot_id = ? AND bf.file_unique_id = i.file_unique_id
		WHERE i.file_unique_id IS NOT NULL`,
		valuesRows(len(keys.Chats), 1),
		valuesRows(len(keys.Users), 1),
		valuesRows(len(keys.Messages), 2),
		valuesRows(len(keys.Files), 1),
		kindChat, kindUser, kindMessage, kindFile)

	args := make([]any, 0, len(keys.Chats)+len(keys.Users)+2*len(keys.Messages)+len(keys.Files)+2)
	for _, id := range keys.Chats {
		args = append(args, id)
	}
	for _, id := range keys.Users {
		args = append(args, id)
	}
	for _, key := range keys.Messages {
		args = append(args, key.ChatID, key.MessageID)
	}
	for _, id := range keys.Files {
		args = append(args, id)
	}
	args = append(args, botID, botID)

	var rows []existenceRow
	if err := s.q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to check entities: %w", err)
	}

	report := &ExistenceReport{
		Users:    make(map[int64]bool, len(keys.Users)),
		Chats:    make(map[int64]bool, len(keys.Chats)),
		Messages: make(map[MessageKey]Existence, len(keys.Messages)),
		Files:    make(map[string]Existence, len(keys.Files)),
	}
	for _, row := range rows {
		switch row.EntityKind {
		case kindChat:
			report.Chats[row.ChatID.Int64] = row.DoesExist
		case kindUser:
			report.Users[row.UserID.Int64] = row.DoesExist
		case kindMessage:
			key := MessageKey{ChatID: row.ChatID.Int64, MessageID: row.MessageID.Int64}
			report.Messages[key] = Existence{Exists: row.DoesExist, BotLinked: row.BotLinked}
		case kindFile:
			report.Files[row.FileUniqueID.String] = Existence{Exists: row.DoesExist, BotLinked: row.BotLinked}
		}
	}
	return report, nil
}

// wrapExec classifies an exec error, surfacing constraint races as
// ErrConflict so callers can treat them as benign.
func wrapExec(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsConflict(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *sqlxStore) InsertUsers(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	_, err := s.q.NamedExecContext(ctx, `
		INSERT INTO users (id, first_name, last_name, username, language_code,
		                   is_premium, is_bot)
		VALUES (:id, :first_name, :last_name, :username, :language_code,
		        :is_premium, :is_bot)`, users)
	return wrapExec("failed to insert users", err)
}

func (s *sqlxStore) InsertChats(ctx context.Context, chats []Chat) error {
	if len(chats) == 0 {
		return nil
	}
	_, err := s.q.NamedExecContext(ctx, `
		INSERT INTO chats (id, type, title, username, first_name, last_name,
		                   is_forum, is_direct_messages, personal_chat_id,
		                   parent_chat_id, pinned_message_id, photo_small_id,
		                   photo_big_id, other_data)
		VALUES (:id, :type, :title, :username, :first_name, :last_name,
		        :is_forum, :is_direct_messages, :personal_chat_id,
		        :parent_chat_id, :pinned_message_id, :photo_small_id,
		        :photo_big_id, :other_data)`, chats)
	return wrapExec("failed to insert chats", err)
}

func (s *sqlxStore) InsertMessages(ctx context.Context, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	_, err := s.q.NamedExecContext(ctx, `
		INSERT INTO messages (id, chat_id, message_type, message_thread_id,
		                      text, caption, from_user_id, sender_chat_id,
		                      sender_boost_count, sender_business_bot_id,
		                      date, edit_date, business_connection_id,
		                      is_topic_message, is_automatic_forward,
		                      has_media_spoiler, has_protected_content,
		                      is_from_offline, is_paid_post, author_signature,
		                      paid_star_count, other_data)
		VALUES (:id, :chat_id, :message_type, :message_thread_id,
		        :text, :caption, :from_user_id, :sender_chat_id,
		        :sender_boost_count, :sender_business_bot_id,
		        :date, :edit_date, :business_connection_id,
		        :is_topic_message, :is_automatic_forward,
		        :has_media_spoiler, :has_protected_content,
		        :is_from_offline, :is_paid_post, :author_signature,
		        :paid_star_count, :other_data)`, messages)
	return wrapExec("failed to insert messages", err)
}

func (s *sqlxStore) InsertFiles(ctx context.Context, files []File) error {
	if len(files) == 0 {
		return nil
	}
	_, err := s.q.NamedExecContext(ctx, `
		INSERT INTO files (file_unique_id, file_type, file_size, mime_type,
		                   other_data)
		VALUES (:file_unique_id, :file_type, :file_size, :mime_type,
		        :other_data)`, files)
	return wrapExec("failed to insert files", err)
}

func (s *sqlxStore) InsertBotMessages(ctx context.Context, botID int64, keys []MessageKey) error {
	if len(keys) == 0 {
		return nil
	}
	rows := make([]BotMessage, len(keys))
	for i, key := range keys {
		rows[i] = BotMessage{BotID: botID, ChatID: key.ChatID, MessageID: key.MessageID}
	}
	_, err := s.q.NamedExecContext(ctx, `
		INSERT INTO bot_messages (bot_id, chat_id, message_id)
		VALUES (:bot_id, :chat_id, :message_id)`, rows)
	return wrapExec("failed to insert bot messages", err)
}

func (s *sqlxStore) InsertBotFiles(ctx context.Context, botID int64, files []FileSighting) error {
	if len(files) == 0 {
		return nil
	}
	rows := make([]BotFile, len(files))
	for i, f := range files {
		rows[i] = BotFile{BotID: botID, FileUniqueID: f.FileUniqueID, FileID: f.FileID}
	}
	_, err := s.q.NamedExecContext(ctx, `
		INSERT INTO bot_files (bot_id, file_unique_id, file_id)
		VALUES (:bot_id, :file_unique_id, :file_id)`, rows)
	return wrapExec("failed to insert bot files", err)
}

func (s *sqlxStore) UpdateMessageContent(ctx context.Context, msg *Message) error {
	result, err := s.q.NamedExecContext(ctx, `
		UPDATE messages
		SET message_type = :message_type,
		    message_thread_id = :message_thread_id,
		    text = :text,
		    caption = :caption,
		    from_user_id = :from_user_id,
		    sender_chat_id = :sender_chat_id,
		    sender_boost_count = :sender_boost_count,
		    sender_business_bot_id = :sender_business_bot_id,
		    date = :date,
		    edit_date = :edit_date,
		    business_connection_id = :business_connection_id,
		    is_topic_message = :is_topic_message,
		    is_automatic_forward = :is_automatic_forward,
		    has_media_spoiler = :has_media_spoiler,
		    has_protected_content = :has_protected_content,
		    is_from_offline = :is_from_offline,
		    is_paid_post = :is_paid_post,
		    author_signature = :author_signature,
		    paid_star_count = :paid_star_count,
		    other_data = :other_data
		WHERE chat_id = :chat_id AND id = :id`, msg)
	if err != nil {
		return wrapExec("failed to update message", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlxStore) UpsertUsers(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	_, err := s.q.NamedExecContext(ctx, `
		INSERT INTO users (id, first_name, last_name, username, language_code,
		                   is_premium, is_bot)
		VALUES (:id, :first_name, :last_name, :username, :language_code,
		        :is_premium, :is_bot)
		ON CONFLICT (id) DO UPDATE SET
		    first_name = excluded.first_name,
		    last_name = excluded.last_name,
		    username = excluded.username,
		    language_code = excluded.language_code,
		    is_premium = excluded.is_premium,
		    is_bot = excluded.is_bot,
		    updated_at = CURRENT_TIMESTAMP`, users)
	return wrapExec("failed to upsert users", err)
}

func (s *sqlxStore) UpsertChats(ctx context.Context, chats []Chat) error {
	if len(chats) == 0 {
		return nil
	}
	_, err := s.q.NamedExecContext(ctx, `
		INSERT INTO chats (id, type, title, username, first_name, last_name,
		                   is_forum, is_direct_messages)
		VALUES (:id, :type, :title, :username, :first_name, :last_name,
		        :is_forum, :is_direct_messages)
		ON CONFLICT (id) DO UPDATE SET
		    type = excluded.type,
		    title = excluded.title,
		    username = excluded.username,
		    first_name = excluded.first_name,
		    last_name = excluded.last_name,
		    is_forum = excluded.is_forum,
		    is_direct_messages = excluded.is_direct_messages,
		    updated_at = CURRENT_TIMESTAMP`, chats)
	return wrapExec("failed to upsert chats", err)
}

func (s *sqlxStore) UpsertChatInfo(ctx context.Context, chat *Chat) error {
	_, err := s.q.NamedExecContext(ctx, `
		INSERT INTO chats (id, type, title, username, first_name, last_name,
		                   is_forum, is_direct_messages, personal_chat_id,
		                   parent_chat_id, pinned_message_id, photo_small_id,
		                   photo_big_id, other_data)
		VALUES (:id, :type, :title, :username, :first_name, :last_name,
		        :is_forum, :is_direct_messages, :personal_chat_id,
		        :parent_chat_id, :pinned_message_id, :photo_small_id,
		        :photo_big_id, :other_data)
		ON CONFLICT (id) DO UPDATE SET
		    type = excluded.type,
		    title = excluded.title,
		    username = excluded.username,
		    first_name = excluded.first_name,
		    last_name = excluded.last_name,
		    is_forum = excluded.is_forum,
		    is_direct_messages = excluded.is_direct_messages,
		    personal_chat_id = excluded.personal_chat_id,
		    parent_chat_id = excluded.parent_chat_id,
		    pinned_message_id = excluded.pinned_message_id,
		    photo_small_id = excluded.photo_small_id,
		    photo_big_id = excluded.photo_big_id,
		    other_data = excluded.other_data,
		    updated_at = CURRENT_TIMESTAMP`, chat)
	return wrapExec("failed to upsert chat info", err)
}

func (s *sqlxStore) UpdateBotFlags(ctx context.Context, bot *Bot) error {
	result, err := s.q.NamedExecContext(ctx, `
		UPDATE bots
		SET can_join_groups = :can_join_groups,
		    can_read_all_group_messages = :can_read_all_group_messages,
		    supports_inline_queries = :supports_inline_queries,
		    can_connect_to_business = :can_connect_to_business,
		    has_main_web_app = :has_main_web_app,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = :id`, bot)
	if err != nil {
		return fmt.Errorf("failed to update bot flags: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlxStore) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	var chat Chat
	err := s.q.GetContext(ctx, &chat, `
		SELECT id, type, title, username, first_name, last_name, is_forum,
		       is_direct_messages, personal_chat_id, parent_chat_id,
		       pinned_message_id, photo_small_id, photo_big_id, other_data,
		       created_at, updated_at
		FROM chats WHERE id = ?`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat %d: %w", chatID, err)
	}
	return &chat, nil
}

func (s *sqlxStore) GetChatIDByUsername(ctx context.Context, username string) (int64, error) {
	var chatID int64
	err := s.q.GetContext(ctx, &chatID, `
		SELECT id FROM chats
		WHERE username = ? COLLATE NOCASE
		ORDER BY updated_at DESC LIMIT 1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve chat username %q: %w", username, err)
	}
	return chatID, nil
}

func (s *sqlxStore) GetMessages(ctx context.Context, chatID int64, ids []int64) ([]Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT id, chat_id, message_type, message_thread_id, text, caption,
		       from_user_id, sender_chat_id, sender_boost_count,
		       sender_business_bot_id, date, edit_date,
		       business_connection_id, is_topic_message, is_automatic_forward,
		       has_media_spoiler, has_protected_content, is_from_offline,
		       is_paid_post, author_signature, paid_star_count, other_data
		FROM messages WHERE chat_id = ? AND id IN (?)`, chatID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build message query: %w", err)
	}
	var messages []Message
	if err := s.q.SelectContext(ctx, &messages, s.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, nil
}
