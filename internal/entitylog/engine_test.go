package entitylog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tgfleet/botgate/internal/database"
	"github.com/tgfleet/botgate/internal/telegram"
)

const testToken = "123456789:AAbbCCddEEffGGhhIIjjKKllMMnnOOppQQq"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAPI is a stand-in Bot API upstream serving canned method results.
type fakeAPI struct {
	results map[string]string
	calls   map[string]int
}

func newFakeAPI(t *testing.T) (*fakeAPI, string) {
	t.Helper()
	api := &fakeAPI{results: make(map[string]string), calls: make(map[string]int)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := filepath.Base(r.URL.Path)
		api.calls[method]++
		result, ok := api.results[method]
		if !ok {
			fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
			return
		}
		fmt.Fprintf(w, `{"ok":true,"result":%s}`, result)
	}))
	t.Cleanup(srv.Close)
	return api, srv.URL + "/bot"
}

func newTestEngine(t *testing.T, apiURL string) (*Engine, database.Store, *sqlx.DB) {
	t.Helper()
	db, err := database.NewDB(database.Config{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	store := database.NewStore(db)
	client := telegram.NewClient(apiURL, time.Second, discardLogger())
	return NewEngine(store, client, discardLogger()), store, db
}

func seedBot(t *testing.T, store database.Store, db *sqlx.DB, botID int64) {
	t.Helper()
	err := store.InsertUsers(context.Background(), []database.User{
		{ID: botID, FirstName: "bot", IsBot: true},
	})
	if err != nil {
		t.Fatalf("failed to seed bot user: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO bots (id, token) VALUES (?, ?)`, botID, []byte{0x01}); err != nil {
		t.Fatalf("failed to seed bot: %v", err)
	}
}

func countRows(t *testing.T, db *sqlx.DB, table string) int {
	t.Helper()
	var n int
	if err := db.Get(&n, "SELECT COUNT(*) FROM "+table); err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}

func sampleUpdate(t *testing.T) *telegram.Update {
	t.Helper()
	return decodeUpdate(t, `{
		"update_id": 1,
		"message": {
			"message_id": 100,
			"date": 1700000000,
			"chat": {"id": -100, "type": "supergroup", "title": "lobby"},
			"from": {"id": 7, "is_bot": false, "first_name": "Ada"},
			"caption": "look",
			"photo": [
				{"file_id": "p1", "file_unique_id": "u1", "width": 90, "height": 90},
				{"file_id": "p2", "file_unique_id": "u2", "width": 320, "height": 320}
			]
		}
	}`)
}

func TestLogObjectIdempotent(t *testing.T) {
	_, apiURL := newFakeAPI(t)
	engine, store, db := newTestEngine(t, apiURL)
	ctx := context.Background()
	seedBot(t, store, db, 500)

	res, err := engine.LogObject(ctx, 500, sampleUpdate(t))
	if err != nil {
		t.Fatalf("LogObject() error = %v", err)
	}
	if res.NewUsers != 1 || res.NewChats != 1 || res.NewMessages != 1 || res.NewFiles != 2 {
		t.Errorf("first pass = %+v", res)
	}
	if res.NewBotMessages != 1 || res.NewBotFiles != 2 {
		t.Errorf("associations = %+v", res)
	}

	// Replaying the same payload writes nothing.
	res, err = engine.LogObject(ctx, 500, sampleUpdate(t))
	if err != nil {
		t.Fatalf("LogObject() replay error = %v", err)
	}
	if res.NewUsers+res.NewChats+res.NewMessages+res.NewFiles+res.NewBotMessages+res.NewBotFiles != 0 {
		t.Errorf("replay = %+v, want all zero", res)
	}

	if got := countRows(t, db, "messages"); got != 1 {
		t.Errorf("messages = %d, want 1", got)
	}
	if got := countRows(t, db, "files"); got != 2 {
		t.Errorf("files = %d, want 2", got)
	}
}

func TestLogObjectSharesRowsBetweenBots(t *testing.T) {
	_, apiURL := newFakeAPI(t)
	engine, store, db := newTestEngine(t, apiURL)
	ctx := context.Background()
	seedBot(t, store, db, 500)
	seedBot(t, store, db, 501)

	if _, err := engine.LogObject(ctx, 500, sampleUpdate(t)); err != nil {
		t.Fatalf("LogObject() error = %v", err)
	}

	// A second bot sighting the same payload gains associations without
	// duplicating catalog rows.
	res, err := engine.LogObject(ctx, 501, sampleUpdate(t))
	if err != nil {
		t.Fatalf("LogObject() error = %v", err)
	}
	if res.NewMessages != 0 || res.NewFiles != 0 {
		t.Errorf("second bot created rows: %+v", res)
	}
	if res.NewBotMessages != 1 || res.NewBotFiles != 2 {
		t.Errorf("second bot associations = %+v", res)
	}

	if got := countRows(t, db, "bot_messages"); got != 2 {
		t.Errorf("bot_messages = %d, want 2", got)
	}
	if got := countRows(t, db, "bot_files"); got != 4 {
		t.Errorf("bot_files = %d, want 4", got)
	}
}

func TestHandleUpdateAppliesEdits(t *testing.T) {
	_, apiURL := newFakeAPI(t)
	engine, store, db := newTestEngine(t, apiURL)
	ctx := context.Background()
	seedBot(t, store, db, 500)

	original := decodeUpdate(t, `{
		"update_id": 1,
		"message": {
			"message_id": 5,
			"date": 1700000000,
			"chat": {"id": -1, "type": "group"},
			"text": "draft"
		}
	}`)
	if err := engine.HandleUpdate(ctx, 500, original); err != nil {
		t.Fatalf("HandleUpdate() error = %v", err)
	}

	edited := decodeUpdate(t, `{
		"update_id": 2,
		"edited_message": {
			"message_id": 5,
			"date": 1700000000,
			"edit_date": 1700000100,
			"chat": {"id": -1, "type": "group"},
			"text": "final"
		}
	}`)
	if err := engine.HandleUpdate(ctx, 500, edited); err != nil {
		t.Fatalf("HandleUpdate() edit error = %v", err)
	}

	rows, err := store.GetMessages(ctx, -1, []int64{5})
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetMessages() = (%v, %v)", rows, err)
	}
	if rows[0].Text == nil || *rows[0].Text != "final" {
		t.Errorf("Text = %v, want final", rows[0].Text)
	}
	if rows[0].EditDate == nil {
		t.Error("EditDate should be set after the edit")
	}
	if got := countRows(t, db, "messages"); got != 1 {
		t.Errorf("messages = %d, want 1", got)
	}
}

func TestHandleUpdateEditOfUnknownMessage(t *testing.T) {
	_, apiURL := newFakeAPI(t)
	engine, store, db := newTestEngine(t, apiURL)
	ctx := context.Background()
	seedBot(t, store, db, 500)

	// The first sighting of a message may already be an edit; it is
	// recorded with the edited content, once.
	edited := decodeUpdate(t, `{
		"update_id": 1,
		"edited_message": {
			"message_id": 5,
			"date": 1700000000,
			"edit_date": 1700000100,
			"chat": {"id": -1, "type": "group"},
			"text": "final"
		}
	}`)
	if err := engine.HandleUpdate(ctx, 500, edited); err != nil {
		t.Fatalf("HandleUpdate() error = %v", err)
	}

	rows, err := store.GetMessages(ctx, -1, []int64{5})
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetMessages() = (%v, %v)", rows, err)
	}
	if rows[0].Text == nil || *rows[0].Text != "final" {
		t.Errorf("Text = %v, want final", rows[0].Text)
	}
	if got := countRows(t, db, "bot_messages"); got != 1 {
		t.Errorf("bot_messages = %d, want 1", got)
	}
}

func TestRefreshChatInfo(t *testing.T) {
	_, apiURL := newFakeAPI(t)
	engine, store, db := newTestEngine(t, apiURL)
	ctx := context.Background()
	seedBot(t, store, db, 500)

	var info telegram.ChatFullInfo
	payload := `{
		"id": -100,
		"type": "channel",
		"title": "news",
		"pinned_message": {
			"message_id": 9, "date": 1700000000,
			"chat": {"id": -100, "type": "channel"},
			"text": "welcome"
		},
		"photo": {
			"small_file_id": "s1", "small_file_unique_id": "su",
			"big_file_id": "b1", "big_file_unique_id": "bu"
		},
		"description": "all the news"
	}`
	if err := json.Unmarshal([]byte(payload), &info); err != nil {
		t.Fatalf("failed to decode chat info: %v", err)
	}

	if err := engine.RefreshChatInfo(ctx, 500, &info); err != nil {
		t.Fatalf("RefreshChatInfo() error = %v", err)
	}

	chat, err := store.GetChat(ctx, -100)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if chat.Title == nil || *chat.Title != "news" {
		t.Errorf("Title = %v, want news", chat.Title)
	}
	if chat.PinnedMessageID == nil || *chat.PinnedMessageID != 9 {
		t.Errorf("PinnedMessageID = %v, want 9", chat.PinnedMessageID)
	}
	if chat.PhotoSmallID == nil || *chat.PhotoSmallID != "su" {
		t.Errorf("PhotoSmallID = %v, want su", chat.PhotoSmallID)
	}
	if chat.OtherData["description"] != "all the news" {
		t.Errorf("OtherData = %v", chat.OtherData)
	}

	var fileType string
	if err := db.Get(&fileType, `SELECT file_type FROM files WHERE file_unique_id = 'su'`); err != nil {
		t.Fatalf("avatar file missing: %v", err)
	}
	if fileType != "chat_photo" {
		t.Errorf("avatar file_type = %q, want chat_photo", fileType)
	}
	if got := countRows(t, db, "bot_files"); got != 2 {
		t.Errorf("bot_files = %d, want 2", got)
	}

	// A later snapshot overwrites the profile.
	info.Title = nil
	info.Photo = nil
	retitled := "rebranded"
	info.Title = &retitled
	if err := engine.RefreshChatInfo(ctx, 500, &info); err != nil {
		t.Fatalf("RefreshChatInfo() again error = %v", err)
	}
	chat, err = store.GetChat(ctx, -100)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if chat.Title == nil || *chat.Title != "rebranded" {
		t.Errorf("Title = %v, want rebranded", chat.Title)
	}
	if chat.PhotoSmallID != nil {
		t.Errorf("PhotoSmallID = %v, want cleared", chat.PhotoSmallID)
	}
}

func TestRefreshChatInfoOverwritesNestedChats(t *testing.T) {
	_, apiURL := newFakeAPI(t)
	engine, store, db := newTestEngine(t, apiURL)
	ctx := context.Background()
	seedBot(t, store, db, 500)

	stale := "old channel"
	if err := store.InsertChats(ctx, []database.Chat{{ID: -200, Type: "channel", Title: &stale}}); err != nil {
		t.Fatalf("failed to seed personal chat: %v", err)
	}

	var info telegram.ChatFullInfo
	payload := `{
		"id": 42, "type": "private", "first_name": "Ada",
		"personal_chat": {"id": -200, "type": "channel", "title": "fresh channel"}
	}`
	if err := json.Unmarshal([]byte(payload), &info); err != nil {
		t.Fatalf("failed to decode chat info: %v", err)
	}
	if err := engine.RefreshChatInfo(ctx, 500, &info); err != nil {
		t.Fatalf("RefreshChatInfo() error = %v", err)
	}

	// The snapshot names the nested chat authoritatively; the stale
	// identity must not survive.
	chat, err := store.GetChat(ctx, -200)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if chat.Title == nil || *chat.Title != "fresh channel" {
		t.Errorf("Title = %v, want fresh channel", chat.Title)
	}
	if chat.PersonalChatID != nil {
		t.Errorf("nested chat gained references: %+v", chat)
	}
}

func TestRefreshSelf(t *testing.T) {
	_, apiURL := newFakeAPI(t)
	engine, store, db := newTestEngine(t, apiURL)
	ctx := context.Background()
	seedBot(t, store, db, 500)

	var me telegram.User
	payload := `{
		"id": 500, "is_bot": true, "first_name": "Gate Bot",
		"username": "gatebot",
		"can_join_groups": true,
		"supports_inline_queries": true
	}`
	if err := json.Unmarshal([]byte(payload), &me); err != nil {
		t.Fatalf("failed to decode user: %v", err)
	}

	if err := engine.RefreshSelf(ctx, 500, &me); err != nil {
		t.Fatalf("RefreshSelf() error = %v", err)
	}

	bot, err := store.GetBot(ctx, 500)
	if err != nil {
		t.Fatalf("GetBot() error = %v", err)
	}
	if !bot.CanJoinGroups || !bot.SupportsInlineQueries {
		t.Errorf("flags = %+v", bot)
	}
	if bot.CanReadAllGroupMessages {
		t.Error("unset flag should stay false")
	}

	var firstName string
	if err := db.Get(&firstName, `SELECT first_name FROM users WHERE id = 500`); err != nil {
		t.Fatalf("failed to read user: %v", err)
	}
	if firstName != "Gate Bot" {
		t.Errorf("first_name = %q, want Gate Bot", firstName)
	}
}

func TestSynthesizeCopy(t *testing.T) {
	_, apiURL := newFakeAPI(t)
	engine, store, db := newTestEngine(t, apiURL)
	ctx := context.Background()
	seedBot(t, store, db, 500)

	// Source message with media and caption.
	src := decodeUpdate(t, `{
		"update_id": 1,
		"message": {
			"message_id": 10,
			"date": 1700000000,
			"chat": {"id": -100, "type": "supergroup"},
			"caption": "original",
			"photo": [{"file_id": "p1", "file_unique_id": "u1", "width": 90, "height": 90}]
		}
	}`)
	if _, err := engine.LogObject(ctx, 500, src); err != nil {
		t.Fatalf("LogObject() error = %v", err)
	}
	if err := store.InsertChats(ctx, []database.Chat{{ID: -200, Type: "supergroup"}}); err != nil {
		t.Fatalf("failed to seed destination: %v", err)
	}

	params := map[string]any{
		"chat_id":         json.Number("-200"),
		"from_chat_id":    json.Number("-100"),
		"message_id":      json.Number("10"),
		"remove_caption":  true,
		"protect_content": true,
	}
	if err := engine.SynthesizeCopy(ctx, 500, testToken, params, 77); err != nil {
		t.Fatalf("SynthesizeCopy() error = %v", err)
	}

	rows, err := store.GetMessages(ctx, -200, []int64{77})
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetMessages() = (%v, %v)", rows, err)
	}
	clone := rows[0]
	if clone.MessageType != "photo" {
		t.Errorf("MessageType = %q, want photo", clone.MessageType)
	}
	if clone.Caption != nil {
		t.Errorf("Caption = %v, want removed", clone.Caption)
	}
	if !clone.HasProtectedContent {
		t.Error("HasProtectedContent should be set")
	}
	if clone.EditDate != nil {
		t.Error("EditDate must not carry over to a copy")
	}
	if _, ok := clone.OtherData["photo"]; !ok {
		t.Error("clone lost its media shape")
	}

	// The source stays untouched.
	srcRows, err := store.GetMessages(ctx, -100, []int64{10})
	if err != nil || len(srcRows) != 1 {
		t.Fatalf("GetMessages() source = (%v, %v)", srcRows, err)
	}
	if srcRows[0].Caption == nil || *srcRows[0].Caption != "original" {
		t.Errorf("source Caption = %v, want original", srcRows[0].Caption)
	}
	if got := countRows(t, db, "messages"); got != 2 {
		t.Errorf("messages = %d, want 2", got)
	}
}

func TestSynthesizeCopiesCaptionOverride(t *testing.T) {
	_, apiURL := newFakeAPI(t)
	engine, store, db := newTestEngine(t, apiURL)
	ctx := context.Background()
	seedBot(t, store, db, 500)

	src := decodeUpdate(t, `{
		"update_id": 1,
		"message": {
			"message_id": 10,
			"date": 1700000000,
			"chat": {"id": -100, "type": "supergroup"},
			"caption": "original",
			"show_caption_above_media": true,
			"photo": [{"file_id": "p1", "file_unique_id": "u1", "width": 90, "height": 90}]
		}
	}`)
	if _, err := engine.LogObject(ctx, 500, src); err != nil {
		t.Fatalf("LogObject() error = %v", err)
	}
	if err := store.InsertChats(ctx, []database.Chat{{ID: -200, Type: "supergroup"}}); err != nil {
		t.Fatalf("failed to seed destination: %v", err)
	}

	params := map[string]any{
		"chat_id":      json.Number("-200"),
		"from_chat_id": json.Number("-100"),
		"message_ids":  []any{json.Number("10")},
		"caption":      "replaced",
	}
	if err := engine.SynthesizeCopies(ctx, 500, testToken, params, []int64{50}); err != nil {
		t.Fatalf("SynthesizeCopies() error = %v", err)
	}

	rows, err := store.GetMessages(ctx, -200, []int64{50})
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetMessages() = (%v, %v)", rows, err)
	}
	if rows[0].Caption == nil || *rows[0].Caption != "replaced" {
		t.Errorf("Caption = %v, want replaced", rows[0].Caption)
	}
	// Overriding the caption must not clobber sibling presentation fields.
	if rows[0].OtherData["show_caption_above_media"] != true {
		t.Errorf("show_caption_above_media = %v, want preserved", rows[0].OtherData["show_caption_above_media"])
	}
	if got := countRows(t, db, "messages"); got != 2 {
		t.Errorf("messages = %d, want 2", got)
	}
}

func TestSynthesizeForwardsKeepCaption(t *testing.T) {
	_, apiURL := newFakeAPI(t)
	engine, store, db := newTestEngine(t, apiURL)
	ctx := context.Background()
	seedBot(t, store, db, 500)

	src := decodeUpdate(t, `{
		"update_id": 1,
		"message": {
			"message_id": 10,
			"date": 1700000000,
			"chat": {"id": -100, "type": "supergroup"},
			"caption": "keep me",
			"photo": [{"file_id": "p1", "file_unique_id": "u1", "width": 90, "height": 90}]
		}
	}`)
	if _, err := engine.LogObject(ctx, 500, src); err != nil {
		t.Fatalf("LogObject() error = %v", err)
	}
	if err := store.InsertChats(ctx, []database.Chat{{ID: -200, Type: "supergroup"}}); err != nil {
		t.Fatalf("failed to seed destination: %v", err)
	}

	params := map[string]any{
		"chat_id":        json.Number("-200"),
		"from_chat_id":   json.Number("-100"),
		"message_ids":    []any{json.Number("10")},
		"remove_caption": true,
	}
	if err := engine.SynthesizeForwards(ctx, 500, testToken, params, []int64{60}); err != nil {
		t.Fatalf("SynthesizeForwards() error = %v", err)
	}

	rows, err := store.GetMessages(ctx, -200, []int64{60})
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetMessages() = (%v, %v)", rows, err)
	}
	// remove_caption is a copy parameter; forwards always keep the caption.
	if rows[0].Caption == nil || *rows[0].Caption != "keep me" {
		t.Errorf("Caption = %v, want keep me", rows[0].Caption)
	}
	if got := countRows(t, db, "messages"); got != 2 {
		t.Errorf("messages = %d, want 2", got)
	}
}

func TestSynthesizeSkipsUnknownSource(t *testing.T) {
	_, apiURL := newFakeAPI(t)
	engine, store, db := newTestEngine(t, apiURL)
	ctx := context.Background()
	seedBot(t, store, db, 500)
	if err := store.InsertChats(ctx, []database.Chat{{ID: -200, Type: "supergroup"}}); err != nil {
		t.Fatalf("failed to seed destination: %v", err)
	}

	params := map[string]any{
		"chat_id":      json.Number("-200"),
		"from_chat_id": json.Number("-999"),
		"message_id":   json.Number("10"),
	}
	if err := engine.SynthesizeCopy(ctx, 500, testToken, params, 77); err != nil {
		t.Fatalf("SynthesizeCopy() error = %v", err)
	}
	if got := countRows(t, db, "messages"); got != 0 {
		t.Errorf("messages = %d, want 0 (unknown source skips silently)", got)
	}
}

func TestSynthesizeFetchesUnknownDestination(t *testing.T) {
	api, apiURL := newFakeAPI(t)
	engine, store, db := newTestEngine(t, apiURL)
	ctx := context.Background()
	seedBot(t, store, db, 500)

	api.results["getChat"] = `{"id": -300, "type": "channel", "title": "mirror", "username": "mirrorfeed"}`

	src := decodeUpdate(t, `{
		"update_id": 1,
		"message": {
			"message_id": 10,
			"date": 1700000000,
			"chat": {"id": -100, "type": "supergroup"},
			"text": "hello"
		}
	}`)
	if _, err := engine.LogObject(ctx, 500, src); err != nil {
		t.Fatalf("LogObject() error = %v", err)
	}

	params := map[string]any{
		"chat_id":      "@mirrorfeed",
		"from_chat_id": json.Number("-100"),
		"message_id":   json.Number("10"),
	}
	if err := engine.SynthesizeCopy(ctx, 500, testToken, params, 77); err != nil {
		t.Fatalf("SynthesizeCopy() error = %v", err)
	}

	if api.calls["getChat"] != 1 {
		t.Errorf("getChat calls = %d, want exactly 1", api.calls["getChat"])
	}
	chat, err := store.GetChat(ctx, -300)
	if err != nil {
		t.Fatalf("fetched destination missing: %v", err)
	}
	if chat.Title == nil || *chat.Title != "mirror" {
		t.Errorf("Title = %v, want mirror", chat.Title)
	}
	rows, err := store.GetMessages(ctx, -300, []int64{77})
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetMessages() = (%v, %v)", rows, err)
	}
}

func TestLogRequestDispatch(t *testing.T) {
	_, apiURL := newFakeAPI(t)
	engine, store, db := newTestEngine(t, apiURL)
	ctx := context.Background()
	seedBot(t, store, db, 500)

	result := json.RawMessage(`{
		"message_id": 11,
		"date": 1700000000,
		"chat": {"id": -100, "type": "supergroup"},
		"text": "sent by bot"
	}`)
	if err := engine.LogRequest(ctx, 500, testToken, "sendMessage", nil, result); err != nil {
		t.Fatalf("LogRequest() error = %v", err)
	}
	if got := countRows(t, db, "messages"); got != 1 {
		t.Errorf("messages = %d, want 1", got)
	}

	// Unclassified methods are ignored.
	if err := engine.LogRequest(ctx, 500, testToken, "deleteMessage", nil, json.RawMessage(`true`)); err != nil {
		t.Fatalf("LogRequest() error = %v", err)
	}

	// Inline edit results carry no message object.
	if err := engine.LogRequest(ctx, 500, testToken, "editMessageText", nil, json.RawMessage(`true`)); err != nil {
		t.Fatalf("LogRequest() inline edit error = %v", err)
	}

	updates := json.RawMessage(`[
		{"update_id": 1, "message": {"message_id": 12, "date": 1700000001, "chat": {"id": -100, "type": "supergroup"}, "text": "a"}},
		{"update_id": 2, "message": {"message_id": 13, "date": 1700000002, "chat": {"id": -100, "type": "supergroup"}, "text": "b"}}
	]`)
	if err := engine.LogRequest(ctx, 500, testToken, "getUpdates", nil, updates); err != nil {
		t.Fatalf("LogRequest() getUpdates error = %v", err)
	}
	if got := countRows(t, db, "messages"); got != 3 {
		t.Errorf("messages = %d, want 3", got)
	}

	// getChatFullInfo is the current name of getChat; both dispatch the
	// same way.
	full := json.RawMessage(`{"id": -900, "type": "channel", "title": "wire"}`)
	if err := engine.LogRequest(ctx, 500, testToken, "getChatFullInfo", nil, full); err != nil {
		t.Fatalf("LogRequest() getChatFullInfo error = %v", err)
	}
	if _, err := store.GetChat(ctx, -900); err != nil {
		t.Errorf("getChatFullInfo snapshot not recorded: %v", err)
	}
}

// flakyStore injects a failure into a chosen call so rollback behavior can
// be observed through a real transaction.
type flakyStore struct {
	database.Store
	messageInserts *int
}

func (f *flakyStore) InTx(ctx context.Context, fn func(database.Store) error) error {
	return f.Store.InTx(ctx, func(s database.Store) error {
		return fn(&flakyStore{Store: s, messageInserts: f.messageInserts})
	})
}

func (f *flakyStore) InsertMessages(ctx context.Context, messages []database.Message) error {
	if *f.messageInserts == 0 {
		return errors.New("injected insert failure")
	}
	*f.messageInserts--
	return f.Store.InsertMessages(ctx, messages)
}

func TestLogRequestRollsBackWholeCall(t *testing.T) {
	_, apiURL := newFakeAPI(t)
	_, store, db := newTestEngine(t, apiURL)
	ctx := context.Background()
	seedBot(t, store, db, 500)

	remaining := 1
	flaky := &flakyStore{Store: store, messageInserts: &remaining}
	client := telegram.NewClient(apiURL, time.Second, discardLogger())
	engine := NewEngine(flaky, client, discardLogger())

	updates := json.RawMessage(`[
		{"update_id": 1, "message": {"message_id": 12, "date": 1700000001, "chat": {"id": -100, "type": "supergroup"}, "text": "a"}},
		{"update_id": 2, "message": {"message_id": 13, "date": 1700000002, "chat": {"id": -100, "type": "supergroup"}, "text": "b"}}
	]`)
	if err := engine.LogRequest(ctx, 500, testToken, "getUpdates", nil, updates); err == nil {
		t.Fatal("LogRequest() should surface the failure")
	}

	// One call is one transaction: the update recorded before the failure
	// must not survive on its own.
	if got := countRows(t, db, "messages"); got != 0 {
		t.Errorf("messages = %d, want 0 after rollback", got)
	}
	if got := countRows(t, db, "chats"); got != 0 {
		t.Errorf("chats = %d, want 0 after rollback", got)
	}
}
