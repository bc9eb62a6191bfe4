// Package telegram defines the typed Bot API payload graph the proxy works
// with, together with decoding, entity traversal, method classification, and
// a thin client for live profile fetches.
//
// Every node type keeps the full decoded JSON object in its Raw map next to
// the promoted fields. The proxy never owns the upstream schema; fields it
// does not promote still flow into the per-entity overflow storage, so Raw
// must survive decoding losslessly (numbers are kept as json.Number).
package telegram

import (
	"bytes"
	"encoding/json"
)

// decodeRaw decodes a JSON object into a generic map, preserving number
// precision for the large integer identifiers Telegram uses.
func decodeRaw(data []byte, dst *map[string]any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(dst)
}

// User is a Telegram user or bot sighted in a payload.
type User struct {
	ID           int64   `json:"id"`
	IsBot        bool    `json:"is_bot"`
	FirstName    string  `json:"first_name"`
	LastName     *string `json:"last_name,omitempty"`
	Username     *string `json:"username,omitempty"`
	LanguageCode *string `json:"language_code,omitempty"`
	IsPremium    bool    `json:"is_premium,omitempty"`

	Raw map[string]any `json:"-"`
}

func (u *User) UnmarshalJSON(data []byte) error {
	type alias User
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if err := decodeRaw(data, &a.Raw); err != nil {
		return err
	}
	*u = User(a)
	return nil
}

// Chat is the compact chat object embedded in messages and updates.
type Chat struct {
	ID               int64   `json:"id"`
	Type             string  `json:"type"`
	Title            *string `json:"title,omitempty"`
	Username         *string `json:"username,omitempty"`
	FirstName        *string `json:"first_name,omitempty"`
	LastName         *string `json:"last_name,omitempty"`
	IsForum          bool    `json:"is_forum,omitempty"`
	IsDirectMessages bool    `json:"is_direct_messages,omitempty"`

	Raw map[string]any `json:"-"`
}

func (c *Chat) UnmarshalJSON(data []byte) error {
	type alias Chat
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if err := decodeRaw(data, &a.Raw); err != nil {
		return err
	}
	*c = Chat(a)
	return nil
}

// ChatPhoto carries the two avatar file handles of a chat.
type ChatPhoto struct {
	SmallFileID       string `json:"small_file_id"`
	SmallFileUniqueID string `json:"small_file_unique_id"`
	BigFileID         string `json:"big_file_id"`
	BigFileUniqueID   string `json:"big_file_unique_id"`
}

// ChatFullInfo is the authoritative chat snapshot returned by getChat.
type ChatFullInfo struct {
	Chat

	PersonalChat  *Chat      `json:"personal_chat,omitempty"`
	ParentChat    *Chat      `json:"parent_chat,omitempty"`
	PinnedMessage *Message   `json:"pinned_message,omitempty"`
	Photo         *ChatPhoto `json:"photo,omitempty"`
}

func (c *ChatFullInfo) UnmarshalJSON(data []byte) error {
	// An alias of this type still promotes the embedded Chat unmarshaler,
	// which would consume the whole object and drop the full-info members.
	// The two layers decode separately instead.
	var full struct {
		PersonalChat  *Chat      `json:"personal_chat"`
		ParentChat    *Chat      `json:"parent_chat"`
		PinnedMessage *Message   `json:"pinned_message"`
		Photo         *ChatPhoto `json:"photo"`
	}
	if err := json.Unmarshal(data, &full); err != nil {
		return err
	}
	if err := c.Chat.UnmarshalJSON(data); err != nil {
		return err
	}
	c.PersonalChat = full.PersonalChat
	c.ParentChat = full.ParentChat
	c.PinnedMessage = full.PinnedMessage
	c.Photo = full.Photo
	return nil
}

// MessageOrigin identifies where a forwarded message originally came from.
// Which sender fields are set depends on the origin type; hidden-user
// origins carry none.
type MessageOrigin struct {
	Type       string `json:"type"`
	Date       int64  `json:"date"`
	SenderUser *User  `json:"sender_user,omitempty"`
	SenderChat *Chat  `json:"sender_chat,omitempty"`
	Chat       *Chat  `json:"chat,omitempty"`
	MessageID  *int64 `json:"message_id,omitempty"`
}

// ExternalReplyInfo describes a reply to a message in another chat or to an
// inaccessible message. The replied-to content is carried inline.
type ExternalReplyInfo struct {
	Origin    *MessageOrigin `json:"origin,omitempty"`
	Chat      *Chat          `json:"chat,omitempty"`
	MessageID *int64         `json:"message_id,omitempty"`

	Photo     []*PhotoSize   `json:"photo,omitempty"`
	Animation *Animation     `json:"animation,omitempty"`
	Audio     *Audio         `json:"audio,omitempty"`
	Document  *Document      `json:"document,omitempty"`
	Video     *Video         `json:"video,omitempty"`
	VideoNote *VideoNote     `json:"video_note,omitempty"`
	Voice     *Voice         `json:"voice,omitempty"`
	Sticker   *Sticker       `json:"sticker,omitempty"`
	Story     *Story         `json:"story,omitempty"`
	PaidMedia *PaidMediaInfo `json:"paid_media,omitempty"`
	Game      *Game          `json:"game,omitempty"`
}

// PaidMediaInfo is star-gated media attached to a message.
type PaidMediaInfo struct {
	StarCount int64        `json:"star_count"`
	PaidMedia []*PaidMedia `json:"paid_media"`
}

// PaidMedia is one item of paid media. Previews carry no file handles; the
// photo and video variants do.
type PaidMedia struct {
	Type  string       `json:"type"`
	Photo []*PhotoSize `json:"photo,omitempty"`
	Video *Video       `json:"video,omitempty"`
}

// Game is a game message payload.
type Game struct {
	Title     string       `json:"title"`
	Photo     []*PhotoSize `json:"photo,omitempty"`
	Animation *Animation   `json:"animation,omitempty"`
}

// Story is a forwarded or reposted story; it references the posting chat.
type Story struct {
	Chat *Chat `json:"chat"`
	ID   int64 `json:"id"`
}

// PassportData carries Telegram Passport elements, each of which may hold
// several encrypted files.
type PassportData struct {
	Data []*EncryptedPassportElement `json:"data"`
}

// EncryptedPassportElement is one documents-and-files group inside
// PassportData.
type EncryptedPassportElement struct {
	Type        string          `json:"type"`
	FrontSide   *PassportFile   `json:"front_side,omitempty"`
	ReverseSide *PassportFile   `json:"reverse_side,omitempty"`
	Selfie      *PassportFile   `json:"selfie,omitempty"`
	Files       []*PassportFile `json:"files,omitempty"`
	Translation []*PassportFile `json:"translation,omitempty"`
}

// Message is a message in any chat. Identity is scoped to the chat: the
// composite (chat id, message id) key is the only stable handle.
type Message struct {
	ID                   int64   `json:"message_id"`
	Chat                 *Chat   `json:"chat"`
	ThreadID             *int64  `json:"message_thread_id,omitempty"`
	Text                 *string `json:"text,omitempty"`
	Caption              *string `json:"caption,omitempty"`
	From                 *User   `json:"from,omitempty"`
	SenderChat           *Chat   `json:"sender_chat,omitempty"`
	SenderBoostCount     *int64  `json:"sender_boost_count,omitempty"`
	SenderBusinessBot    *User   `json:"sender_business_bot,omitempty"`
	Date                 int64   `json:"date"`
	EditDate             *int64  `json:"edit_date,omitempty"`
	BusinessConnectionID *string `json:"business_connection_id,omitempty"`
	IsTopicMessage       bool    `json:"is_topic_message,omitempty"`
	IsAutomaticForward   bool    `json:"is_automatic_forward,omitempty"`
	HasMediaSpoiler      bool    `json:"has_media_spoiler,omitempty"`
	HasProtectedContent  bool    `json:"has_protected_content,omitempty"`
	IsFromOffline        bool    `json:"is_from_offline,omitempty"`
	IsPaidPost           bool    `json:"is_paid_post,omitempty"`
	AuthorSignature      *string `json:"author_signature,omitempty"`
	PaidStarCount        *int64  `json:"paid_star_count,omitempty"`

	ReplyToMessage *Message           `json:"reply_to_message,omitempty"`
	ExternalReply  *ExternalReplyInfo `json:"external_reply,omitempty"`
	ForwardOrigin  *MessageOrigin     `json:"forward_origin,omitempty"`
	PinnedMessage  *Message           `json:"pinned_message,omitempty"`
	ViaBot         *User              `json:"via_bot,omitempty"`
	NewChatMembers []*User            `json:"new_chat_members,omitempty"`
	LeftChatMember *User              `json:"left_chat_member,omitempty"`

	Photo        []*PhotoSize   `json:"photo,omitempty"`
	NewChatPhoto []*PhotoSize   `json:"new_chat_photo,omitempty"`
	Animation    *Animation     `json:"animation,omitempty"`
	Audio        *Audio         `json:"audio,omitempty"`
	Document     *Document      `json:"document,omitempty"`
	Video        *Video         `json:"video,omitempty"`
	VideoNote    *VideoNote     `json:"video_note,omitempty"`
	Voice        *Voice         `json:"voice,omitempty"`
	Sticker      *Sticker       `json:"sticker,omitempty"`
	Story        *Story         `json:"story,omitempty"`
	PaidMedia    *PaidMediaInfo `json:"paid_media,omitempty"`
	Game         *Game          `json:"game,omitempty"`
	PassportData *PassportData  `json:"passport_data,omitempty"`

	Raw map[string]any `json:"-"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if err := decodeRaw(data, &a.Raw); err != nil {
		return err
	}
	*m = Message(a)
	return nil
}

// ChatID returns the owning chat id, or 0 when the chat reference is absent.
func (m *Message) ChatID() int64 {
	if m.Chat == nil {
		return 0
	}
	return m.Chat.ID
}

// MessageID is the reduced result shape of copy and forward methods.
type MessageID struct {
	ID int64 `json:"message_id"`
}

// CallbackQuery is an inline-keyboard callback; it carries the pressing
// user and, when still accessible, the origin message.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from"`
	Message *Message `json:"message,omitempty"`

	Raw map[string]any `json:"-"`
}

func (q *CallbackQuery) UnmarshalJSON(data []byte) error {
	type alias CallbackQuery
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if err := decodeRaw(data, &a.Raw); err != nil {
		return err
	}
	*q = CallbackQuery(a)
	return nil
}

// ChatMember is a membership record inside a ChatMemberUpdated event.
type ChatMember struct {
	Status string `json:"status"`
	User   *User  `json:"user"`
}

// ChatMemberUpdated reports a membership transition in a chat.
type ChatMemberUpdated struct {
	Chat          *Chat       `json:"chat"`
	From          *User       `json:"from"`
	OldChatMember *ChatMember `json:"old_chat_member"`
	NewChatMember *ChatMember `json:"new_chat_member"`
}

// ChatJoinRequest is a pending request to join a chat.
type ChatJoinRequest struct {
	Chat *Chat `json:"chat"`
	From *User `json:"from"`
}

// Update is a single inbound event from the Bot API. Update kinds outside
// the promoted set are retained in Raw and yield no extracted entities.
type Update struct {
	ID int64 `json:"update_id"`

	Message               *Message           `json:"message,omitempty"`
	EditedMessage         *Message           `json:"edited_message,omitempty"`
	ChannelPost           *Message           `json:"channel_post,omitempty"`
	EditedChannelPost     *Message           `json:"edited_channel_post,omitempty"`
	BusinessMessage       *Message           `json:"business_message,omitempty"`
	EditedBusinessMessage *Message           `json:"edited_business_message,omitempty"`
	CallbackQuery         *CallbackQuery     `json:"callback_query,omitempty"`
	MyChatMember          *ChatMemberUpdated `json:"my_chat_member,omitempty"`
	ChatMember            *ChatMemberUpdated `json:"chat_member,omitempty"`
	ChatJoinRequest       *ChatJoinRequest   `json:"chat_join_request,omitempty"`

	Raw map[string]any `json:"-"`
}

func (u *Update) UnmarshalJSON(data []byte) error {
	type alias Update
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if err := decodeRaw(data, &a.Raw); err != nil {
		return err
	}
	*u = Update(a)
	return nil
}

// Edited returns the edited message an update carries, if any. Exactly one
// of the three edited variants is ever set by the Bot API.
func (u *Update) Edited() *Message {
	switch {
	case u.EditedMessage != nil:
		return u.EditedMessage
	case u.EditedChannelPost != nil:
		return u.EditedChannelPost
	case u.EditedBusinessMessage != nil:
		return u.EditedBusinessMessage
	}
	return nil
}
