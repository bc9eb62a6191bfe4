package telegram

import "encoding/json"

// ChatType discriminates the four chat shapes.
type ChatType string

const (
	ChatTypePrivate    ChatType = "private"
	ChatTypeGroup      ChatType = "group"
	ChatTypeSupergroup ChatType = "supergroup"
	ChatTypeChannel    ChatType = "channel"
)

// MessageKind is the computed content class of a message. It is never
// received on the wire; it is inferred from which content field is present.
type MessageKind string

const (
	MessageKindText      MessageKind = "text"
	MessageKindAnimation MessageKind = "animation"
	MessageKindAudio     MessageKind = "audio"
	MessageKindDocument  MessageKind = "document"
	MessageKindPaidMedia MessageKind = "paid_media"
	MessageKindPhoto     MessageKind = "photo"
	MessageKindSticker   MessageKind = "sticker"
	MessageKindStory     MessageKind = "story"
	MessageKindVideo     MessageKind = "video"
	MessageKindVideoNote MessageKind = "video_note"
	MessageKindVoice     MessageKind = "voice"
	MessageKindChecklist MessageKind = "checklist"
	MessageKindContact   MessageKind = "contact"
	MessageKindDice      MessageKind = "dice"
	MessageKindGame      MessageKind = "game"
	MessageKindPoll      MessageKind = "poll"
	MessageKindVenue     MessageKind = "venue"
	MessageKindLocation  MessageKind = "location"
	MessageKindInvoice   MessageKind = "invoice"
	MessageKindGiveaway  MessageKind = "giveaway"
	MessageKindPassport  MessageKind = "passport"
	MessageKindService   MessageKind = "service"
)

// messageKindFields maps a content field to the kind it implies. Order
// matters: the first present field wins, so text beats an attached preview
// and media beats its caption.
var messageKindFields = []struct {
	field string
	kind  MessageKind
}{
	{"text", MessageKindText},
	{"animation", MessageKindAnimation},
	{"audio", MessageKindAudio},
	{"document", MessageKindDocument},
	{"paid_media", MessageKindPaidMedia},
	{"photo", MessageKindPhoto},
	{"sticker", MessageKindSticker},
	{"story", MessageKindStory},
	{"video", MessageKindVideo},
	{"video_note", MessageKindVideoNote},
	{"voice", MessageKindVoice},
	{"checklist", MessageKindChecklist},
	{"contact", MessageKindContact},
	{"dice", MessageKindDice},
	{"game", MessageKindGame},
	{"poll", MessageKindPoll},
	{"venue", MessageKindVenue},
	{"location", MessageKindLocation},
	{"invoice", MessageKindInvoice},
	{"giveaway", MessageKindGiveaway},
	{"passport_data", MessageKindPassport},
}

// Kind infers the message kind from the raw payload. A message with no
// recognized content field is a service message.
func (m *Message) Kind() MessageKind {
	for _, e := range messageKindFields {
		if present(m.Raw[e.field]) {
			return e.kind
		}
	}
	return MessageKindService
}

// present reports whether a raw value counts as a set content field.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case json.Number:
		return t.String() != "0"
	default:
		return true
	}
}
