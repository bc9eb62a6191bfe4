package telegram

import "regexp"

// BotTokenRegex matches the "<numeric id>:<secret>" token format the Bot
// API issues.
var BotTokenRegex = regexp.MustCompile(`^[0-9]{8,10}:[A-Za-z0-9_-]{35}$`)

// MessageReturnedMethods are API methods whose result is a full Message
// object; their results go through the extraction path.
var MessageReturnedMethods = map[string]struct{}{
	"sendMessage":    {},
	"forwardMessage": {},
	"sendPhoto":      {},
	"sendAudio":      {},
	"sendDocument":   {},
	"sendVideo":      {},
	"sendAnimation":  {},
	"sendVoice":      {},
	"sendVideoNote":  {},
	"sendPaidMedia":  {},
	"sendLocation":   {},
	"sendVenue":      {},
	"sendContact":    {},
	"sendPoll":       {},
	"sendChecklist":  {},
	"sendDice":       {},
	"sendSticker":    {},
	"sendInvoice":    {},
	"sendGame":       {},
}

// EditedMessageReturnedMethods are API methods whose result is an edited
// Message; their results go through the in-place edit path.
var EditedMessageReturnedMethods = map[string]struct{}{
	"editMessageText":         {},
	"editMessageCaption":      {},
	"editMessageMedia":        {},
	"editMessageLiveLocation": {},
	"stopMessageLiveLocation": {},
	"editMessageChecklist":    {},
	"editMessageReplyMarkup":  {},
	"setGameScore":            {},
}
