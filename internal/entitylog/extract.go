// Package entitylog implements the entity synchronization engine: it mines
// every user, chat, message, and file sighting out of Telegram payloads and
// reconciles them against the shared catalog.
package entitylog

import (
	"github.com/tgfleet/botgate/internal/database"
	"github.com/tgfleet/botgate/internal/telegram"
)

// FileSighting is one extracted file reference: the shape it was sighted as
// plus its normalized identifiers and attributes.
type FileSighting struct {
	Kind telegram.FileKind
	Meta telegram.FileMeta
}

// Entities is the deduplicated result of extracting one payload graph.
// Each identity maps to the first sighting encountered; the order slices
// record first-seen order so downstream writes are deterministic.
type Entities struct {
	Users    map[int64]*telegram.User
	Chats    map[int64]*telegram.Chat
	Messages map[database.MessageKey]*telegram.Message
	Files    map[string]FileSighting

	UserOrder    []int64
	ChatOrder    []int64
	MessageOrder []database.MessageKey
	FileOrder    []string
}

// Empty reports whether extraction found nothing.
func (e *Entities) Empty() bool {
	return len(e.Users) == 0 && len(e.Chats) == 0 &&
		len(e.Messages) == 0 && len(e.Files) == 0
}

// Keys returns the identity batch for existence resolution.
func (e *Entities) Keys() database.EntityKeys {
	return database.EntityKeys{
		Users:    e.UserOrder,
		Chats:    e.ChatOrder,
		Messages: e.MessageOrder,
		Files:    e.FileOrder,
	}
}

// Collect walks a payload graph and returns every entity sighting, keyed by
// identity. When the same identity occurs more than once in a payload, the
// first sighting wins.
func Collect(node any) *Entities {
	c := &collector{
		entities: &Entities{
			Users:    make(map[int64]*telegram.User),
			Chats:    make(map[int64]*telegram.Chat),
			Messages: make(map[database.MessageKey]*telegram.Message),
			Files:    make(map[string]FileSighting),
		},
	}
	telegram.Walk(node, c)
	return c.entities
}

// collector accumulates sightings as a traversal visitor.
type collector struct {
	entities *Entities
}

func (c *collector) VisitUser(u *telegram.User) {
	if u.ID == 0 {
		return
	}
	if _, ok := c.entities.Users[u.ID]; ok {
		return
	}
	c.entities.Users[u.ID] = u
	c.entities.UserOrder = append(c.entities.UserOrder, u.ID)
}

func (c *collector) VisitChat(ch *telegram.Chat) {
	if ch.ID == 0 {
		return
	}
	if _, ok := c.entities.Chats[ch.ID]; ok {
		return
	}
	c.entities.Chats[ch.ID] = ch
	c.entities.ChatOrder = append(c.entities.ChatOrder, ch.ID)
}

func (c *collector) VisitMessage(m *telegram.Message) {
	if m.ID == 0 || m.ChatID() == 0 {
		return
	}
	key := database.MessageKey{ChatID: m.ChatID(), MessageID: m.ID}
	if _, ok := c.entities.Messages[key]; ok {
		return
	}
	c.entities.Messages[key] = m
	c.entities.MessageOrder = append(c.entities.MessageOrder, key)
}

func (c *collector) VisitFile(f telegram.FileRef) {
	meta := f.FileMeta()
	if meta.UniqueID == "" {
		return
	}
	if _, ok := c.entities.Files[meta.UniqueID]; ok {
		return
	}
	c.entities.Files[meta.UniqueID] = FileSighting{Kind: f.FileKind(), Meta: meta}
	c.entities.FileOrder = append(c.entities.FileOrder, meta.UniqueID)
}
