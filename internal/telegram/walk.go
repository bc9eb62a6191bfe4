package telegram

// Visitor receives every entity sighting found while walking a payload
// graph. A node is reported once per walk even when the graph shares or
// cycles through it.
type Visitor interface {
	VisitUser(*User)
	VisitChat(*Chat)
	VisitMessage(*Message)
	VisitFile(FileRef)
}

// Walk traverses a payload graph rooted at node and reports every sighted
// entity to v. Accepted roots are updates, messages, slices of either, and
// any node type reachable from them. Unknown node types are ignored.
//
// Traversal tracks visited nodes by pointer identity: the same sender User
// referenced from several messages is reported once, and self-referential
// structures terminate.
func Walk(node any, v Visitor) {
	w := &walker{seen: make(map[any]struct{}), visitor: v}
	w.walk(node)
}

type walker struct {
	seen    map[any]struct{}
	visitor Visitor
}

// enter marks a node as visited and reports whether it was already seen.
func (w *walker) enter(ptr any) bool {
	if _, ok := w.seen[ptr]; ok {
		return false
	}
	w.seen[ptr] = struct{}{}
	return true
}

func (w *walker) walk(node any) {
	switch n := node.(type) {
	case []*Update:
		for _, u := range n {
			w.walk(u)
		}
	case []*Message:
		for _, m := range n {
			w.walk(m)
		}

	case *Update:
		if n == nil || !w.enter(n) {
			return
		}
		w.walk(n.Message)
		w.walk(n.EditedMessage)
		w.walk(n.ChannelPost)
		w.walk(n.EditedChannelPost)
		w.walk(n.BusinessMessage)
		w.walk(n.EditedBusinessMessage)
		w.walk(n.CallbackQuery)
		w.walk(n.MyChatMember)
		w.walk(n.ChatMember)
		w.walk(n.ChatJoinRequest)

	case *Message:
		if n == nil || !w.enter(n) {
			return
		}
		w.visitor.VisitMessage(n)
		w.walk(n.Chat)
		w.walk(n.From)
		w.walk(n.SenderChat)
		w.walk(n.SenderBusinessBot)
		w.walk(n.ViaBot)
		w.walk(n.LeftChatMember)
		for _, u := range n.NewChatMembers {
			w.walk(u)
		}
		w.walk(n.ReplyToMessage)
		w.walk(n.ExternalReply)
		w.walk(n.ForwardOrigin)
		w.walk(n.PinnedMessage)
		for _, p := range n.Photo {
			w.walk(p)
		}
		for _, p := range n.NewChatPhoto {
			w.walk(p)
		}
		w.walk(n.Animation)
		w.walk(n.Audio)
		w.walk(n.Document)
		w.walk(n.Video)
		w.walk(n.VideoNote)
		w.walk(n.Voice)
		w.walk(n.Sticker)
		w.walk(n.Story)
		w.walk(n.PaidMedia)
		w.walk(n.Game)
		w.walk(n.PassportData)

	case *ChatFullInfo:
		if n == nil || !w.enter(n) {
			return
		}
		w.visitor.VisitChat(&n.Chat)
		w.walk(n.PersonalChat)
		w.walk(n.ParentChat)
		w.walk(n.PinnedMessage)

	case *User:
		if n == nil || !w.enter(n) {
			return
		}
		w.visitor.VisitUser(n)

	case *Chat:
		if n == nil || !w.enter(n) {
			return
		}
		w.visitor.VisitChat(n)

	case *CallbackQuery:
		if n == nil || !w.enter(n) {
			return
		}
		w.walk(n.From)
		w.walk(n.Message)

	case *ChatMemberUpdated:
		if n == nil || !w.enter(n) {
			return
		}
		w.walk(n.Chat)
		w.walk(n.From)
		if n.OldChatMember != nil {
			w.walk(n.OldChatMember.User)
		}
		if n.NewChatMember != nil {
			w.walk(n.NewChatMember.User)
		}

	case *ChatJoinRequest:
		if n == nil || !w.enter(n) {
			return
		}
		w.walk(n.Chat)
		w.walk(n.From)

	case *MessageOrigin:
		if n == nil || !w.enter(n) {
			return
		}
		w.walk(n.SenderUser)
		w.walk(n.SenderChat)
		w.walk(n.Chat)

	case *ExternalReplyInfo:
		if n == nil || !w.enter(n) {
			return
		}
		w.walk(n.Origin)
		w.walk(n.Chat)
		for _, p := range n.Photo {
			w.walk(p)
		}
		w.walk(n.Animation)
		w.walk(n.Audio)
		w.walk(n.Document)
		w.walk(n.Video)
		w.walk(n.VideoNote)
		w.walk(n.Voice)
		w.walk(n.Sticker)
		w.walk(n.Story)
		w.walk(n.PaidMedia)
		w.walk(n.Game)

	case *PaidMediaInfo:
		if n == nil || !w.enter(n) {
			return
		}
		for _, pm := range n.PaidMedia {
			if pm == nil {
				continue
			}
			for _, p := range pm.Photo {
				w.walk(p)
			}
			w.walk(pm.Video)
		}

	case *Game:
		if n == nil || !w.enter(n) {
			return
		}
		for _, p := range n.Photo {
			w.walk(p)
		}
		w.walk(n.Animation)

	case *Story:
		if n == nil || !w.enter(n) {
			return
		}
		w.walk(n.Chat)

	case *PassportData:
		if n == nil || !w.enter(n) {
			return
		}
		for _, el := range n.Data {
			if el == nil {
				continue
			}
			w.walk(el.FrontSide)
			w.walk(el.ReverseSide)
			w.walk(el.Selfie)
			for _, f := range el.Files {
				w.walk(f)
			}
			for _, f := range el.Translation {
				w.walk(f)
			}
		}

	case *Animation:
		if n == nil || !w.enter(n) {
			return
		}
		w.visitor.VisitFile(n)
		w.walk(n.Thumbnail)
	case *Audio:
		if n == nil || !w.enter(n) {
			return
		}
		w.visitor.VisitFile(n)
		w.walk(n.Thumbnail)
	case *Document:
		if n == nil || !w.enter(n) {
			return
		}
		w.visitor.VisitFile(n)
		w.walk(n.Thumbnail)
	case *Video:
		if n == nil || !w.enter(n) {
			return
		}
		w.visitor.VisitFile(n)
		w.walk(n.Thumbnail)
	case *VideoNote:
		if n == nil || !w.enter(n) {
			return
		}
		w.visitor.VisitFile(n)
		w.walk(n.Thumbnail)
	case *Sticker:
		if n == nil || !w.enter(n) {
			return
		}
		w.visitor.VisitFile(n)
		w.walk(n.Thumbnail)
	case *PhotoSize:
		if n == nil || !w.enter(n) {
			return
		}
		w.visitor.VisitFile(n)
	case *Voice:
		if n == nil || !w.enter(n) {
			return
		}
		w.visitor.VisitFile(n)
	case *PassportFile:
		if n == nil || !w.enter(n) {
			return
		}
		w.visitor.VisitFile(n)
	}
}
