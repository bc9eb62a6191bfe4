package telegram

import "encoding/json"

// FileKind tags the concrete shape a file was sighted as.
type FileKind string

const (
	FileKindChatPhoto FileKind = "chat_photo"
	FileKindPhoto     FileKind = "photo"
	FileKindAnimation FileKind = "animation"
	FileKindAudio     FileKind = "audio"
	FileKindDocument  FileKind = "document"
	FileKindVideo     FileKind = "video"
	FileKindVideoNote FileKind = "video_note"
	FileKindVoice     FileKind = "voice"
	FileKindSticker   FileKind = "sticker"
	FileKindPassport  FileKind = "passport"
)

// FileMeta is the normalized view of a sighted file: the stable
// content-addressed id, the short-lived bot-scoped fetch handle, and the
// attributes promoted to catalog columns.
type FileMeta struct {
	UniqueID string
	FileID   string
	Size     *int64
	MimeType *string
	Raw      map[string]any
}

// FileRef is implemented by every payload shape that references a stored
// file. Anything exposing both identifiers is treated as a file of the kind
// its concrete shape implies.
type FileRef interface {
	FileKind() FileKind
	FileMeta() FileMeta
}

// fileCore holds the identifier pair shared by all file shapes.
type fileCore struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileSize     *int64 `json:"file_size,omitempty"`

	Raw map[string]any `json:"-"`
}

func (f *fileCore) meta(mime *string) FileMeta {
	return FileMeta{
		UniqueID: f.FileUniqueID,
		FileID:   f.FileID,
		Size:     f.FileSize,
		MimeType: mime,
		Raw:      f.Raw,
	}
}

// PhotoSize is one resolution of a photo or thumbnail.
type PhotoSize struct {
	fileCore
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

func (p *PhotoSize) UnmarshalJSON(data []byte) error {
	type alias PhotoSize
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if err := decodeRaw(data, &a.Raw); err != nil {
		return err
	}
	*p = PhotoSize(a)
	return nil
}

func (p *PhotoSize) FileKind() FileKind { return FileKindPhoto }
func (p *PhotoSize) FileMeta() FileMeta { return p.meta(nil) }

// Animation is a GIF or soundless H.264 clip.
type Animation struct {
	fileCore
	MimeType  *string    `json:"mime_type,omitempty"`
	Thumbnail *PhotoSize `json:"thumbnail,omitempty"`
}

func (a *Animation) UnmarshalJSON(data []byte) error {
	type alias Animation
	var aa alias
	if err := json.Unmarshal(data, &aa); err != nil {
		return err
	}
	if err := decodeRaw(data, &aa.Raw); err != nil {
		return err
	}
	*a = Animation(aa)
	return nil
}

func (a *Animation) FileKind() FileKind { return FileKindAnimation }
func (a *Animation) FileMeta() FileMeta { return a.meta(a.MimeType) }

// Audio is an audio track treated as music.
type Audio struct {
	fileCore
	MimeType  *string    `json:"mime_type,omitempty"`
	Thumbnail *PhotoSize `json:"thumbnail,omitempty"`
}

func (a *Audio) UnmarshalJSON(data []byte) error {
	type alias Audio
	var aa alias
	if err := json.Unmarshal(data, &aa); err != nil {
		return err
	}
	if err := decodeRaw(data, &aa.Raw); err != nil {
		return err
	}
	*a = Audio(aa)
	return nil
}

func (a *Audio) FileKind() FileKind { return FileKindAudio }
func (a *Audio) FileMeta() FileMeta { return a.meta(a.MimeType) }

// Document is a general file.
type Document struct {
	fileCore
	MimeType  *string    `json:"mime_type,omitempty"`
	Thumbnail *PhotoSize `json:"thumbnail,omitempty"`
}

func (d *Document) UnmarshalJSON(data []byte) error {
	type alias Document
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if err := decodeRaw(data, &a.Raw); err != nil {
		return err
	}
	*d = Document(a)
	return nil
}

func (d *Document) FileKind() FileKind { return FileKindDocument }
func (d *Document) FileMeta() FileMeta { return d.meta(d.MimeType) }

// Video is a video file.
type Video struct {
	fileCore
	MimeType  *string    `json:"mime_type,omitempty"`
	Thumbnail *PhotoSize `json:"thumbnail,omitempty"`
}

func (v *Video) UnmarshalJSON(data []byte) error {
	type alias Video
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if err := decodeRaw(data, &a.Raw); err != nil {
		return err
	}
	*v = Video(a)
	return nil
}

func (v *Video) FileKind() FileKind { return FileKindVideo }
func (v *Video) FileMeta() FileMeta { return v.meta(v.MimeType) }

// VideoNote is a round video message.
type VideoNote struct {
	fileCore
	Thumbnail *PhotoSize `json:"thumbnail,omitempty"`
}

func (v *VideoNote) UnmarshalJSON(data []byte) error {
	type alias VideoNote
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if err := decodeRaw(data, &a.Raw); err != nil {
		return err
	}
	*v = VideoNote(a)
	return nil
}

func (v *VideoNote) FileKind() FileKind { return FileKindVideoNote }
func (v *VideoNote) FileMeta() FileMeta { return v.meta(nil) }

// Voice is a voice note.
type Voice struct {
	fileCore
	MimeType *string `json:"mime_type,omitempty"`
}

func (v *Voice) UnmarshalJSON(data []byte) error {
	type alias Voice
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if err := decodeRaw(data, &a.Raw); err != nil {
		return err
	}
	*v = Voice(a)
	return nil
}

func (v *Voice) FileKind() FileKind { return FileKindVoice }
func (v *Voice) FileMeta() FileMeta { return v.meta(v.MimeType) }

// Sticker is a sticker of any format.
type Sticker struct {
	fileCore
	Thumbnail *PhotoSize `json:"thumbnail,omitempty"`
}

func (s *Sticker) UnmarshalJSON(data []byte) error {
	type alias Sticker
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if err := decodeRaw(data, &a.Raw); err != nil {
		return err
	}
	*s = Sticker(a)
	return nil
}

func (s *Sticker) FileKind() FileKind { return FileKindSticker }
func (s *Sticker) FileMeta() FileMeta { return s.meta(nil) }

// PassportFile is an encrypted Telegram Passport attachment.
type PassportFile struct {
	fileCore
}

func (p *PassportFile) UnmarshalJSON(data []byte) error {
	type alias PassportFile
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if err := decodeRaw(data, &a.Raw); err != nil {
		return err
	}
	*p = PassportFile(a)
	return nil
}

func (p *PassportFile) FileKind() FileKind { return FileKindPassport }
func (p *PassportFile) FileMeta() FileMeta { return p.meta(nil) }
