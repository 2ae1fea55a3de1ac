package collab

import (
	"encoding/json"
	"strings"

	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

// MessageType is the "type" field of the wire envelope.
type MessageType string

const (
	TypeInit           MessageType = "init"
	TypeCodeUpdate     MessageType = "code_update"
	TypeLanguageUpdate MessageType = "language_update"
	TypeClassroomLink  MessageType = "classroom_link"
)

// MaxLanguageLen bounds the language tag.
const MaxLanguageLen = 32

// ══════════════════════════════════════════════════════════════════════════════
// INBOUND (client → hub)
// ══════════════════════════════════════════════════════════════════════════════

// Inbound is one of CodeUpdate, LanguageUpdate or ClassroomLinkUpdate.
// The unexported method closes the set so a type switch over it is exhaustive.
type Inbound interface {
	Type() MessageType
	inbound()
}

// CodeUpdate replaces the shared buffer.
type CodeUpdate struct {
	Code string
}

// LanguageUpdate changes the language tag.
type LanguageUpdate struct {
	Language string
}

// ClassroomLinkUpdate sets the external classroom URL. Mentor only.
type ClassroomLinkUpdate struct {
	Link string
}

func (CodeUpdate) Type() MessageType          { return TypeCodeUpdate }
func (LanguageUpdate) Type() MessageType      { return TypeLanguageUpdate }
func (ClassroomLinkUpdate) Type() MessageType { return TypeClassroomLink }

func (CodeUpdate) inbound()          {}
func (LanguageUpdate) inbound()      {}
func (ClassroomLinkUpdate) inbound() {}

type envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeInbound parses a text frame. Unparseable JSON, an unknown or missing
// type, a non-object data field or a missing required field all return
// shared.ErrMalformedMessage.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, shared.WrapError("collab", "Decode", shared.ErrInvalidInput, "invalid envelope", shared.ErrMalformedMessage)
	}

	switch env.Type {
	case TypeCodeUpdate:
		var d struct {
			Code *string `json:"code"`
		}
		if err := decodeData(env.Data, &d); err != nil || d.Code == nil {
			return nil, shared.ErrMalformedMessage
		}
		return CodeUpdate{Code: *d.Code}, nil

	case TypeLanguageUpdate:
		var d struct {
			Language *string `json:"language"`
		}
		if err := decodeData(env.Data, &d); err != nil || d.Language == nil {
			return nil, shared.ErrMalformedMessage
		}
		lang := strings.TrimSpace(*d.Language)
		if lang == "" || len(lang) > MaxLanguageLen {
			return nil, shared.ErrMalformedMessage
		}
		return LanguageUpdate{Language: lang}, nil

	case TypeClassroomLink:
		var d struct {
			Link *string `json:"link"`
		}
		if err := decodeData(env.Data, &d); err != nil || d.Link == nil {
			return nil, shared.ErrMalformedMessage
		}
		return ClassroomLinkUpdate{Link: strings.TrimSpace(*d.Link)}, nil

	default:
		return nil, shared.ErrMalformedMessage
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || data[0] != '{' {
		return shared.ErrMalformedMessage
	}
	return json.Unmarshal(data, v)
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOUND (hub → client)
// ══════════════════════════════════════════════════════════════════════════════

// Outbound is a frame sent to clients.
type Outbound struct {
	Type MessageType `json:"type"`
	Data any         `json:"data"`
}

// InitData is the payload of the join snapshot.
type InitData struct {
	Code          string `json:"code"`
	Language      string `json:"language"`
	ClassroomLink string `json:"classroom_link"`
}

// CodeData is the payload of a code broadcast.
type CodeData struct {
	Code   string `json:"code"`
	UserID string `json:"user_id"`
}

// LanguageData is the payload of a language broadcast.
type LanguageData struct {
	Language string `json:"language"`
}

// LinkData is the payload of a classroom link broadcast.
type LinkData struct {
	Link string `json:"link"`
}

// NewInit builds the snapshot sent to a joining participant.
func NewInit(s *State, classroomLink string) Outbound {
	return Outbound{Type: TypeInit, Data: InitData{Code: s.Code, Language: s.Language, ClassroomLink: classroomLink}}
}

// NewCodeBroadcast builds the frame relayed to the other participants.
func NewCodeBroadcast(code string, from shared.UserID) Outbound {
	return Outbound{Type: TypeCodeUpdate, Data: CodeData{Code: code, UserID: from.String()}}
}

// NewLanguageBroadcast builds a language change frame.
func NewLanguageBroadcast(lang string) Outbound {
	return Outbound{Type: TypeLanguageUpdate, Data: LanguageData{Language: lang}}
}

// NewLinkBroadcast builds a classroom link frame.
func NewLinkBroadcast(link string) Outbound {
	return Outbound{Type: TypeClassroomLink, Data: LinkData{Link: link}}
}

// Encode marshals the frame.
func (o Outbound) Encode() ([]byte, error) {
	return json.Marshal(o)
}
