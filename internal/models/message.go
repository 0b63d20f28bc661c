package models

import (
	"encoding/json"
	"time"
)

// Sender classifies who authored a chat message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAuthor   Sender = "author"
	SenderSystem   Sender = "system"
)

// Kind is the message type reported by the server.
type Kind string

const (
	KindText               Kind = "text"
	KindImage              Kind = "image"
	KindReservationInquiry Kind = "reservationInquiry"
	KindConfirmReservation Kind = "confirmReservation"
	KindSystem             Kind = "system"
)

// Known reports whether k is one of the kinds the chat view can render.
func (k Kind) Known() bool {
	switch k {
	case KindText, KindImage, KindReservationInquiry, KindConfirmReservation, KindSystem:
		return true
	}
	return false
}

// Structured reports whether messages of this kind carry a structured
// reservation payload instead of display text.
func (k Kind) Structured() bool {
	return k == KindReservationInquiry || k == KindConfirmReservation
}

// StructuredContent is the decoded payload of reservationInquiry and
// confirmReservation messages.
type StructuredContent struct {
	ProductName    string         `json:"productName"`
	DateCandidates []string       `json:"dateCandidates"`
	ConfirmedDate  string         `json:"confirmedDate"`
	Fields         map[string]any `json:"-"` // every decoded key, including the ones above
}

// Message is a display-ready chat message.
type Message struct {
	ID          string             `json:"id"`
	ChatID      string             `json:"chat_id,omitempty"`
	Text        string             `json:"text"`
	CreatedAt   time.Time          `json:"created_at"`
	Timestamp   string             `json:"timestamp"` // 12-hour label derived from CreatedAt
	Sender      Sender             `json:"sender"`
	Kind        Kind               `json:"kind"`
	Structured  *StructuredContent `json:"structured,omitempty"`
	ImageURLs   []string           `json:"image_urls,omitempty"`
	IsRead      bool               `json:"is_read"`
	IsUploading bool               `json:"is_uploading,omitempty"`
}

// IsUser reports whether the message was written by the customer.
func (m Message) IsUser() bool {
	return m.Sender == SenderCustomer
}

// DayKey returns the calendar day of the message in its own location.
func (m Message) DayKey() string {
	return m.CreatedAt.Format("2006-01-02")
}

// HasImages reports whether the message carries at least one image URL.
func (m Message) HasImages() bool {
	return len(m.ImageURLs) > 0
}

// Visible reports whether the chat view renders this message. Messages of
// unrecognized kinds and structured messages whose payload failed to
// decode stay in the store but are not shown.
func (m Message) Visible() bool {
	if !m.Kind.Known() {
		return false
	}
	if m.HasImages() {
		return true
	}
	switch {
	case m.Kind.Structured():
		return m.Structured != nil
	case m.Kind == KindSystem:
		return true
	case m.IsUser():
		return m.Kind == KindText
	default:
		return true
	}
}

// Summary returns the one-line text shown for a confirmed reservation.
func (m Message) Summary() string {
	if m.Kind != KindConfirmReservation || m.Structured == nil {
		return m.Text
	}
	product := m.Structured.ProductName
	if product == "" {
		product = "상품"
	}
	date := m.Structured.ConfirmedDate
	if date == "" {
		date = "날짜"
	}
	return "예약 확인: " + product + " - " + date
}

// RawMessage is a chat message row as delivered by the REST history
// endpoint and the realtime insert stream. Several fields arrive in more
// than one JSON shape and are decoded by the chat normalizer.
type RawMessage struct {
	ID        json.RawMessage `json:"id"`
	ChatID    json.RawMessage `json:"chat_id,omitempty"`
	CreatedAt string          `json:"created_at"`
	Sender    string          `json:"sender"`
	Type      string          `json:"type"`
	Text      *string         `json:"text"`
	Content   json.RawMessage `json:"content,omitempty"`
	MediaURL  json.RawMessage `json:"media_url,omitempty"`
	IsRead    bool            `json:"isRead"`
}
