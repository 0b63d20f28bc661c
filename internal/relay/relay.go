// Package relay forwards counterpart chat messages to team chat platforms
// (Slack, Discord) so a message from the other side is not missed while
// the chat view is closed.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zulandar/hoxy/internal/models"
)

// Notifier delivers a notice to one platform.
type Notifier interface {
	// Name identifies the platform in logs, e.g. "slack".
	Name() string

	// Notify delivers n. Implementations retry platform rate limits
	// themselves and respect ctx cancellation.
	Notify(ctx context.Context, n Notice) error
}

// Notice is a chat message prepared for a relay platform.
type Notice struct {
	ChatID    string
	Sender    models.Sender
	Kind      models.Kind
	Text      string
	ImageURLs []string
	CreatedAt time.Time
	Timestamp string
}

// Field is a key-value pair shown alongside a notice.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// NoticeFromMessage builds a Notice from a normalized message.
func NoticeFromMessage(m models.Message) Notice {
	return Notice{
		ChatID:    m.ChatID,
		Sender:    m.Sender,
		Kind:      m.Kind,
		Text:      m.Summary(),
		ImageURLs: m.ImageURLs,
		CreatedAt: m.CreatedAt,
		Timestamp: m.Timestamp,
	}
}

var senderNames = map[models.Sender]string{
	models.SenderCustomer: "고객",
	models.SenderAuthor:   "작가",
	models.SenderSystem:   "시스템",
}

// Title is the notice headline, e.g. "작가 새 메시지 (chat 42)".
func (n Notice) Title() string {
	who, ok := senderNames[n.Sender]
	if !ok {
		who = string(n.Sender)
	}
	if n.ChatID == "" {
		return who + " 새 메시지"
	}
	return fmt.Sprintf("%s 새 메시지 (chat %s)", who, n.ChatID)
}

// Body is the notice text. Image-only messages are described by count.
func (n Notice) Body() string {
	if text := strings.TrimSpace(n.Text); text != "" {
		return text
	}
	if len(n.ImageURLs) > 0 {
		return fmt.Sprintf("[이미지 %d장]", len(n.ImageURLs))
	}
	switch n.Kind {
	case models.KindReservationInquiry:
		return "[예약 문의]"
	}
	return "[" + string(n.Kind) + "]"
}

// Fields returns metadata shown with the notice.
func (n Notice) Fields() []Field {
	fields := []Field{{Name: "Type", Value: string(n.Kind), Short: true}}
	if n.Timestamp != "" {
		fields = append(fields, Field{Name: "Time", Value: n.Timestamp, Short: true})
	}
	for i, u := range n.ImageURLs {
		fields = append(fields, Field{Name: fmt.Sprintf("Image %d", i+1), Value: u})
	}
	return fields
}

// Multi fans a notice out to several notifiers.
type Multi []Notifier

// Name implements Notifier.
func (m Multi) Name() string {
	names := make([]string, 0, len(m))
	for _, n := range m {
		names = append(names, n.Name())
	}
	return strings.Join(names, ",")
}

// Notify delivers n to every notifier. A failure on one platform does not
// stop delivery to the others; all failures are logged and joined.
func (m Multi) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			log.Printf("relay: %s: %v", notifier.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}
