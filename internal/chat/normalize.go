package chat

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/zulandar/hoxy/internal/api"
	"github.com/zulandar/hoxy/internal/models"
)

// createdAtLayouts are tried in order. Layouts without a zone are read as UTC.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
}

// ParseCreatedAt parses a server timestamp. Missing or unparseable values
// resolve to now so the message still sorts to the end of the list.
func ParseCreatedAt(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return now
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return now
}

// Normalize converts a raw server or realtime row into a display Message.
// It never fails: malformed content or media degrades to empty values.
func Normalize(raw models.RawMessage, loc *time.Location) models.Message {
	return normalizeAt(raw, loc, time.Now())
}

func normalizeAt(raw models.RawMessage, loc *time.Location, now time.Time) models.Message {
	if loc == nil {
		loc = time.Local
	}
	created := ParseCreatedAt(raw.CreatedAt, now).In(loc)

	msg := models.Message{
		ID:        api.RawID(raw.ID),
		ChatID:    api.RawID(raw.ChatID),
		CreatedAt: created,
		Timestamp: TimeLabel(created),
		Sender:    models.Sender(raw.Sender),
		Kind:      models.Kind(raw.Type),
		ImageURLs: MediaURLs(raw.MediaURL),
		IsRead:    raw.IsRead,
	}
	if raw.Text != nil {
		msg.Text = *raw.Text
	}

	if msg.Kind.Structured() {
		msg.Text = ""
		msg.Structured = decodeStructured(raw.Content)
		return msg
	}
	if msg.Text == "" && hasContent(raw.Content) {
		msg.Text = contentText(raw.Content)
	}
	return msg
}

func hasContent(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	return len(s) > 0 && !bytes.Equal(s, []byte("null")) && !bytes.Equal(s, []byte(`""`))
}

// contentText renders a content value as display text. Content usually
// arrives as a JSON-encoded string which itself may hold JSON.
func contentText(raw json.RawMessage) string {
	var outer any
	if err := json.Unmarshal(raw, &outer); err != nil {
		return string(raw)
	}
	s, ok := outer.(string)
	if !ok {
		return compact(raw)
	}
	var inner any
	if err := json.Unmarshal([]byte(s), &inner); err != nil {
		return s
	}
	if str, ok := inner.(string); ok {
		return str
	}
	return compact([]byte(s))
}

func compact(data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return string(data)
	}
	return buf.String()
}

// decodeStructured decodes a reservation payload given either as an object
// or as a string holding an object. Anything else yields nil.
func decodeStructured(raw json.RawMessage) *models.StructuredContent {
	if !hasContent(raw) {
		return nil
	}
	data := []byte(raw)
	var s string
	if json.Unmarshal(raw, &s) == nil {
		data = []byte(s)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil
	}
	sc := &models.StructuredContent{Fields: fields}
	sc.ProductName, _ = fields["productName"].(string)
	sc.ConfirmedDate, _ = fields["confirmedDate"].(string)
	if list, ok := fields["dateCandidates"].([]any); ok {
		for _, v := range list {
			if d, ok := v.(string); ok && d != "" {
				sc.DateCandidates = append(sc.DateCandidates, d)
			}
		}
	}
	return sc
}

// MediaURLs normalizes media_url from an array of strings, a JSON array
// encoded in a string, or a single bare URL.
func MediaURLs(raw json.RawMessage) []string {
	if !hasContent(raw) {
		return nil
	}
	var list []string
	if json.Unmarshal(raw, &list) != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return nil
		}
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "[") {
			if json.Unmarshal([]byte(s), &list) != nil {
				return nil
			}
		} else {
			list = []string{s}
		}
	}
	var urls []string
	for _, u := range list {
		u = strings.Trim(strings.TrimSpace(u), `"'`)
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}
