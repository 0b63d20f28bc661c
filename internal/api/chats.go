package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/zulandar/hoxy/internal/models"
)

// ImageFile is one image attached to an upload.
type ImageFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// SentMessage is the server's response to a text send.
type SentMessage struct {
	ID        json.RawMessage `json:"id"`
	CreatedAt string          `json:"created_at,omitempty"`
}

// UploadedImages is the server's response to an image upload.
type UploadedImages struct {
	ID        json.RawMessage `json:"id"`
	MediaURL  json.RawMessage `json:"media_url"`
	CreatedAt string          `json:"created_at,omitempty"`
}

func chatPath(chatID, suffix string) string {
	return "/v1/chats/" + url.PathEscape(chatID) + suffix
}

// FetchMessages returns the complete message history of a chat.
func (c *Client) FetchMessages(ctx context.Context, chatID, phone string) ([]models.RawMessage, error) {
	var resp struct {
		Messages []models.RawMessage `json:"messages"`
	}
	if err := c.getJSON(ctx, "fetch messages", chatPath(chatID, "/messages"), params("phone", phone), &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SendMessage posts a customer text message.
func (c *Client) SendMessage(ctx context.Context, chatID, phone, text string) (*SentMessage, error) {
	body := map[string]string{
		"text":   text,
		"sender": string(models.SenderCustomer),
		"type":   string(models.KindText),
		"phone":  phone,
	}
	var out SentMessage
	if err := c.postJSON(ctx, "send message", chatPath(chatID, "/messages"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadImages posts images as a multipart form.
func (c *Client) UploadImages(ctx context.Context, chatID, phone string, images []ImageFile) (*UploadedImages, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("sender", string(models.SenderCustomer)); err != nil {
		return nil, fmt.Errorf("api: upload images: %w", err)
	}
	if err := w.WriteField("phone", phone); err != nil {
		return nil, fmt.Errorf("api: upload images: %w", err)
	}
	for _, img := range images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, img.Name))
		ct := img.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("api: upload images: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, fmt.Errorf("api: upload images: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("api: upload images: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(chatPath(chatID, "/messages/image"), nil), &buf)
	if err != nil {
		return nil, fmt.Errorf("api: upload images: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	var out UploadedImages
	if err := c.do("upload images", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRead tells the server the customer has read the chat.
func (c *Client) MarkRead(ctx context.Context, chatID, phone string) error {
	return c.postJSON(ctx, "mark read", chatPath(chatID, "/read"), map[string]string{"phone": phone}, nil)
}
