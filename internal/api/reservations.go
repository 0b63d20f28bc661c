package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ReservationRequest is the body of POST /v1/reservations.
type ReservationRequest struct {
	AuthorID       string   `json:"author_id,omitempty"`
	Title          string   `json:"title"`
	CustomerName   string   `json:"customer_name"`
	PhoneNumber    string   `json:"phone_number"`
	DateCandidates []string `json:"date_candidates"`
	ProductID      string   `json:"product_id,omitempty"`
}

// ReservationResult is the response of POST /v1/reservations.
type ReservationResult struct {
	Chat struct {
		ID json.RawMessage `json:"id"`
	} `json:"chat"`
	Reservation *struct {
		ChatID          json.RawMessage `json:"chat_id"`
		ReservationTime string          `json:"reservation_time"`
	} `json:"reservation,omitempty"`
}

// ChatID returns the id of the chat created for the reservation, falling
// back to the reservation's chat id.
func (r *ReservationResult) ChatID() string {
	if id := RawID(r.Chat.ID); id != "" {
		return id
	}
	if r.Reservation != nil {
		return RawID(r.Reservation.ChatID)
	}
	return ""
}

// Artist is the artist a reservation link belongs to.
type Artist struct {
	ID          FlexID `json:"id"`
	Name        string `json:"name"`
	BrandName   string `json:"brand_name,omitempty"`
	ContactLink string `json:"contact_link,omitempty"`
}

// DisplayName returns the brand name when set, else the name.
func (a Artist) DisplayName() string {
	if a.BrandName != "" {
		return a.BrandName
	}
	return a.Name
}

// Product is a bookable product.
type Product struct {
	ID            FlexID `json:"id"`
	Name          string `json:"name"`
	SaleStartDate string `json:"sale_start_date,omitempty"`
	SaleEndDate   string `json:"sale_end_date,omitempty"`
}

// ReservationLink is the metadata behind a shared booking link.
type ReservationLink struct {
	ID               FlexID   `json:"id"`
	ArtistID         FlexID   `json:"artist_id"`
	Token            string   `json:"token"`
	ProductID        FlexID   `json:"product_id,omitempty"`
	ExpiresAt        string   `json:"expires_at,omitempty"`
	IsActive         bool     `json:"is_active"`
	Artist           *Artist  `json:"artist,omitempty"`
	Product          *Product `json:"product,omitempty"`
	UnavailableDates []string `json:"unavailable_dates,omitempty"`
}

// CreateReservation submits a booking and returns the chat it opened.
func (c *Client) CreateReservation(ctx context.Context, req ReservationRequest) (*ReservationResult, error) {
	if req.DateCandidates == nil {
		req.DateCandidates = []string{}
	}
	var out ReservationResult
	if err := c.postJSON(ctx, "create reservation", "/v1/reservations", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Link fetches the reservation link for token.
func (c *Client) Link(ctx context.Context, token string) (*ReservationLink, error) {
	if token == "" {
		return nil, fmt.Errorf("api: reservation link: token is required")
	}
	var out ReservationLink
	if err := c.getJSON(ctx, "reservation link", "/v1/reservations/links/"+url.PathEscape(token), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProductOptions lists product names for an artist. Several endpoints are
// tried in order and the first non-empty list wins. When none answer, the
// link's own product name is returned. A network failure on every
// endpoint is returned as an error alongside the fallback.
func (c *Client) ProductOptions(ctx context.Context, link *ReservationLink) ([]string, error) {
	var fallback []string
	if link != nil && link.Product != nil && link.Product.Name != "" {
		fallback = []string{link.Product.Name}
	}
	if link == nil || link.ArtistID == "" {
		return fallback, nil
	}

	artistID := string(link.ArtistID)
	candidates := []struct {
		path  string
		query url.Values
	}{
		{"/v1/artists/" + url.PathEscape(artistID) + "/products", nil},
		{"/v1/products", params("artist_id", artistID)},
		{"/products", params("artist_id", artistID)},
	}
	var lastErr error
	for _, cand := range candidates {
		var raw json.RawMessage
		if err := c.getJSON(ctx, "product options", cand.path, cand.query, &raw); err != nil {
			var se *ServerError
			if !errors.As(err, &se) {
				lastErr = err
			}
			continue
		}
		if names := productNames(raw); len(names) > 0 {
			return names, nil
		}
	}
	return fallback, lastErr
}

// productNames accepts either a bare array or an object wrapping it under
// "products" or "data", with elements that are strings or {name}.
func productNames(raw json.RawMessage) []string {
	var list []json.RawMessage
	if json.Unmarshal(raw, &list) != nil {
		var wrapped struct {
			Products []json.RawMessage `json:"products"`
			Data     []json.RawMessage `json:"data"`
		}
		if json.Unmarshal(raw, &wrapped) != nil {
			return nil
		}
		list = wrapped.Products
		if len(list) == 0 {
			list = wrapped.Data
		}
	}
	seen := make(map[string]bool)
	var names []string
	for _, item := range list {
		var name string
		if json.Unmarshal(item, &name) != nil {
			var p Product
			if json.Unmarshal(item, &p) != nil {
				continue
			}
			name = p.Name
		}
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// FlexID is an identifier the server may encode as a string or a number.
type FlexID string

// UnmarshalJSON accepts a JSON string, number, or null.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	*f = FlexID(RawID(data))
	return nil
}

// RawID renders a JSON id that may be a string or a number.
func RawID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if json.Unmarshal(raw, &str) == nil {
		return str
	}
	return s
}
