package booking

import (
	"context"
	"fmt"
	"strings"

	"github.com/zulandar/hoxy/internal/api"
	"github.com/zulandar/hoxy/internal/state"
)

// Reserver creates reservations.
type Reserver interface {
	CreateReservation(ctx context.Context, req api.ReservationRequest) (*api.ReservationResult, error)
}

// StateWriter persists what the chat view needs after a booking.
type StateWriter interface {
	SetChatID(chatID string) error
	SetJSON(key string, v any) error
	SetArtistName(name string) error
	SetVerified(token string) error
}

// Submitter validates a form, posts the reservation, and saves the chat it
// opened.
type Submitter struct {
	reserver Reserver
	store    StateWriter
}

// NewSubmitter creates a Submitter. store may be nil to skip persistence.
func NewSubmitter(reserver Reserver, store StateWriter) (*Submitter, error) {
	if reserver == nil {
		return nil, fmt.Errorf("booking: reserver is required")
	}
	return &Submitter{reserver: reserver, store: store}, nil
}

// Result is a successful submission.
type Result struct {
	ChatID          string
	Phone           string // digits only
	ReservationTime string
	Request         api.ReservationRequest
}

// BuildRequest turns a valid form into the API request. The reservation
// title is the product name. link may be nil.
func BuildRequest(f Form, link *api.ReservationLink) (api.ReservationRequest, error) {
	if err := f.Validate(); err != nil {
		return api.ReservationRequest{}, err
	}
	phone, _ := NormalizePhone(f.Phone)
	req := api.ReservationRequest{
		Title:          strings.TrimSpace(f.Product),
		CustomerName:   strings.TrimSpace(f.Name),
		PhoneNumber:    phone,
		DateCandidates: f.Dates(),
	}
	if link != nil {
		req.AuthorID = string(link.ArtistID)
		if link.Product == nil || link.Product.Name == req.Title {
			req.ProductID = string(link.ProductID)
		}
	}
	return req, nil
}

// Submit validates f, creates the reservation, and persists the chat id,
// the form, the artist's display name, and the link token as verified.
// Validation failures return before any network call.
func (s *Submitter) Submit(ctx context.Context, f Form, link *api.ReservationLink) (*Result, error) {
	req, err := BuildRequest(f, link)
	if err != nil {
		return nil, err
	}
	res, err := s.reserver.CreateReservation(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("booking: submit: %w", err)
	}
	chatID := res.ChatID()
	if chatID == "" {
		return nil, fmt.Errorf("booking: submit: response has no chat id")
	}
	out := &Result{ChatID: chatID, Phone: req.PhoneNumber, Request: req}
	if res.Reservation != nil {
		out.ReservationTime = res.Reservation.ReservationTime
	}

	if s.store == nil {
		return out, nil
	}
	if err := s.store.SetChatID(chatID); err != nil {
		return out, fmt.Errorf("booking: save chat id: %w", err)
	}
	if err := s.store.SetJSON(state.KeyBookingData, f); err != nil {
		return out, fmt.Errorf("booking: save form: %w", err)
	}
	if link != nil {
		if link.Artist != nil && link.Artist.DisplayName() != "" {
			if err := s.store.SetArtistName(link.Artist.DisplayName()); err != nil {
				return out, fmt.Errorf("booking: save artist name: %w", err)
			}
		}
		if link.Token != "" {
			if err := s.store.SetVerified(link.Token); err != nil {
				return out, fmt.Errorf("booking: mark link verified: %w", err)
			}
		}
	}
	return out, nil
}
