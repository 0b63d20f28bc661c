package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/hoxy/internal/api"
)

// LinkSource fetches reservation links and their product options.
type LinkSource interface {
	Link(ctx context.Context, token string) (*api.ReservationLink, error)
	ProductOptions(ctx context.Context, link *api.ReservationLink) ([]string, error)
}

// Landing is what a booking link resolves to: the link, the products to
// offer, and the date rules for the picker.
type Landing struct {
	Link           *api.ReservationLink
	Products       []string
	DefaultProduct string
	Rules          DateRules
}

// LoadLanding resolves token. A failed product lookup is not an error; the
// link's own product is offered instead.
func LoadLanding(ctx context.Context, src LinkSource, token string, today time.Time) (*Landing, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("booking: link token is required")
	}
	link, err := src.Link(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("booking: load link: %w", err)
	}
	products, _ := src.ProductOptions(ctx, link)
	l := &Landing{
		Link:     link,
		Products: products,
		Rules:    NewDateRules(today, link.UnavailableDates),
	}
	switch {
	case link.Product != nil && link.Product.Name != "":
		l.DefaultProduct = link.Product.Name
	case len(products) > 0:
		l.DefaultProduct = products[0]
	}
	return l, nil
}

// Active reports whether the link accepts bookings at now.
func (l *Landing) Active(now time.Time) bool {
	if !l.Link.IsActive {
		return false
	}
	if l.Link.ExpiresAt == "" {
		return true
	}
	exp, err := time.Parse(time.RFC3339, l.Link.ExpiresAt)
	if err != nil {
		return true
	}
	return now.Before(exp)
}
