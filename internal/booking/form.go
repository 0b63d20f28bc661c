// Package booking holds the reservation form, its validation, and the
// submission flow that opens a chat with the artist.
package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of preferred dates.
const DateLayout = "2006-01-02"

// MaxDates is the number of preferred-date priorities.
const MaxDates = 3

var (
	ErrInvalidPriority = errors.New("booking: priority must be 1, 2 or 3")
	ErrInvalidDate     = errors.New("booking: date must be YYYY-MM-DD")
	ErrPastDate        = errors.New("booking: date is in the past")
	ErrUnavailableDate = errors.New("booking: date is unavailable")
	ErrDatesFull       = errors.New("booking: all three dates are already chosen")
)

// Form is the customer's reservation request.
type Form struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Product       string `json:"product"`
	Date1         string `json:"date1,omitempty"`
	Date2         string `json:"date2,omitempty"`
	Date3         string `json:"date3,omitempty"`
	PrivacyAgreed bool   `json:"privacyAgreed"`
	TermsAgreed   bool   `json:"termsAgreed"`
}

// FieldError is one failed check.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "booking: invalid form: " + strings.Join(parts, "; ")
}

// Has reports whether field failed validation.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// Validate checks the form before anything is sent. It returns a
// *ValidationError naming every failing field.
func (f *Form) Validate() error {
	var errs []FieldError
	if strings.TrimSpace(f.Name) == "" {
		errs = append(errs, FieldError{"name", "이름을 입력해 주세요"})
	}
	if strings.TrimSpace(f.Phone) == "" {
		errs = append(errs, FieldError{"phone", "연락처를 입력해 주세요"})
	} else if _, ok := NormalizePhone(f.Phone); !ok {
		errs = append(errs, FieldError{"phone", "올바른 휴대폰 번호를 입력해 주세요"})
	}
	if strings.TrimSpace(f.Product) == "" {
		errs = append(errs, FieldError{"product", "상품을 선택해 주세요"})
	}
	for i, d := range f.dates() {
		field := fmt.Sprintf("date%d", i+1)
		switch {
		case *d == "" && i < 2:
			errs = append(errs, FieldError{field, fmt.Sprintf("%d순위 날짜를 선택해 주세요", i+1)})
		case *d != "":
			if _, err := time.Parse(DateLayout, *d); err != nil {
				errs = append(errs, FieldError{field, "날짜 형식이 올바르지 않습니다"})
			}
		}
	}
	if !f.PrivacyAgreed {
		errs = append(errs, FieldError{"privacyAgreed", "개인정보 수집 및 이용에 동의해 주세요"})
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// NormalizePhone strips hyphens and spaces and checks for a Korean mobile
// number (01x followed by 7 or 8 digits). It returns the digits.
func NormalizePhone(s string) (string, bool) {
	digits := strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(s))
	if len(digits) != 10 && len(digits) != 11 {
		return "", false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	if !strings.HasPrefix(digits, "01") || !strings.ContainsRune("016789", rune(digits[2])) {
		return "", false
	}
	return digits, true
}

// FormatPhone renders digits as 010-1234-5678 (or 011-123-4567).
func FormatPhone(digits string) string {
	switch len(digits) {
	case 11:
		return digits[:3] + "-" + digits[3:7] + "-" + digits[7:]
	case 10:
		return digits[:3] + "-" + digits[3:6] + "-" + digits[6:]
	}
	return digits
}

func (f *Form) dates() [MaxDates]*string {
	return [MaxDates]*string{&f.Date1, &f.Date2, &f.Date3}
}

// Dates returns the chosen dates in priority order, skipping empty slots.
func (f *Form) Dates() []string {
	var out []string
	for _, d := range f.dates() {
		if *d != "" {
			out = append(out, *d)
		}
	}
	return out
}

// Priority returns the priority (1-3) holding day, or 0.
func (f *Form) Priority(day string) int {
	for i, d := range f.dates() {
		if *d != "" && *d == day {
			return i + 1
		}
	}
	return 0
}

// DateRules restricts which days can be chosen.
type DateRules struct {
	Today       time.Time       // days before Today's calendar day are rejected
	Unavailable map[string]bool // keyed by DateLayout
}

// NewDateRules builds rules from a link's unavailable dates. Entries that
// carry a time component are reduced to their day.
func NewDateRules(today time.Time, unavailable []string) DateRules {
	r := DateRules{Today: today, Unavailable: make(map[string]bool, len(unavailable))}
	for _, d := range unavailable {
		if len(d) >= len(DateLayout) {
			r.Unavailable[d[:len(DateLayout)]] = true
		}
	}
	return r
}

// Check reports why day cannot be chosen, or nil.
func (r DateRules) Check(day string) error {
	t, err := time.Parse(DateLayout, day)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, day)
	}
	if !r.Today.IsZero() {
		today := r.Today.Format(DateLayout)
		if t.Format(DateLayout) < today {
			return fmt.Errorf("%w: %s", ErrPastDate, day)
		}
	}
	if r.Unavailable[day] {
		return fmt.Errorf("%w: %s", ErrUnavailableDate, day)
	}
	return nil
}

// SelectDate puts day at priority, replacing whatever was there. If day
// already held another priority that slot is cleared.
func (f *Form) SelectDate(priority int, day string, rules DateRules) error {
	if priority < 1 || priority > MaxDates {
		return ErrInvalidPriority
	}
	if err := rules.Check(day); err != nil {
		return err
	}
	ds := f.dates()
	if p := f.Priority(day); p != 0 {
		*ds[p-1] = ""
	}
	*ds[priority-1] = day
	return nil
}

// ToggleDate removes day if it is already chosen, otherwise fills the first
// empty priority. It returns the priority day now holds, or 0 if removed.
func (f *Form) ToggleDate(day string, rules DateRules) (int, error) {
	if p := f.Priority(day); p != 0 {
		f.RemoveDate(p)
		return 0, nil
	}
	if err := rules.Check(day); err != nil {
		return 0, err
	}
	for i, d := range f.dates() {
		if *d == "" {
			*d = day
			return i + 1, nil
		}
	}
	return 0, ErrDatesFull
}

// RemoveDate clears priority and shifts lower priorities up.
func (f *Form) RemoveDate(priority int) error {
	if priority < 1 || priority > MaxDates {
		return ErrInvalidPriority
	}
	ds := f.dates()
	for i := priority - 1; i < MaxDates-1; i++ {
		*ds[i] = *ds[i+1]
	}
	*ds[MaxDates-1] = ""
	return nil
}
