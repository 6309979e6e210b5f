package core

import (
	"errors"
	"strings"
	"time"
)

const (
	ProviderLocal  AuthProvider = "local"
	ProviderGoogle AuthProvider = "google"
	ProviderGithub AuthProvider = "github"
)

type (
	// AuthProvider identifies how an account was originally created.
	AuthProvider string

	// LinkedAccount is a third-party identity attached to a local account.
	LinkedAccount struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// User is the authenticated identity record. Exactly one instance
	// exists while a session is active; it is replaced wholesale by every
	// identity-mutating operation.
	User struct {
		ID           string         `json:"id"`
		Username     string         `json:"username"`
		Email        string         `json:"email"`
		AuthProvider AuthProvider   `json:"authType"`
		Google       *LinkedAccount `json:"google,omitempty"`
		Github       *LinkedAccount `json:"github,omitempty"`
	}

	// Category groups expenses. Names are unique per user, not globally.
	Category struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	// Expense references its category by name, not id.
	Expense struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Amount   Money  `json:"amount"`
		SpentAt  Date   `json:"spentAt"`
		Note     string `json:"note,omitempty"`
		Category string `json:"category"`
	}
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrFutureDate      = errors.New("date cannot be in the future")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyTitle      = errors.New("empty title")
	ErrEmptyCategory   = errors.New("empty category")
	ErrInvalidProvider = errors.New("invalid auth provider")
)

func (p AuthProvider) IsValid() bool {
	switch p {
	case ProviderLocal, ProviderGoogle, ProviderGithub:
		return true
	default:
		return false
	}
}

// Linked reports whether the given third-party provider is attached.
func (u User) Linked(p AuthProvider) bool {
	switch p {
	case ProviderGoogle:
		return u.Google != nil
	case ProviderGithub:
		return u.Github != nil
	default:
		return false
	}
}

func (e Expense) Validate() error {
	if len(strings.TrimSpace(e.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(e.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if err := e.SpentAt.Validate(); err != nil {
		return err
	}
	if e.SpentAt.After(Today()) {
		return ErrFutureDate
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// Date is a calendar day; the time-of-day component is always midnight UTC.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current calendar day in UTC.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

// ParseDate parses a date in YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// After reports whether d is a later calendar day than other.
func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	// Some server versions send full RFC3339 timestamps.
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*d = NewDate(t.UTC().Year(), int(t.UTC().Month()), t.UTC().Day())
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
