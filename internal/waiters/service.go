// Package waiters resolves waiter identities for handset sign-in.
package waiters

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	pkgerrors "github.com/aruvi/kot-gateway/pkg/errors"
	"github.com/aruvi/kot-gateway/pkg/logger"
)

const phoneDigits = 10

type getter interface {
	Get(ctx context.Context, operation, path string, out any) error
}

// Waiter is a staff member as known by the backend.
type Waiter struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Status string `json:"status,omitempty"`
}

// Active reports whether the account may sign in. An empty status counts as
// active.
func (w Waiter) Active() bool {
	return w.Status == "" || strings.EqualFold(w.Status, "active")
}

// Identity is what a handset keeps after sign-in.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Service looks waiters up in the remote directory.
type Service struct {
	client getter
	logg   *logger.Logger
}

func NewService(client getter, logg *logger.Logger) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("api client required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{client: client, logg: logg}, nil
}

// Login finds the waiter registered with phone.
func (s *Service) Login(ctx context.Context, phone string) (Identity, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return Identity{}, err
	}

	var list []Waiter
	if err := s.client.Get(ctx, "waiters.list", "waiters", &list); err != nil {
		return Identity{}, err
	}

	for _, w := range list {
		candidate, err := NormalizePhone(w.Phone)
		if err != nil || candidate != normalized {
			continue
		}
		if !w.Active() {
			return Identity{}, pkgerrors.New(pkgerrors.CodeStateConflict, "waiter account is inactive")
		}
		s.logg.Info(s.logg.WithWaiterID(ctx, w.ID), "waiter.login")
		return Identity{ID: w.ID, Name: strings.TrimSpace(w.Name)}, nil
	}
	return Identity{}, pkgerrors.New(pkgerrors.CodeNotFound, "no waiter is registered with this mobile number")
}

// NormalizePhone strips spaces, dashes and a +91 or leading 0 prefix, then
// requires exactly ten digits.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r == ' ' || r == '-' || r == '(' || r == ')':
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		case unicode.IsDigit(r) && r <= unicode.MaxASCII:
			b.WriteRune(r)
		default:
			return "", invalidPhone()
		}
	}
	digits := b.String()
	switch {
	case strings.HasPrefix(digits, "+91") && len(digits) == phoneDigits+3:
		digits = digits[3:]
	case strings.HasPrefix(digits, "0") && len(digits) == phoneDigits+1:
		digits = digits[1:]
	}
	if len(digits) != phoneDigits || strings.HasPrefix(digits, "+") {
		return "", invalidPhone()
	}
	return digits, nil
}

func invalidPhone() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "enter a valid 10 digit mobile number").
		WithDetails(map[string]any{"field": "phone"})
}
