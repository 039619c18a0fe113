// Package settings persists the kitchen printer endpoint and serves it to
// the printer manager on every print.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aruvi/kot-gateway/internal/printer"
	pkgerrors "github.com/aruvi/kot-gateway/pkg/errors"
	"github.com/aruvi/kot-gateway/pkg/logger"
)

// Service reads and writes the printer endpoint, falling back to defaults
// for anything never saved.
type Service struct {
	store    Store
	defaults printer.Endpoint
	logg     *logger.Logger
	onChange []func()
}

// NewService builds the settings service. onChange hooks run after every
// successful save or reset.
func NewService(store Store, defaults printer.Endpoint, logg *logger.Logger, onChange ...func()) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("settings store required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{store: store, defaults: defaults.Normalize(), logg: logg, onChange: onChange}, nil
}

// OnChange registers a hook that runs after the endpoint changes.
func (s *Service) OnChange(fn func()) {
	if fn != nil {
		s.onChange = append(s.onChange, fn)
	}
}

// Defaults returns the endpoint used when nothing is stored.
func (s *Service) Defaults() printer.Endpoint {
	return s.defaults
}

// Endpoint returns the persisted printer endpoint.
func (s *Service) Endpoint(ctx context.Context) (printer.Endpoint, error) {
	values, err := s.store.Get(ctx, KeyPrinterHost, KeyPrinterPort)
	if err != nil {
		return printer.Endpoint{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read printer settings")
	}

	ep := s.defaults
	if host, ok := values[KeyPrinterHost]; ok {
		ep.Host = host
	}
	if raw, ok := values[KeyPrinterPort]; ok {
		port, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "value", raw), "settings.printer_port.invalid")
		} else {
			ep.Port = port
		}
	}
	return ep.Normalize(), nil
}

// Save validates and persists a new endpoint.
func (s *Service) Save(ctx context.Context, ep printer.Endpoint) (printer.Endpoint, error) {
	ep = ep.Normalize()
	if err := ValidateEndpoint(ep); err != nil {
		return printer.Endpoint{}, err
	}

	err := s.store.Put(ctx, map[string]string{
		KeyPrinterHost: ep.Host,
		KeyPrinterPort: strconv.Itoa(ep.Port),
	})
	if err != nil {
		return printer.Endpoint{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save printer settings")
	}

	s.logg.Info(s.logg.WithField(ctx, "endpoint", ep.String()), "settings.printer.saved")
	s.changed()
	return ep, nil
}

// Reset removes stored values so the defaults apply again.
func (s *Service) Reset(ctx context.Context) (printer.Endpoint, error) {
	if err := s.store.Delete(ctx, KeyPrinterHost, KeyPrinterPort); err != nil {
		return printer.Endpoint{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reset printer settings")
	}
	s.logg.Info(s.logg.WithField(ctx, "endpoint", s.defaults.String()), "settings.printer.reset")
	s.changed()
	return s.defaults, nil
}

func (s *Service) changed() {
	for _, fn := range s.onChange {
		fn()
	}
}

const hostRule = "max=253,hostname_rfc1123|ip"

var hostValidator = validator.New()

// ValidateEndpoint checks a host is an IP address or hostname and the port
// fits TCP.
func ValidateEndpoint(ep printer.Endpoint) error {
	if !ep.Configured() {
		return pkgerrors.New(pkgerrors.CodeValidation, "printer host is required").
			WithDetails(map[string]any{"field": "host"})
	}
	if err := hostValidator.Var(ep.Host, hostRule); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "printer host must be an IP address or hostname").
			WithDetails(map[string]any{"field": "host", "value": ep.Host})
	}
	if !ep.ValidPort() {
		return pkgerrors.New(pkgerrors.CodeValidation, "printer port must be between 1 and 65535").
			WithDetails(map[string]any{"field": "port", "value": ep.Port})
	}
	return nil
}
