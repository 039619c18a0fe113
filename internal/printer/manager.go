package printer

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	pkgerrors "github.com/aruvi/kot-gateway/pkg/errors"
	"github.com/aruvi/kot-gateway/pkg/logger"
)

// State is the printer session lifecycle.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitialized   State = "initialized"
	StateDisconnected  State = "disconnected"
	StateConnected     State = "connected"
	StatePrinting      State = "printing"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultWriteTimeout = 10 * time.Second

	diagnosticTicket = "<CB>TEST PRINT</CB>\n<C>Printer Connected Successfully!</C>\n\n"
)

// Dialer opens TCP connections; *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// EndpointSource yields the currently configured printer endpoint. It is
// consulted on every print so configuration edits take effect immediately.
type EndpointSource interface {
	Endpoint(ctx context.Context) (Endpoint, error)
}

// Observer receives print metrics.
type Observer interface {
	ObservePrint(outcome string, elapsed time.Duration)
	SetConnected(connected bool)
}

// Options tune the manager. Zero values fall back to defaults.
type Options struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Dialer       Dialer
	Encoder      *Encoder
	Observer     Observer
	Logger       *logger.Logger
	// Diagnostic renders the ticket sent by Test.
	Diagnostic func() string
	Now        func() time.Time
}

// Status is a point-in-time view of the session.
type Status struct {
	State       State     `json:"state"`
	Endpoint    Endpoint  `json:"endpoint"`
	LastError   string    `json:"lastError,omitempty"`
	LastPrintAt time.Time `json:"lastPrintAt,omitempty"`
}

// Manager owns the single connection to the kitchen printer. Prints are
// serialised: a second Send waits until the first finishes. Failures are
// reported, never retried.
type Manager struct {
	source       EndpointSource
	dialer       Dialer
	encoder      *Encoder
	observer     Observer
	logg         *logger.Logger
	diagnostic   func() string
	now          func() time.Time
	dialTimeout  time.Duration
	writeTimeout time.Duration

	mu   sync.Mutex
	conn net.Conn

	statusMu sync.RWMutex
	status   Status
}

// NewManager builds a manager reading its endpoint from source.
func NewManager(source EndpointSource, opts Options) (*Manager, error) {
	if source == nil {
		return nil, fmt.Errorf("endpoint source required")
	}
	m := &Manager{
		source:       source,
		dialer:       opts.Dialer,
		encoder:      opts.Encoder,
		observer:     opts.Observer,
		logg:         opts.Logger,
		diagnostic:   opts.Diagnostic,
		now:          opts.Now,
		dialTimeout:  opts.DialTimeout,
		writeTimeout: opts.WriteTimeout,
		status:       Status{State: StateUninitialized},
	}
	if m.dialer == nil {
		m.dialer = &net.Dialer{}
	}
	if m.encoder == nil {
		m.encoder = NewEncoder(true)
	}
	if m.logg == nil {
		m.logg = logger.Nop()
	}
	if m.diagnostic == nil {
		m.diagnostic = func() string { return diagnosticTicket }
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.dialTimeout <= 0 {
		m.dialTimeout = defaultDialTimeout
	}
	if m.writeTimeout <= 0 {
		m.writeTimeout = defaultWriteTimeout
	}
	return m, nil
}

// Initialize performs one-time setup. Problems are logged and never fatal;
// the session always ends up Disconnected and ready to connect lazily.
func (m *Manager) Initialize(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initLocked(ctx)
}

// Connect dials ep and keeps the connection for later prints.
func (m *Manager) Connect(ctx context.Context, ep Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initLocked(ctx)
	return m.connectLocked(ctx, ep.Normalize())
}

// Send transmits one ticket. It reconnects when the session is down or the
// configured endpoint changed since the last connect.
func (m *Manager) Send(ctx context.Context, ticket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.now()
	err := m.sendLocked(ctx, ticket)
	m.observe(err, start)
	return err
}

// Test prints the diagnostic ticket on a short-lived connection to ep. The
// main session is closed first when it holds the same printer, since most
// printers accept a single client at a time.
func (m *Manager) Test(ctx context.Context, ep Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initLocked(ctx)

	ep = ep.Normalize()
	if err := checkEndpoint(ep); err != nil {
		return err
	}
	ctx = m.logCtx(ctx, ep)

	if m.conn != nil && m.Status().Endpoint == ep {
		m.closeLocked()
	}

	conn, err := m.dial(ctx, ep)
	if err != nil {
		m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "printer.test.connect_failed")
		return connectError(err, ep)
	}
	defer func() { _ = conn.Close() }()

	if err := m.write(ctx, conn, m.diagnostic()); err != nil {
		m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "printer.test.send_failed")
		return sendError(err, ep)
	}
	m.logg.Info(ctx, "printer.test.ok")
	return nil
}

// Invalidate drops the current connection so the next print reconnects.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.closeLocked()
	}
}

// Close releases the connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	m.setState(StateDisconnected, "")
	return err
}

// Status returns the current session state without waiting for prints.
func (m *Manager) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return m.Status().State
}

func (m *Manager) initLocked(ctx context.Context) {
	if m.Status().State != StateUninitialized {
		return
	}
	m.setState(StateInitialized, "")

	ep, err := m.source.Endpoint(ctx)
	switch {
	case err != nil:
		m.logg.Error(ctx, "printer.init.failed", err)
	case !ep.Configured():
		m.logg.Warn(ctx, "printer.init.unconfigured")
	default:
		m.logg.Info(m.logCtx(ctx, ep.Normalize()), "printer.init.ok")
	}
	m.setState(StateDisconnected, "")
}

func (m *Manager) sendLocked(ctx context.Context, ticket string) error {
	m.initLocked(ctx)

	ep, err := m.source.Endpoint(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read printer settings")
	}
	ep = ep.Normalize()
	if err := checkEndpoint(ep); err != nil {
		return err
	}
	ctx = m.logCtx(ctx, ep)

	status := m.Status()
	if m.conn != nil && status.Endpoint != ep {
		m.logg.Info(m.logg.WithField(ctx, "previous", status.Endpoint.String()), "printer.endpoint.changed")
		m.closeLocked()
	}
	if m.conn == nil {
		if err := m.connectLocked(ctx, ep); err != nil {
			return err
		}
	}

	m.setState(StatePrinting, "")
	if err := m.write(ctx, m.conn, ticket); err != nil {
		m.closeLocked()
		m.setState(StateDisconnected, err.Error())
		m.logg.Error(ctx, "printer.send.failed", err)
		return sendError(err, ep)
	}

	m.statusMu.Lock()
	m.status.State = StateConnected
	m.status.LastError = ""
	m.status.LastPrintAt = m.now()
	m.statusMu.Unlock()
	m.logg.Info(ctx, "printer.send.ok")
	return nil
}

func (m *Manager) connectLocked(ctx context.Context, ep Endpoint) error {
	if err := checkEndpoint(ep); err != nil {
		return err
	}
	ctx = m.logCtx(ctx, ep)
	if m.conn != nil {
		m.closeLocked()
	}

	conn, err := m.dial(ctx, ep)
	if err != nil {
		m.setState(StateDisconnected, err.Error())
		m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "printer.connect.failed")
		return connectError(err, ep)
	}

	m.conn = conn
	m.statusMu.Lock()
	m.status.State = StateConnected
	m.status.Endpoint = ep
	m.status.LastError = ""
	m.statusMu.Unlock()
	if m.observer != nil {
		m.observer.SetConnected(true)
	}
	m.logg.Info(ctx, "printer.connect.ok")
	return nil
}

func (m *Manager) dial(ctx context.Context, ep Endpoint) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.dialTimeout)
	defer cancel()
	return m.dialer.DialContext(dialCtx, "tcp", ep.Address())
}

func (m *Manager) write(ctx context.Context, conn net.Conn, ticket string) error {
	deadline := m.now().Add(m.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	defer func() { _ = conn.SetWriteDeadline(time.Time{}) }()

	payload := m.encoder.Encode(ticket)
	n, err := conn.Write(payload)
	if err != nil {
		return err
	}
	if n != len(payload) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(payload))
	}
	return nil
}

func (m *Manager) closeLocked() {
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.setState(StateDisconnected, "")
	if m.observer != nil {
		m.observer.SetConnected(false)
	}
}

func (m *Manager) setState(state State, lastErr string) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	m.status.State = state
	if lastErr != "" {
		m.status.LastError = lastErr
	}
}

func (m *Manager) observe(err error, start time.Time) {
	if m.observer == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		switch pkgerrors.As(err).Code() {
		case pkgerrors.CodePrinterNotConfigured:
			outcome = "not_configured"
		case pkgerrors.CodePrinterConnect:
			outcome = "connect_failed"
		case pkgerrors.CodePrinterSend:
			outcome = "send_failed"
		default:
			outcome = "error"
		}
	}
	m.observer.ObservePrint(outcome, m.now().Sub(start))
}

func (m *Manager) logCtx(ctx context.Context, ep Endpoint) context.Context {
	return m.logg.WithFields(ctx, map[string]any{"printer_host": ep.Host, "printer_port": ep.Port})
}

func checkEndpoint(ep Endpoint) error {
	if !ep.Configured() {
		return pkgerrors.New(pkgerrors.CodePrinterNotConfigured, "printer host is not set")
	}
	if !ep.ValidPort() {
		return pkgerrors.New(pkgerrors.CodeValidation, "printer port must be between 1 and 65535").
			WithDetails(map[string]any{"port": ep.Port})
	}
	return nil
}

func connectError(err error, ep Endpoint) error {
	return pkgerrors.Wrap(pkgerrors.CodePrinterConnect, err, "could not connect to "+ep.Address()).
		WithDetails(map[string]any{"host": ep.Host, "port": ep.Port})
}

func sendError(err error, ep Endpoint) error {
	return pkgerrors.Wrap(pkgerrors.CodePrinterSend, err, "could not send ticket to "+ep.Address()).
		WithDetails(map[string]any{"host": ep.Host, "port": ep.Port})
}
