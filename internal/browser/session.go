// Package browser implements the Session/Window layer: the Browser
// controller that owns a farmer.Pump and translates protocol events into
// per-window state, plus the blocking verbs (new_window, wait_loaded,
// redraw, ...) built on top of it.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/netsurf-tools/monkeyctl/internal/farmer"
	"github.com/netsurf-tools/monkeyctl/internal/transport"
)

// ErrWindowDied is returned by a blocking Window operation that was still
// pending when its window (or the whole child) died.
var ErrWindowDied = farmer.ErrChildDied

// ErrSleepElapsed is returned by PumpUntilIdle when its duration elapses
// without the child dying; callers that are implementing a pure sleep (no
// predicate) treat this as success rather than failure.
var ErrSleepElapsed = errors.New("browser: sleep duration elapsed")

// DefaultQuitTimeout is quit_and_wait's default wait for the child to exit.
const DefaultQuitTimeout = 30 * time.Second

// Session owns one browser child end to end: its Transport, its Pump, and
// every Window/LoginWindow/CertWindow the child has announced.
type Session struct {
	pump      *farmer.Pump
	transport *transport.Transport
	log       *slog.Logger

	windows           map[string]*Window
	currentDrawTarget *Window
	loginWindows      map[string]*LoginWindow
	certWindows       map[string]*CertWindow

	authDB []AuthRecord
	certDB []CertRecord

	onLoginReady func(*LoginWindow)
	onCertReady  func(*CertWindow)

	started bool
	stopped bool

	dropped []error
}

// DroppedErrors returns, in order, the sentinel errors recorded for inbound
// lines that were logged and discarded rather than delivered to a window —
// an unknown window id or a malformed protocol line. It exists so callers
// and tests can assert a drop happened without scraping log output.
func (s *Session) DroppedErrors() []error {
	out := make([]error, len(s.dropped))
	copy(out, s.dropped)
	return out
}

func (s *Session) recordDropped(err error) {
	s.dropped = append(s.dropped, err)
}

// NewSession spawns a browser child per opts and wires the full protocol
// dispatch table before returning; the Session is considered started as
// soon as the constructor returns successfully.
func NewSession(ctx context.Context, opts transport.LaunchOptions, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}
	t, err := transport.Spawn(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("browser: spawn child: %w", err)
	}

	s := &Session{
		transport:    t,
		log:          log,
		windows:      make(map[string]*Window),
		loginWindows: make(map[string]*LoginWindow),
		certWindows:  make(map[string]*CertWindow),
		started:      true,
	}
	s.pump = farmer.New(t, log)
	s.onLoginReady = s.defaultOnLoginReady
	s.onCertReady = s.defaultOnCertReady
	s.registerHandlers()
	return s, nil
}

// SetLoginReadyHandler overrides the default auth_db-driven policy.
func (s *Session) SetLoginReadyHandler(h func(*LoginWindow)) { s.onLoginReady = h }

// SetCertReadyHandler overrides the default cert_db-driven policy.
func (s *Session) SetCertReadyHandler(h func(*CertWindow)) { s.onCertReady = h }

// Windows returns a snapshot of the currently-known window ids.
func (s *Session) Windows() map[string]*Window {
	out := make(map[string]*Window, len(s.windows))
	for k, v := range s.windows {
		out[k] = v
	}
	return out
}

// Window looks up a window by id.
func (s *Session) Window(id string) (*Window, bool) {
	w, ok := s.windows[id]
	return w, ok
}

func (s *Session) registerHandlers() {
	r := s.pump.Router()
	r.Register("WINDOW", s.handleWindow)
	r.Register("PLOT", s.handlePlot)
	r.Register("LOGIN", s.handleLogin)
	r.Register("SSLCERT", s.handleSSLCert)
	r.Register("LOG", s.handleLog)
	r.Register("PAGE_INFO_STATE", s.handlePageInfoState)
	r.Register("GENERIC", s.handleGeneric)
	r.Register("QUIT", s.handleQuit)
}

// handleWindow sub-dispatches on the second token. NEW is handled here
// (it creates the Window); every other sub-action is handled by the
// addressed Window's applyEvent.
func (s *Session) handleWindow(tokens []string) {
	if len(tokens) == 0 {
		return
	}
	subtag := tokens[0]
	if subtag == "NEW" {
		s.handleWindowNew(tokens[1:])
		return
	}
	if len(tokens) < 2 {
		s.log.Warn("monkeyctl: malformed WINDOW line", "subtag", subtag)
		s.recordDropped(ErrProtocol)
		return
	}
	id := tokens[1]
	w, ok := s.windows[id]
	if !ok {
		s.log.Warn("monkeyctl: event for unknown window", "window", id, "subtag", subtag)
		s.recordDropped(ErrUnknownWindow)
		return
	}
	w.applyEvent(subtag, tokens[2:])
}

// handleWindowNew parses "WINDOW NEW <id> for <coreid> existing <otherid>
// newtab <TRUE|FALSE> clone <TRUE|FALSE>" and registers the new Window.
func (s *Session) handleWindowNew(args []string) {
	if len(args) == 0 {
		s.log.Warn("monkeyctl: WINDOW NEW with no id")
		return
	}
	id := args[0]
	fields := farmer.ParseFields(args[1:])

	w := newWindow(s, id)
	w.CoreID = fields["for"]
	w.Existing = fields["existing"]
	w.IsNewTab = fields["newtab"] == "TRUE"
	w.IsClone = fields["clone"] == "TRUE"
	s.windows[id] = w
}

func (s *Session) handlePlot(tokens []string) {
	if len(tokens) == 0 || s.currentDrawTarget == nil {
		return
	}
	s.currentDrawTarget.Plotted = append(s.currentDrawTarget.Plotted, PlotRecord{
		Tag:  tokens[0],
		Args: tokens[1:],
	})
}

// handleLog applies "LOG <winid> source <s> foldable <f> level <l> message
// <m...>" to the addressed window. The leading id follows the sibling
// per-window tag PAGE_INFO_STATE's convention, and is required for
// window-scoped clear_log/wait_for_log to make any sense.
func (s *Session) handleLog(tokens []string) {
	if len(tokens) < 1 {
		s.log.Warn("monkeyctl: malformed LOG line")
		s.recordDropped(ErrProtocol)
		return
	}
	id := tokens[0]
	w, ok := s.windows[id]
	if !ok {
		s.log.Warn("monkeyctl: log for unknown window", "window", id)
		s.recordDropped(ErrUnknownWindow)
		return
	}
	w.appendLog(farmer.ParseFields(tokens[1:]))
}

func (s *Session) handlePageInfoState(tokens []string) {
	if len(tokens) < 1 {
		return
	}
	id := tokens[0]
	w, ok := s.windows[id]
	if !ok {
		return
	}
	fields := farmer.ParseFields(tokens[1:])
	w.PageInfoState = fields["state"]
}

func (s *Session) handleGeneric(tokens []string) {
	s.log.Debug("monkeyctl: GENERIC event", "args", tokens)
}

func (s *Session) handleQuit(tokens []string) {
	s.stopped = true
}

func (s *Session) handleLogin(tokens []string) {
	if len(tokens) == 0 {
		return
	}
	if tokens[0] != "READY" {
		return
	}
	if len(tokens) < 2 {
		return
	}
	id := tokens[1]
	fields := farmer.ParseFields(tokens[2:])
	lw := &LoginWindow{
		session:  s,
		ID:       id,
		URL:      fields["url"],
		Realm:    fields["realm"],
		Username: fields["username"],
	}
	s.loginWindows[id] = lw
	s.onLoginReady(lw)
}

func (s *Session) handleSSLCert(tokens []string) {
	if len(tokens) == 0 {
		return
	}
	if tokens[0] != "READY" {
		return
	}
	if len(tokens) < 2 {
		return
	}
	id := tokens[1]
	fields := farmer.ParseFields(tokens[2:])
	cw := &CertWindow{
		session: s,
		ID:      id,
		URL:     fields["url"],
	}
	s.certWindows[id] = cw
	s.onCertReady(cw)
}

// defaultOnLoginReady implements the default auth policy: match against
// auth_db, or cancel the prompt if nothing matches.
func (s *Session) defaultOnLoginReady(lw *LoginWindow) {
	cand, ok := matchAuth(s.authDB, lw.URL, lw.Realm, lw.Username)
	if !ok {
		lw.Destroy()
		return
	}
	lw.SendUsername(cand.Username)
	lw.SendPassword(cand.Password)
	lw.Go()
}

// defaultOnCertReady is the certificate-prompt analogue of defaultOnLoginReady.
func (s *Session) defaultOnCertReady(cw *CertWindow) {
	if _, ok := matchCert(s.certDB, cw.URL); ok {
		cw.Go()
		return
	}
	cw.Destroy()
}

// AddAuth appends an entry to auth_db.
func (s *Session) AddAuth(rec AuthRecord) { s.authDB = append(s.authDB, rec) }

// RemoveAuth removes the first auth_db entry equal to rec.
func (s *Session) RemoveAuth(rec AuthRecord) {
	for i, c := range s.authDB {
		if c == rec {
			s.authDB = append(s.authDB[:i], s.authDB[i+1:]...)
			return
		}
	}
}

// AddCert appends an entry to cert_db.
func (s *Session) AddCert(rec CertRecord) { s.certDB = append(s.certDB, rec) }

// RemoveCert removes the first cert_db entry equal to rec.
func (s *Session) RemoveCert(rec CertRecord) {
	for i, c := range s.certDB {
		if c == rec {
			s.certDB = append(s.certDB[:i], s.certDB[i+1:]...)
			return
		}
	}
}

// NewWindow sends WINDOW NEW, optionally seeded with a URL, and pumps
// until exactly one new entry appears in windows.
func (s *Session) NewWindow(url string, timeout time.Duration) (*Window, error) {
	before := make(map[string]bool, len(s.windows))
	for id := range s.windows {
		before[id] = true
	}

	line := "WINDOW NEW"
	if url != "" {
		line += " " + url
	}
	if err := s.pump.Send(line); err != nil {
		return nil, err
	}

	var created *Window
	err := s.pump.PumpUntil(func() bool {
		for id, w := range s.windows {
			if !before[id] {
				created = w
				return true
			}
		}
		return false
	}, timeout)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// PassOptions sends OPTIONS with no response expected.
func (s *Session) PassOptions(opts ...string) error {
	line := "OPTIONS"
	for _, o := range opts {
		line += " " + o
	}
	return s.pump.Send(line)
}

// Quit sends QUIT without waiting for the child to exit.
func (s *Session) Quit() error {
	return s.pump.Send("QUIT")
}

// QuitAndWait sends QUIT and pumps until the child exits, then reaps it.
// It returns true on a clean exit, an error on crash or timeout. This is
// the release point for the Transport and the child process handle.
func (s *Session) QuitAndWait(timeout time.Duration) (bool, error) {
	if err := s.Quit(); err != nil {
		return false, err
	}
	err := s.pump.PumpUntil(func() bool { return !s.pump.Alive() }, timeout)
	closeErr := s.transport.Close(5 * time.Second)
	s.stopped = true
	if err != nil && err != farmer.ErrChildDied {
		return false, err
	}
	if closeErr != nil {
		return false, closeErr
	}
	return true, nil
}

// PumpUntilIdle runs the event loop for up to d, delivering any inbound
// events and running any due timers, then returns — used by the plan
// runner's sleep and condition-polling steps to keep the pump alive while
// waiting. Returns ErrSleepElapsed, not an error, when d elapses with the
// child still alive.
func (s *Session) PumpUntilIdle(d time.Duration) error {
	err := s.pump.PumpUntil(func() bool { return false }, d)
	if err == nil {
		return nil
	}
	if errors.Is(err, farmer.ErrTimeout) {
		return ErrSleepElapsed
	}
	return err
}

// Stopped reports whether the session has reached its terminal state,
// either via a clean QuitAndWait or an observed child death.
func (s *Session) Stopped() bool {
	return s.stopped || !s.pump.Alive()
}
