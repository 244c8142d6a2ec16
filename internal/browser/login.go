package browser

import "fmt"

// LoginWindow is a child-initiated modal credential prompt.
type LoginWindow struct {
	session *Session

	ID       string
	URL      string
	Realm    string
	Username string
}

// SendUsername sends LOGIN USERNAME.
func (lw *LoginWindow) SendUsername(username string) error {
	return lw.session.pump.Send(fmt.Sprintf("LOGIN USERNAME %s %s", lw.ID, username))
}

// SendPassword sends LOGIN PASSWORD.
func (lw *LoginWindow) SendPassword(password string) error {
	return lw.session.pump.Send(fmt.Sprintf("LOGIN PASSWORD %s %s", lw.ID, password))
}

// Go sends LOGIN GO and removes the entry from the session's tracking map.
func (lw *LoginWindow) Go() error {
	delete(lw.session.loginWindows, lw.ID)
	return lw.session.pump.Send(fmt.Sprintf("LOGIN GO %s", lw.ID))
}

// Destroy sends LOGIN DESTROY and removes the entry from the session's
// tracking map.
func (lw *LoginWindow) Destroy() error {
	delete(lw.session.loginWindows, lw.ID)
	return lw.session.pump.Send(fmt.Sprintf("LOGIN DESTROY %s", lw.ID))
}

// CertWindow is a child-initiated modal certificate-decision prompt.
type CertWindow struct {
	session *Session

	ID  string
	URL string
}

// Go sends SSLCERT GO and removes the entry from the session's tracking
// map.
func (cw *CertWindow) Go() error {
	delete(cw.session.certWindows, cw.ID)
	return cw.session.pump.Send(fmt.Sprintf("SSLCERT GO %s", cw.ID))
}

// Destroy sends SSLCERT DESTROY and removes the entry from the session's
// tracking map.
func (cw *CertWindow) Destroy() error {
	delete(cw.session.certWindows, cw.ID)
	return cw.session.pump.Send(fmt.Sprintf("SSLCERT DESTROY %s", cw.ID))
}
