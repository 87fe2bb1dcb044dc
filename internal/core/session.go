package core

// SessionEventKind names a credential lifecycle transition.
type SessionEventKind string

const (
	SessionRegistered SessionEventKind = "registered"
	SessionLogin      SessionEventKind = "login"
	SessionLogout     SessionEventKind = "logout"
	SessionRenewed    SessionEventKind = "renewed"
	SessionExpired    SessionEventKind = "expired"
)

// IsValid reports whether k is a known event kind.
func (k SessionEventKind) IsValid() bool {
	switch k {
	case SessionRegistered, SessionLogin, SessionLogout, SessionRenewed, SessionExpired:
		return true
	default:
		return false
	}
}
