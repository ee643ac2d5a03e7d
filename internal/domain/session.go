package domain

type ConnectionState string

const (
	StateDisconnected   ConnectionState = "disconnected"
	StateAuthenticating ConnectionState = "authenticating"
	StateConnected      ConnectionState = "connected"
	StateReady          ConnectionState = "ready"
)

// Established reports whether a platform session exists, whether or not the
// post-login reconciliation has finished.
func (s ConnectionState) Established() bool {
	return s == StateConnected || s == StateReady
}

type PresenceState string

const PresenceOnline PresenceState = "online"

type LogOnDetails struct {
	AccountName   string
	Password      string
	TwoFactorCode string
	DataDir       string
}
