package domain

type AccountID string

type Account struct {
	ID   AccountID
	Name string
	// LoginName is the platform account name used for logon and for the
	// credential cache directory.
	LoginName string
	Auth      Auth
}
