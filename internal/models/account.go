package models

import "time"

// AccountStatusActive is the lifecycle status assigned to newly added accounts.
const AccountStatusActive = "active"

// Account is one registered IMAP account. The Password field holds the
// AES-GCM-encrypted, base64-encoded credential as persisted in the registry
// file; API handlers must blank it before serializing an account into a
// response.
type Account struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Host      string     `json:"host,omitempty"`
	Port      int        `json:"port"`
	Username  string     `json:"username"`
	Password  string     `json:"password,omitempty"`
	TLS       bool       `json:"tls"`
	CreatedAt time.Time  `json:"createdAt"`
	LastSync  *time.Time `json:"lastSync"`
	Status    string     `json:"status"`
}

// Sanitized returns a copy of the account safe to send to clients.
func (a Account) Sanitized() Account {
	a.Password = ""
	return a
}
