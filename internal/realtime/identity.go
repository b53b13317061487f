package realtime

import "strings"

// Identity is a user record already verified by the identity service.
type Identity struct {
	UserID      string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// Valid reports whether the identity names a user.
func (i Identity) Valid() bool {
	return i.UserID != ""
}

// Name is the label shown to other room members: the display name, else the
// local part of the email, else the user id.
func (i Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	if local, _, ok := strings.Cut(i.Email, "@"); ok && local != "" {
		return local
	}
	if i.Email != "" {
		return i.Email
	}
	return i.UserID
}
