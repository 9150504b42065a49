package session

import "encoding/json"

// RoleAdmin is the role granted to store administrators.
const RoleAdmin = "ADMIN"

// User is the identity record returned by the backend on login, registration and refresh.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// IsAdmin reports whether the user may use admin endpoints.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Credential is an immutable snapshot of the session.
type Credential struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Empty reports whether the credential carries no access token.
func (c Credential) Empty() bool {
	return c.AccessToken == ""
}

// clone returns a deep copy so callers cannot mutate the stored user.
func (c Credential) clone() Credential {
	if c.User != nil {
		u := *c.User
		c.User = &u
	}
	return c
}

func decodeCredential(data []byte) (Credential, error) {
	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return Credential{}, err
	}
	return c, nil
}
