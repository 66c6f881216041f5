package types

// AuthUser is the identity attached to an authenticated request.
type AuthUser struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// TokenPair is a freshly issued access/refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type SignUpInput struct {
	Firstname string
	Lastname  string
	Email     string
	Phone     string
	Password  string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	Firstname    string `json:"firstname"`
	Lastname     string `json:"lastname"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
