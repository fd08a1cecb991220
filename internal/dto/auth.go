package dto

// OAuthRequest carries the GitHub authorization code returned to the dashboard.
type OAuthRequest struct {
	Code string `json:"code" validate:"required"`
}

// TokenResponse returns an issued admin token.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// ProfileResponse echoes the authenticated admin.
type ProfileResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}
