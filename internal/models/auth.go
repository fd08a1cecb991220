package models

import "github.com/golang-jwt/jwt/v5"

// AdminClaims is the JWT payload issued to catalog admins.
type AdminClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GitHubUser is the subset of the GitHub user profile the admin flow needs.
type GitHubUser struct {
	Login string `json:"login"`
	Name  string `json:"name"`
}
