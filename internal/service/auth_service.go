package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/metakgp/iqps-backend/internal/dto"
	"github.com/metakgp/iqps-backend/internal/models"
	appErrors "github.com/metakgp/iqps-backend/pkg/errors"
)

const defaultGitHubAPI = "https://api.github.com"

// AuthConfig defines the GitHub OAuth app, the admin team and token signing.
type AuthConfig struct {
	TokenSecret    string
	TokenExpiry    time.Duration
	ClientID       string
	ClientSecret   string
	OrgName        string
	TeamSlug       string
	OrgAdminToken  string
	AdminUsernames []string
	MembershipTTL  time.Duration
	// Endpoint and APIBaseURL default to github.com.
	Endpoint   oauth2.Endpoint
	APIBaseURL string
}

type teamMembership struct {
	State string `json:"state"`
}

// AuthService turns a GitHub OAuth code into an admin token. Admins are the listed
// usernames plus active members of the configured organisation team.
type AuthService struct {
	config    AuthConfig
	oauth     *oauth2.Config
	client    *http.Client
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(cfg AuthConfig, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.TokenExpiry <= 0 {
		cfg.TokenExpiry = 7 * 24 * time.Hour
	}
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = github.Endpoint
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultGitHubAPI
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	return &AuthService{
		config: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     cfg.Endpoint,
			Scopes:       []string{"read:user"},
		},
		client:    &http.Client{Timeout: 10 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// Configured reports whether the OAuth app credentials are present.
func (s *AuthService) Configured() bool {
	return s.config.ClientID != "" && s.config.ClientSecret != "" && s.config.TokenSecret != ""
}

// Authenticate exchanges the OAuth code, identifies the GitHub user and issues a
// token when the user is an admin.
func (s *AuthService) Authenticate(ctx context.Context, req dto.OAuthRequest) (resp *dto.TokenResponse, err error) {
	ctx, span := tracer.Start(ctx, "Auth.Authenticate")
	defer func() { endSpan(span, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "oauth code is required")
	}
	if !s.Configured() {
		return nil, appErrors.Clone(appErrors.ErrNotConfigured, "github oauth is not configured")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	token, err := s.oauth.Exchange(ctx, req.Code)
	if err != nil {
		s.logger.Warn("github code exchange failed", zap.Error(err))
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, appErrors.ErrUpstream.Message)
		}
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid oauth code")
	}

	var user models.GitHubUser
	if err := s.getJSON(ctx, s.oauth.Client(ctx, token), "/user", &user); err != nil {
		return nil, err
	}
	if user.Login == "" {
		return nil, appErrors.Clone(appErrors.ErrUpstream, "github returned no username")
	}

	admin, err := s.isAdmin(ctx, user.Login)
	if err != nil {
		return nil, err
	}
	if !admin {
		s.logger.Info("github user is not an admin", zap.String("username", user.Login))
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "user is not an admin")
	}

	signed, err := s.IssueToken(user.Login)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	s.logger.Info("admin authenticated", zap.String("username", user.Login))
	return &dto.TokenResponse{Token: signed, ExpiresIn: int64(s.config.TokenExpiry.Seconds())}, nil
}

func (s *AuthService) isAdmin(ctx context.Context, username string) (bool, error) {
	for _, admin := range s.config.AdminUsernames {
		if strings.EqualFold(admin, username) {
			return true, nil
		}
	}
	if s.config.OrgName == "" || s.config.TeamSlug == "" || s.config.OrgAdminToken == "" {
		return false, nil
	}

	key := fmt.Sprintf("github:membership:%s:%s:%s", s.config.OrgName, s.config.TeamSlug, strings.ToLower(username))
	membership, err := Remember(ctx, s.cache, key, s.config.MembershipTTL, func(ctx context.Context) (teamMembership, error) {
		return s.fetchMembership(ctx, username)
	})
	if err != nil {
		return false, err
	}
	return membership.State == "active", nil
}

func (s *AuthService) fetchMembership(ctx context.Context, username string) (teamMembership, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: s.config.OrgAdminToken}))
	endpoint := fmt.Sprintf("/orgs/%s/teams/%s/memberships/%s",
		url.PathEscape(s.config.OrgName), url.PathEscape(s.config.TeamSlug), url.PathEscape(username))

	var membership teamMembership
	err := s.getJSON(ctx, client, endpoint, &membership)
	var appErr *appErrors.Error
	if errors.As(err, &appErr) && appErr.Status == http.StatusNotFound {
		return teamMembership{State: "none"}, nil
	}
	return membership, err
}

func (s *AuthService) getJSON(ctx context.Context, client *http.Client, endpoint string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+endpoint, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build github request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "iqps-backend")

	resp, err := client.Do(req)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, appErrors.ErrUpstream.Message)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return appErrors.Clone(appErrors.ErrNotFound, "github resource not found")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		s.logger.Error("github api error", zap.String("endpoint", endpoint), zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
		return appErrors.Clone(appErrors.ErrUpstream, fmt.Sprintf("github responded with status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to decode github response")
	}
	return nil
}

// IssueToken signs an admin token for username.
func (s *AuthService) IssueToken(username string) (string, error) {
	issuedAt := time.Now().UTC()
	claims := &models.AdminClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.TokenSecret))
}

// ValidateToken parses and validates an admin token.
func (s *AuthService) ValidateToken(tokenString string) (*models.AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.TokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	claims, ok := token.Claims.(*models.AdminClaims)
	if !ok || !token.Valid || claims.Username == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}
