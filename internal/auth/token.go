package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/berfenger/homeconnect2mqtt/internal/config"
	"github.com/berfenger/homeconnect2mqtt/pkg/homeconnect"

	"go.uber.org/zap"
)

// Access tokens are refreshed this long before their reported expiry.
const expiryMargin = 60 * time.Second

// RefreshTokenSource implements homeconnect.TokenSource with the OAuth2
// refresh_token grant. The access token is cached until close to expiry.
// Safe for concurrent use.
type RefreshTokenSource struct {
	mu           sync.Mutex
	http         *http.Client
	tokenURL     string
	clientId     string
	clientSecret string
	refreshToken string
	accessToken  string
	expiresAt    time.Time
	now          func() time.Time
	logger       *zap.Logger
}

func NewRefreshTokenSource(cfg config.HomeConnectConfig, logger *zap.Logger) *RefreshTokenSource {
	return &RefreshTokenSource{
		http:         &http.Client{Timeout: 30 * time.Second},
		tokenURL:     cfg.TokenURL,
		clientId:     cfg.ClientId,
		clientSecret: cfg.ClientSecret,
		refreshToken: cfg.RefreshToken,
		now:          time.Now,
		logger:       logger,
	}
}

func (s *RefreshTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accessToken != "" && s.now().Add(expiryMargin).Before(s.expiresAt) {
		return s.accessToken, nil
	}
	return s.refresh(ctx)
}

func (s *RefreshTokenSource) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh(ctx)
}

func (s *RefreshTokenSource) refresh(ctx context.Context) (string, error) {
	s.accessToken = ""

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", s.refreshToken)
	form.Set("client_id", s.clientId)
	if s.clientSecret != "" {
		form.Set("client_secret", s.clientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		s.logger.Error("token refresh rejected", zap.Int("status", resp.StatusCode))
		return "", fmt.Errorf("%w: token endpoint returned %d", homeconnect.ErrUnauthorized, resp.StatusCode)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("%w: token endpoint returned no access token", homeconnect.ErrUnauthorized)
	}

	s.accessToken = payload.AccessToken
	s.expiresAt = s.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	// some providers rotate the refresh token on every grant
	if payload.RefreshToken != "" {
		s.refreshToken = payload.RefreshToken
	}
	s.logger.Debug("access token refreshed", zap.Time("expires_at", s.expiresAt))
	return s.accessToken, nil
}
