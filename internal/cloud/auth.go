package cloud

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	ScopeDrive  = "https://www.googleapis.com/auth/drive"
	ScopeSheets = "https://www.googleapis.com/auth/spreadsheets"

	defaultTokenURI = "https://oauth2.googleapis.com/token"
	tokenLifetime   = time.Hour
	refreshMargin   = time.Minute
)

// TokenSource supplies bearer tokens for Google API requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

type serviceAccountKey struct {
	Type         string `json:"type"`
	ClientEmail  string `json:"client_email"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	TokenURI     string `json:"token_uri"`
}

// ServiceAccount exchanges a signed JWT assertion for access tokens and
// caches them until shortly before expiry. One instance is shared by the
// Drive and Sheets clients of a run.
type ServiceAccount struct {
	email    string
	keyID    string
	key      *rsa.PrivateKey
	tokenURI string
	scopes   []string
	client   *http.Client
	now      func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewServiceAccount reads a service-account JSON key file.
func NewServiceAccount(keyPath string, client *http.Client, scopes ...string) (*ServiceAccount, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var k serviceAccountKey
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if k.ClientEmail == "" || k.PrivateKey == "" {
		return nil, fmt.Errorf("credentials %s: client_email and private_key are required", keyPath)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(k.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	if k.TokenURI == "" {
		k.TokenURI = defaultTokenURI
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if len(scopes) == 0 {
		scopes = []string{ScopeDrive, ScopeSheets}
	}

	return &ServiceAccount{
		email:    k.ClientEmail,
		keyID:    k.PrivateKeyID,
		key:      key,
		tokenURI: k.TokenURI,
		scopes:   scopes,
		client:   client,
		now:      time.Now,
	}, nil
}

// Email returns the service account address the sheet and folders must be
// shared with.
func (s *ServiceAccount) Email() string {
	return s.email
}

func (s *ServiceAccount) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expires.Add(-refreshMargin)) {
		return s.token, nil
	}

	assertion, err := s.assertion()
	if err != nil {
		return "", err
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 65536))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("unmarshal token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response has no access_token")
	}

	s.token = tok.AccessToken
	s.expires = s.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return s.token, nil
}

func (s *ServiceAccount) assertion() (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"iss":   s.email,
		"scope": strings.Join(s.scopes, " "),
		"aud":   s.tokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(tokenLifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if s.keyID != "" {
		token.Header["kid"] = s.keyID
	}
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signed, nil
}
