// Package services - AuthService
//
// This file implements AuthService, which owns accounts and the sessions
// behind each access/refresh token pair. Passwords are stored as bcrypt
// hashes and emails are compared in their case-folded form.
//
// A session lives as long as its refresh token. Refresh rotates the token in
// place; any mismatch between the token, its session and its owner deletes
// the session. At most MaxSessions live sessions are kept per user, the
// oldest evicted first, and expired sessions are pruned on every load.
//
// Observability: public methods open OpenTelemetry spans tagged with the
// user id when known.

package services

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/samrith-ratana/e-commerce/internal/domain"
)

var emailRE = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const minPasswordLen = 8

// AuthConfig holds token secrets and session limits.
type AuthConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration // 15m
	RefreshTTL    time.Duration // also the session lifetime, 7d
	MaxSessions   int           // live sessions per user, oldest evicted first
	BcryptCost    int
}

// TokenPair is an access/refresh JWT pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthResult is returned by Signup and Login.
type AuthResult struct {
	User   domain.PublicUser `json:"user"`
	Tokens TokenPair         `json:"tokens"`
}

// Identity is the authenticated caller as decoded from an access token.
type Identity struct {
	ID    string
	Email string
}

// Claims is the JWT payload of both token kinds.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"id"`
	Email  string `json:"email,omitempty"`
}

// AuthService manages accounts, session-bound token pairs and access token
// verification. Users and sessions are kept in separate tables.
type AuthService struct {
	Users    Table[domain.UsersFile]
	Sessions Table[domain.SessionsFile]
	Cfg      AuthConfig
	Now      func() time.Time
}

// NewAuthService returns an AuthService with defaults filled in for zero
// config values.
func NewAuthService(users Table[domain.UsersFile], sessions Table[domain.SessionsFile], cfg AuthConfig) *AuthService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 5
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{Users: users, Sessions: sessions, Cfg: cfg, Now: time.Now}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return ErrCredentialsRequired
	}
	if !emailRE.MatchString(NormalizeEmail(email)) {
		return ErrInvalidEmail
	}
	if len(password) < minPasswordLen {
		return ErrPasswordTooShort
	}
	return nil
}

// Signup registers a new account and opens its first session.
func (s *AuthService) Signup(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx, span := startSpan(ctx, "AuthService", "Signup")
	defer span.End()

	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.Cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.Now().UTC(),
	}
	err = s.Users.Update(ctx, func(doc *domain.UsersFile) error {
		for _, u := range doc.Users {
			if NormalizeEmail(u.Email) == email {
				return ErrUserExists
			}
		}
		doc.Users = append(doc.Users, user)
		return nil
	})
	if err != nil {
		return nil, err
	}

	tokens, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", user.ID).Msg("user signed up")
	return &AuthResult{User: user.Public(), Tokens: tokens}, nil
}

// Login verifies credentials and opens a new session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx, span := startSpan(ctx, "AuthService", "Login")
	defer span.End()

	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	user, err := s.findUser(ctx, func(u domain.User) bool { return NormalizeEmail(u.Email) == NormalizeEmail(email) })
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	tokens, err := s.openSession(ctx, *user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user.Public(), Tokens: tokens}, nil
}

// Refresh rotates the refresh token of an active session and issues a new
// pair. A token that fails verification or belongs to another user revokes
// the session it was bound to.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	ctx, span := startSpan(ctx, "AuthService", "Refresh")
	defer span.End()

	if refreshToken == "" {
		return TokenPair{}, ErrMissingRefreshToken
	}

	var session domain.Session
	err := s.Sessions.Update(ctx, func(doc *domain.SessionsFile) error {
		s.prune(doc)
		for _, ss := range doc.Sessions {
			if ss.RefreshToken == refreshToken {
				session = ss
				return nil
			}
		}
		return ErrSessionNotActive
	})
	if err != nil {
		return TokenPair{}, err
	}

	claims, err := s.parse(refreshToken, s.Cfg.RefreshSecret)
	if err != nil {
		return TokenPair{}, s.revoke(ctx, session.SessionID, ErrInvalidRefreshToken)
	}
	if claims.UserID != session.UserID {
		return TokenPair{}, s.revoke(ctx, session.SessionID, ErrSessionOwner)
	}
	user, err := s.findUser(ctx, func(u domain.User) bool { return u.ID == session.UserID })
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenPair{}, s.revoke(ctx, session.SessionID, ErrUserNotFound)
		}
		return TokenPair{}, err
	}

	tokens, err := s.issue(*user)
	if err != nil {
		return TokenPair{}, err
	}
	now := s.Now().UTC()
	err = s.Sessions.Update(ctx, func(doc *domain.SessionsFile) error {
		s.prune(doc)
		for i := range doc.Sessions {
			if doc.Sessions[i].SessionID == session.SessionID {
				doc.Sessions[i].RefreshToken = tokens.RefreshToken
				doc.Sessions[i].ExpiresAt = now.Add(s.Cfg.RefreshTTL)
				return nil
			}
		}
		// revoked concurrently
		return ErrSessionNotActive
	})
	if err != nil {
		return TokenPair{}, err
	}
	return tokens, nil
}

// Logout deletes the session bound to refreshToken. Unknown or empty tokens
// are not an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	ctx, span := startSpan(ctx, "AuthService", "Logout")
	defer span.End()

	if refreshToken == "" {
		return nil
	}
	return s.Sessions.Update(ctx, func(doc *domain.SessionsFile) error {
		s.prune(doc)
		doc.Sessions = filterSessions(doc.Sessions, func(ss domain.Session) bool { return ss.RefreshToken != refreshToken })
		return nil
	})
}

// Disconnect deletes one of the caller's sessions by id.
func (s *AuthService) Disconnect(ctx context.Context, userID, sessionID string) error {
	ctx, span := startSpan(ctx, "AuthService", "Disconnect", attribute.String("user.id", userID))
	defer span.End()

	if strings.TrimSpace(sessionID) == "" {
		return E(KindValidation, "Missing sessionId")
	}
	return s.Sessions.Update(ctx, func(doc *domain.SessionsFile) error {
		s.prune(doc)
		found := false
		doc.Sessions = filterSessions(doc.Sessions, func(ss domain.Session) bool {
			if ss.SessionID == sessionID && ss.UserID == userID {
				found = true
				return false
			}
			return true
		})
		if !found {
			return ErrSessionNotFound
		}
		return nil
	})
}

// SessionInfo is a live session as shown to its owner. Current marks the
// session bound to the refresh token the caller presented.
type SessionInfo struct {
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Current   bool      `json:"current"`
}

// ListSessions returns the caller's live sessions, newest first. Refresh
// tokens never leave this method.
func (s *AuthService) ListSessions(ctx context.Context, userID, currentRefresh string) ([]SessionInfo, error) {
	out := []SessionInfo{}
	err := s.Sessions.Update(ctx, func(doc *domain.SessionsFile) error {
		s.prune(doc)
		for _, ss := range doc.Sessions {
			if ss.UserID == userID {
				out = append(out, SessionInfo{
					SessionID: ss.SessionID,
					CreatedAt: ss.CreatedAt,
					ExpiresAt: ss.ExpiresAt,
					Current:   currentRefresh != "" && ss.RefreshToken == currentRefresh,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Authenticate verifies an access token.
func (s *AuthService) Authenticate(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}
	claims, err := s.parse(token, s.Cfg.AccessSecret)
	if err != nil || claims.UserID == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{ID: claims.UserID, Email: claims.Email}, nil
}

// Me returns the public profile of userID.
func (s *AuthService) Me(ctx context.Context, userID string) (domain.PublicUser, error) {
	u, err := s.findUser(ctx, func(u domain.User) bool { return u.ID == userID })
	if err != nil {
		return domain.PublicUser{}, err
	}
	return u.Public(), nil
}

func (s *AuthService) openSession(ctx context.Context, user domain.User) (TokenPair, error) {
	tokens, err := s.issue(user)
	if err != nil {
		return TokenPair{}, err
	}
	now := s.Now().UTC()
	session := domain.Session{
		SessionID:    uuid.NewString(),
		UserID:       user.ID,
		RefreshToken: tokens.RefreshToken,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.Cfg.RefreshTTL),
	}
	err = s.Sessions.Update(ctx, func(doc *domain.SessionsFile) error {
		s.prune(doc)
		doc.Sessions = append(doc.Sessions, session)
		s.enforceLimit(doc, user.ID)
		return nil
	})
	if err != nil {
		return TokenPair{}, err
	}
	return tokens, nil
}

func (s *AuthService) revoke(ctx context.Context, sessionID string, cause error) error {
	err := s.Sessions.Update(ctx, func(doc *domain.SessionsFile) error {
		doc.Sessions = filterSessions(doc.Sessions, func(ss domain.Session) bool { return ss.SessionID != sessionID })
		return nil
	})
	if err != nil {
		return err
	}
	return cause
}

// prune drops expired sessions.
func (s *AuthService) prune(doc *domain.SessionsFile) {
	now := s.Now()
	doc.Sessions = filterSessions(doc.Sessions, func(ss domain.Session) bool { return ss.ExpiresAt.After(now) })
}

// enforceLimit evicts the oldest sessions of userID beyond MaxSessions.
func (s *AuthService) enforceLimit(doc *domain.SessionsFile, userID string) {
	var mine []domain.Session
	for _, ss := range doc.Sessions {
		if ss.UserID == userID {
			mine = append(mine, ss)
		}
	}
	if len(mine) <= s.Cfg.MaxSessions {
		return
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].CreatedAt.Before(mine[j].CreatedAt) })
	evict := make(map[string]struct{}, len(mine)-s.Cfg.MaxSessions)
	for _, ss := range mine[:len(mine)-s.Cfg.MaxSessions] {
		evict[ss.SessionID] = struct{}{}
	}
	doc.Sessions = filterSessions(doc.Sessions, func(ss domain.Session) bool {
		_, gone := evict[ss.SessionID]
		return !gone
	})
}

func (s *AuthService) issue(user domain.User) (TokenPair, error) {
	access, err := s.sign(user, s.Cfg.AccessSecret, s.Cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(user, s.Cfg.RefreshSecret, s.Cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) sign(user domain.User, secret []byte, ttl time.Duration) (string, error) {
	now := s.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: user.ID,
		Email:  user.Email,
	})
	return token.SignedString(secret)
}

func (s *AuthService) parse(token string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.Now),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) findUser(ctx context.Context, match func(domain.User) bool) (*domain.User, error) {
	doc, err := s.Users.Read(ctx)
	if err != nil {
		return nil, err
	}
	for i := range doc.Users {
		if match(doc.Users[i]) {
			return &doc.Users[i], nil
		}
	}
	return nil, ErrUserNotFound
}

func filterSessions(in []domain.Session, keep func(domain.Session) bool) []domain.Session {
	out := in[:0]
	for _, ss := range in {
		if keep(ss) {
			out = append(out, ss)
		}
	}
	return out
}
