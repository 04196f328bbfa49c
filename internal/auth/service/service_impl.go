package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicekit/internal/auth/domain"
	"github.com/smallbiznis/invoicekit/internal/auth/password"
	"github.com/smallbiznis/invoicekit/internal/clock"
	"github.com/smallbiznis/invoicekit/internal/config"
	"github.com/smallbiznis/invoicekit/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sessionTokenBytes = 32
	minPasswordLength = 8
	trialPeriod       = 30 * 24 * time.Hour
	listUsersMax      = 500
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Repo        domain.Repository
	SessionRepo domain.SessionRepository
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
}

type Service struct {
	log         *zap.Logger
	repo        domain.Repository
	sessionRepo domain.SessionRepository
	genID       *snowflake.Node
	clock       clock.Clock

	sessionTTL      time.Duration
	adminSessionTTL time.Duration
}

func New(p Params) domain.Service {
	sessionTTL := p.Cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	adminTTL := p.Cfg.AdminSessionTTL
	if adminTTL <= 0 {
		adminTTL = 8 * time.Hour
	}
	return &Service{
		log:             p.Log.Named("auth.service"),
		repo:            p.Repo,
		sessionRepo:     p.SessionRepo,
		genID:           p.GenID,
		clock:           p.Clock,
		sessionTTL:      sessionTTL,
		adminSessionTTL: adminTTL,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	if len(strings.TrimSpace(req.Password)) < minPasswordLength {
		return nil, domain.ErrInvalidPassword
	}

	if _, err := s.repo.FindOne(ctx, domain.User{Email: email}); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	trialEnds := now.Add(trialPeriod)
	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = "de"
	}
	user := &domain.User{
		ID:                    s.genID.Generate(),
		Email:                 email,
		PasswordHash:          hashed,
		CompanyName:           strings.TrimSpace(req.CompanyName),
		FirstName:             strings.TrimSpace(req.FirstName),
		LastName:              strings.TrimSpace(req.LastName),
		Phone:                 strings.TrimSpace(req.Phone),
		Address:               strings.TrimSpace(req.Address),
		City:                  strings.TrimSpace(req.City),
		PostalCode:            strings.TrimSpace(req.PostalCode),
		Country:               strings.TrimSpace(req.Country),
		Language:              language,
		SubscriptionType:      domain.SubscriptionTrial,
		SubscriptionExpiresAt: &trialEnds,
		IsActive:              true,
		LastPasswordChanged:   &now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("user registered", zap.String("user_id", user.ID.String()))
	return user, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindOne(ctx, domain.User{Email: email})
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			password.Burn(req.Password)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive || !password.Verify(req.Password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	if password.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user.ID, req.Password)
	}

	userID := user.ID
	result, err := s.issueSession(ctx, &domain.Session{
		UserID:    &userID,
		UserAgent: strings.TrimSpace(req.UserAgent),
		IPAddress: strings.TrimSpace(req.IPAddress),
	}, s.sessionTTL)
	if err != nil {
		return nil, err
	}
	result.User = user
	return result, nil
}

func (s *Service) IssueAdminSession(ctx context.Context, adminID snowflake.ID, userAgent, ipAddress string) (*domain.LoginResult, error) {
	return s.issueSession(ctx, &domain.Session{
		AdminID:   &adminID,
		UserAgent: strings.TrimSpace(userAgent),
		IPAddress: strings.TrimSpace(ipAddress),
	}, s.adminSessionTTL)
}

func (s *Service) issueSession(ctx context.Context, session *domain.Session, ttl time.Duration) (*domain.LoginResult, error) {
	rawToken, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session.ID = s.genID.Generate()
	session.SessionTokenHash = hashToken(rawToken)
	session.ExpiresAt = now.Add(ttl)
	session.CreatedAt = now
	session.LastSeenAt = now
	if err := s.sessionRepo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return &domain.LoginResult{
		RawToken:  rawToken,
		ExpiresAt: session.ExpiresAt,
		SessionID: session.ID,
	}, nil
}

func (s *Service) rehash(ctx context.Context, id snowflake.ID, secret string) {
	hashed, err := password.Hash(secret)
	if err != nil {
		s.log.Warn("password rehash failed", zap.Error(err))
		return
	}
	if err := s.repo.UpdateFields(ctx, id, map[string]any{
		"password_hash": hashed,
		"updated_at":    s.clock.Now(),
	}); err != nil {
		s.log.Warn("password rehash not stored", zap.String("user_id", id.String()), zap.Error(err))
	}
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.ErrInvalidSession
		}
		return err
	}
	if session.RevokedAt != nil {
		return nil
	}

	return s.sessionRepo.RevokeSession(ctx, session.ID, s.clock.Now())
}

// Authenticate resolves a user session token.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Session, error) {
	session, err := s.authenticate(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if session.UserID == nil {
		return nil, domain.ErrInvalidSession
	}
	return session, nil
}

// AuthenticateAdmin resolves an admin console session token.
func (s *Service) AuthenticateAdmin(ctx context.Context, rawToken string) (*domain.Session, error) {
	session, err := s.authenticate(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if session.AdminID == nil {
		return nil, domain.ErrInvalidSession
	}
	return session, nil
}

func (s *Service) authenticate(ctx context.Context, rawToken string) (*domain.Session, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}

	now := s.clock.Now()
	if session.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if !now.Before(session.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}

	if err := s.sessionRepo.UpdateLastSeen(ctx, session.ID, now); err != nil {
		return nil, err
	}

	return session, nil
}

func (s *Service) CurrentUser(ctx context.Context) (*domain.User, error) {
	id, ok := tenantctx.UserID(ctx)
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return s.repo.FindByID(ctx, id)
}

func (s *Service) UpdateProfile(ctx context.Context, req domain.UpdateProfileRequest) (*domain.User, error) {
	id, ok := tenantctx.UserID(ctx)
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	fields := map[string]any{}
	set := func(column string, v *string) {
		if v != nil {
			fields[column] = strings.TrimSpace(*v)
		}
	}
	set("company_name", req.CompanyName)
	set("first_name", req.FirstName)
	set("last_name", req.LastName)
	set("phone", req.Phone)
	set("address", req.Address)
	set("city", req.City)
	set("postal_code", req.PostalCode)
	set("country", req.Country)
	if req.Language != nil && strings.TrimSpace(*req.Language) != "" {
		fields["language"] = strings.TrimSpace(*req.Language)
	}

	if len(fields) > 0 {
		fields["updated_at"] = s.clock.Now()
		if err := s.repo.UpdateFields(ctx, id, fields); err != nil {
			return nil, err
		}
	}
	return s.repo.FindByID(ctx, id)
}

func (s *Service) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	id, ok := tenantctx.UserID(ctx)
	if !ok {
		return domain.ErrUserNotFound
	}
	if len(strings.TrimSpace(newPassword)) < minPasswordLength {
		return domain.ErrInvalidPassword
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !password.Verify(currentPassword, user.PasswordHash) {
		return domain.ErrInvalidCredentials
	}

	hashed, err := password.Hash(newPassword)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	return s.repo.UpdateFields(ctx, id, map[string]any{
		"password_hash":         hashed,
		"last_password_changed": now,
		"updated_at":            now,
	})
}

func (s *Service) ListUsers(ctx context.Context, limit int) ([]domain.User, error) {
	if limit <= 0 || limit > listUsersMax {
		limit = listUsersMax
	}
	return s.repo.List(ctx, limit)
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
