package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicekit/internal/admin/domain"
	auditdomain "github.com/smallbiznis/invoicekit/internal/audit/domain"
	"github.com/smallbiznis/invoicekit/internal/auth/password"
	"github.com/smallbiznis/invoicekit/internal/clock"
	"github.com/smallbiznis/invoicekit/internal/observability/metrics"
	"github.com/smallbiznis/invoicekit/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	outcomeSuccess           = "success"
	outcomeInvalidCredential = "invalid_credential"
	outcomeLockedOut         = "locked_out"
	outcomeNotFound          = "not_found"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Audit   auditdomain.Service
	Policy  domain.LockoutPolicy
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	audit   auditdomain.Service
	policy  domain.LockoutPolicy
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("admin.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		audit:   p.Audit,
		policy:  p.Policy.Normalize(),
		metrics: p.Metrics,
	}
}

func (s *Service) VerifyAdmin(ctx context.Context, email, code string) (*domain.Admin, error) {
	email = strings.TrimSpace(email)

	admin, err := s.repo.FindByEmail(ctx, s.db, email)
	if err != nil {
		if errors.Is(err, domain.ErrAdminNotFound) {
			password.Burn(code)
			s.metrics.RecordAdminLogin(ctx, outcomeNotFound)
			return nil, domain.ErrAdminNotFound
		}
		return nil, s.storeErr(err)
	}

	now := s.clock.Now()
	if admin.IsLocked(now) {
		s.metrics.RecordAdminLogin(ctx, outcomeLockedOut)
		return nil, domain.ErrLockedOut
	}

	if !password.Verify(code, admin.CodeHash) {
		locked, err := s.recordFailure(ctx, admin.ID)
		if err != nil {
			if errors.Is(err, domain.ErrLockedOut) {
				s.metrics.RecordAdminLogin(ctx, outcomeLockedOut)
			}
			return nil, err
		}
		if locked {
			s.log.Warn("admin locked out",
				zap.String("admin_id", admin.ID.String()),
				zap.Duration("lockout", s.policy.Duration),
			)
		}
		s.metrics.RecordAdminLogin(ctx, outcomeInvalidCredential)
		return nil, domain.ErrInvalidCredential
	}

	var verified domain.Admin
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, admin.ID, true)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if current.IsLocked(now) {
			return domain.ErrLockedOut
		}

		if err := s.repo.MarkLoginSuccess(ctx, tx, current.ID, now); err != nil {
			return err
		}
		if password.NeedsRehash(current.CodeHash) {
			hashed, err := password.Hash(code)
			if err != nil {
				return err
			}
			if err := s.repo.UpdateCodeHash(ctx, tx, current.ID, hashed, now); err != nil {
				return err
			}
		}
		if err := s.audit.Record(ctx, tx, auditdomain.Entry{
			AdminID: current.ID,
			Action:  auditdomain.ActionLogin,
			Details: "admin console login",
		}); err != nil {
			return err
		}

		verified = current.Redacted()
		verified.FailedAttempts = 0
		verified.LockedUntil = nil
		verified.LastLogin = &now
		verified.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrLockedOut) {
			s.metrics.RecordAdminLogin(ctx, outcomeLockedOut)
			return nil, err
		}
		return nil, s.storeErr(err)
	}

	s.metrics.RecordAdminLogin(ctx, outcomeSuccess)
	s.log.Info("admin verified", zap.String("admin_id", verified.ID.String()))
	return &verified, nil
}

// recordFailure counts one wrong code and sets the lock once the counter
// reaches the policy threshold. It reports whether a lock was set.
func (s *Service) recordFailure(ctx context.Context, adminID snowflake.ID) (bool, error) {
	var locked bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A concurrent attempt may have locked the admin since the first read.
		before, err := s.repo.FindByID(ctx, tx, adminID, true)
		if err != nil {
			return err
		}
		if before.IsLocked(s.clock.Now()) {
			return domain.ErrLockedOut
		}

		if err := s.repo.IncrementFailedAttempts(ctx, tx, adminID); err != nil {
			return err
		}
		current, err := s.repo.FindByID(ctx, tx, adminID, false)
		if err != nil {
			return err
		}

		action := auditdomain.ActionLoginFailed
		if current.FailedAttempts >= s.policy.Threshold {
			until := s.clock.Now().Add(s.policy.Duration)
			if err := s.repo.Lock(ctx, tx, adminID, until); err != nil {
				return err
			}
			action = auditdomain.ActionLockout
			locked = true
		}

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			AdminID:  adminID,
			Action:   action,
			Details:  "wrong admin code",
			Metadata: map[string]any{"failed_attempts": current.FailedAttempts},
		})
	})
	if err != nil {
		return false, s.storeErr(err)
	}
	return locked, nil
}

func (s *Service) AddAdmin(ctx context.Context, actorID snowflake.ID, email, role string) (*domain.Admin, string, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, "", domain.ErrInvalidEmail
	}
	role = strings.TrimSpace(role)
	if role == "" {
		role = domain.RoleAdmin
	}
	if role != domain.RoleAdmin {
		return nil, "", domain.ErrInvalidRole
	}

	code, err := password.GenerateCode(domain.CodeLength)
	if err != nil {
		return nil, "", err
	}
	hashed, err := password.Hash(code)
	if err != nil {
		return nil, "", err
	}

	now := s.clock.Now()
	admin := &domain.Admin{
		ID:        s.genID.Generate(),
		Email:     normalized,
		CodeHash:  hashed,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.FindByEmail(ctx, tx, normalized); err == nil {
			return domain.ErrAdminExists
		} else if !errors.Is(err, domain.ErrAdminNotFound) {
			return err
		}
		if err := s.repo.Insert(ctx, tx, admin); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			AdminID:  actorID,
			Action:   auditdomain.ActionAddAdmin,
			Details:  fmt.Sprintf("added admin %s", admin.ID),
			Metadata: map[string]any{"target_admin_id": admin.ID.String(), "role": role},
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrAdminExists) {
			return nil, "", err
		}
		return nil, "", s.storeErr(err)
	}

	s.log.Info("admin added",
		zap.String("admin_id", admin.ID.String()),
		zap.String("actor_id", actorID.String()),
	)
	redacted := admin.Redacted()
	return &redacted, code, nil
}

func (s *Service) DeleteAdmin(ctx context.Context, actorID, adminID snowflake.ID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := s.repo.FindByID(ctx, tx, adminID, true)
		if err != nil {
			return err
		}
		if target.Role == domain.RoleSuperAdmin {
			return domain.ErrForbidden
		}
		if err := s.repo.Delete(ctx, tx, adminID); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			AdminID:  actorID,
			Action:   auditdomain.ActionDeleteAdmin,
			Details:  fmt.Sprintf("deleted admin %s", adminID),
			Metadata: map[string]any{"target_admin_id": adminID.String()},
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrAdminNotFound) || errors.Is(err, domain.ErrForbidden) {
			return err
		}
		return s.storeErr(err)
	}

	s.log.Info("admin deleted",
		zap.String("admin_id", adminID.String()),
		zap.String("actor_id", actorID.String()),
	)
	return nil
}

func (s *Service) ChangeCode(ctx context.Context, actorID, adminID snowflake.ID, newCode string) error {
	if len(strings.TrimSpace(newCode)) < domain.MinCodeLength {
		return domain.ErrInvalidCode
	}
	hashed, err := password.Hash(newCode)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateCodeHash(ctx, tx, adminID, hashed, s.clock.Now()); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			AdminID:  actorID,
			Action:   auditdomain.ActionChangeCode,
			Details:  fmt.Sprintf("changed code of admin %s", adminID),
			Metadata: map[string]any{"target_admin_id": adminID.String()},
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrAdminNotFound) {
			return err
		}
		return s.storeErr(err)
	}
	return nil
}

func (s *Service) RecordLogout(ctx context.Context, adminID snowflake.ID) error {
	return s.audit.Record(ctx, s.db, auditdomain.Entry{
		AdminID: adminID,
		Action:  auditdomain.ActionLogout,
		Details: "admin console logout",
	})
}

func (s *Service) ListAdmins(ctx context.Context) ([]domain.Admin, error) {
	admins, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, s.storeErr(err)
	}
	out := make([]domain.Admin, 0, len(admins))
	for _, a := range admins {
		out = append(out, a.Redacted())
	}
	return out, nil
}

func (s *Service) GetAdmin(ctx context.Context, id snowflake.ID) (*domain.Admin, error) {
	admin, err := s.repo.FindByID(ctx, s.db, id, false)
	if err != nil {
		if errors.Is(err, domain.ErrAdminNotFound) {
			return nil, err
		}
		return nil, s.storeErr(err)
	}
	redacted := admin.Redacted()
	return &redacted, nil
}

func (s *Service) storeErr(err error) error {
	if errors.Is(err, domain.ErrAdminNotFound) {
		return err
	}
	if db.IsUnavailableErr(err) {
		s.log.Error("admin store unavailable", zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(addr.Address), nil
}
