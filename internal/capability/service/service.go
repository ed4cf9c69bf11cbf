// Package service implements the capability issuer: it mints, validates, and
// revokes time-boxed grants mapping abstract scopes to concrete operations.
package service

import (
	"context"
	"log/slog"
	"time"

	"bastion/internal/audit"
	"bastion/internal/capability/models"
	"bastion/internal/platform/metrics"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/secrets"
)

const (
	minDurationMinutes = 1
	maxDurationMinutes = 240
)

// GrantStore defines the persistence interface for grant records.
// Error Contract: Find returns a wrapped sentinel.ErrNotFound when no record
// exists for the key.
type GrantStore interface {
	Put(ctx context.Context, record *models.GrantRecord) error
	Find(ctx context.Context, key models.GrantKey) (*models.GrantRecord, error)
	Delete(ctx context.Context, key models.GrantKey) error
	DeleteExpired(ctx context.Context, now time.Time) ([]models.GrantKey, error)
	Count(ctx context.Context) (int, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// RevocationHook is invoked after a grant is removed, for each removed key.
// Used to tear down resources tied to a grant's lifetime.
type RevocationHook func(key models.GrantKey)

type Service struct {
	grants   GrantStore
	logger   *slog.Logger
	auditPub AuditPublisher
	metrics  *metrics.Metrics
	now      func() time.Time
	onRevoke RevocationHook
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPub = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source. Tests use this to drive expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRevocationHook registers a callback invoked for every revoked grant key.
func WithRevocationHook(hook RevocationHook) Option {
	return func(s *Service) {
		s.onRevoke = hook
	}
}

func New(grants GrantStore, opts ...Option) (*Service, error) {
	if grants == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "grant store is required")
	}
	svc := &Service{
		grants: grants,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc, nil
}

// CreateGrantRequest carries the inputs for minting a grant.
type CreateGrantRequest struct {
	SubjectID       string
	ResourceID      string
	TaskID          string
	Scopes          []models.Scope
	DurationMinutes int
}

func (r *CreateGrantRequest) validate() error {
	if r.SubjectID == "" || r.ResourceID == "" || r.TaskID == "" {
		return dErrors.New(dErrors.CodeValidation, "subject, resource, and task identifiers are required")
	}
	if len(r.Scopes) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one scope is required")
	}
	for _, scope := range r.Scopes {
		if !models.KnownScope(scope) {
			return dErrors.New(dErrors.CodeValidation, "unknown scope: "+string(scope))
		}
	}
	if r.DurationMinutes < minDurationMinutes || r.DurationMinutes > maxDurationMinutes {
		return dErrors.New(dErrors.CodeValidation, "duration must be between 1 and 240 minutes")
	}
	return nil
}

// CreateGrant mints a time-boxed grant for the (subject, resource, task)
// triple. The allowed operations are exactly the union of the static scope
// table rows for the requested scopes. Creating a grant for an existing key
// replaces the old one; there is one live grant per key.
func (s *Service) CreateGrant(ctx context.Context, req CreateGrantRequest) (*models.Grant, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	secret, err := secrets.Generate()
	if err != nil {
		return nil, err
	}
	hash, err := secrets.Hash(secret)
	if err != nil {
		return nil, err
	}

	now := s.now()
	grant := &models.Grant{
		SubjectID:         req.SubjectID,
		ResourceID:        req.ResourceID,
		TaskID:            req.TaskID,
		SessionSecret:     secret,
		AllowedOperations: models.OperationsForScopes(req.Scopes),
		CreatedAt:         now,
		ExpiresAt:         now.Add(time.Duration(req.DurationMinutes) * time.Minute),
	}
	record := &models.GrantRecord{
		Key:               grant.Key(),
		SecretHash:        hash,
		AllowedOperations: grant.AllowedOperations,
		CreatedAt:         grant.CreatedAt,
		ExpiresAt:         grant.ExpiresAt,
	}
	if err := s.grants.Put(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not store grant")
	}

	s.logger.InfoContext(ctx, "grant issued",
		"subject_id", grant.SubjectID,
		"resource_id", grant.ResourceID,
		"task_id", grant.TaskID,
		"scopes", req.Scopes,
		"expires_at", grant.ExpiresAt,
	)
	s.emitAudit(ctx, audit.EventGrantIssued, grant.Key(), "granted", "")
	if s.metrics != nil {
		s.metrics.IncrementGrantsIssued()
		s.metrics.IncrementActiveGrants(1)
	}
	return grant, nil
}

// Validate checks a session secret against the grant for the key. It never
// returns an error and never tells the caller why validation failed: a
// missing grant, a mismatched secret, and an expired grant all yield false.
// An expired grant is revoked as a side effect.
func (s *Service) Validate(ctx context.Context, subjectID, resourceID, taskID, sessionSecret string) bool {
	key := models.GrantKey{SubjectID: subjectID, ResourceID: resourceID, TaskID: taskID}

	record, err := s.grants.Find(ctx, key)
	if err != nil {
		s.authFailure(ctx, key, "grant missing")
		return false
	}
	if record.Expired(s.now()) {
		s.removeGrant(ctx, key, "expired")
		s.authFailure(ctx, key, "grant expired")
		return false
	}
	if err := secrets.Verify(sessionSecret, record.SecretHash); err != nil {
		s.authFailure(ctx, key, "secret mismatch")
		return false
	}
	return true
}

// AllowedOperations returns the stored operation set for the key, or an
// empty set when no live grant exists. An expired grant counts as absent.
func (s *Service) AllowedOperations(ctx context.Context, subjectID, resourceID, taskID string) []models.Operation {
	key := models.GrantKey{SubjectID: subjectID, ResourceID: resourceID, TaskID: taskID}
	record, err := s.grants.Find(ctx, key)
	if err != nil {
		return []models.Operation{}
	}
	if record.Expired(s.now()) {
		s.removeGrant(ctx, key, "expired")
		return []models.Operation{}
	}
	return append([]models.Operation{}, record.AllowedOperations...)
}

// Revoke removes the grant for the key and invokes the revocation hook.
// Idempotent; revoking an absent grant is not an error.
func (s *Service) Revoke(ctx context.Context, subjectID, resourceID, taskID string) {
	key := models.GrantKey{SubjectID: subjectID, ResourceID: resourceID, TaskID: taskID}
	if _, err := s.grants.Find(ctx, key); err != nil {
		return
	}
	s.removeGrant(ctx, key, "revoked")
}

// RemoveExpired deletes every expired grant, running the revocation hook for
// each. The sweeper worker calls this periodically; Validate also expires
// grants lazily, so the sweep only reclaims grants nobody touches.
func (s *Service) RemoveExpired(ctx context.Context) (int, error) {
	removed, err := s.grants.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "could not sweep expired grants")
	}
	for _, key := range removed {
		s.afterRemoval(ctx, key, "expired")
	}
	return len(removed), nil
}

// ActiveGrants returns the number of live grant records.
func (s *Service) ActiveGrants(ctx context.Context) (int, error) {
	return s.grants.Count(ctx)
}

func (s *Service) removeGrant(ctx context.Context, key models.GrantKey, reason string) {
	if err := s.grants.Delete(ctx, key); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete grant", "error", err, "subject_id", key.SubjectID)
		return
	}
	s.afterRemoval(ctx, key, reason)
}

func (s *Service) afterRemoval(ctx context.Context, key models.GrantKey, reason string) {
	event := audit.EventGrantRevoked
	if reason == "expired" {
		event = audit.EventGrantExpired
	}
	s.logger.InfoContext(ctx, "grant removed",
		"subject_id", key.SubjectID,
		"resource_id", key.ResourceID,
		"task_id", key.TaskID,
		"reason", reason,
	)
	s.emitAudit(ctx, event, key, "revoked", reason)
	if s.metrics != nil {
		s.metrics.IncrementGrantsRevoked(reason)
		s.metrics.DecrementActiveGrants(1)
	}
	if s.onRevoke != nil {
		s.onRevoke(key)
	}
}

func (s *Service) authFailure(ctx context.Context, key models.GrantKey, reason string) {
	s.logger.WarnContext(ctx, "grant validation failed",
		"subject_id", key.SubjectID,
		"resource_id", key.ResourceID,
		"task_id", key.TaskID,
		"reason", reason,
	)
	s.emitAudit(ctx, audit.EventAuthFailed, key, "denied", reason)
	if s.metrics != nil {
		s.metrics.IncrementAuthFailures()
	}
}

func (s *Service) emitAudit(ctx context.Context, event audit.AuditEvent, key models.GrantKey, decision, reason string) {
	if s.auditPub == nil {
		return
	}
	err := s.auditPub.Emit(ctx, audit.Event{
		SubjectID:  key.SubjectID,
		ResourceID: key.ResourceID,
		TaskID:     key.TaskID,
		Action:     string(event),
		Decision:   decision,
		Reason:     reason,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "error", err)
	}
}
