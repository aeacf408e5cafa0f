package authcore

import (
	"context"
	"errors"

	"github.com/cobaltcms/authcore/internal"
	"github.com/cobaltcms/authcore/internal/audit"
	"github.com/cobaltcms/authcore/internal/metrics"
	"github.com/cobaltcms/authcore/session"
)

// issueTokenPair mints an access token and an opaque refresh token, and
// registers the backing session record. The raw refresh secret leaves this
// function only inside the encoded token; the registry holds its keyed hash.
func (s *Service) issueTokenPair(ctx context.Context, user *User) (TokenPair, string, error) {
	recordID, err := internal.NewRecordID()
	if err != nil {
		return TokenPair{}, "", backendError(err)
	}
	secret, err := internal.NewSecret()
	if err != nil {
		return TokenPair{}, "", backendError(err)
	}
	raw, err := internal.EncodeOpaqueToken(recordID.String(), secret)
	if err != nil {
		return TokenPair{}, "", backendError(err)
	}

	now := s.clock()
	record := &session.Record{
		ID:        recordID.String(),
		UserID:    user.ID,
		TokenHash: s.tokens.HashRefreshSecret(secret),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.tokens.RefreshTTL()).Unix(),
		UserAgent: UserAgent(ctx),
		IP:        ClientIP(ctx),
	}
	if err := s.sessions.Save(ctx, record); err != nil {
		return TokenPair{}, "", backendError(err)
	}
	s.inc(metrics.MetricSessionCreated)

	access, err := s.tokens.IssueAccess(user.ID, record.ID, string(user.Role))
	if err != nil {
		return TokenPair{}, "", backendError(err)
	}

	pair := TokenPair{
		AccessToken:     access,
		RefreshToken:    raw,
		AccessExpiresAt: now.Add(s.tokens.AccessTTL()),
	}
	return pair, record.ID, nil
}

// Refresh exchanges a live refresh token for a new token pair, rotating the
// backing session record in a single atomic operation. A token presented
// after it has already been rotated fails and is recorded as a possible
// compromise indicator.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	recordID, secret, err := internal.DecodeOpaqueToken(refreshToken)
	if err != nil {
		s.inc(metrics.MetricRefreshFailure)
		s.emit(ctx, audit.EventRefreshFailure, "", false, "malformed token", nil)
		return nil, ErrRefreshInvalid
	}

	current, err := s.sessions.Get(ctx, recordID)
	switch {
	case errors.Is(err, session.ErrRecordNotFound):
		s.inc(metrics.MetricRefreshFailure)
		s.emit(ctx, audit.EventRefreshFailure, "", false, "unknown session", nil)
		return nil, ErrRefreshInvalid
	case err != nil:
		return nil, backendError(err)
	}

	user, err := s.store.GetUserByID(ctx, current.UserID)
	switch {
	case errors.Is(err, ErrUserNotFound):
		s.inc(metrics.MetricRefreshFailure)
		s.emit(ctx, audit.EventRefreshFailure, current.UserID, false, "user gone", nil)
		return nil, ErrRefreshInvalid
	case err != nil:
		return nil, backendError(err)
	}
	if !user.Active {
		if revokeErr := s.sessions.Revoke(ctx, user.ID, recordID); revokeErr != nil && !errors.Is(revokeErr, session.ErrRecordNotFound) {
			s.warn("authcore: revoking session for deactivated user: %v", revokeErr)
		}
		s.inc(metrics.MetricRefreshFailure)
		s.emit(ctx, audit.EventRefreshFailure, user.ID, false, "account deactivated", nil)
		return nil, ErrRefreshInvalid
	}

	nextID, err := internal.NewRecordID()
	if err != nil {
		return nil, backendError(err)
	}
	nextSecret, err := internal.NewSecret()
	if err != nil {
		return nil, backendError(err)
	}
	nextRaw, err := internal.EncodeOpaqueToken(nextID.String(), nextSecret)
	if err != nil {
		return nil, backendError(err)
	}

	now := s.clock()
	next := &session.Record{
		ID:        nextID.String(),
		UserID:    user.ID,
		TokenHash: s.tokens.HashRefreshSecret(nextSecret),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.tokens.RefreshTTL()).Unix(),
		UserAgent: UserAgent(ctx),
		IP:        ClientIP(ctx),
	}

	err = s.sessions.Rotate(ctx, recordID, s.tokens.HashRefreshSecret(secret), next)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrHashMismatch):
		// Secret does not match the live record. The record has been
		// revoked by the registry; flag the replay.
		s.trackReuse(ctx, recordID, user.ID, "secret mismatch")
		return nil, ErrRefreshReuse
	case errors.Is(err, session.ErrRecordRevoked):
		// The record was already rotated or revoked. Presenting its token
		// again is the classic stolen-then-raced pattern.
		s.trackReuse(ctx, recordID, user.ID, "revoked record presented")
		return nil, ErrRefreshInvalid
	case errors.Is(err, session.ErrRecordNotFound):
		s.inc(metrics.MetricRefreshFailure)
		s.emit(ctx, audit.EventRefreshFailure, user.ID, false, "record expired", nil)
		return nil, ErrRefreshInvalid
	default:
		return nil, backendError(err)
	}
	s.inc(metrics.MetricSessionCreated)

	access, err := s.tokens.IssueAccess(user.ID, next.ID, string(user.Role))
	if err != nil {
		return nil, backendError(err)
	}

	s.inc(metrics.MetricRefreshSuccess)
	s.emit(ctx, audit.EventRefreshSuccess, user.ID, true, "", map[string]string{"session_id": next.ID})

	return &AuthResult{
		User: user,
		Tokens: TokenPair{
			AccessToken:     access,
			RefreshToken:    nextRaw,
			AccessExpiresAt: now.Add(s.tokens.AccessTTL()),
		},
		SessionID: next.ID,
	}, nil
}

func (s *Service) trackReuse(ctx context.Context, recordID, userID, reason string) {
	if err := s.sessions.TrackReuse(ctx, recordID, s.tokens.RefreshTTL()); err != nil {
		s.warn("authcore: recording refresh reuse signal: %v", err)
	}
	s.inc(metrics.MetricRefreshReuseDetected)
	s.emit(ctx, audit.EventRefreshReuse, userID, false, reason, map[string]string{"session_id": recordID})
}
