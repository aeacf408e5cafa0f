package authcore

import (
	"context"
	"errors"

	"github.com/cobaltcms/authcore/internal/audit"
	"github.com/cobaltcms/authcore/internal/metrics"
	"github.com/cobaltcms/authcore/session"
)

// Logout revokes the session backing the caller's refresh token. Revoking a
// session that is already gone is not an error; logout is idempotent.
func (s *Service) Logout(ctx context.Context, userID, sessionID string) error {
	err := s.sessions.Revoke(ctx, userID, sessionID)
	if err != nil && !errors.Is(err, session.ErrRecordNotFound) {
		return backendError(err)
	}

	s.inc(metrics.MetricLogout)
	s.emit(ctx, audit.EventLogout, userID, true, "", map[string]string{"session_id": sessionID})
	return nil
}

// LogoutAll revokes every live session of the user and returns how many
// were revoked.
func (s *Service) LogoutAll(ctx context.Context, userID string) (int, error) {
	revoked, err := s.sessions.RevokeAll(ctx, userID)
	if err != nil {
		return 0, backendError(err)
	}

	s.inc(metrics.MetricLogoutAll)
	s.emit(ctx, audit.EventLogoutAll, userID, true, "", nil)
	return revoked, nil
}

// ListSessions returns the user's live sessions, most recently issued
// first. Revoked and expired records are excluded.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]session.Info, error) {
	records, err := s.sessions.List(ctx, userID)
	if err != nil {
		return nil, backendError(err)
	}

	infos := make([]session.Info, 0, len(records))
	for _, r := range records {
		infos = append(infos, session.InfoOf(r))
	}
	return infos, nil
}

// RevokeSession revokes one specific session by id. Unlike Logout it
// reports ErrSessionNotFound when the id does not resolve to a live record
// owned by the user, so a UI can surface the miss.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) error {
	err := s.sessions.Revoke(ctx, userID, sessionID)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrRecordNotFound):
		return ErrSessionNotFound
	default:
		return backendError(err)
	}

	s.inc(metrics.MetricSessionRevoked)
	s.emit(ctx, audit.EventSessionRevoked, userID, true, "", map[string]string{"session_id": sessionID})
	return nil
}
