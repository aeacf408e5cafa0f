package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRecordNotFound covers missing and expired records.
	ErrRecordNotFound = errors.New("session record not found")
	// ErrHashMismatch means the presented refresh secret does not match the
	// live record — the canonical rotated-token-replay signal.
	ErrHashMismatch = errors.New("refresh token hash mismatch")
	// ErrRecordRevoked means the record exists but was explicitly revoked.
	ErrRecordRevoked = errors.New("session record revoked")
	// ErrRedisUnavailable wraps backend transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Registry is the Redis-backed store of refresh-token records. Revoked
// records are retained until natural expiry so a replayed token surfaces as
// a reuse signal instead of a generic miss.
type Registry struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRegistry creates a registry under the given key prefix.
func NewRegistry(redisClient redis.UniversalClient, prefix string) *Registry {
	if prefix == "" {
		prefix = "sr"
	}
	return &Registry{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *Registry) WithClock(now func() time.Time) *Registry {
	s.now = now
	return s
}

func (s *Registry) key(recordID string) string {
	return s.prefix + ":" + recordID
}

func (s *Registry) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

func (s *Registry) reuseKey(recordID string) string {
	return s.prefix + "ra:" + recordID
}

// Save persists a new record and indexes it under its user.
func (s *Registry) Save(ctx context.Context, r *Record) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}

	ttl := time.Until(time.Unix(r.ExpiresAt, 0))
	if ttl <= 0 {
		return errors.New("session record already expired")
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(r.ID), data, ttl)
		pipe.SAdd(ctx, s.userKey(r.UserID), r.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get loads a record by ID. Expired records report ErrRecordNotFound;
// revoked records are returned (callers decide whether revoked is an error).
func (s *Registry) Get(ctx context.Context, recordID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(recordID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	r, err := Decode(data)
	if err != nil {
		return nil, err
	}
	r.ID = recordID

	if r.Expired(s.now()) {
		return nil, ErrRecordNotFound
	}

	return r, nil
}

// List returns the live (non-revoked, non-expired) records for a user and
// prunes stale index entries as a side effect.
func (s *Registry) List(ctx context.Context, userID string) ([]*Record, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var (
		records []*Record
		stale   []interface{}
	)
	now := s.now()

	for _, id := range ids {
		data, err := s.redis.Get(ctx, s.key(id)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				stale = append(stale, id)
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		r, err := Decode(data)
		if err != nil {
			stale = append(stale, id)
			continue
		}
		r.ID = id

		if r.UserID != userID || r.Expired(now) || r.Revoked() {
			continue
		}
		records = append(records, r)
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, s.userKey(userID), stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return records, nil
}

// Revoke marks one record revoked. Fails ErrRecordNotFound when the record
// is missing, expired, or owned by a different user.
func (s *Registry) Revoke(ctx context.Context, userID, recordID string) error {
	const maxRetries = 4
	key := s.key(recordID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			r, err := Decode(data)
			if err != nil {
				return err
			}
			r.ID = recordID

			if r.UserID != userID || r.Expired(s.now()) {
				return ErrRecordNotFound
			}
			if r.Revoked() {
				return nil // idempotent
			}

			r.RevokedAt = s.now().Unix()
			updated, err := Encode(r)
			if err != nil {
				return err
			}

			ttl := time.Until(time.Unix(r.ExpiresAt, 0))
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return ErrRecordNotFound
			case errors.Is(err, ErrRecordNotFound), errors.Is(err, errCorruptRecord):
				return ErrRecordNotFound
			default:
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}
		return nil
	}

	return ErrRecordNotFound
}

// RevokeAll marks every live record for the user revoked and returns how
// many were touched. Used on logout-all, password change, and password
// reset. The sweep re-lists until the live set is empty: a rotation landing
// after one snapshot installs a replacement the next pass catches, and a
// rotation landing after the final pass fails on its revoked predecessor.
func (s *Registry) RevokeAll(ctx context.Context, userID string) (int, error) {
	const maxPasses = 4

	revoked := 0
	for pass := 0; ; pass++ {
		records, err := s.List(ctx, userID)
		if err != nil {
			return revoked, err
		}
		if len(records) == 0 {
			return revoked, nil
		}
		if pass == maxPasses {
			return revoked, fmt.Errorf("revoke all for user %s: %d record(s) still live after %d passes", userID, len(records), maxPasses)
		}

		for _, r := range records {
			if err := s.Revoke(ctx, userID, r.ID); err != nil {
				if errors.Is(err, ErrRecordNotFound) {
					continue // expired between list and revoke
				}
				return revoked, err
			}
			revoked++
		}
	}
}

// Rotate atomically validates the presented hash against the live record,
// revokes it, and installs the replacement record — all in one optimistic
// transaction keyed on the old record. Failure modes:
//
//   - ErrRecordNotFound: no such record, or it expired.
//   - ErrRecordRevoked: record was already rotated or revoked — a replayed
//     token; the caller should treat this as a compromise indicator.
//   - ErrHashMismatch: live record, wrong secret; the record is revoked as
//     part of the same transaction and the caller gets the reuse signal.
func (s *Registry) Rotate(ctx context.Context, recordID string, providedHash [32]byte, next *Record) error {
	const maxRetries = 4
	key := s.key(recordID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			r, err := Decode(data)
			if err != nil {
				return err
			}
			r.ID = recordID

			now := s.now()
			if r.Expired(now) {
				return ErrRecordNotFound
			}
			if r.Revoked() {
				return ErrRecordRevoked
			}

			if subtle.ConstantTimeCompare(r.TokenHash[:], providedHash[:]) != 1 {
				// Wrong secret against a live record: revoke it so the
				// legitimate holder is forced to re-authenticate too.
				r.RevokedAt = now.Unix()
				updated, encErr := Encode(r)
				if encErr != nil {
					return encErr
				}
				ttl := time.Until(time.Unix(r.ExpiresAt, 0))
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrHashMismatch
			}

			r.RevokedAt = now.Unix()
			oldEncoded, err := Encode(r)
			if err != nil {
				return err
			}

			newEncoded, err := Encode(next)
			if err != nil {
				return err
			}
			newTTL := time.Until(time.Unix(next.ExpiresAt, 0))
			if newTTL <= 0 {
				return errors.New("replacement record already expired")
			}

			oldTTL := time.Until(time.Unix(r.ExpiresAt, 0))
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, oldEncoded, oldTTL)
				pipe.Set(ctx, s.key(next.ID), newEncoded, newTTL)
				pipe.SAdd(ctx, s.userKey(next.UserID), next.ID)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return ErrRecordNotFound
			case errors.Is(err, ErrRecordNotFound),
				errors.Is(err, ErrRecordRevoked),
				errors.Is(err, ErrHashMismatch):
				return err
			case errors.Is(err, errCorruptRecord):
				return ErrRecordNotFound
			default:
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}
		return nil
	}

	return ErrRecordNotFound
}

// TrackReuse records a reuse anomaly marker for later inspection.
func (s *Registry) TrackReuse(ctx context.Context, recordID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := s.redis.Set(ctx, s.reuseKey(recordID), s.now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
