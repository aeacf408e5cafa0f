// Package stores holds the Redis-backed single-use token stores used for
// password reset and email verification. Records are time-boxed by Redis
// TTL plus an embedded expiry, and consumption is exactly-once via an
// optimistic WATCH transaction.
package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const oneTimeRecordVersionV1 = 1

// Kind namespaces one-time token records.
type Kind byte

const (
	KindPasswordReset Kind = iota
	KindEmailVerification
)

var (
	ErrTokenNotFound         = errors.New("one-time token not found")
	ErrTokenSecretMismatch   = errors.New("one-time token secret mismatch")
	ErrTokenAttemptsExceeded = errors.New("one-time token attempts exceeded")
	ErrStoreUnavailable      = errors.New("one-time token store unavailable")
)

// Record is the server-side half of a single-use token. The client holds
// recordID||secret; the store holds only the secret's hash.
type Record struct {
	UserID     string
	SecretHash [32]byte
	ExpiresAt  int64
	Attempts   uint16
	Kind       Kind
}

// OneTimeTokenStore persists consumable token records in Redis.
type OneTimeTokenStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewOneTimeTokenStore(redisClient redis.UniversalClient, prefix string) *OneTimeTokenStore {
	if prefix == "" {
		prefix = "ott"
	}
	return &OneTimeTokenStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *OneTimeTokenStore) key(kind Kind, recordID string) string {
	return fmt.Sprintf("%s:%d:%s", s.prefix, kind, recordID)
}

// Save stores a fresh record under the given TTL.
func (s *OneTimeTokenStore) Save(ctx context.Context, recordID string, record *Record, ttl time.Duration) error {
	encoded, err := encodeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(record.Kind, recordID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// Consume validates the provided secret hash against the stored record and
// deletes it in the same transaction. A record is consumed at most once:
// concurrent presentations race on the WATCH and exactly one wins. Wrong
// secrets burn an attempt; maxAttempts bad guesses destroy the record.
func (s *OneTimeTokenStore) Consume(
	ctx context.Context,
	kind Kind,
	recordID string,
	providedHash [32]byte,
	maxAttempts int,
) (*Record, error) {
	const maxRetries = 4
	key := s.key(kind, recordID)

	for i := 0; i < maxRetries; i++ {
		var matched *Record

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeRecord(data)
			if err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				return deleteInTx(ctx, tx, key, ErrTokenNotFound)
			}
			if record.Kind != kind {
				return deleteInTx(ctx, tx, key, ErrTokenSecretMismatch)
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					return deleteInTx(ctx, tx, key, ErrTokenAttemptsExceeded)
				}

				ttl := time.Until(time.Unix(record.ExpiresAt, 0))
				if ttl <= 0 {
					return deleteInTx(ctx, tx, key, ErrTokenNotFound)
				}

				updated, err := encodeRecord(record)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrTokenSecretMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrTokenNotFound
			case errors.Is(err, ErrTokenNotFound),
				errors.Is(err, ErrTokenSecretMismatch),
				errors.Is(err, ErrTokenAttemptsExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, ErrTokenNotFound
}

func deleteInTx(ctx context.Context, tx *redis.Tx, key string, result error) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return err
	}
	return result
}

func encodeRecord(record *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(oneTimeRecordVersionV1)
	buf.WriteByte(byte(record.Kind))

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("one-time token user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != oneTimeRecordVersionV1 {
		return nil, errors.New("invalid one-time token record version")
	}

	kind, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &Record{Kind: Kind(kind)}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}
	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
