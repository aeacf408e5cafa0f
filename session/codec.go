package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const recordVersionV1 = 1

var errCorruptRecord = errors.New("corrupt session record")

// Encode serializes a record into the compact binary layout stored in
// Redis: version byte, three int64 timestamps, length-prefixed user ID,
// token hash, length-prefixed user agent and IP.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)

	for _, ts := range []int64{r.IssuedAt, r.ExpiresAt, r.RevokedAt} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	for _, field := range []string{r.UserID, r.UserAgent, r.IP} {
		if len(field) > 65535 {
			return nil, errors.New("session record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	buf.Write(r.TokenHash[:])

	return buf.Bytes(), nil
}

// Decode parses the binary layout produced by Encode. The record ID is not
// part of the payload; callers set it from the Redis key.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, errCorruptRecord
	}
	if version != recordVersionV1 {
		return nil, errCorruptRecord
	}

	r := &Record{}

	for _, dst := range []*int64{&r.IssuedAt, &r.ExpiresAt, &r.RevokedAt} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, errCorruptRecord
		}
	}

	for _, dst := range []*string{&r.UserID, &r.UserAgent, &r.IP} {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, errCorruptRecord
		}
		field := make([]byte, length)
		if _, err := io.ReadFull(reader, field); err != nil {
			return nil, errCorruptRecord
		}
		*dst = string(field)
	}

	if _, err := io.ReadFull(reader, r.TokenHash[:]); err != nil {
		return nil, errCorruptRecord
	}

	return r, nil
}
