// Package verification issues and checks the one-time email verification codes
// used when accounts are managed locally.
package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	CodeLength = 6

	keyPrefix     = "verification:"
	fieldCode     = "code"
	fieldAttempts = "attempts"
)

var (
	// ErrCodeExpired is returned when no code is outstanding for the email.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeMismatch is returned when the presented code is wrong.
	ErrCodeMismatch = errors.New("verification code mismatch")
)

// CodeStore keeps one outstanding code per email in a Redis hash with a TTL.
type CodeStore struct {
	client      redis.Cmdable
	ttl         time.Duration
	maxAttempts int
}

func NewCodeStore(client redis.Cmdable, ttl time.Duration, maxAttempts int) *CodeStore {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &CodeStore{client: client, ttl: ttl, maxAttempts: maxAttempts}
}

// Issue draws a new random code for email, replacing any previous one.
func (s *CodeStore) Issue(ctx context.Context, email string) (string, error) {
	code, err := randomDigits(CodeLength)
	if err != nil {
		return "", err
	}

	key := codeKey(email)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fieldCode, code, fieldAttempts, 0)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store verification code: %w", err)
	}
	return code, nil
}

// Verify consumes the outstanding code for email when it matches. A wrong code
// counts as an attempt; the code is dropped once the attempts are exhausted.
func (s *CodeStore) Verify(ctx context.Context, email, code string) error {
	key := codeKey(email)

	stored, err := s.client.HGet(ctx, key, fieldCode).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCodeExpired
	}
	if err != nil {
		return fmt.Errorf("load verification code: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		attempts, err := s.client.HIncrBy(ctx, key, fieldAttempts, 1).Result()
		if err != nil {
			return fmt.Errorf("count verification attempt: %w", err)
		}
		if attempts >= int64(s.maxAttempts) {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return fmt.Errorf("drop verification code: %w", err)
			}
		}
		return ErrCodeMismatch
	}

	deleted, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("consume verification code: %w", err)
	}
	// consumed concurrently
	if deleted == 0 {
		return ErrCodeExpired
	}
	return nil
}

func codeKey(email string) string {
	return keyPrefix + email
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate verification code: %w", err)
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
