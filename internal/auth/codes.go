package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CodeStore holds short-lived, single-use verification codes. The
// interface keeps the backing store swappable; production uses
// redis for its native expiry.
type CodeStore interface {
	Set(ctx context.Context, email, code string, ttl time.Duration) error
	// Consume reports whether code matched; a match deletes the
	// code so it can never be replayed.
	Consume(ctx context.Context, email, code string) (bool, error)
}

// NewCode returns a random six-digit code.
func NewCode() string {
	n, _ := rand.Int(rand.Reader, big.NewInt(1000000))
	return fmt.Sprintf("%06d", n.Int64())
}

type RedisCodes struct {
	client *redis.Client
}

func NewRedisCodes(client *redis.Client) *RedisCodes {
	return &RedisCodes{client: client}
}

func codeKey(email string) string { return "verify:code:" + email }

func (r *RedisCodes) Set(ctx context.Context, email, code string, ttl time.Duration) error {
	return r.client.Set(ctx, codeKey(email), code, ttl).Err()
}

func (r *RedisCodes) Consume(ctx context.Context, email, code string) (bool, error) {
	v, err := r.client.Get(ctx, codeKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if v != code {
		return false, nil
	}
	_ = r.client.Del(ctx, codeKey(email)).Err()
	return true, nil
}

// MemoryCodes is the in-process fallback with explicit expiry
// checks, cleared on use.
type MemoryCodes struct {
	mu    sync.Mutex
	codes map[string]memoryCode
	now   func() time.Time
}

type memoryCode struct {
	code    string
	expires time.Time
}

func NewMemoryCodes() *MemoryCodes {
	return &MemoryCodes{codes: make(map[string]memoryCode), now: time.Now}
}

func (m *MemoryCodes) Set(ctx context.Context, email, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[email] = memoryCode{code: code, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemoryCodes) Consume(ctx context.Context, email, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[email]
	if !ok {
		return false, nil
	}
	if m.now().After(c.expires) {
		delete(m.codes, email)
		return false, nil
	}
	if c.code != code {
		return false, nil
	}
	delete(m.codes, email)
	return true, nil
}
