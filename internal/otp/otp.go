// Package otp issues the four-digit codes exchanged between provider and seeker.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
)

type Issuer interface {
	Issue(ctx context.Context) (string, error)
}

// Random draws codes in 1000..9999 from crypto/rand.
type Random struct{}

func (Random) Issue(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", fmt.Errorf("otp: draw: %w", err)
	}
	return fmt.Sprintf("%d", 1000+n.Int64()), nil
}

// ErrExhausted is returned by Fixed once its scripted codes run out.
var ErrExhausted = errors.New("otp: no scripted codes left")

// Fixed hands out a scripted sequence of codes. Useful wherever a deterministic code is
// needed, mainly tests.
type Fixed struct {
	mu    sync.Mutex
	codes []string
	Err   error
}

func NewFixed(codes ...string) *Fixed {
	return &Fixed{codes: codes}
}

func (f *Fixed) Issue(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.codes) == 0 {
		return "", ErrExhausted
	}
	c := f.codes[0]
	f.codes = f.codes[1:]
	return c, nil
}
