// Package cooldown implements the two sleep flavors the mining loop uses
// between on-chain actions of the same address (C10): a deterministic,
// seeded wait that two independent runs observing the same on-chain event
// will reproduce identically, and a post-action random padding wait that
// deliberately is NOT reproducible. Grounded on golang.org/x/crypto/chacha20
// as a seeded keystream generator, the corpus's only dependency suited to
// deterministic byte generation.
package cooldown

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/chacha20"
)

// Window bounds a cooldown duration.
type Window struct {
	Min time.Duration
	Max time.Duration
}

// SleepDuration is a pure function of (lastEventTimestamp, address, tag):
// seed = keccak256("{lastEventTimestamp}{address}{tag}"), fed into a
// ChaCha20 stream used as a seeded PRNG, producing a uniform duration in
// [window.Min, window.Max).
func SleepDuration(lastEventTimestamp uint64, address common.Address, tag string, window Window) time.Duration {
	seed := crypto.Keccak256([]byte(fmt.Sprintf("%d%s%s", lastEventTimestamp, address.Hex(), tag)))
	stream := newChaChaStream(seed)
	span := window.Max - window.Min
	if span <= 0 {
		return window.Min
	}
	offset := uniformFromStream(stream, uint64(span))
	return window.Min + time.Duration(offset)
}

// newChaChaStream builds a ChaCha20 cipher keyed on the first 32 bytes of
// seed with a fixed all-zero nonce, used purely as a deterministic keystream
// source rather than for encryption.
func newChaChaStream(seed []byte) *chacha20.Cipher {
	var key [32]byte
	copy(key[:], seed)
	nonce := make([]byte, chacha20.NonceSize)
	stream, err := chacha20.NewUnauthenticatedCipher(key[:], nonce)
	if err != nil {
		// Key and nonce are both fixed-size local slices; construction can
		// only fail on a length mismatch, which would be a programmer error.
		panic(err)
	}
	return stream
}

// uniformFromStream draws 8 keystream bytes and reduces them mod span,
// reusing math/big's big.Int mod-reduce so the reduction exactly mirrors
// how every other field-reduction in this codebase is performed.
func uniformFromStream(stream *chacha20.Cipher, span uint64) uint64 {
	buf := make([]byte, 8)
	keystream := make([]byte, 8)
	stream.XORKeyStream(keystream, buf)
	v := new(big.Int).SetUint64(binary.BigEndian.Uint64(keystream))
	return v.Mod(v, new(big.Int).SetUint64(span)).Uint64()
}

// DeterministicSleep blocks until lastEventTimestamp + SleepDuration(...)
// has elapsed, returning immediately if that target is already in the
// past. Two runs observing the same on-chain event choose the same wait,
// preventing timing correlation between the user's machine clock and the
// deposit address.
func DeterministicSleep(ctx context.Context, lastEventTimestamp uint64, address common.Address, tag string, window Window) error {
	duration := SleepDuration(lastEventTimestamp, address, tag, window)
	target := time.Unix(int64(lastEventTimestamp), 0).Add(duration)
	remaining := time.Until(target)
	if remaining <= 0 {
		return nil
	}
	select {
	case <-time.After(remaining):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RandomCooldown sleeps for a uniform-random duration in [window.Min,
// window.Max), seeded from process entropy rather than the deterministic
// seed above: this is post-action privacy padding, not a correlation guard,
// so two runs are intentionally not expected to agree.
func RandomCooldown(ctx context.Context, window Window) error {
	span := window.Max - window.Min
	duration := window.Min
	if span > 0 {
		duration += time.Duration(rand.Int63n(int64(span)))
	}
	select {
	case <-time.After(duration):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
