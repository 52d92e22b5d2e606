package chainadapter

import "github.com/pkg/errors"

// ErrTransactionFailed is returned when every broadcast variant of a
// gas-bumped send was included but reverted on chain.
var ErrTransactionFailed = errors.New("transaction failed")

// ErrMaxRetriesReached is returned when a gas-bumped send exhausts its bump
// attempts without any variant being included.
var ErrMaxRetriesReached = errors.New("gas bump retries exhausted")

// ErrRootNeverExisted is returned when a local Merkle root has no matching
// depositRoots entry on chain; spec.md treats this as fatal.
var ErrRootNeverExisted = errors.New("local root never existed on chain")
