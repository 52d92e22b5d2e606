// Package assets implements the assets-status reducer (C6): a pure
// classification of one sender's deposit events into disjoint lifecycle
// buckets by cross-referencing the local deposit hash tree, both
// eligibility trees, and the mixer/minter nullifier registries. Grounded on
// validator/client/validator.go's RolesAt shape — fetch state, classify,
// return a decision map, never mutate on-chain state — and on
// shared/sliceutil for the set-difference helpers it composes from.
package assets

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/zkmining/miner-cli/chainadapter"
	"github.com/zkmining/miner-cli/chainadapter/contracts"
	"github.com/zkmining/miner-cli/keys"
	"github.com/zkmining/miner-cli/tree"
)

var log = logrus.WithField("prefix", "assets")

// ChainReader is the read surface the reducer needs from the chain
// adapter, narrowed so tests can substitute a fake instead of dialing a
// real node.
type ChainReader interface {
	QueryDepositedEvents(ctx context.Context, fromBlock uint64, sender *common.Address) ([]chainadapter.DepositedEvent, error)
	GetDepositData(ctx context.Context, depositID *big.Int) (contracts.DepositData, error)
	LastProcessedDepositID(ctx context.Context) (*big.Int, error)
	WithdrawalNullifierSpent(ctx context.Context, nullifier [32]byte) (bool, error)
	ClaimNullifierSpent(ctx context.Context, nullifier [32]byte) (bool, error)
}

var _ ChainReader = (*chainadapter.Adapter)(nil)

// Trees bundles the three local trees the reducer cross-references,
// normally the synchronizer's live set.
type Trees struct {
	Deposit          *tree.DepositTree
	EligibilityShort *tree.EligibilityTree
	EligibilityLong  *tree.EligibilityTree
}

// Status is the disjoint partition of a sender's deposit-event sequence,
// addressed by positional index into Events (not by deposit_id, since
// deposit_id is dense but events may be filtered before classification).
type Status struct {
	Events []chainadapter.DepositedEvent

	Contained  []int
	Rejected   []int
	Cancelled  []int
	Pending    []int
	Withdrawn  []int // subset of Contained

	EligibleShort   []int // subset of Contained
	EligibleLong    []int // subset of Contained
	ClaimedShort    []int // subset of EligibleShort
	ClaimedLong     []int // subset of EligibleLong
	ShortAmount     map[int]*big.Int
	LongAmount      map[int]*big.Int
}

// NotWithdrawn returns Contained \ Withdrawn.
func (s *Status) NotWithdrawn() []int { return setDifference(s.Contained, s.Withdrawn) }

// NotClaimedShort returns EligibleShort \ ClaimedShort.
func (s *Status) NotClaimedShort() []int { return setDifference(s.EligibleShort, s.ClaimedShort) }

// NotClaimedLong returns EligibleLong \ ClaimedLong.
func (s *Status) NotClaimedLong() []int { return setDifference(s.EligibleLong, s.ClaimedLong) }

// ClaimableAmount sums the eligibility-tree leaf amounts over a
// not-claimed index set.
func (s *Status) ClaimableAmount(notClaimed []int, amounts map[int]*big.Int) *big.Int {
	total := new(big.Int)
	for _, idx := range notClaimed {
		total.Add(total, amounts[idx])
	}
	return total
}

func setDifference(superset, subset []int) []int {
	excluded := make(map[int]struct{}, len(subset))
	for _, i := range subset {
		excluded[i] = struct{}{}
	}
	out := make([]int, 0, len(superset))
	for _, i := range superset {
		if _, ok := excluded[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

// classificationCache memoizes a deposit event's terminal classification
// (cancelled, withdrawn, claimed) across reducer passes within a
// mining loop run: once a non-chain-reorging terminal state is observed, it
// cannot revert, so re-querying is wasted RPC budget.
var classificationCache, _ = lru.New(4096)

// Reduce classifies every event in events (already fetched for
// depositAddress, sorted ascending by deposit id) into the disjoint
// lifecycle buckets described in spec.md §4.3. Pure: the same trees,
// events, and key always produce the same Status.
func Reduce(ctx context.Context, reader ChainReader, trees Trees, depositAddress common.Address, depositPriv *keys.Key, events []chainadapter.DepositedEvent) (*Status, error) {
	status := &Status{
		Events:      events,
		ShortAmount: make(map[int]*big.Int),
		LongAmount:  make(map[int]*big.Int),
	}

	lastProcessed, err := reader.LastProcessedDepositID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not read last processed deposit id")
	}

	for i, event := range events {
		leafHash := tree.LeafHash(event.RecipientSaltHash, event.TokenIndex, amountBytes(event.Amount))
		if trees.Deposit.Contains(leafHash) {
			status.Contained = append(status.Contained, i)
			continue
		}
		if err := classifyNotContained(ctx, reader, status, i, event, lastProcessed); err != nil {
			return nil, err
		}
	}

	for _, i := range status.Contained {
		if err := classifyWithdrawal(ctx, reader, status, i, events[i], depositPriv); err != nil {
			return nil, err
		}
		classifyEligibility(trees, status, i, events[i])
	}
	for _, i := range status.EligibleShort {
		if err := classifyClaim(ctx, reader, status, i, events[i], depositPriv, true); err != nil {
			return nil, err
		}
	}
	for _, i := range status.EligibleLong {
		if err := classifyClaim(ctx, reader, status, i, events[i], depositPriv, false); err != nil {
			return nil, err
		}
	}
	return status, nil
}

func amountBytes(amount *big.Int) [32]byte {
	var out [32]byte
	amount.FillBytes(out[:])
	return out
}

func classifyNotContained(ctx context.Context, reader ChainReader, status *Status, i int, event chainadapter.DepositedEvent, lastProcessed *big.Int) error {
	cacheKey := "depositdata:" + event.DepositID.String()
	var data contracts.DepositData
	if cached, ok := classificationCache.Get(cacheKey); ok {
		data = cached.(contracts.DepositData)
	} else {
		fetched, err := reader.GetDepositData(ctx, event.DepositID)
		if err != nil {
			return errors.Wrapf(err, "could not read deposit data for id %s", event.DepositID)
		}
		data = fetched
	}
	switch {
	case data.IsRejected:
		status.Rejected = append(status.Rejected, i)
	case data.IsDefault():
		status.Cancelled = append(status.Cancelled, i)
		classificationCache.Add(cacheKey, data)
	default:
		status.Pending = append(status.Pending, i)
		if lastProcessed != nil && event.DepositID.Cmp(lastProcessed) < 0 {
			log.WithFields(logrus.Fields{
				"deposit_id":        event.DepositID,
				"last_processed_id": lastProcessed,
				"sender":            event.Sender.Hex(),
			}).Warn("pending deposit older than last processed id, event-log delay")
		}
	}
	return nil
}

func classifyWithdrawal(ctx context.Context, reader ChainReader, status *Status, i int, event chainadapter.DepositedEvent, priv *keys.Key) error {
	salt := keys.Salt(priv.DepositPrivateKey, event.TxNonce)
	nullifier := keys.PubkeySaltHash(big.NewInt(0), salt)
	cacheKey := "withdrawn:" + common.Bytes2Hex(nullifier[:])
	if cached, ok := classificationCache.Get(cacheKey); ok && cached.(bool) {
		status.Withdrawn = append(status.Withdrawn, i)
		return nil
	}
	spent, err := reader.WithdrawalNullifierSpent(ctx, nullifier)
	if err != nil {
		return errors.Wrapf(err, "could not read withdrawal nullifier for deposit %s", event.DepositID)
	}
	if spent {
		status.Withdrawn = append(status.Withdrawn, i)
		classificationCache.Add(cacheKey, true)
	}
	return nil
}

func classifyEligibility(trees Trees, status *Status, i int, event chainadapter.DepositedEvent) {
	depositIndex, ok := trees.Deposit.GetIndex(tree.LeafHash(event.RecipientSaltHash, event.TokenIndex, amountBytes(event.Amount)))
	if !ok {
		return
	}
	if _, shortAmount, ok := trees.EligibilityShort.GetLeafIndex(depositIndex); ok {
		status.EligibleShort = append(status.EligibleShort, i)
		status.ShortAmount[i] = shortAmount
	}
	if _, longAmount, ok := trees.EligibilityLong.GetLeafIndex(depositIndex); ok {
		status.EligibleLong = append(status.EligibleLong, i)
		status.LongAmount[i] = longAmount
	}
}

func classifyClaim(ctx context.Context, reader ChainReader, status *Status, i int, event chainadapter.DepositedEvent, priv *keys.Key, short bool) error {
	salt := keys.Salt(priv.DepositPrivateKey, event.TxNonce)
	leafHash := tree.LeafHash(event.RecipientSaltHash, event.TokenIndex, amountBytes(event.Amount))
	nullifier := keys.ClaimNullifier(leafHash, salt)
	cacheKey := "claimed:" + map[bool]string{true: "short", false: "long"}[short] + ":" + common.Bytes2Hex(nullifier[:])
	if cached, ok := classificationCache.Get(cacheKey); ok && cached.(bool) {
		appendClaimed(status, i, short)
		return nil
	}
	spent, err := reader.ClaimNullifierSpent(ctx, nullifier)
	if err != nil {
		return errors.Wrapf(err, "could not read claim nullifier for deposit %s", event.DepositID)
	}
	if spent {
		appendClaimed(status, i, short)
		classificationCache.Add(cacheKey, true)
	}
	return nil
}

func appendClaimed(status *Status, i int, short bool) {
	if short {
		status.ClaimedShort = append(status.ClaimedShort, i)
	} else {
		status.ClaimedLong = append(status.ClaimedLong, i)
	}
}
