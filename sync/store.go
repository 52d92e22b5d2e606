// Package sync keeps the local deposit hash tree and both eligibility trees
// consistent with on-chain state: a periodic bulk snapshot pull plus
// incremental event tailing, watermarked in a small bbolt store. Grounded on
// validator/db/kv.Store's "open once, bucket per concern, prombbolt
// collector registered alongside" shape, repurposed from slashing-protection
// history to a single sync watermark.
package sync

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	prombolt "github.com/prysmaticlabs/prombbolt"
	bolt "go.etcd.io/bbolt"
)

// WatermarkDBFileName is the bbolt file name written under a network's data
// directory.
var WatermarkDBFileName = "sync.db"

var (
	watermarkBucket = []byte("sync-watermark-bucket")

	lastSnapshotFetchKey  = []byte("last-snapshot-fetch-unix")
	depositWatermarkKey   = []byte("deposit-block-watermark")
	eligibilityShortKey   = []byte("eligibility-short-block-watermark")
	eligibilityLongKey    = []byte("eligibility-long-block-watermark")
)

// Store persists the synchronizer's watermarks so a restart resumes the
// incremental tail instead of re-pulling from genesis.
type Store struct {
	db           *bolt.DB
	databasePath string
}

// NewStore opens (creating if absent) the bbolt watermark store at dirPath.
func NewStore(dirPath string) (*Store, error) {
	if err := os.MkdirAll(dirPath, 0700); err != nil {
		return nil, errors.Wrap(err, "could not create sync data directory")
	}
	datafile := filepath.Join(dirPath, WatermarkDBFileName)
	db, err := bolt.Open(datafile, 0600, &bolt.Options{Timeout: 1})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, errors.New("cannot obtain sync database lock, may be in use by another process")
		}
		return nil, errors.Wrap(err, "could not open sync watermark db")
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(watermarkBucket)
		return err
	}); err != nil {
		return nil, err
	}
	store := &Store{db: db, databasePath: dirPath}
	if err := prometheus.Register(prombolt.New("syncDB", db)); err != nil {
		// Re-registration on process restart within the same registry is
		// harmless; any other registration failure is not.
		if !errors.As(err, &prometheus.AlreadyRegisteredError{}) {
			return nil, err
		}
	}
	return store, nil
}

// Close closes the underlying boltdb database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) getUint64(key []byte) (uint64, error) {
	var value uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(watermarkBucket).Get(key)
		if raw == nil {
			return nil
		}
		value = beUint64(raw)
		return nil
	})
	return value, err
}

func (s *Store) setUint64(key []byte, value uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(watermarkBucket).Put(key, beBytes(value))
	})
}

// LastSnapshotFetchUnix returns the unix timestamp of the last successful
// snapshot pull, or zero if one has never run.
func (s *Store) LastSnapshotFetchUnix() (uint64, error) { return s.getUint64(lastSnapshotFetchKey) }

// SetLastSnapshotFetchUnix records the unix timestamp of a successful
// snapshot pull.
func (s *Store) SetLastSnapshotFetchUnix(unixTime uint64) error {
	return s.setUint64(lastSnapshotFetchKey, unixTime)
}

// DepositWatermark returns the last block number the deposit hash tree has
// tailed events up to.
func (s *Store) DepositWatermark() (uint64, error) { return s.getUint64(depositWatermarkKey) }

// SetDepositWatermark records the deposit tree's tail progress.
func (s *Store) SetDepositWatermark(block uint64) error {
	return s.setUint64(depositWatermarkKey, block)
}

// EligibilityWatermark returns the last recorded block for the given term's
// eligibility tree (0 = short, 1 = long).
func (s *Store) EligibilityWatermark(term uint8) (uint64, error) {
	return s.getUint64(s.eligibilityKey(term))
}

// SetEligibilityWatermark records the given term's eligibility tree block.
func (s *Store) SetEligibilityWatermark(term uint8, block uint64) error {
	return s.setUint64(s.eligibilityKey(term), block)
}

func (s *Store) eligibilityKey(term uint8) []byte {
	if term == 0 {
		return eligibilityShortKey
	}
	return eligibilityLongKey
}

func beBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
	return b
}

func beUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
