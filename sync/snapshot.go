package sync

import (
	"context"
	"fmt"
	"io/ioutil"
	"math/big"
	"net/http"
	"regexp"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/zkmining/miner-cli/tree"
)

// SnapshotFetchInterval is the minimum time between remote snapshot pulls;
// within this window the synchronizer relies solely on incremental tailing.
const SnapshotFetchInterval = 24 * time.Hour

var snapshotFileNamePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-.*\.txt$`)

// SnapshotSource lists and fetches dated snapshot files from a fixed remote
// directory, the way tools/specs-checker pulls dated markdown files over
// plain HTTP rather than a package manager or git submodule.
type SnapshotSource struct {
	baseURL string
	client  *http.Client
}

// NewSnapshotSource builds a source rooted at baseURL (a directory serving
// a plain listing of dated deposit/eligibility snapshot files).
func NewSnapshotSource(baseURL string) *SnapshotSource {
	return &SnapshotSource{baseURL: baseURL, client: &http.Client{Timeout: 30 * time.Second}}
}

// snapshotPair is the newest deposit/eligibility snapshot pair newer than
// afterUnix, or nil if none qualifies.
type snapshotPair struct {
	date           string
	depositURL     string
	eligibilityURL string
}

// listFiles fetches the directory's newline-delimited file listing. The
// remote directory is expected to expose a trivial index at "index.txt"
// returning one filename per line, mirroring the plain static-file
// approach tools/specs-checker uses for its remote pull.
func (s *SnapshotSource) listFiles(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/index.txt", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "could not list snapshot directory")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("snapshot directory listing returned status %d", resp.StatusCode)
	}
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var names []string
	start := 0
	for i, b := range body {
		if b == '\n' {
			if line := string(body[start:i]); line != "" {
				names = append(names, line)
			}
			start = i + 1
		}
	}
	if start < len(body) {
		if line := string(body[start:]); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// newestPairAfter picks the newest deposit+eligibility snapshot pair whose
// date strictly exceeds afterDate, or ("", false) if none qualifies.
func newestPairAfter(names []string, afterDate string) (depositName, eligibilityName string, ok bool) {
	type entry struct{ date, name string }
	var deposits, eligibilities []entry
	for _, name := range names {
		m := snapshotFileNamePattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		switch {
		case regexp.MustCompile(`deposit`).MatchString(name):
			deposits = append(deposits, entry{m[1], name})
		case regexp.MustCompile(`eligib`).MatchString(name):
			eligibilities = append(eligibilities, entry{m[1], name})
		}
	}
	pick := func(entries []entry) (string, bool) {
		sort.Slice(entries, func(i, j int) bool { return entries[i].date > entries[j].date })
		for _, e := range entries {
			if e.date > afterDate {
				return e.name, true
			}
		}
		return "", false
	}
	depositName, depositOK := pick(deposits)
	eligibilityName, eligibilityOK := pick(eligibilities)
	if !depositOK || !eligibilityOK {
		return "", "", false
	}
	return depositName, eligibilityName, true
}

func (s *SnapshotSource) fetch(ctx context.Context, name string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+name, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "could not fetch snapshot file %s", name)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("snapshot file %s returned status %d", name, resp.StatusCode)
	}
	return ioutil.ReadAll(resp.Body)
}

// decodedSnapshot is the parsed contents of one snapshot pair.
type decodedSnapshot struct {
	blockNumber    uint64
	encodedRoot    [32]byte
	depositLeaves  [][32]byte
	eligibleShort  []tree.EligibilityLeaf
	eligibleLong   []tree.EligibilityLeaf
}

// FetchNewestPair fetches and decodes the newest snapshot pair dated after
// afterDate (a "YYYY-MM-DD" string), or returns (nil, false) if none
// qualifies. The deposit and eligibility snapshots are expected to report
// the same block_number; a mismatch is rejected as a corrupt or
// non-atomically-published pair.
func (s *SnapshotSource) FetchNewestPair(ctx context.Context, afterDate string) (*decodedSnapshot, bool, error) {
	names, err := s.listFiles(ctx)
	if err != nil {
		return nil, false, err
	}
	depositName, eligibilityName, ok := newestPairAfter(names, afterDate)
	if !ok {
		return nil, false, nil
	}
	depositRaw, err := s.fetch(ctx, depositName)
	if err != nil {
		return nil, false, err
	}
	eligibilityRaw, err := s.fetch(ctx, eligibilityName)
	if err != nil {
		return nil, false, err
	}
	depositBlock, encodedRoot, depositLeaves, err := decodeDepositSnapshot(depositRaw)
	if err != nil {
		return nil, false, err
	}
	eligibilityBlock, short, long, err := decodeEligibilitySnapshot(eligibilityRaw)
	if err != nil {
		return nil, false, err
	}
	if depositBlock != eligibilityBlock {
		return nil, false, errors.Errorf(
			"snapshot pair block number mismatch: deposit=%d eligibility=%d", depositBlock, eligibilityBlock)
	}
	return &decodedSnapshot{
		blockNumber:   depositBlock,
		encodedRoot:   encodedRoot,
		depositLeaves: depositLeaves,
		eligibleShort: short,
		eligibleLong:  long,
	}, true, nil
}

// decodeDepositSnapshot parses a deposit snapshot file: two header lines
// ("block_number=<n>", "root=<hex>") followed by one 32-byte hex leaf hash
// per line, ascending by deposit index.
func decodeDepositSnapshot(raw []byte) (blockNumber uint64, root [32]byte, leaves [][32]byte, err error) {
	lines := splitLines(raw)
	if len(lines) < 2 {
		return 0, root, nil, errors.New("deposit snapshot missing headers")
	}
	if _, err := fmt.Sscanf(lines[0], "block_number=%d", &blockNumber); err != nil {
		return 0, root, nil, errors.Wrap(err, "could not parse deposit snapshot block_number header")
	}
	var rootHex string
	if _, err := fmt.Sscanf(lines[1], "root=%s", &rootHex); err != nil {
		return 0, root, nil, errors.Wrap(err, "could not parse deposit snapshot root header")
	}
	copy(root[:], common.FromHex(rootHex))
	leaves = make([][32]byte, 0, len(lines)-2)
	for _, line := range lines[2:] {
		if line == "" {
			continue
		}
		var leaf [32]byte
		copy(leaf[:], common.FromHex(line))
		leaves = append(leaves, leaf)
	}
	return blockNumber, root, leaves, nil
}

// decodeEligibilitySnapshot parses a combined short/long eligibility
// snapshot file: a header line "block_number=<n>" followed by
// "deposit_index,term,amount_wei" lines (term 0 = short, 1 = long).
func decodeEligibilitySnapshot(raw []byte) (blockNumber uint64, short, long []tree.EligibilityLeaf, err error) {
	lines := splitLines(raw)
	if len(lines) == 0 {
		return 0, nil, nil, errors.New("empty eligibility snapshot")
	}
	if _, err := fmt.Sscanf(lines[0], "block_number=%d", &blockNumber); err != nil {
		return 0, nil, nil, errors.Wrap(err, "could not parse eligibility snapshot header")
	}
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		var depositIndex uint64
		var term uint8
		var amountStr string
		if _, err := fmt.Sscanf(line, "%d,%d,%s", &depositIndex, &term, &amountStr); err != nil {
			return 0, nil, nil, errors.Wrapf(err, "could not parse eligibility snapshot line %q", line)
		}
		amount, ok := new(big.Int).SetString(amountStr, 10)
		if !ok {
			return 0, nil, nil, errors.Errorf("invalid amount in eligibility snapshot line %q", line)
		}
		leaf := tree.EligibilityLeaf{DepositIndex: depositIndex, Amount: amount}
		if term == 0 {
			short = append(short, leaf)
		} else {
			long = append(long, leaf)
		}
	}
	return blockNumber, short, long, nil
}

func splitLines(raw []byte) []string {
	var lines []string
	start := 0
	for i, b := range raw {
		if b == '\n' {
			lines = append(lines, string(raw[start:i]))
			start = i + 1
		}
	}
	if start < len(raw) {
		lines = append(lines, string(raw[start:]))
	}
	return lines
}
