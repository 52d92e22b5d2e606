package pipeline

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/zkmining/miner-cli/internal/atomicfile"
)

// LoadStatus unmarshals a persisted pipeline status file of type T into
// dst. It returns (false, nil) if the file does not exist — the "no
// pipeline to resume" case — and propagates any other error.
func LoadStatus(path string, dst interface{}) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "could not read pipeline status file")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, errors.Wrap(err, "could not parse pipeline status file")
	}
	return true, nil
}

// SaveStatus atomically persists src to path: mutate in memory, marshal,
// write-then-rename. Called after every step transition so a crash between
// any two steps resumes from the last completed one.
func SaveStatus(path string, src interface{}) error {
	raw, err := json.MarshalIndent(src, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not marshal pipeline status")
	}
	return atomicfile.WriteFile(path, raw, 0600)
}

// DeleteStatus removes a persisted status file. Both pipelines call it in
// their ContractCall step right before the on-chain call is sent, so a
// submission that fails or times out afterwards leaves no file to resume
// from; the on-chain nullifiers guard against a double submission.
func DeleteStatus(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "could not delete pipeline status file")
	}
	return nil
}
