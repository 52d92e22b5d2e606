// Package agreement implements the one-time terms-of-use acceptance gate
// (C12): an empty sentinel file under the data directory whose mere
// existence records acceptance. Grounded on validator/main.go's call to
// tos.VerifyTosAcceptedOrPrompt (the package itself was filtered from the
// retrieval pack, but the call site and its contract are visible in
// main.go); rebuilt here to the same contract.
package agreement

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileName is the sentinel file recording terms-of-use acceptance.
const FileName = "agreement"

const prompt = `This tool performs on-chain mining actions using a locally held private
key. It does not hold custody of funds beyond what you deposit yourself, and
it cannot reverse a transaction once broadcast. Do you accept these terms? [y/N] `

// Accepted reports whether the sentinel file already exists under dataDir.
func Accepted(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, FileName))
	return err == nil
}

// VerifyAcceptedOrPrompt checks for the sentinel file and, if absent, reads
// a single line of operator confirmation from in before writing it. A
// declined prompt is a fatal user error (spec.md §7's "User" error kind).
func VerifyAcceptedOrPrompt(dataDir string, in *bufio.Reader) error {
	if Accepted(dataDir) {
		return nil
	}
	fmt.Print(prompt)
	line, err := in.ReadString('\n')
	if err != nil {
		return errors.Wrap(err, "could not read terms-of-use response")
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	if answer != "y" && answer != "yes" {
		return errors.New("terms of use were not accepted")
	}
	return persist(dataDir)
}

func persist(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return errors.Wrap(err, "could not create data directory")
	}
	f, err := os.OpenFile(filepath.Join(dataDir, FileName), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrap(err, "could not write agreement sentinel file")
	}
	return f.Close()
}
