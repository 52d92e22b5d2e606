// Package mining drives the per-address outer state machines (C9): the
// mining loop (deposit -> wait -> withdraw -> next address), the exit loop
// (withdraw/cancel everything, deposit nothing), and the claim loop (batch
// claims across every used key). Grounded on validator/client/runner.go's
// run() loop — wait for event, update assignments, act per role, repeat —
// generalized from "per slot" timing to "per address" timing.
package mining

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ExclusionChecker reports whether an address is on the circulation
// exclusion list (spec.md §6's "Circulation/exclusion server").
type ExclusionChecker interface {
	IsExcluded(ctx context.Context, address common.Address) (bool, error)
}

// HTTPExclusionChecker calls GET /addresses/{addr}/exclusion, grounded on
// the same plain net/http client style used throughout this codebase for
// small JSON service calls (sync/snapshot.go, proofengine/gnark.go).
type HTTPExclusionChecker struct {
	baseURL string
	http    *http.Client
}

// NewHTTPExclusionChecker builds a checker rooted at baseURL.
func NewHTTPExclusionChecker(baseURL string) *HTTPExclusionChecker {
	return &HTTPExclusionChecker{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

type exclusionResponse struct {
	IsExcluded bool `json:"is_excluded"`
}

// IsExcluded implements ExclusionChecker.
func (c *HTTPExclusionChecker) IsExcluded(ctx context.Context, address common.Address) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/addresses/"+address.Hex()+"/exclusion", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, errors.Wrap(err, "could not reach exclusion server")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, errors.Errorf("exclusion server returned status %d", resp.StatusCode)
	}
	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}
	var parsed exclusionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return false, errors.Wrap(err, "could not parse exclusion response")
	}
	return parsed.IsExcluded, nil
}
