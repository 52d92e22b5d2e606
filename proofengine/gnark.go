package proofengine

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// GnarkClient is an HTTP WrapperProver for the remote Gnark wrapping
// service described in spec.md §6: POST /start-proof, GET /get-proof.
// Grounded on sync/snapshot.go's plain net/http client usage — the only
// precedent in the corpus for a bare HTTPS GET/POST against a small JSON
// service, rather than a generated SDK client.
type GnarkClient struct {
	baseURL string
	http    *http.Client
}

// NewGnarkClient builds a client rooted at baseURL.
func NewGnarkClient(baseURL string) *GnarkClient {
	return &GnarkClient{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

type startProofRequest struct {
	Address      string `json:"address"`
	Proof        string `json:"proof"`
	PublicInputs string `json:"public_inputs"`
}

type startProofResponse struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	EstimatedTime int64  `json:"estimated_time_ms"`
}

// StartProof implements WrapperProver.
func (c *GnarkClient) StartProof(ctx context.Context, address [20]byte, innerProof InnerProof, publicInputs []byte) (string, int64, error) {
	body, err := json.Marshal(startProofRequest{
		Address:      hex.EncodeToString(address[:]),
		Proof:        hex.EncodeToString(innerProof),
		PublicInputs: hex.EncodeToString(publicInputs),
	})
	if err != nil {
		return "", 0, errors.Wrap(err, "could not marshal start-proof request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/start-proof", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, errors.Wrap(err, "could not reach wrapper prover")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, errors.Errorf("wrapper prover start-proof returned status %d", resp.StatusCode)
	}
	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	var parsed startProofResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", 0, errors.Wrap(err, "could not parse start-proof response")
	}
	return parsed.JobID, parsed.EstimatedTime, nil
}

type getProofResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Result string `json:"result"`
}

// GetProof implements WrapperProver.
func (c *GnarkClient) GetProof(ctx context.Context, jobID string) (JobStatus, OuterProof, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/get-proof?jobId="+jobID, nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", nil, errors.Wrap(err, "could not reach wrapper prover")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, errors.Errorf("wrapper prover get-proof returned status %d", resp.StatusCode)
	}
	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", nil, err
	}
	var parsed getProofResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", nil, errors.Wrap(err, "could not parse get-proof response")
	}
	status := JobStatus(parsed.Status)
	if status != JobPending && status != JobDone && status != JobError {
		return "", nil, errors.Errorf("wrapper prover returned unknown job status %q", parsed.Status)
	}
	if status != JobDone {
		return status, nil, nil
	}
	result, err := hex.DecodeString(parsed.Result)
	if err != nil {
		return "", nil, errors.Wrap(err, "could not decode proof result hex")
	}
	return status, result, nil
}
