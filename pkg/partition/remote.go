package partition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RemoteBackend submits the cost graph to a remote optimizer service over
// HTTP. The service contract mirrors Backend.Evaluate; what runs behind the
// endpoint (specialized hardware or another solver) is the operator's choice.
type RemoteBackend struct {
	url        string
	client     *http.Client
	maxMembers int
}

// NewRemoteBackend creates a remote backend against the given evaluate URL.
func NewRemoteBackend(url string, timeout time.Duration) *RemoteBackend {
	return &RemoteBackend{
		url:        url,
		client:     &http.Client{Timeout: timeout},
		maxMembers: 5,
	}
}

func (b *RemoteBackend) Name() string { return "remote" }

// MaxMembers keeps remote problems small: 5 members per ring.
func (b *RemoteBackend) MaxMembers() int { return b.maxMembers }

type remoteRequest struct {
	Members int        `json:"members"`
	Edges   [][2]int   `json:"edges"`
	Bias    BiasParams `json:"bias"`
	Shots   int        `json:"shots"`
}

type remoteResponse struct {
	Counts map[string]int `json:"counts"`
}

// Evaluate posts the problem and decodes the sampled counts. Any transport
// or protocol failure is reported as ErrBackendFailed so the engine can move
// down the chain.
func (b *RemoteBackend) Evaluate(ctx context.Context, n int, edges [][2]int, bias BiasParams, shots int) (map[string]int, error) {
	if n < 1 || n > b.maxMembers {
		return nil, fmt.Errorf("%w: remote backend supports 1..%d members, got %d", ErrBackendFailed, b.maxMembers, n)
	}

	body, err := json.Marshal(remoteRequest{Members: n, Edges: edges, Bias: bias, Shots: shots})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: optimizer returned status %d", ErrBackendFailed, resp.StatusCode)
	}

	var decoded remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailed, err)
	}

	if len(decoded.Counts) == 0 {
		return nil, fmt.Errorf("%w: optimizer returned no samples", ErrBackendFailed)
	}
	for bits := range decoded.Counts {
		if len(bits) != n {
			return nil, fmt.Errorf("%w: sample width %d does not match %d members", ErrBackendFailed, len(bits), n)
		}
	}

	return decoded.Counts, nil
}
