// Package keyring selects the API key used for each request.
package keyring

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"github.com/justapithecus/maxreport/types"
)

// Keyring hands out keys from a credential according to its strategy.
// Thread-safe for concurrent access.
type Keyring struct {
	mu       sync.Mutex
	keys     []string
	strategy types.KeyStrategy
	rrIndex  int64
	issued   []int64
}

// New creates a keyring for cred.
// Returns error if the credential fails validation.
func New(cred types.Credential) (*Keyring, error) {
	if err := cred.Validate(); err != nil {
		return nil, fmt.Errorf("credential validation failed: %w", err)
	}
	keys := cred.Keys()
	return &Keyring{
		keys:     keys,
		strategy: cred.Strategy(),
		issued:   make([]int64, len(keys)),
	}, nil
}

// Next returns the key for the next request and advances rotation.
func (k *Keyring) Next() (string, error) {
	return k.selectKey(true)
}

// Peek returns what Next would return without advancing rotation.
// Random keyrings may return a different key on the following Next.
func (k *Keyring) Peek() (string, error) {
	return k.selectKey(false)
}

func (k *Keyring) selectKey(commit bool) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var idx int
	switch k.strategy {
	case types.KeyStrategyRoundRobin:
		idx = int(k.rrIndex % int64(len(k.keys)))
		if commit {
			k.rrIndex++
		}
	case types.KeyStrategyRandom:
		var err error
		idx, err = k.selectRandom()
		if err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unknown strategy %q", k.strategy)
	}

	if commit {
		k.issued[idx]++
	}
	return k.keys[idx], nil
}

// selectRandom selects uniformly at random.
func (k *Keyring) selectRandom() (int, error) {
	n := len(k.keys)
	if n == 1 {
		return 0, nil
	}
	bigIdx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("random selection failed: %w", err)
	}
	return int(bigIdx.Int64()), nil
}

// Stats describes keyring usage. Keys are never included.
type Stats struct {
	Strategy types.KeyStrategy `json:"strategy"`
	Keys     int               `json:"keys"`
	Issued   []int64           `json:"issued"`
}

// Stats returns how many times each key position was issued.
func (k *Keyring) Stats() Stats {
	k.mu.Lock()
	defer k.mu.Unlock()
	issued := make([]int64, len(k.issued))
	copy(issued, k.issued)
	return Stats{Strategy: k.strategy, Keys: len(k.keys), Issued: issued}
}
