// Package types defines core domain types for maxreport.
package types

import (
	"errors"
	"fmt"
)

// KeyStrategy is the rotation strategy applied to a key set.
type KeyStrategy string

const (
	KeyStrategyRoundRobin KeyStrategy = "round_robin"
	KeyStrategyRandom     KeyStrategy = "random"
)

// CredentialKind discriminates the Credential variant.
type CredentialKind int

const (
	// CredentialSingleKey holds exactly one API key.
	CredentialSingleKey CredentialKind = iota
	// CredentialKeySet holds several API keys used in rotation.
	CredentialKeySet
)

// Credential is the API key material passed into every request.
// It is a tagged variant: SingleKey or KeySet. Values are immutable
// once constructed; the fetch engine never mutates them.
type Credential struct {
	kind     CredentialKind
	keys     []string
	strategy KeyStrategy
}

// SingleKey returns a credential holding one API key.
func SingleKey(key string) Credential {
	return Credential{kind: CredentialSingleKey, keys: []string{key}, strategy: KeyStrategyRoundRobin}
}

// KeySet returns a credential rotating across keys with the given strategy.
// An empty strategy defaults to round_robin.
func KeySet(strategy KeyStrategy, keys ...string) Credential {
	if strategy == "" {
		strategy = KeyStrategyRoundRobin
	}
	cp := make([]string, len(keys))
	copy(cp, keys)
	return Credential{kind: CredentialKeySet, keys: cp, strategy: strategy}
}

// NewCredential collapses a key list into the narrowest variant.
func NewCredential(strategy KeyStrategy, keys ...string) Credential {
	if len(keys) == 1 {
		return SingleKey(keys[0])
	}
	return KeySet(strategy, keys...)
}

// Kind reports the variant.
func (c Credential) Kind() CredentialKind { return c.kind }

// Strategy reports the rotation strategy. Single keys report round_robin.
func (c Credential) Strategy() KeyStrategy { return c.strategy }

// Keys returns a copy of the keys.
func (c Credential) Keys() []string {
	cp := make([]string, len(c.keys))
	copy(cp, c.keys)
	return cp
}

// Len returns the number of keys.
func (c Credential) Len() int { return len(c.keys) }

// Validate checks the credential holds at least one usable key.
func (c Credential) Validate() error {
	if len(c.keys) == 0 {
		return errors.New("credential requires at least one API key")
	}
	for i, k := range c.keys {
		if k == "" {
			return fmt.Errorf("keys[%d]: empty API key", i)
		}
	}
	switch c.strategy {
	case KeyStrategyRoundRobin, KeyStrategyRandom:
	default:
		return fmt.Errorf("invalid key strategy %q: must be round_robin or random", c.strategy)
	}
	return nil
}

// String never prints key material.
func (c Credential) String() string {
	if c.kind == CredentialKeySet {
		return fmt.Sprintf("KeySet(%d keys, %s)", len(c.keys), c.strategy)
	}
	return "SingleKey(***)"
}
