// Package entitlement decides which credential pays for a generation request.
package entitlement

import (
	"context"
	"fmt"
	"strings"

	"github.com/promptarchitect/server/internal/provider"
)

// PersonalKeyLookup returns the caller's stored key for a canonical provider tag, if any.
type PersonalKeyLookup func(ctx context.Context, providerTag string) (string, bool, error)

// Input is the entitlement state of one request.
type Input struct {
	Provider           string
	BYOKEnabled        bool
	PromptsIncluded    int
	UsageCount         int
	WantPersonalKey    *bool // Explicit request flag; nil falls back to DefaultPersonalKey.
	DefaultPersonalKey bool  // Subscription-level preference.
}

// Decision is the credential chosen for a request.
type Decision struct {
	Credential    string
	IsPlatformKey bool
}

// Resolver picks between platform secrets and personal keys.
type Resolver struct {
	secrets map[string]string
}

// NewResolver returns a resolver over the platform secrets keyed by provider tag.
func NewResolver(secrets map[string]string) *Resolver {
	normalized := make(map[string]string, len(secrets))
	for tag, secret := range secrets {
		tag = provider.NormalizeTag(tag)
		secret = strings.TrimSpace(secret)
		if tag == "" || secret == "" {
			continue
		}
		normalized[tag] = secret
	}
	return &Resolver{secrets: normalized}
}

// HasPlatformSecret reports whether a platform secret is configured for provider.
func (r *Resolver) HasPlatformSecret(tag string) bool {
	if r == nil {
		return false
	}
	_, ok := r.secrets[provider.NormalizeTag(tag)]
	return ok
}

// Resolve returns the credential to use, or an *Error describing the refusal.
// lookup is consulted at most once and only when a personal key may be used.
func (r *Resolver) Resolve(ctx context.Context, in Input, lookup PersonalKeyLookup) (Decision, error) {
	tag := provider.NormalizeTag(in.Provider)
	keys := &memoLookup{lookup: lookup, provider: tag}

	personal := in.DefaultPersonalKey
	if in.WantPersonalKey != nil {
		personal = *in.WantPersonalKey
	}
	if personal && !in.BYOKEnabled {
		personal = false
	}

	if !personal && in.UsageCount >= in.PromptsIncluded {
		if !in.BYOKEnabled {
			return Decision{}, quotaExceededUpgradeRequired(in.PromptsIncluded)
		}
		_, ok, errLookup := keys.get(ctx)
		if errLookup != nil {
			return Decision{}, errLookup
		}
		if !ok {
			return Decision{}, quotaExceededNoKey(in.PromptsIncluded)
		}
		personal = true
	}

	if personal {
		key, ok, errLookup := keys.get(ctx)
		if errLookup != nil {
			return Decision{}, errLookup
		}
		if !ok {
			return Decision{}, missingPersonalCredential(tag)
		}
		return Decision{Credential: key, IsPlatformKey: false}, nil
	}

	var secret string
	if r != nil {
		secret = r.secrets[tag]
	}
	if secret == "" {
		return Decision{}, missingPlatformCredential(tag)
	}
	return Decision{Credential: secret, IsPlatformKey: true}, nil
}

type memoLookup struct {
	lookup   PersonalKeyLookup
	provider string
	done     bool
	key      string
	ok       bool
	err      error
}

func (m *memoLookup) get(ctx context.Context) (string, bool, error) {
	if m.done {
		return m.key, m.ok, m.err
	}
	m.done = true
	if m.lookup == nil {
		return "", false, nil
	}
	key, ok, err := m.lookup(ctx, m.provider)
	if err != nil {
		m.err = fmt.Errorf("entitlement: lookup personal key: %w", err)
		return "", false, m.err
	}
	key = strings.TrimSpace(key)
	m.key, m.ok = key, ok && key != ""
	return m.key, m.ok, nil
}
