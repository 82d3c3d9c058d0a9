package connector

import "fmt"

// PasswordProvider supplies one candidate credential for a retry
// attempt. It returns ok=false once it has nothing left to offer.
//
// This is the supplemented feature described in SPEC_FULL.md §9,
// grounded on the original connector.c retry/backoff loop: the source
// walked a fixed {caller-supplied, server-config, cached-default,
// interactive-prompt} sequence inline. Modelling each source as its
// own PasswordProvider lets authorize() retry generically instead of
// hard-coding the four-branch chain.
type PasswordProvider interface {
	Password(attempt int) (string, bool)
}

// CallerSuppliedProvider returns a single fixed password given up
// front by the caller (e.g. from a job option), then is exhausted.
type CallerSuppliedProvider struct {
	password string
	used     bool
}

func NewCallerSuppliedProvider(password string) *CallerSuppliedProvider {
	return &CallerSuppliedProvider{password: password}
}

func (p *CallerSuppliedProvider) Password(attempt int) (string, bool) {
	if p.used || p.password == "" {
		return "", false
	}
	p.used = true
	return p.password, true
}

// ServerConfigProvider returns the operator-configured default
// password for a peer, then is exhausted.
type ServerConfigProvider struct {
	Lookup func() (string, bool)
	used   bool
}

func NewServerConfigProvider(lookup func() (string, bool)) *ServerConfigProvider {
	return &ServerConfigProvider{Lookup: lookup}
}

func (p *ServerConfigProvider) Password(attempt int) (string, bool) {
	if p.used || p.Lookup == nil {
		return "", false
	}
	p.used = true
	return p.Lookup()
}

// CachedDefaultProvider returns the last password that succeeded
// against this peer, then is exhausted.
type CachedDefaultProvider struct {
	Cache func() (string, bool)
	used  bool
}

func NewCachedDefaultProvider(cache func() (string, bool)) *CachedDefaultProvider {
	return &CachedDefaultProvider{Cache: cache}
}

func (p *CachedDefaultProvider) Password(attempt int) (string, bool) {
	if p.used || p.Cache == nil {
		return "", false
	}
	p.used = true
	return p.Cache()
}

// InteractivePromptProvider asks a registered callback on every
// attempt (e.g. a console prompt, or a UI round trip); it never
// exhausts on its own, relying on the caller's attempt bound.
type InteractivePromptProvider struct {
	Prompt func(attempt int) (string, error)
}

func NewInteractivePromptProvider(prompt func(attempt int) (string, error)) *InteractivePromptProvider {
	return &InteractivePromptProvider{Prompt: prompt}
}

func (p *InteractivePromptProvider) Password(attempt int) (string, bool) {
	if p.Prompt == nil {
		return "", false
	}
	pw, err := p.Prompt(attempt)
	if err != nil {
		return "", false
	}
	return pw, true
}

// Sequence chains providers in order, moving to the next once the
// current one reports exhaustion.
type Sequence struct {
	providers []PasswordProvider
	idx       int
}

// NewSequence returns a Sequence trying providers in the given order,
// the canonical {caller-supplied, server-config, cached-default,
// interactive-prompt} ordering from spec §7.
func NewSequence(providers ...PasswordProvider) *Sequence {
	return &Sequence{providers: providers}
}

func (s *Sequence) Password(attempt int) (string, bool) {
	for s.idx < len(s.providers) {
		pw, ok := s.providers[s.idx].Password(attempt)
		if ok {
			return pw, true
		}
		s.idx++
	}
	return "", false
}

// ErrPasswordsExhausted is returned by authorize retry loops once
// every provider in the sequence has been exhausted within the
// protoerr.MaxPasswordRequests bound.
var ErrPasswordsExhausted = fmt.Errorf("connector: password candidate sequence exhausted")
