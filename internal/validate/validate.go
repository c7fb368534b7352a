// Package validate provides a memoized syntactic email address check.
//
// No DNS or mailbox verification is performed. Results are cached per input
// string in a Cache owned by the Validator, so independent validators never
// share state unless the caller hands them the same Cache.
package validate

import "regexp"

// reEmail is local-part, "@", domain, ".", and a 2-6 letter TLD.
var reEmail = regexp.MustCompile(`^[A-Za-z0-9&'.\-_+]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,6}$`)

// Validator checks email address syntax and memoizes the outcome.
type Validator struct {
	cache Cache
}

// New creates a Validator backed by the given cache. A nil cache gets a
// fresh in-memory cache.
func New(cache Cache) *Validator {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Validator{cache: cache}
}

// IsValid reports whether address is a syntactically valid email address.
// Repeated calls with the same input are answered from the cache.
func (v *Validator) IsValid(address string) bool {
	if ok, found := v.cache.Get(address); found {
		return ok
	}
	ok := reEmail.MatchString(address)
	v.cache.Put(address, ok)
	return ok
}
