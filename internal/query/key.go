package query

import (
	"net/url"
	"sort"
	"strings"
)

// Key identifies one cached backend read: a resource name plus its filter
// parameters, and for per-user data the owning scope. The access token used
// to fetch travels with the key but is not part of its identity.
type Key struct {
	Resource string
	Params   map[string]string
	Scope    string
	token    string
}

// NewKey builds a key from alternating name/value pairs. Pairs with an empty
// value are dropped so that "no filter" and "empty filter" share a cache entry.
func NewKey(resource string, pairs ...string) Key {
	k := Key{Resource: resource}
	for i := 0; i+1 < len(pairs); i += 2 {
		k = k.With(pairs[i], pairs[i+1])
	}
	return k
}

// With returns a copy of k with one more parameter.
func (k Key) With(name, value string) Key {
	if value == "" {
		return k
	}
	params := make(map[string]string, len(k.Params)+1)
	for n, v := range k.Params {
		params[n] = v
	}
	params[name] = value
	k.Params = params
	return k
}

// Scoped returns a copy of k owned by scope and fetched with token.
func (k Key) Scoped(scope, token string) Key {
	k.Scope = scope
	k.token = token
	return k
}

func (k Key) Param(name string) string { return k.Params[name] }

// Token is the access token to fetch this key with.
func (k Key) Token() string { return k.token }

// String is the canonical cache identity: resource?a=1&b=2#scope.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.Resource)
	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for n := range k.Params {
			names = append(names, n)
		}
		sort.Strings(names)
		for i, n := range names {
			if i == 0 {
				b.WriteByte('?')
			} else {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(n))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(k.Params[n]))
		}
	}
	if k.Scope != "" {
		b.WriteByte('#')
		b.WriteString(k.Scope)
	}
	return b.String()
}

func (k Key) Raw() interface{} { return k }
