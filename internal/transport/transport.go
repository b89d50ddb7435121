// ABOUTME: Capability interfaces and wire types for the canister transport contract
// ABOUTME: Defines the delegate capability set, call options, and principal normalization

package transport

import (
	"context"
	"errors"
	"fmt"
)

// AnonymousPrincipal is the canonical text form of the anonymous caller.
const AnonymousPrincipal = "2vxsx-fae"

// ErrInvalidPrincipal is returned when a destination cannot be normalized
// into a canonical principal text form.
var ErrInvalidPrincipal = errors.New("invalid principal")

// CallOptions carries the per-call parameters passed through to a delegate.
// EffectiveDestination, when set, overrides the routing destination and must
// be in canonical text form by the time the delegate sees it.
type CallOptions struct {
	Method               string
	Arg                  []byte
	EffectiveDestination string
}

// QueryResponse is the canonical query envelope every caller receives,
// regardless of what the underlying delegate returned.
type QueryResponse struct {
	Reply     []byte
	RequestID string
}

// Caller is the update-call capability of a delegate.
type Caller interface {
	Call(ctx context.Context, destination string, opts CallOptions) ([]byte, error)
}

// Querier is the read-query capability of a delegate. The raw return is
// deliberately loose: wallet agents disagree on reply shapes, and the
// Adapter reshapes whatever comes back.
type Querier interface {
	Query(ctx context.Context, destination string, fields map[string]any) (any, error)
}

// RootKeyFetcher is the root-key capability of a delegate.
type RootKeyFetcher interface {
	FetchRootKey(ctx context.Context) ([]byte, error)
}

// StatusProvider is the optional status capability of a delegate.
type StatusProvider interface {
	Status(ctx context.Context) (map[string]any, error)
}

// Identity identifies the caller bound to an adapter. It is adapter-local
// state, entirely independent of the wrapped delegate.
type Identity struct {
	Principal Principal
}

// Principal is an opaque canister or caller identifier in canonical text form.
type Principal struct {
	text string
}

// PrincipalFromText validates s and returns it as a Principal.
// Canonical form is lowercase groups of letters and digits joined by dashes.
func PrincipalFromText(s string) (Principal, error) {
	if s == "" {
		return Principal{}, fmt.Errorf("%w: empty", ErrInvalidPrincipal)
	}
	if s[0] == '-' || s[len(s)-1] == '-' {
		return Principal{}, fmt.Errorf("%w: %q", ErrInvalidPrincipal, s)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-':
			if s[i-1] == '-' {
				return Principal{}, fmt.Errorf("%w: %q", ErrInvalidPrincipal, s)
			}
		default:
			return Principal{}, fmt.Errorf("%w: %q", ErrInvalidPrincipal, s)
		}
	}
	return Principal{text: s}, nil
}

// String returns the canonical text form.
func (p Principal) String() string { return p.text }

// IsZero reports whether p is the zero Principal.
func (p Principal) IsZero() bool { return p.text == "" }

// normalizeDestination accepts a structured principal or its canonical text
// form and returns validated canonical text.
func normalizeDestination(dest any) (string, error) {
	switch d := dest.(type) {
	case Principal:
		if d.IsZero() {
			return "", fmt.Errorf("%w: zero principal", ErrInvalidPrincipal)
		}
		return d.String(), nil
	case string:
		p, err := PrincipalFromText(d)
		if err != nil {
			return "", err
		}
		return p.String(), nil
	case fmt.Stringer:
		p, err := PrincipalFromText(d.String())
		if err != nil {
			return "", err
		}
		return p.String(), nil
	default:
		return "", fmt.Errorf("%w: unsupported destination type %T", ErrInvalidPrincipal, dest)
	}
}
