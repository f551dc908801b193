package health

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSpec is returned by NewSet for a spec that cannot be registered.
var ErrInvalidSpec = errors.New("invalid probe spec")

// reservedName is the report key that carries the overall verdict.
const reservedName = "status"

// Set is the fixed collection of probes for a deployment. It is read-only
// after NewSet returns.
type Set struct {
	specs []Spec
}

// NewSet validates and copies specs. Names must be unique and non-empty,
// timeouts positive and checks non-nil.
func NewSet(specs ...Spec) (*Set, error) {
	seen := make(map[string]struct{}, len(specs))
	var errs []error
	for i, s := range specs {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Errorf("%w: spec %d has no name", ErrInvalidSpec, i))
		case s.Name == reservedName:
			errs = append(errs, fmt.Errorf("%w: name %q is reserved", ErrInvalidSpec, s.Name))
		default:
			if _, dup := seen[s.Name]; dup {
				errs = append(errs, fmt.Errorf("%w: duplicate name %q", ErrInvalidSpec, s.Name))
			}
			seen[s.Name] = struct{}{}
		}
		if s.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("%w: %q timeout must be positive (got %s)", ErrInvalidSpec, s.Name, s.Timeout))
		}
		if s.Check == nil {
			errs = append(errs, fmt.Errorf("%w: %q has no check", ErrInvalidSpec, s.Name))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Set{specs: append([]Spec(nil), specs...)}, nil
}

// Names returns the dependency names in registration order.
func (s *Set) Names() []string {
	out := make([]string, len(s.specs))
	for i, sp := range s.specs {
		out[i] = sp.Name
	}
	return out
}

// MaxTimeout is the longest individual probe timeout, which bounds the
// latency of a concurrent evaluation.
func (s *Set) MaxTimeout() time.Duration {
	var longest time.Duration
	for _, sp := range s.specs {
		longest = max(longest, sp.Timeout)
	}
	return longest
}
