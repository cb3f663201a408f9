// Package refs resolves user-supplied reference strings to full object
// hashes: symbolic HEAD, full 64-hex hashes, unique hex prefixes, and a
// ~N suffix walking N commit parents.
package refs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rsahwe/evs/internal/evserr"
	"github.com/rsahwe/evs/internal/hash"
	"github.com/rsahwe/evs/internal/objects"
	"github.com/rsahwe/evs/internal/store"
)

// Resolve turns ref into the full 64-hex hash it names. The part before
// the first '~' is either "HEAD" (the given head hash) or a hex prefix
// resolved through the store under the same ambiguity rules as Lookup;
// the part after it is a non-negative ancestor count, 0 when no '~' is
// present. Each ancestor step requires the current object to be a
// Commit; stepping past the root (Null) fails with NoPreviousCommit.
func Resolve(st *store.Store, head hash.Hash, ref string) (string, error) {
	first := ref
	backCount := 0
	if i := strings.Index(ref, "~"); i >= 0 {
		first = ref[:i]
		n, err := strconv.Atoi(ref[i+1:])
		if err != nil || n < 0 {
			return "", fmt.Errorf("%w: %q", evserr.ErrIntegerParseError, ref[i+1:])
		}
		backCount = n
	}

	if first == "HEAD" {
		first = head.String()
	}

	current, err := st.Resolve(first)
	if err != nil {
		return "", err
	}

	for i := 0; i < backCount; i++ {
		h, obj, err := st.Lookup(current)
		if err != nil {
			return "", err
		}
		switch obj.Kind {
		case objects.KindNull:
			return "", evserr.ErrNoPreviousCommit
		case objects.KindCommit:
			current = obj.Commit.Parent.String()
		default:
			return "", &evserr.NotACommit{Hash: h.String()}
		}
	}

	return current, nil
}
