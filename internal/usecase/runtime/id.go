package runtime

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// newAgentID derives "<name>_<ulid>". The entropy source is shared and
// monotonic, so IDs stay distinct within the process even for equal names.
func newAgentID(name string) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return name + "_" + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
