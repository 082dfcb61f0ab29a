package guard

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"time"
)

// Decision is the guard's ruling on one observation.
type Decision int

const (
	Accepted Decision = iota
	Duplicate
	Replayed
)

func (d Decision) String() string {
	switch d {
	case Duplicate:
		return "duplicate"
	case Replayed:
		return "replayed"
	default:
		return "accepted"
	}
}

// Fingerprint derives a stable identity for a reading. Two readings
// with the same fingerprint are the same logical event regardless of
// how many times the transport delivers them.
func Fingerprint(serialNumber, indicatorKey, rawValue string, timestamp time.Time) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%d", serialNumber, indicatorKey, rawValue, timestamp.UnixMilli())
	return strconv.FormatUint(h.Sum64(), 16)
}

// Guard suppresses duplicate deliveries and replays of readings the
// user explicitly cleared. It is not safe for concurrent use; the
// owning session serializes access.
type Guard struct {
	seen     map[string]struct{}
	cleared  map[string]struct{}
	skipNext bool
}

func New() *Guard {
	return &Guard{
		seen:    map[string]struct{}{},
		cleared: map[string]struct{}{},
	}
}

// Accept rules on a fingerprint and records it as seen when accepted.
func (g *Guard) Accept(fingerprint string) Decision {
	if _, ok := g.cleared[fingerprint]; ok {
		return Replayed
	}

	if _, ok := g.seen[fingerprint]; ok {
		return Duplicate
	}

	g.seen[fingerprint] = struct{}{}

	return Accepted
}

// Clear captures the fingerprints of the currently visible readings so
// that retained copies replayed by the transport are not redisplayed.
// Must be called before the history store is truncated.
func (g *Guard) Clear(visible []string) {
	for _, fingerprint := range visible {
		g.cleared[fingerprint] = struct{}{}
	}
}

// ArmSkip arms a one-shot flag that swallows the next accepted
// reading, a stronger guard against brief replay storms right after a
// clear or focus regain.
func (g *Guard) ArmSkip() {
	g.skipNext = true
}

// ConsumeSkip reports whether the one-shot flag swallowed this
// accepted reading, disarming itself in the process.
func (g *Guard) ConsumeSkip() bool {
	if !g.skipNext {
		return false
	}

	g.skipNext = false

	return true
}

// ResetSeen forgets this session's seen set, keeping the cleared set
// intact. Used on focus regain so a fresh session still refuses
// replays of explicitly cleared readings.
func (g *Guard) ResetSeen() {
	g.seen = map[string]struct{}{}
}
