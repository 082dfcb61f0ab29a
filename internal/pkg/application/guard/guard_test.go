package guard

import (
	"testing"
	"time"

	"github.com/matryer/is"
)

var ts = time.Unix(1693180800, 0)

func TestFingerprintIsDeterministic(t *testing.T) {
	is := is.New(t)

	a := Fingerprint("1337", "los_ppm", "75", ts)
	b := Fingerprint("1337", "los_ppm", "75", ts)

	is.Equal(a, b)
}

func TestFingerprintVariesWithInputs(t *testing.T) {
	is := is.New(t)

	a := Fingerprint("1337", "los_ppm", "75", ts)

	is.True(a != Fingerprint("9999", "los_ppm", "75", ts))
	is.True(a != Fingerprint("1337", "avg_ppm", "75", ts))
	is.True(a != Fingerprint("1337", "los_ppm", "76", ts))
	is.True(a != Fingerprint("1337", "los_ppm", "75", ts.Add(time.Second)))
}

func TestAcceptSuppressesDuplicates(t *testing.T) {
	is := is.New(t)

	g := New()
	fp := Fingerprint("1337", "los_ppm", "75", ts)

	is.Equal(g.Accept(fp), Accepted)
	is.Equal(g.Accept(fp), Duplicate)
}

func TestClearedReadingsAreNotRedisplayed(t *testing.T) {
	is := is.New(t)

	g := New()
	fp := Fingerprint("1337", "los_ppm", "75", ts)

	is.Equal(g.Accept(fp), Accepted)

	g.Clear([]string{fp})
	g.ResetSeen()

	is.Equal(g.Accept(fp), Replayed)
}

func TestGenuinelyNewReadingAcceptedAfterClear(t *testing.T) {
	is := is.New(t)

	g := New()
	fp := Fingerprint("1337", "los_ppm", "75", ts)

	is.Equal(g.Accept(fp), Accepted)
	g.Clear([]string{fp})

	fresh := Fingerprint("1337", "los_ppm", "75", ts.Add(time.Minute))
	is.Equal(g.Accept(fresh), Accepted)
}

func TestSkipIsOneShot(t *testing.T) {
	is := is.New(t)

	g := New()
	g.ArmSkip()

	is.True(g.ConsumeSkip())
	is.True(!g.ConsumeSkip())
}

func TestResetSeenForgetsDuplicatesOnly(t *testing.T) {
	is := is.New(t)

	g := New()
	fp := Fingerprint("1337", "los_ppm", "75", ts)

	is.Equal(g.Accept(fp), Accepted)
	g.ResetSeen()
	is.Equal(g.Accept(fp), Accepted)
}
