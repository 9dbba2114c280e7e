package registration

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/kenvote/registry/internal/domain"
)

const (
	// MaxAllocationAttempts bounds candidate generation per registration.
	MaxAllocationAttempts = 10

	suffixAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	suffixLength   = 4
	numberPrefix   = "KEN-"
)

// Source yields random indexes in [0, n).
type Source interface {
	IntN(n int) int
}

// lockedRand makes a *rand.Rand safe for concurrent registrations.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// NewSeededSource returns a deterministic Source for tests and replays.
func NewSeededSource(seed uint64) Source {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Allocator issues registration numbers of the form KEN-YYYYMMDD-XXXX.
type Allocator struct {
	now      func() time.Time
	src      Source
	attempts int
}

// NewAllocator creates an allocator. Nil arguments select the wall clock and
// the process-wide random source.
func NewAllocator(now func() time.Time, src Source) *Allocator {
	if now == nil {
		now = time.Now
	}
	if src == nil {
		src = globalRand{}
	}
	return &Allocator{now: now, src: src, attempts: MaxAllocationAttempts}
}

// Candidate returns one registration number for the current UTC date.
func (a *Allocator) Candidate() string {
	var b strings.Builder
	b.Grow(len(numberPrefix) + 8 + 1 + suffixLength)
	b.WriteString(numberPrefix)
	b.WriteString(a.now().UTC().Format("20060102"))
	b.WriteByte('-')
	for i := 0; i < suffixLength; i++ {
		b.WriteByte(suffixAlphabet[a.src.IntN(len(suffixAlphabet))])
	}
	return b.String()
}

// Allocate returns a candidate for which taken reports false. It gives up
// with AllocationExhausted after MaxAllocationAttempts collisions.
func (a *Allocator) Allocate(taken func(string) bool) (string, error) {
	for i := 0; i < a.attempts; i++ {
		c := a.Candidate()
		if !taken(c) {
			return c, nil
		}
	}
	return "", domain.ErrAllocationExhausted(a.attempts)
}
