package verification

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type Result int

const (
	NoChallenge Result = iota
	Pending
	Passed
	Wrong
	Expired
)

func (r Result) String() string {
	switch r {
	case NoChallenge:
		return "no_challenge"
	case Pending:
		return "pending"
	case Passed:
		return "passed"
	case Wrong:
		return "wrong"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

const (
	DefaultTimeout = 5 * time.Minute

	minOperand = 1
	maxOperand = 10
)

type Challenge struct {
	UserID    int64
	Question  string
	Answer    string
	ExpiresAt time.Time
}

// Verifier tracks at most one outstanding challenge per user. Removing a
// challenge under the lock is what decides the outcome, so concurrent expiry
// checks observe Expired exactly once.
type Verifier struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	timeout time.Duration
	pending map[int64]Challenge
	intn    func(n int) int
}

func New(clock clockwork.Clock, timeout time.Duration) *Verifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Verifier{
		clock:   clock,
		timeout: timeout,
		pending: make(map[int64]Challenge),
		intn:    rand.IntN,
	}
}

func (v *Verifier) Timeout() time.Duration {
	return v.timeout
}

// Issue creates a new challenge for the user, replacing any previous one.
func (v *Verifier) Issue(userID int64) Challenge {
	a := minOperand + v.intn(maxOperand-minOperand+1)
	b := minOperand + v.intn(maxOperand-minOperand+1)

	ch := Challenge{
		UserID:    userID,
		Question:  fmt.Sprintf("%d + %d = ?", a, b),
		Answer:    strconv.Itoa(a + b),
		ExpiresAt: v.clock.Now().Add(v.timeout),
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending[userID] = ch
	return ch
}

func (v *Verifier) Submit(userID int64, text string) Result {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch, ok := v.pending[userID]
	if !ok {
		return NoChallenge
	}
	if v.clock.Now().After(ch.ExpiresAt) {
		delete(v.pending, userID)
		return Expired
	}
	if strings.TrimSpace(text) != ch.Answer {
		return Wrong
	}
	delete(v.pending, userID)
	return Passed
}

func (v *Verifier) CheckTimeout(userID int64) Result {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch, ok := v.pending[userID]
	if !ok {
		return NoChallenge
	}
	if v.clock.Now().Before(ch.ExpiresAt) {
		return Pending
	}
	delete(v.pending, userID)
	return Expired
}

func (v *Verifier) Get(userID int64) (Challenge, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch, ok := v.pending[userID]
	return ch, ok
}

func (v *Verifier) Has(userID int64) bool {
	_, ok := v.Get(userID)
	return ok
}

// Cancel drops the user's challenge without grading it.
func (v *Verifier) Cancel(userID int64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.pending[userID]; !ok {
		return false
	}
	delete(v.pending, userID)
	return true
}

func (v *Verifier) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return len(v.pending)
}
