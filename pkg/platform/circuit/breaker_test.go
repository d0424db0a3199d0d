package circuit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type BreakerSuite struct {
	suite.Suite
	now time.Time
}

func TestBreakerSuite(t *testing.T) {
	suite.Run(t, new(BreakerSuite))
}

func (s *BreakerSuite) SetupTest() {
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
}

func (s *BreakerSuite) clock() time.Time {
	return s.now
}

func (s *BreakerSuite) fail(b *Breaker, n int) {
	for range n {
		b.RecordFailure()
	}
}

func (s *BreakerSuite) TestStartsClosed() {
	b := New("identity-provider")
	s.Equal("identity-provider", b.Name())
	s.Equal(StateClosed, b.State())
	s.Equal("closed", b.State().String())
	s.True(b.Allow())
}

func (s *BreakerSuite) TestDefaultsOpenOnFifthConsecutiveFailure() {
	b := New("identity-provider", WithClock(s.clock))

	s.fail(b, 4)
	s.False(b.IsOpen())

	useFallback, change := b.RecordFailure()
	s.True(useFallback)
	s.True(change.Opened)
	s.Equal("open", b.State().String())
}

func (s *BreakerSuite) TestOpensAfterThreshold() {
	b := New("identity-provider", WithFailureThreshold(3), WithClock(s.clock))

	for range 2 {
		useFallback, change := b.RecordFailure()
		s.False(useFallback)
		s.False(change.Opened)
	}

	useFallback, change := b.RecordFailure()
	s.True(useFallback)
	s.True(change.Opened)

	useFallback, change = b.RecordFailure()
	s.True(useFallback)
	s.False(change.Opened, "already open")
}

func (s *BreakerSuite) TestIntermittentFailuresDoNotOpen() {
	b := New("identity-provider", WithFailureThreshold(3), WithClock(s.clock))

	// A provider failing two calls in three never trips the breaker.
	for range 10 {
		s.fail(b, 2)
		b.RecordSuccess()
	}
	s.False(b.IsOpen())

	s.fail(b, 3)
	s.True(b.IsOpen())
}

func (s *BreakerSuite) TestSuccessThresholdWhileProbing() {
	b := New("identity-provider", WithFailureThreshold(1), WithSuccessThreshold(3), WithClock(s.clock))
	b.RecordFailure()

	b.RecordSuccess()
	b.RecordSuccess()
	b.RecordFailure()
	s.True(b.IsOpen(), "a failed probe resets the success count")

	b.RecordSuccess()
	b.RecordSuccess()
	usePrimary, change := b.RecordSuccess()
	s.True(usePrimary)
	s.True(change.Closed)
	s.False(b.IsOpen())
}

func (s *BreakerSuite) TestOutageAndRecovery() {
	b := New("identity-provider", WithFailureThreshold(2), WithCooldown(10*time.Second), WithClock(s.clock))

	s.fail(b, 2)
	s.False(b.Allow(), "requests fail fast during the outage")

	s.now = s.now.Add(9 * time.Second)
	s.False(b.Allow())

	s.now = s.now.Add(time.Second)
	s.True(b.Allow(), "one probe after the cooldown")
	s.False(b.Allow())
	b.RecordFailure()

	s.now = s.now.Add(10 * time.Second)
	s.True(b.Allow())
	_, change := b.RecordSuccess()
	s.True(change.Closed)
	s.True(b.Allow())
	s.True(b.Allow())
}

func (s *BreakerSuite) TestReset() {
	b := New("identity-provider", WithFailureThreshold(1), WithClock(s.clock))
	b.RecordFailure()
	s.Require().True(b.IsOpen())

	b.Reset()
	s.Equal(StateClosed, b.State())
	s.True(b.Allow())
}

func TestBreaker_IgnoresNonPositiveOptions(t *testing.T) {
	b := New("identity-provider", WithFailureThreshold(0), WithSuccessThreshold(-1), WithCooldown(0))
	assert.Equal(t, 5, b.failureThreshold)
	assert.Equal(t, 1, b.successThreshold)
	assert.Equal(t, 10*time.Second, b.cooldown)
}

func TestBreaker_ConcurrentCallersGetOneProbe(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := New("identity-provider", WithFailureThreshold(1), WithCooldown(time.Minute), WithClock(func() time.Time { return now }))
	b.RecordFailure()
	require.True(t, b.IsOpen())
	now = now.Add(time.Minute)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Allow() {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
}
