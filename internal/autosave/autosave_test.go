package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizbox/internal/model"
)

// recorder is a SaveFunc that counts calls and keeps the last snapshot.
type recorder struct {
	mu    sync.Mutex
	calls int
	last  model.AnswerSet
	err   error
}

func (r *recorder) save(ctx context.Context, set model.AnswerSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = set
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestOfferDebouncesBursts(t *testing.T) {
	rec := &recorder{}
	a := New(rec.save, nil, WithQuietPeriod(30*time.Millisecond))
	defer a.Stop()

	a.Offer(model.AnswerSet{"1": "c"})
	a.Offer(model.AnswerSet{"1": "ci"})
	a.Offer(model.AnswerSet{"1": "ciao"})

	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, model.AnswerSet{"1": "ciao"}, rec.last)

	// No further saves after the burst settled.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestOfferDropsDuplicateSnapshots(t *testing.T) {
	rec := &recorder{}
	a := New(rec.save, nil, WithQuietPeriod(10*time.Millisecond))
	defer a.Stop()

	a.Offer(model.AnswerSet{"1": "ciao"})
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	a.Offer(model.AnswerSet{"1": "ciao"})
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, rec.count())

	a.Offer(model.AnswerSet{"1": "ciao!"})
	assert.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestFailedSaveRetriesOnNextOffer(t *testing.T) {
	rec := &recorder{err: errors.New("rete assente")}
	a := New(rec.save, nil, WithQuietPeriod(10*time.Millisecond))
	defer a.Stop()

	a.Offer(model.AnswerSet{"1": "ciao"})
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	// After a failure the identical snapshot is not treated as already sent.
	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()
	a.Offer(model.AnswerSet{"1": "ciao"})
	assert.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestSaveSilentlyRecordsSnapshot(t *testing.T) {
	rec := &recorder{}
	a := New(rec.save, nil, WithQuietPeriod(10*time.Millisecond))
	defer a.Stop()

	set := model.AnswerSet{"7": map[string]string{"10": "F0001"}}
	require.NoError(t, a.SaveSilently(context.Background(), set))
	assert.Equal(t, 1, rec.count())

	// Offering the same snapshot afterwards does not save again.
	a.Offer(set)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestFailedSilentSaveDoesNotSuppressRetry(t *testing.T) {
	rec := &recorder{err: errors.New("503")}
	a := New(rec.save, nil, WithQuietPeriod(10*time.Millisecond))
	defer a.Stop()

	set := model.AnswerSet{"7": map[string]string{"10": "F0001"}}
	require.Error(t, a.SaveSilently(context.Background(), set))
	require.Equal(t, 1, rec.count())

	// The same snapshot must go out again once offered, it never landed.
	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()
	a.Offer(set)
	assert.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestFlushSendsPendingImmediately(t *testing.T) {
	rec := &recorder{}
	a := New(rec.save, nil, WithQuietPeriod(time.Hour))
	defer a.Stop()

	a.Offer(model.AnswerSet{"1": "ciao"})
	assert.Equal(t, 0, rec.count())

	a.Flush()
	assert.Equal(t, 1, rec.count())
}

func TestStopCancelsPending(t *testing.T) {
	rec := &recorder{}
	a := New(rec.save, nil, WithQuietPeriod(20*time.Millisecond))

	a.Offer(model.AnswerSet{"1": "ciao"})
	a.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.count())

	// Offers after Stop are ignored.
	a.Offer(model.AnswerSet{"1": "dopo"})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}
