package live

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourneyforge/livebracket/internal/bracket"
	"github.com/tourneyforge/livebracket/internal/store"
	"github.com/tourneyforge/livebracket/internal/store/memory"
	"github.com/tourneyforge/livebracket/internal/system"
	"github.com/tourneyforge/livebracket/internal/wire"
)

func win(score uint64) bracket.EntrantScore  { return bracket.EntrantScore{Score: score, Winner: true} }
func lose(score uint64) bracket.EntrantScore { return bracket.EntrantScore{Score: score} }

func newTestBracket(t *testing.T, cfg Config) *LiveBracket {
	t.Helper()
	sys, ok := system.Default().Get(1)
	require.True(t, ok)
	matches, adapter := sys.Layout([]uint64{1, 2, 3, 4}, sys.DefaultOptions())
	key := store.BracketKey{TournamentID: 1, BracketID: 1}
	return New(key, matches, adapter, sys.ID(), sys.DefaultOptions(), []uint64{1, 2, 3, 4}, cfg, nil, "", nil, nil, nil)
}

func TestSubscribeReceivesSyncStateFirst(t *testing.T) {
	b := newTestBracket(t, Config{})
	defer b.Close()

	ctx := context.Background()
	id, _, snap, err := b.Subscribe(ctx)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Len(t, snap.Matches, 3) // 4 entrants, single elim: 2 semis + 1 final
}

func TestUpdateMatchBroadcastsToAllSubscribers(t *testing.T) {
	b := newTestBracket(t, Config{})
	defer b.Close()

	ctx := context.Background()
	_, subA, _, err := b.Subscribe(ctx)
	require.NoError(t, err)
	_, subB, _, err := b.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, b.UpdateMatch(0, [2]bracket.EntrantScore{win(2), lose(1)}))

	for _, s := range []*Subscriber{subA, subB} {
		evt, err := s.Pop(ctx)
		require.NoError(t, err)
		upd, ok := evt.(wire.UpdateMatchEvent)
		require.True(t, ok, "expected UpdateMatchEvent, got %T", evt)
		assert.Equal(t, uint64(0), upd.Index)
		assert.True(t, upd.Nodes[0].Winner)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBracket(t, Config{})
	defer b.Close()

	ctx := context.Background()
	id, sub, _, err := b.Subscribe(ctx)
	require.NoError(t, err)
	b.Unsubscribe(id)

	require.NoError(t, b.UpdateMatch(0, [2]bracket.EntrantScore{win(2), lose(1)}))

	popCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = sub.Pop(popCtx)
	assert.Error(t, err) // no event ever arrives; Pop times out via ctx
}

// Scenario S5: a capacity-2 queue receives 6 events before the reader
// ever pumps. The marker takes the slot at the first overflow (right
// after event 1, the sole survivor of that drop), and every later
// overflow in the same burst evicts further real events rather than
// the already-queued marker, so it is never deferred past them.
func TestSubscriberOverflowDropsOldestThenEmitsSingleLagged(t *testing.T) {
	sub := newSubscriber(1, 2)
	for i := uint64(0); i < 6; i++ {
		sub.push(wire.ResetMatchEvent{Index: i})
	}

	ctx := context.Background()
	lagged, err := sub.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.ErrorEvent{Kind: wire.ErrKindLagged}, lagged)

	first, err := sub.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.ResetMatchEvent{Index: 4}, first)

	second, err := sub.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.ResetMatchEvent{Index: 5}, second)

	popCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = sub.Pop(popCtx)
	assert.Error(t, err)
}

// Reproduces the concurrent counter-example from review: the queue
// never drains to empty because the consumer keeps popping one and
// the producer keeps pushing one, so a Lagged deferred until
// "queue empty" would never surface. It must still appear promptly,
// right after the one real event that survived the drop.
func TestSubscriberOverflowSurfacesLaggedWithoutQueueEverEmptying(t *testing.T) {
	sub := newSubscriber(1, 2)
	ctx := context.Background()

	sub.push(wire.ResetMatchEvent{Index: 1})
	sub.push(wire.ResetMatchEvent{Index: 2})
	dropped := sub.push(wire.ResetMatchEvent{Index: 3}) // drops 1, queue=[2,lag,3]
	require.True(t, dropped)

	evt, err := sub.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.ResetMatchEvent{Index: 2}, evt)

	sub.push(wire.ResetMatchEvent{Index: 4}) // queue=[lag,3,4], no second overflow

	evt, err = sub.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.ErrorEvent{Kind: wire.ErrKindLagged}, evt, "lag must surface now, not once the queue later empties")

	evt, err = sub.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.ResetMatchEvent{Index: 3}, evt)

	evt, err = sub.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.ResetMatchEvent{Index: 4}, evt)
}

func TestUpdateMatchCascadesAndPersists(t *testing.T) {
	st := memory.New()
	sys, ok := system.Default().Get(1)
	require.True(t, ok)
	matches, adapter := sys.Layout([]uint64{1, 2, 3, 4}, sys.DefaultOptions())
	key := store.BracketKey{TournamentID: 7, BracketID: 1}
	b := New(key, matches, adapter, sys.ID(), sys.DefaultOptions(), []uint64{1, 2, 3, 4}, Config{}, st, "memory", nil, nil, nil)
	defer b.Close()

	require.NoError(t, b.UpdateMatch(0, [2]bracket.EntrantScore{win(2), lose(1)}))
	require.NoError(t, b.UpdateMatch(1, [2]bracket.EntrantScore{lose(0), win(2)}))

	b.Flush(context.Background())

	snap, err := st.LoadBracketState(context.Background(), key)
	require.NoError(t, err)
	// The final (index 2) should now have its first slot resolved to
	// the winner of match 0, cascaded through the adapter.
	assert.Equal(t, bracket.SpotEntrant, snap.Matches[2].Entrants[0].Kind)
}

func TestResetMatchIsIdempotent(t *testing.T) {
	b := newTestBracket(t, Config{})
	defer b.Close()

	require.NoError(t, b.UpdateMatch(0, [2]bracket.EntrantScore{win(2), lose(1)}))
	require.NoError(t, b.ResetMatch(0))
	require.NoError(t, b.ResetMatch(0)) // idempotent: no error on repeat
}

func TestTooManySubscribersRejected(t *testing.T) {
	b := newTestBracket(t, Config{MaxSubscribers: 1})
	defer b.Close()

	ctx := context.Background()
	_, _, _, err := b.Subscribe(ctx)
	require.NoError(t, err)
	_, _, _, err = b.Subscribe(ctx)
	assert.ErrorIs(t, err, ErrTooManySubscribers)
}
