package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/campus-dispatch/internal/apperr"
	"github.com/example/campus-dispatch/internal/logging"
	"github.com/example/campus-dispatch/internal/models"
	"github.com/example/campus-dispatch/internal/storage"
)

// Eight assignees race for one pending order. Exactly one Accept may
// succeed; everyone else must observe a conflict, and the stored row
// must name the winner.
func TestConcurrentAcceptSingleWinner(t *testing.T) {
	store := storage.NewMemoryStore()
	pub := &capturePub{}
	e := NewEngine(store, pub, nil, logging.NewLogger("error"))
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, &models.User{
		ID: "requester", Email: "r@campus.test", Name: "r", Verified: true, CreatedAt: time.Now(),
	}))
	const racers = 8
	ids := make([]string, racers)
	for i := range ids {
		ids[i] = fmt.Sprintf("racer-%d", i)
		require.NoError(t, store.CreateUser(ctx, &models.User{
			ID: ids[i], Email: ids[i] + "@campus.test", Name: ids[i],
			Verified: true, AssigneeEligible: true, CreatedAt: time.Now(),
		}))
	}

	o, err := e.Request(ctx, "requester", RequestInput{
		Kind: models.KindDelivery, Pickup: "South Gate", Dropoff: "Lab 3", Fee: 3,
	})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		mu      sync.Mutex
		winners []string
		losers  int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			<-start
			_, err := e.Accept(ctx, o.ID, userID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, userID)
			case errors.Is(err, apperr.ErrConflict):
				losers++
			default:
				t.Errorf("unexpected error for %s: %v", userID, err)
			}
		}(id)
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	require.Equal(t, racers-1, losers)

	got, err := store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusAccepted, got.Status)
	require.NotNil(t, got.AssigneeID)
	require.Equal(t, winners[0], *got.AssigneeID)
}

// Concurrent cancel and accept on the same pending order must resolve
// to exactly one of the two outcomes, never both.
func TestConcurrentCancelVsAccept(t *testing.T) {
	store := storage.NewMemoryStore()
	pub := &capturePub{}
	e := NewEngine(store, pub, nil, logging.NewLogger("error"))
	ctx := context.Background()

	for _, u := range []models.User{
		{ID: "req", Email: "req@campus.test", Name: "req", Verified: true},
		{ID: "asg", Email: "asg@campus.test", Name: "asg", Verified: true, AssigneeEligible: true},
	} {
		u.CreatedAt = time.Now()
		uu := u
		require.NoError(t, store.CreateUser(ctx, &uu))
	}

	for i := 0; i < 20; i++ {
		o, err := e.Request(ctx, "req", RequestInput{
			Kind: models.KindDelivery, Pickup: "a", Dropoff: "b",
		})
		require.NoError(t, err)

		var wg sync.WaitGroup
		var acceptErr, cancelErr error
		wg.Add(2)
		go func() { defer wg.Done(); _, acceptErr = e.Accept(ctx, o.ID, "asg") }()
		go func() { defer wg.Done(); _, cancelErr = e.Cancel(ctx, o.ID, "req", "raced") }()
		wg.Wait()

		got, err := store.GetOrder(ctx, o.ID)
		require.NoError(t, err)

		// one of the two must have landed; a successful accept that
		// is then cancelled by the requester is also a legal ending
		require.False(t, acceptErr != nil && cancelErr != nil,
			"both operations failed: accept=%v cancel=%v", acceptErr, cancelErr)
		switch got.Status {
		case models.StatusCancelled:
			require.NoError(t, cancelErr)
		case models.StatusAccepted:
			require.NoError(t, acceptErr)
			require.Error(t, cancelErr)
			// clean up so the next round's requester is free again
			_, err = e.Cancel(ctx, o.ID, "req", "cleanup")
			require.NoError(t, err)
		default:
			t.Fatalf("order ended in %s", got.Status)
		}
	}
}
