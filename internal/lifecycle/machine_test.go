package lifecycle

import (
	"testing"
	"time"

	"github.com/example/campus-dispatch/internal/models"
)

func TestDeliveryPath(t *testing.T) {
	path := []models.Status{
		models.StatusPending, models.StatusAccepted, models.StatusPickedUp,
		models.StatusOnTheWay, models.StatusDelivered,
	}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(models.KindDelivery, path[i], path[i+1]) {
			t.Fatalf("expected %s -> %s to be legal", path[i], path[i+1])
		}
	}
}

func TestRidePath(t *testing.T) {
	path := []models.Status{
		models.StatusPending, models.StatusAccepted, models.StatusArriving,
		models.StatusInProgress, models.StatusCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(models.KindRide, path[i], path[i+1]) {
			t.Fatalf("expected %s -> %s to be legal", path[i], path[i+1])
		}
	}
}

func TestNoSkippingStates(t *testing.T) {
	cases := []struct {
		kind     models.Kind
		from, to models.Status
	}{
		{models.KindDelivery, models.StatusPending, models.StatusPickedUp},
		{models.KindDelivery, models.StatusPending, models.StatusDelivered},
		{models.KindDelivery, models.StatusAccepted, models.StatusDelivered},
		{models.KindDelivery, models.StatusDelivered, models.StatusOnTheWay},
		{models.KindRide, models.StatusPending, models.StatusInProgress},
		{models.KindRide, models.StatusAccepted, models.StatusCompleted},
		{models.KindRide, models.StatusCompleted, models.StatusInProgress},
	}
	for _, c := range cases {
		if CanTransition(c.kind, c.from, c.to) {
			t.Errorf("%s: %s -> %s should be illegal", c.kind, c.from, c.to)
		}
	}
}

func TestCancelReachableFromNonTerminalOnly(t *testing.T) {
	nonTerminal := map[models.Kind][]models.Status{
		models.KindDelivery: {models.StatusPending, models.StatusAccepted, models.StatusPickedUp, models.StatusOnTheWay},
		models.KindRide:     {models.StatusPending, models.StatusAccepted, models.StatusArriving, models.StatusInProgress},
	}
	for kind, states := range nonTerminal {
		for _, from := range states {
			if !CanTransition(kind, from, models.StatusCancelled) {
				t.Errorf("%s: cancel from %s should be legal", kind, from)
			}
		}
		if CanTransition(kind, CompletingStatus(kind), models.StatusCancelled) {
			t.Errorf("%s: cancel from %s should be illegal", kind, CompletingStatus(kind))
		}
		if CanTransition(kind, models.StatusCancelled, models.StatusCancelled) {
			t.Errorf("%s: cancel from cancelled should be illegal", kind)
		}
	}
}

func TestUrgencyTiers(t *testing.T) {
	if got := UrgencyFor(time.Minute); got != UrgencyLow {
		t.Fatalf("1m: expected low, got %s", got)
	}
	if got := UrgencyFor(7 * time.Minute); got != UrgencyMedium {
		t.Fatalf("7m: expected medium, got %s", got)
	}
	if got := UrgencyFor(20 * time.Minute); got != UrgencyHigh {
		t.Fatalf("20m: expected high, got %s", got)
	}
}
