package lifecycle

import (
	"time"

	"github.com/example/campus-dispatch/internal/models"
)

// The two state machines. Every non-terminal status may move to
// cancelled; skipping forward states is never legal.
var deliveryTransitions = map[models.Status][]models.Status{
	models.StatusPending:  {models.StatusAccepted, models.StatusCancelled},
	models.StatusAccepted: {models.StatusPickedUp, models.StatusCancelled},
	models.StatusPickedUp: {models.StatusOnTheWay, models.StatusCancelled},
	models.StatusOnTheWay: {models.StatusDelivered, models.StatusCancelled},
}

var rideTransitions = map[models.Status][]models.Status{
	models.StatusPending:    {models.StatusAccepted, models.StatusCancelled},
	models.StatusAccepted:   {models.StatusArriving, models.StatusCancelled},
	models.StatusArriving:   {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress: {models.StatusCompleted, models.StatusCancelled},
}

func transitionsFor(kind models.Kind) map[models.Status][]models.Status {
	if kind == models.KindRide {
		return rideTransitions
	}
	return deliveryTransitions
}

// CanTransition reports whether from -> to is a legal edge of the
// kind's state diagram.
func CanTransition(kind models.Kind, from, to models.Status) bool {
	for _, next := range transitionsFor(kind)[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidTarget reports whether status is a state of the kind's
// machine at all (used to reject garbage input before any lookup).
func ValidTarget(kind models.Kind, status models.Status) bool {
	if status == models.StatusCancelled || status == models.StatusPending {
		return true
	}
	t := transitionsFor(kind)
	if _, ok := t[status]; ok {
		return true
	}
	return status == CompletingStatus(kind)
}

// CompletingStatus is the happy-path terminal per variant.
func CompletingStatus(kind models.Kind) models.Status {
	if kind == models.KindRide {
		return models.StatusCompleted
	}
	return models.StatusDelivered
}

func IsTerminal(s models.Status) bool {
	switch s {
	case models.StatusDelivered, models.StatusCompleted, models.StatusCancelled:
		return true
	}
	return false
}

// Urgency tiers bias assignee attention toward starving requests.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"

	mediumAfter = 5 * time.Minute
	highAfter   = 15 * time.Minute
)

func UrgencyFor(waited time.Duration) string {
	switch {
	case waited >= highAfter:
		return UrgencyHigh
	case waited >= mediumAfter:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}
