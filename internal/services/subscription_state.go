package services

import (
	"errors"
	"fmt"

	dbm "finmodel/internal/models/db_models"
)

var ErrIllegalTransition = errors.New("illegal subscription status transition")

// subscriptionTransitions lists every legal status change. SubStatusNone is a
// company with no subscription row yet. cancel_at_period_end is a flag on
// active, not a status, so it never appears here.
var subscriptionTransitions = map[dbm.SubscriptionStatus][]dbm.SubscriptionStatus{
	dbm.SubStatusNone:     {dbm.SubStatusActive, dbm.SubStatusTrialing},
	dbm.SubStatusTrialing: {dbm.SubStatusActive, dbm.SubStatusCanceled},
	dbm.SubStatusActive:   {dbm.SubStatusActive, dbm.SubStatusPastDue, dbm.SubStatusCanceled},
	dbm.SubStatusPastDue:  {dbm.SubStatusPastDue, dbm.SubStatusActive, dbm.SubStatusCanceled},
	// a new checkout revives a canceled company
	dbm.SubStatusCanceled: {dbm.SubStatusActive},
}

func CanTransition(from, to dbm.SubscriptionStatus) bool {
	for _, allowed := range subscriptionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to dbm.SubscriptionStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %q -> %q", ErrIllegalTransition, from, to)
	}
	return nil
}
