package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dbm "finmodel/internal/models/db_models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to dbm.SubscriptionStatus
		want     bool
	}{
		{dbm.SubStatusNone, dbm.SubStatusActive, true},
		{dbm.SubStatusActive, dbm.SubStatusActive, true},
		{dbm.SubStatusActive, dbm.SubStatusPastDue, true},
		{dbm.SubStatusPastDue, dbm.SubStatusActive, true},
		{dbm.SubStatusActive, dbm.SubStatusCanceled, true},
		{dbm.SubStatusPastDue, dbm.SubStatusCanceled, true},
		{dbm.SubStatusCanceled, dbm.SubStatusActive, true},
		{dbm.SubStatusCanceled, dbm.SubStatusPastDue, false},
		{dbm.SubStatusCanceled, dbm.SubStatusCanceled, false},
		{dbm.SubStatusNone, dbm.SubStatusPastDue, false},
		{dbm.SubStatusTrialing, dbm.SubStatusPastDue, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCheckTransitionWrapsSentinel(t *testing.T) {
	err := checkTransition(dbm.SubStatusCanceled, dbm.SubStatusPastDue)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.NoError(t, checkTransition(dbm.SubStatusActive, dbm.SubStatusPastDue))
}
