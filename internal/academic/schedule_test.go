package academic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-enrollment-api/internal/models"
)

func TestSlotsOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b models.ScheduleSlot
		want bool
	}{
		{"same slot", slot(models.DayMonday, "08:00", "10:00"), slot(models.DayMonday, "08:00", "10:00"), true},
		{"partial", slot(models.DayMonday, "08:00", "10:00"), slot(models.DayMonday, "09:30", "11:00"), true},
		{"touching", slot(models.DayMonday, "08:00", "10:00"), slot(models.DayMonday, "10:00", "12:00"), false},
		{"other day", slot(models.DayMonday, "08:00", "10:00"), slot(models.DayTuesday, "08:00", "10:00"), false},
		{"unparseable", slot(models.DayMonday, "8am", "10:00"), slot(models.DayMonday, "08:00", "10:00"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SlotsOverlap(tc.a, tc.b))
			assert.Equal(t, tc.want, SlotsOverlap(tc.b, tc.a))
		})
	}
}

func TestFindScheduleConflict(t *testing.T) {
	target := &models.Group{ID: "g-1", Schedule: models.ScheduleSlots{slot(models.DayWednesday, "14:00", "16:00")}}
	free := &models.Group{ID: "g-2", Schedule: models.ScheduleSlots{slot(models.DayWednesday, "16:00", "18:00")}}
	busy := &models.Group{ID: "g-3", Schedule: models.ScheduleSlots{slot(models.DayWednesday, "15:00", "17:00")}}

	assert.Nil(t, FindScheduleConflict(target, []*models.Group{free, target}))
	conflict := FindScheduleConflict(target, []*models.Group{free, busy})
	require.NotNil(t, conflict)
	assert.Equal(t, "g-3", conflict.ConflictGroupID)
	assert.Equal(t, "15:00", conflict.ConflictSlot.Start)
}

func TestValidateSlot(t *testing.T) {
	assert.NoError(t, ValidateSlot(slot(models.DayFriday, "07:00", "08:30")))
	assert.Error(t, ValidateSlot(slot("HOLIDAY", "07:00", "08:30")))
	assert.Error(t, ValidateSlot(slot(models.DayFriday, "09:00", "09:00")))
	assert.Error(t, ValidateSlot(slot(models.DayFriday, "25:00", "26:00")))
}
