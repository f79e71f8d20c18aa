package academic

import (
	"time"

	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

const clockLayout = "15:04"

var weekdays = map[string]struct{}{
	models.DayMonday: {}, models.DayTuesday: {}, models.DayWednesday: {}, models.DayThursday: {},
	models.DayFriday: {}, models.DaySaturday: {}, models.DaySunday: {},
}

// ValidateSlot checks the day name and that Start is before End.
func ValidateSlot(slot models.ScheduleSlot) error {
	if _, ok := weekdays[slot.Day]; !ok {
		return appErrors.Clonef(appErrors.ErrValidation, "unknown schedule day %q", slot.Day)
	}
	start, err := time.Parse(clockLayout, slot.Start)
	if err != nil {
		return appErrors.Clonef(appErrors.ErrValidation, "invalid slot start %q", slot.Start)
	}
	end, err := time.Parse(clockLayout, slot.End)
	if err != nil {
		return appErrors.Clonef(appErrors.ErrValidation, "invalid slot end %q", slot.End)
	}
	if !start.Before(end) {
		return appErrors.Clonef(appErrors.ErrValidation, "slot %s %s-%s ends before it starts", slot.Day, slot.Start, slot.End)
	}
	return nil
}

// SlotsOverlap reports whether two weekly slots share a day and their [Start, End)
// intervals intersect. Unparseable slots never overlap.
func SlotsOverlap(a, b models.ScheduleSlot) bool {
	if a.Day != b.Day {
		return false
	}
	aStart, err1 := time.Parse(clockLayout, a.Start)
	aEnd, err2 := time.Parse(clockLayout, a.End)
	bStart, err3 := time.Parse(clockLayout, b.Start)
	bEnd, err4 := time.Parse(clockLayout, b.End)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return false
	}
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// FindScheduleConflict returns the first clash between target and any of the
// other groups, or nil.
func FindScheduleConflict(target *models.Group, others []*models.Group) *models.ScheduleConflict {
	for _, other := range others {
		if other == nil || other.ID == target.ID {
			continue
		}
		for _, slot := range target.Schedule {
			for _, taken := range other.Schedule {
				if SlotsOverlap(slot, taken) {
					return &models.ScheduleConflict{
						GroupID:         target.ID,
						ConflictGroupID: other.ID,
						Slot:            slot,
						ConflictSlot:    taken,
					}
				}
			}
		}
	}
	return nil
}
