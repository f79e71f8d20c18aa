package models

import (
	"database/sql/driver"
	"encoding/json"
)

// Weekday names accepted in schedule slots.
const (
	DayMonday    = "MONDAY"
	DayTuesday   = "TUESDAY"
	DayWednesday = "WEDNESDAY"
	DayThursday  = "THURSDAY"
	DayFriday    = "FRIDAY"
	DaySaturday  = "SATURDAY"
	DaySunday    = "SUNDAY"
)

// ScheduleSlot is a weekly meeting of a group. Start and End use 24h "HH:MM".
type ScheduleSlot struct {
	Day   string `json:"day" validate:"required,oneof=MONDAY TUESDAY WEDNESDAY THURSDAY FRIDAY SATURDAY SUNDAY"`
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
	Room  string `json:"room,omitempty"`
}

// ScheduleSlots stores a group's weekly slots in a JSONB column.
type ScheduleSlots []ScheduleSlot

// Value implements driver.Valuer.
func (s ScheduleSlots) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]ScheduleSlot(s))
}

// Scan implements sql.Scanner.
func (s *ScheduleSlots) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// ScheduleConflict describes a clash between a requested group and a group
// the student already attends.
type ScheduleConflict struct {
	GroupID         string       `json:"groupId"`
	ConflictGroupID string       `json:"conflictGroupId"`
	Slot            ScheduleSlot `json:"slot"`
	ConflictSlot    ScheduleSlot `json:"conflictSlot"`
}
