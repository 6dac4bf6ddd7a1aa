package availability

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotOpen     SlotStatus = "ABIERTA"
	SlotReserved SlotStatus = "RESERVADA"
)

// Slot maps to availability_slot. EndTime is StartTime plus Duration minutes.
type Slot struct {
	ID            uuid.UUID  `json:"id"`
	StaffID       uuid.UUID  `json:"staffId"`
	InstitutionID uuid.UUID  `json:"institutionId"`
	StartTime     time.Time  `json:"startTime"`
	Duration      int        `json:"duration"`
	EndTime       time.Time  `json:"endTime"`
	Status        SlotStatus `json:"status"`
	ReservedBy    *uuid.UUID `json:"reservedBy,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Covers reports whether [start, end) lies inside the slot.
func (s *Slot) Covers(start, end time.Time) bool {
	return !s.StartTime.After(start) && !s.EndTime.Before(end)
}

// Block is one time range a staff member offers.
type Block struct {
	DateTime time.Time `json:"dateTime" validate:"required"`
	Duration int       `json:"duration" validate:"required"`
}

type PublishInput struct {
	Blocks []Block `json:"blocks" validate:"required,min=1,dive"`
}

type BreakType string

const (
	BreakLunch    BreakType = "ALMUERZO"
	BreakRest     BreakType = "DESCANSO"
	BreakCoffee   BreakType = "CAFE"
	BreakPersonal BreakType = "PERSONAL"
	BreakOther    BreakType = "OTRO"
)

func (t BreakType) Valid() bool {
	switch t {
	case BreakLunch, BreakRest, BreakCoffee, BreakPersonal, BreakOther:
		return true
	}
	return false
}

// Break is a weekly recurring period in which the staff member is never
// bookable. Times are in the institution time zone.
type Break struct {
	ID        uuid.UUID    `json:"id"`
	StaffID   uuid.UUID    `json:"staffId"`
	DayOfWeek time.Weekday `json:"dayOfWeek"`
	StartTime Clock        `json:"startTime"`
	EndTime   Clock        `json:"endTime"`
	Type      BreakType    `json:"type"`
	CreatedAt time.Time    `json:"createdAt"`
}

type BreakInput struct {
	DayOfWeek int       `json:"dayOfWeek" validate:"min=0,max=6"`
	StartTime Clock     `json:"startTime"`
	EndTime   Clock     `json:"endTime"`
	Type      BreakType `json:"type" validate:"omitempty,oneof=ALMUERZO DESCANSO CAFE PERSONAL OTRO"`
}

// WorkingHours is one weekly window of general availability.
type WorkingHours struct {
	ID            uuid.UUID    `json:"id"`
	StaffID       uuid.UUID    `json:"staffId"`
	InstitutionID uuid.UUID    `json:"institutionId"`
	DayOfWeek     time.Weekday `json:"dayOfWeek"`
	StartTime     Clock        `json:"startTime"`
	EndTime       Clock        `json:"endTime"`
	Active        bool         `json:"active"`
}

type HoursInput struct {
	DayOfWeek int   `json:"dayOfWeek" validate:"min=0,max=6"`
	StartTime Clock `json:"startTime"`
	EndTime   Clock `json:"endTime"`
}

type ReplaceHoursInput struct {
	Hours []HoursInput `json:"hours" validate:"dive"`
}
