package interview

import (
	"time"

	"github.com/talentloop/talentloop/internal/db"
)

// SlotConfig controls candidate slot generation.
type SlotConfig struct {
	Count         int // slots to offer
	HorizonDays   int // business days to look ahead
	SlotsPerDay   int // candidate times per business day
	WorkStartHour int // inclusive, 24h clock
	WorkEndHour   int // exclusive, 24h clock
}

// DefaultSlotConfig offers three slots over the next two weeks of business days.
func DefaultSlotConfig() SlotConfig {
	return SlotConfig{
		Count:         3,
		HorizonDays:   14,
		SlotsPerDay:   3,
		WorkStartHour: 9,
		WorkEndHour:   17,
	}
}

const slotDisplayLayout = "Monday, January 2 2006 at 3:04 PM"

// GenerateSlots walks forward day by day from tomorrow, skipping weekends,
// and places SlotsPerDay evenly spaced times inside the work-hour window of
// each business day. Slots at or before now are discarded. The walk stops
// once Count future slots are collected or HorizonDays business days are
// exhausted, so the result may be shorter than Count; an empty result means
// no availability, not an error. Deterministic for a fixed now.
func GenerateSlots(now time.Time, cfg SlotConfig) db.SlotList {
	if cfg.Count <= 0 || cfg.SlotsPerDay <= 0 || cfg.WorkEndHour <= cfg.WorkStartHour {
		return db.SlotList{}
	}

	slots := make(db.SlotList, 0, cfg.Count)
	day := now.AddDate(0, 0, 1)
	businessDays := 0

	for businessDays < cfg.HorizonDays && len(slots) < cfg.Count {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, 1)
			continue
		}
		businessDays++

		windowStart := time.Date(day.Year(), day.Month(), day.Day(), cfg.WorkStartHour, 0, 0, 0, day.Location())
		window := time.Duration(cfg.WorkEndHour-cfg.WorkStartHour) * time.Hour
		step := window / time.Duration(cfg.SlotsPerDay+1)

		for i := 1; i <= cfg.SlotsPerDay && len(slots) < cfg.Count; i++ {
			at := windowStart.Add(step * time.Duration(i))
			if !at.After(now) {
				continue
			}
			slots = append(slots, db.Slot{
				StartsAt: at,
				Display:  at.Format(slotDisplayLayout),
			})
		}

		day = day.AddDate(0, 0, 1)
	}

	return slots
}
