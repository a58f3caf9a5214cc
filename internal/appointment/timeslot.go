package appointment

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DateLayout = "2006-01-02"

// TimeSlot is a half-hour booking label such as "9:00 AM".
type TimeSlot string

// slotMinutes maps every bookable label to minutes after midnight.
var slotMinutes = buildSlots(9*60, 17*60, 30)

func buildSlots(first, last, step int) map[TimeSlot]int {
	m := make(map[TimeSlot]int)
	for mins := first; mins <= last; mins += step {
		m[formatSlot(mins)] = mins
	}
	return m
}

func formatSlot(mins int) TimeSlot {
	h, m := mins/60, mins%60
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return TimeSlot(fmt.Sprintf("%d:%02d %s", h12, m, suffix))
}

// ParseTimeSlot accepts a known label, tolerating case and surrounding spaces.
func ParseTimeSlot(s string) (TimeSlot, error) {
	t := TimeSlot(strings.ToUpper(strings.Join(strings.Fields(s), " ")))
	if _, ok := slotMinutes[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeSlot, s)
	}
	return t, nil
}

// Minutes returns minutes after midnight, or -1 for an unknown label.
func (t TimeSlot) Minutes() int {
	if m, ok := slotMinutes[t]; ok {
		return m
	}
	return -1
}

// TimeSlots lists every label in chronological order.
func TimeSlots() []TimeSlot {
	out := make([]TimeSlot, 0, len(slotMinutes))
	for t := range slotMinutes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Minutes() < out[j].Minutes() })
	return out
}

// ParseDate parses a calendar date and normalizes it to UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// Slot identifies a bookable unit.
type Slot struct {
	DoctorID uuid.UUID
	Date     time.Time
	Time     TimeSlot
}

func NewSlot(doctorID uuid.UUID, date, timeLabel string) (Slot, error) {
	d, err := ParseDate(date)
	if err != nil {
		return Slot{}, err
	}
	t, err := ParseTimeSlot(timeLabel)
	if err != nil {
		return Slot{}, err
	}
	return Slot{DoctorID: doctorID, Date: d, Time: t}, nil
}

func (s Slot) Key() string {
	return s.DoctorID.String() + ":" + s.Date.Format(DateLayout) + ":" + string(s.Time)
}

// Before orders appointments chronologically by (date, time), then by creation.
func Before(a, b *Appointment) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	if am, bm := a.Time.Minutes(), b.Time.Minutes(); am != bm {
		return am < bm
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func SortChronological(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool { return Before(&appts[i], &appts[j]) })
}
