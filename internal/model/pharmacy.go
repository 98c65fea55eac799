package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const MinutesPerDay = 24 * 60

var ErrInvalidClock = errors.New("invalid time of day, use HH:MM (e.g. 08:30, 17:59)")

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

type Pharmacy struct {
	BaseModel
	Name        string          `gorm:"type:varchar(255);not null;index" json:"name"`
	CashBalance decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0;check:cash_balance >= 0" json:"cash_balance"`
	Version     int             `gorm:"not null;default:0" json:"-"`

	// OpeningBalance is the balance the row was created with; the purchase log is replayed against it
	OpeningBalance decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"opening_balance"`

	OpeningHours []OpeningHour `gorm:"constraint:OnDelete:CASCADE" json:"opening_hours,omitempty"`
	Masks        []Mask        `json:"masks,omitempty"`
}

// OpeningHour is one [open, close) interval on a weekday.
// CloseMinute < OpenMinute means the interval runs past midnight into the next day.
type OpeningHour struct {
	ID          uint `gorm:"primaryKey" json:"-"`
	PharmacyID  uint `gorm:"not null;index" json:"-"`
	Weekday     int  `gorm:"not null;index" json:"-"` // time.Weekday, Sunday = 0
	OpenMinute  int  `gorm:"not null" json:"-"`
	CloseMinute int  `gorm:"not null" json:"-"`
}

func (h OpeningHour) IsOvernight() bool {
	return h.CloseMinute < h.OpenMinute
}

func (h OpeningHour) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Weekday   string `json:"weekday"`
		Open      string `json:"open"`
		Close     string `json:"close"`
		Overnight bool   `json:"overnight"`
	}{
		Weekday:   time.Weekday(h.Weekday).String()[:3],
		Open:      FormatClock(h.OpenMinute),
		Close:     FormatClock(h.CloseMinute),
		Overnight: h.IsOvernight(),
	})
}

// ParseClock converts HH:MM into minutes since midnight
func ParseClock(s string) (int, error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	return hours*60 + minutes, nil
}

func FormatClock(minute int) string {
	minute = ((minute % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
