package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Audit carries the timestamps every table has.
type Audit struct {
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

const dateLayout = "2006-01-02"

// Date is a calendar date without time of day, stored as a PostgreSQL DATE.
type Date struct {
	t time.Time
}

// NewDate returns the date y-m-d.
func NewDate(y int, m time.Month, d int) Date {
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Date())
}

// Today returns the current date in loc.
func Today(loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(time.Now().In(loc))
}

// Clock tells services what day it is.
type Clock func() Date

// SystemClock reads the wall clock in loc.
func SystemClock(loc *time.Location) Clock {
	return func() Date { return Today(loc) }
}

// FixedClock always reports d.
func FixedClock(d Date) Clock {
	return func() Date { return d }
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) IsZero() bool {
	return d.t.IsZero()
}

func (d Date) Before(o Date) bool {
	return d.t.Before(o.t)
}

func (d Date) After(o Date) bool {
	return d.t.After(o.t)
}

func (d Date) Equal(o Date) bool {
	return d.t.Equal(o.t)
}

func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

func (d Date) Time() time.Time {
	return d.t
}

func (d Date) String() string {
	return d.t.Format(dateLayout)
}

func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = NewDate(v.Date())
		return nil
	case []byte:
		return d.parse(string(v))
	case string:
		return d.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

func (d *Date) parse(s string) error {
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*d = Date{}
		if string(b) == "null" {
			return nil
		}
		return fmt.Errorf("date must be a YYYY-MM-DD string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
