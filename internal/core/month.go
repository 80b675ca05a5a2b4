package core

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// MonthKey identifies a calendar month in "YYYY-MM" form. Keys compare
// chronologically as plain strings, which is what the propagation and
// sorting code relies on.
type MonthKey string

var ErrInvalidMonthKey = errors.New("invalid month key, expected YYYY-MM")

// MonthOf returns the key for the month containing t.
func MonthOf(t time.Time) MonthKey {
	return MonthKey(t.Format("2006-01"))
}

// MonthFromDate derives the month key from an ISO-8601 date string by taking
// its first seven characters ("2024-01-15" -> "2024-01").
func MonthFromDate(iso string) (MonthKey, error) {
	if len(iso) < 7 {
		return "", ErrInvalidMonthKey
	}
	key := MonthKey(iso[:7])
	if err := key.Validate(); err != nil {
		return "", err
	}
	return key, nil
}

func (k MonthKey) Validate() error {
	if len(k) != 7 || k[4] != '-' {
		return ErrInvalidMonthKey
	}
	for i, r := range k {
		if i == 4 {
			continue
		}
		if r < '0' || r > '9' {
			return ErrInvalidMonthKey
		}
	}
	month := int(k[5]-'0')*10 + int(k[6]-'0')
	if month < 1 || month > 12 {
		return ErrInvalidMonthKey
	}
	return nil
}

// Next returns the following calendar month, rolling December into January.
func (k MonthKey) Next() MonthKey {
	year := int(k[0]-'0')*1000 + int(k[1]-'0')*100 + int(k[2]-'0')*10 + int(k[3]-'0')
	month := int(k[5]-'0')*10 + int(k[6]-'0')
	month++
	if month > 12 {
		month = 1
		year++
	}
	return MonthKey(fmt.Sprintf("%04d-%02d", year, month))
}

func (k MonthKey) Before(other MonthKey) bool {
	return string(k) < string(other)
}

// Time returns midnight UTC on the first day of the month. Invalid keys
// return the zero time.
func (k MonthKey) Time() time.Time {
	t, err := time.Parse("2006-01", string(k))
	if err != nil {
		return time.Time{}
	}
	return t
}

// DisplayName renders the key as "January 2024" for month bootstrapping.
func (k MonthKey) DisplayName() string {
	t := k.Time()
	if t.IsZero() {
		return string(k)
	}
	return t.Format("January 2006")
}

// SortMonths orders months chronologically by key, in place.
func SortMonths(months []Month) {
	sort.Slice(months, func(i, j int) bool {
		return months[i].ID.Before(months[j].ID)
	})
}
