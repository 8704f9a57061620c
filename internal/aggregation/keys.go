package aggregation

import (
	"encoding/binary"
	"fmt"
)

var (
	nextKey      = []byte("agg/next")
	dailyPrefix  = []byte("agg/d/")
	hourlyPrefix = []byte("agg/h/")
)

// Day identifies a UTC calendar day.
type Day struct {
	Year  uint16
	Month uint8
	Day   uint8
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Hour identifies a UTC hour.
type Hour struct {
	Day
	Hour uint8
}

func (h Hour) less(o Hour) bool {
	if h.Year != o.Year {
		return h.Year < o.Year
	}
	if h.Month != o.Month {
		return h.Month < o.Month
	}
	if h.Day.Day != o.Day.Day {
		return h.Day.Day < o.Day.Day
	}
	return h.Hour < o.Hour
}

// DateTime renders "YYYY-MM-DD HH:00:00".
func (h Hour) DateTime() string {
	return fmt.Sprintf("%s %02d:00:00", h.Day.String(), h.Hour)
}

func appendDay(dst []byte, d Day) []byte {
	dst = binary.BigEndian.AppendUint16(dst, d.Year)
	return append(dst, d.Month, d.Day)
}

func dailyBucketPrefix(d Day) []byte {
	return appendDay(append([]byte(nil), dailyPrefix...), d)
}

func hourlyBucketPrefix(h Hour) []byte {
	return append(appendDay(append([]byte(nil), hourlyPrefix...), h.Day), h.Hour)
}

func dailyKey(d Day, user string) []byte {
	return append(dailyBucketPrefix(d), user...)
}

func hourlyKey(h Hour, user string) []byte {
	return append(hourlyBucketPrefix(h), user...)
}

func parseDay(b []byte) Day {
	return Day{Year: binary.BigEndian.Uint16(b), Month: b[2], Day: b[3]}
}

func countValue(n uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, n)
}
