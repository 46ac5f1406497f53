// Package taskid formats the short human-readable job references (YMD-NNNN) shown to
// users. Y, M and D are single characters for the year offset from 2020, the month and
// the day in India Standard Time; NNNN is the daily sequence.
package taskid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	charMap   = "123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	baseYear  = 2020
	seqDigits = 4
	MaxSeq    = 9999
)

var ist = time.FixedZone("IST", 5*3600+1800)

var ErrInvalid = errors.New("taskid: invalid task id")

// Prefix returns the three-character day prefix for t.
func Prefix(t time.Time) string {
	local := t.In(ist)
	return string([]byte{
		encode(local.Year()-baseYear, '0'),
		encode(int(local.Month())-1, '1'),
		encode(local.Day()-1, '1'),
	})
}

func encode(idx int, fallback byte) byte {
	if idx < 0 || idx >= len(charMap) {
		return fallback
	}
	return charMap[idx]
}

func Format(prefix string, seq int) string {
	return fmt.Sprintf("%s-%0*d", prefix, seqDigits, seq)
}

// Sequence extracts NNNN from id. It returns 0 for ids it cannot parse.
func Sequence(id string) int {
	_, seq, ok := strings.Cut(id, "-")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(seq)
	if err != nil {
		return 0
	}
	return n
}

type Info struct {
	Date     time.Time
	Sequence int
}

func Decode(id string) (Info, error) {
	prefix, seq, ok := strings.Cut(id, "-")
	if !ok || len(prefix) != 3 {
		return Info{}, ErrInvalid
	}
	y := strings.IndexByte(charMap, prefix[0])
	m := strings.IndexByte(charMap, prefix[1])
	d := strings.IndexByte(charMap, prefix[2])
	if y < 0 || m < 0 || m > 11 || d < 0 || d > 30 {
		return Info{}, ErrInvalid
	}
	n, err := strconv.Atoi(seq)
	if err != nil || n < 1 {
		return Info{}, ErrInvalid
	}
	date := time.Date(baseYear+y, time.Month(m+1), d+1, 0, 0, 0, 0, ist)
	return Info{Date: date, Sequence: n}, nil
}
