// Package cron wraps robfig/cron parsing with an explicit IANA timezone.
package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultTimezone is used when Parse is given an empty timezone.
const DefaultTimezone = "UTC"

// maxCatchUp bounds the number of occurrences Due walks through.
const maxCatchUp = 10000

type Parser struct {
	parser cron.Parser
}

// NewParser accepts standard five-field expressions and descriptors such as
// "@daily" or "@every 1h".
func NewParser() *Parser {
	return &Parser{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (p *Parser) Parse(expression string, timezone string) (Schedule, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}

	sched, err := p.parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse cron: %w", err)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	return &schedule{expr: expression, sched: sched, loc: loc}, nil
}

type Schedule interface {
	Next(after time.Time) time.Time
}

type schedule struct {
	expr  string
	sched cron.Schedule
	loc   *time.Location
}

func (s *schedule) Next(after time.Time) time.Time {
	return s.sched.Next(after.In(s.loc))
}

func (s *schedule) String() string {
	return s.expr + " (" + s.loc.String() + ")"
}

// Due reports the latest occurrence in (from, to] and how many occurrences
// fell inside that window. Missed occurrences collapse into one.
func Due(s Schedule, from, to time.Time) (latest time.Time, count int) {
	t := s.Next(from)
	for i := 0; i < maxCatchUp && !t.IsZero() && !t.After(to); i++ {
		latest = t
		count++
		t = s.Next(t)
	}
	return latest, count
}
