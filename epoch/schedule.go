// Package epoch maps block timestamps onto the reward epoch schedule: an
// immutable ascending table of epoch starts with individual lengths in days.
// It also owns TimeState, the singleton record of observed stream time and
// the last taken snapshot position.
package epoch

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/cyclofinance/cy-ledger/inter"
)

// SecondsPerDay is the length of a snapshot day.
const SecondsPerDay = 24 * 60 * 60

// Record is one reward epoch: a start timestamp and a length in days.
type Record struct {
	// Label is the human-readable epoch start, carried through for logging.
	Label string `yaml:"date"`

	Start inter.Timestamp `yaml:"start"`
	Days  int             `yaml:"days"`
}

// End returns the timestamp at which the epoch's window closes.
func (r Record) End() inter.Timestamp {
	return r.Start + inter.Timestamp(r.Days*SecondsPerDay)
}

// Schedule is an ordered epoch table. The zero value is invalid; construct
// with NewSchedule or FromYAML.
type Schedule struct {
	records []Record
}

// NewSchedule validates and wraps an epoch table. Starts must be strictly
// ascending and every length positive.
func NewSchedule(records []Record) (Schedule, error) {
	if len(records) == 0 {
		return Schedule{}, errors.New("epoch schedule is empty")
	}
	for i, r := range records {
		if r.Days <= 0 {
			return Schedule{}, errors.Errorf("epoch %d has non-positive length %d", i, r.Days)
		}
		if i > 0 && r.Start <= records[i-1].Start {
			return Schedule{}, errors.Errorf("epoch %d start %d is not after epoch %d start %d",
				i, r.Start, i-1, records[i-1].Start)
		}
	}
	cp := make([]Record, len(records))
	copy(cp, records)
	return Schedule{records: cp}, nil
}

// FromYAML loads an epoch table from a YAML file holding a list of records.
func FromYAML(path string) (Schedule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Schedule{}, errors.Wrap(err, "failed to read epoch schedule")
	}
	var records []Record
	if err := yaml.Unmarshal(raw, &records); err != nil {
		return Schedule{}, errors.Wrap(err, "failed to parse epoch schedule")
	}
	return NewSchedule(records)
}

// Len returns the number of epochs in the schedule.
func (s Schedule) Len() int {
	return len(s.records)
}

// Record returns the epoch at the given index.
func (s Schedule) Record(i inter.Epoch) Record {
	return s.records[i]
}

// IndexOf returns the epoch enclosing the timestamp: the greatest index whose
// start is at or before ts, clamped to the first and last epoch at the
// boundaries.
func (s Schedule) IndexOf(ts inter.Timestamp) inter.Epoch {
	if ts <= s.records[0].Start {
		return 0
	}
	last := inter.Epoch(len(s.records) - 1)
	if ts >= s.records[last].Start {
		return last
	}
	// The table is small (tens of entries) and scanned once per event.
	for i := last; i > 0; i-- {
		if s.records[i].Start <= ts {
			return i
		}
	}
	return 0
}

// DayOf returns the 1-based day of the enclosing epoch for ts: the epoch
// length minus the number of whole days remaining until the next epoch
// begins. Never returns less than 1.
func (s Schedule) DayOf(ts inter.Timestamp) inter.Day {
	i := s.IndexOf(ts)
	rec := s.records[i]

	end := rec.End()
	if int(i) < len(s.records)-1 {
		end = s.records[i+1].Start
	}

	day := inter.Day(rec.Days)
	if ts < end {
		day -= inter.Day((end - ts) / SecondsPerDay)
	}
	if day < 1 {
		day = 1
	}
	return day
}
