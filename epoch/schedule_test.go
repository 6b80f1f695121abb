package epoch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cyclofinance/cy-ledger/inter"
)

func testSchedule(t *testing.T) Schedule {
	s, err := NewSchedule([]Record{
		{Label: "first", Start: 1000000, Days: 30},
		{Label: "second", Start: 1000000 + 30*SecondsPerDay, Days: 10},
		{Label: "third", Start: 1000000 + 45*SecondsPerDay, Days: 30},
	})
	require.NoError(t, err)
	return s
}

func TestNewScheduleValidation(t *testing.T) {
	require := require.New(t)

	_, err := NewSchedule(nil)
	require.Error(err)

	_, err = NewSchedule([]Record{{Start: 100, Days: 0}})
	require.Error(err)

	_, err = NewSchedule([]Record{
		{Start: 200, Days: 30},
		{Start: 100, Days: 30},
	})
	require.Error(err)

	_, err = NewSchedule([]Record{
		{Start: 100, Days: 30},
		{Start: 100, Days: 30},
	})
	require.Error(err)
}

func TestIndexOf(t *testing.T) {
	require := require.New(t)
	s := testSchedule(t)

	// before the first epoch clamps to it
	require.Equal(inter.Epoch(0), s.IndexOf(0))
	require.Equal(inter.Epoch(0), s.IndexOf(1000000))
	require.Equal(inter.Epoch(0), s.IndexOf(1000000+29*SecondsPerDay))

	require.Equal(inter.Epoch(1), s.IndexOf(1000000+30*SecondsPerDay))
	require.Equal(inter.Epoch(1), s.IndexOf(1000000+44*SecondsPerDay))

	// past the last epoch clamps to it
	require.Equal(inter.Epoch(2), s.IndexOf(1000000+45*SecondsPerDay))
	require.Equal(inter.Epoch(2), s.IndexOf(1000000+1000*SecondsPerDay))
}

func TestDayOf(t *testing.T) {
	require := require.New(t)
	s := testSchedule(t)

	// a day closes at its exact end: the boundary second still belongs to
	// the earlier day
	require.Equal(inter.Day(1), s.DayOf(1000000))
	require.Equal(inter.Day(1), s.DayOf(1000000+SecondsPerDay))
	require.Equal(inter.Day(2), s.DayOf(1000000+SecondsPerDay+1))
	require.Equal(inter.Day(30), s.DayOf(1000000+29*SecondsPerDay+1))

	// the second epoch has 10 nominal days but a 15-day window before its
	// successor starts; days count down from that window's end
	require.Equal(inter.Day(1), s.DayOf(1000000+30*SecondsPerDay))
	require.Equal(inter.Day(9), s.DayOf(1000000+44*SecondsPerDay))
	require.Equal(inter.Day(10), s.DayOf(1000000+45*SecondsPerDay-1))

	// timestamps before the first epoch never report less than day 1
	require.Equal(inter.Day(1), s.DayOf(0))

	// past the end of the last epoch the day saturates at the epoch length
	require.Equal(inter.Day(30), s.DayOf(1000000+1000*SecondsPerDay))
}

func TestFromYAML(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "epochs.yaml")
	raw := `
- date: "2024-07-06T12:00:00Z"
  start: 1720267200
  days: 30
- date: "2024-08-05T12:00:00Z"
  start: 1722859200
  days: 30
`
	require.NoError(os.WriteFile(path, []byte(raw), 0o644))

	s, err := FromYAML(path)
	require.NoError(err)
	require.Equal(2, s.Len())
	require.Equal(inter.Timestamp(1720267200), s.Record(0).Start)
	require.Equal("2024-07-06T12:00:00Z", s.Record(0).Label)
	require.Equal(30, s.Record(1).Days)

	_, err = FromYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(err)
}
