package dateutil_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/quartz/internal/dateutil"
	"github.com/jonesrussell/quartz/internal/domain"
)

func at(h, m, s int) time.Time {
	return time.Date(2026, time.March, 10, h, m, s, 123456789, time.UTC)
}

func TestEvenRounding(t *testing.T) {
	t.Parallel()

	in := at(13, 5, 10)

	assert.Equal(t, time.Date(2026, time.March, 10, 14, 0, 0, 0, time.UTC), dateutil.EvenHourDate(in))
	assert.Equal(t, time.Date(2026, time.March, 10, 13, 0, 0, 0, time.UTC), dateutil.EvenHourDateBefore(in))
	assert.Equal(t, time.Date(2026, time.March, 10, 13, 6, 0, 0, time.UTC), dateutil.EvenMinuteDate(in))
	assert.Equal(t, time.Date(2026, time.March, 10, 13, 5, 0, 0, time.UTC), dateutil.EvenMinuteDateBefore(in))
	assert.Equal(t, time.Date(2026, time.March, 10, 13, 5, 11, 0, time.UTC), dateutil.EvenSecondDate(in))
	assert.Equal(t, time.Date(2026, time.March, 10, 13, 5, 10, 0, time.UTC), dateutil.EvenSecondDateBefore(in))
}

func TestEvenHourDate_RollsIntoNextDay(t *testing.T) {
	t.Parallel()

	in := time.Date(2026, time.March, 10, 23, 30, 0, 0, time.UTC)
	got := dateutil.EvenHourDate(in)
	assert.Equal(t, time.Date(2026, time.March, 11, 0, 0, 0, 0, time.UTC), got)
}

func TestNextGivenMinuteDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   time.Time
		base int
		want time.Time
	}{
		{"rounds to next multiple", at(11, 16, 41), 20, time.Date(2026, time.March, 10, 11, 20, 0, 0, time.UTC)},
		{"multiple past 59 rolls to next hour", at(11, 52, 41), 17, time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)},
		{"base zero advances to hour boundary", at(11, 17, 41), 0, time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)},
		{"exact multiple advances to the next one", at(11, 20, 0), 20, time.Date(2026, time.March, 10, 11, 40, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := dateutil.NextGivenMinuteDate(tt.in, tt.base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextGivenMinuteDate_InvalidBase(t *testing.T) {
	t.Parallel()

	_, err := dateutil.NextGivenMinuteDate(at(11, 0, 0), 60)
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))

	_, err = dateutil.NextGivenMinuteDate(at(11, 0, 0), -1)
	require.Error(t, err)
}

func TestNextGivenSecondDate(t *testing.T) {
	t.Parallel()

	got, err := dateutil.NextGivenSecondDate(at(11, 16, 41), 15)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.March, 10, 11, 16, 45, 0, time.UTC), got)

	got, err = dateutil.NextGivenSecondDate(at(11, 16, 50), 15)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.March, 10, 11, 17, 0, 0, time.UTC), got)
}

func TestTranslateTime(t *testing.T) {
	t.Parallel()

	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	// 10:00 in New York should read 10:00 in Chicago after translation.
	in := time.Date(2026, time.June, 15, 10, 0, 0, 0, newYork)
	got := dateutil.TranslateTime(in, newYork, chicago)
	assert.Equal(t, 10, got.In(chicago).Hour())

	// Translating into the same zone is the identity.
	assert.True(t, in.Equal(dateutil.TranslateTime(in, newYork, newYork)))
}

func TestFieldValidators(t *testing.T) {
	t.Parallel()

	assert.NoError(t, dateutil.ValidateSecond(0))
	assert.NoError(t, dateutil.ValidateSecond(59))
	assert.Error(t, dateutil.ValidateSecond(60))

	assert.NoError(t, dateutil.ValidateMinute(30))
	assert.Error(t, dateutil.ValidateMinute(-1))

	assert.NoError(t, dateutil.ValidateHour(23))
	assert.Error(t, dateutil.ValidateHour(24))

	assert.NoError(t, dateutil.ValidateDayOfWeek(1))
	assert.NoError(t, dateutil.ValidateDayOfWeek(7))
	assert.Error(t, dateutil.ValidateDayOfWeek(0))

	assert.NoError(t, dateutil.ValidateDayOfMonth(31))
	assert.Error(t, dateutil.ValidateDayOfMonth(32))

	assert.NoError(t, dateutil.ValidateMonth(12))
	assert.Error(t, dateutil.ValidateMonth(13))

	assert.NoError(t, dateutil.ValidateYear(1970))
	assert.Error(t, dateutil.ValidateYear(1969))
}

func TestLastDayOfMonth(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 31, dateutil.LastDayOfMonth(2026, time.January))
	assert.Equal(t, 28, dateutil.LastDayOfMonth(2026, time.February))
	assert.Equal(t, 29, dateutil.LastDayOfMonth(2028, time.February))
	assert.Equal(t, 30, dateutil.LastDayOfMonth(2026, time.April))
}
