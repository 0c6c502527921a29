package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "09:30", want: 570},
		{in: "23:59", want: 1439},
		{in: "9:30", wantErr: true},
		{in: "24:00", wantErr: true},
		{in: "nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.in, got.String())
		})
	}
}

func TestTimeOfDayAt(t *testing.T) {
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	tod := TimeOfDay(570) // 09:30

	got := tod.At(date)
	require.Equal(t, time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC), got)
}

func TestNormalizeDate(t *testing.T) {
	in := time.Date(2024, 6, 1, 17, 45, 12, 99, time.UTC)
	require.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), NormalizeDate(in))
}

func TestServiceDepositCents(t *testing.T) {
	svc := Service{PriceCents: 100_000, DepositPercent: 50}
	require.Equal(t, int64(50_000), svc.DepositCents())

	svc = Service{PriceCents: 99_999, DepositPercent: 30}
	require.Equal(t, int64(29_999), svc.DepositCents())
}
