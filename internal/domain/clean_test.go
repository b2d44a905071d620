package domain

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countNulls(rows []MergedRecord) (tmax, tmin, energy int) {
	for _, r := range rows {
		if missing(r.TempMaxF) {
			tmax++
		}
		if missing(r.TempMinF) {
			tmin++
		}
		if missing(r.EnergyUsageMWh) {
			energy++
		}
	}
	return tmax, tmin, energy
}

func widen(rows []CleanedRecord) []MergedRecord {
	out := make([]MergedRecord, len(rows))
	for i, r := range rows {
		out[i] = r.Merged()
	}
	return out
}

func TestClean_ForwardFillsGap(t *testing.T) {
	merged := []MergedRecord{
		{City: "New York", Date: day("2024-01-01"), TempMaxF: Float(32), TempMinF: Float(20), EnergyUsageMWh: Float(300)},
		{City: "New York", Date: day("2024-01-02"), TempMaxF: nil, TempMinF: Float(21), EnergyUsageMWh: nil},
	}

	res := Clean(merged, FillByCity)

	want := []CleanedRecord{
		{City: "New York", Date: day("2024-01-01"), TempMaxF: 32, TempMinF: 20, EnergyUsageMWh: 300},
		{City: "New York", Date: day("2024-01-02"), TempMaxF: 32, TempMinF: 21, EnergyUsageMWh: 300},
	}
	if diff := cmp.Diff(want, res.Rows); diff != "" {
		t.Fatalf("clean mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, res.Dropped)

	tmax, tmin, energy := countNulls(widen(res.Rows))
	assert.Zero(t, tmax)
	assert.Zero(t, tmin)
	assert.Zero(t, energy)
}

func TestClean_DropsLeadingGaps(t *testing.T) {
	merged := []MergedRecord{
		{City: "Chicago", Date: day("2024-01-01"), TempMaxF: Float(30), TempMinF: Float(10)},
		{City: "Chicago", Date: day("2024-01-02"), TempMaxF: Float(31), TempMinF: Float(11), EnergyUsageMWh: Float(250)},
		{City: "Chicago", Date: day("2024-01-03"), TempMaxF: nil, TempMinF: nil, EnergyUsageMWh: nil},
	}

	res := Clean(merged, FillByCity)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, day("2024-01-02"), res.Rows[0].Date)
	assert.Equal(t, CleanedRecord{City: "Chicago", Date: day("2024-01-03"), TempMaxF: 31, TempMinF: 11, EnergyUsageMWh: 250}, res.Rows[1])
}

func TestClean_Rounds(t *testing.T) {
	merged := []MergedRecord{
		{City: "Phoenix", Date: day("2024-07-01"), TempMaxF: Float(109.96), TempMinF: Float(84.04), EnergyUsageMWh: Float(1234.5678)},
	}

	res := Clean(merged, FillByCity)

	require.Len(t, res.Rows, 1)
	assert.Equal(t, 110.0, res.Rows[0].TempMaxF)
	assert.Equal(t, 84.0, res.Rows[0].TempMinF)
	assert.Equal(t, 1234.57, res.Rows[0].EnergyUsageMWh)
}

func TestClean_InvalidValuesAreDroppedNotFilled(t *testing.T) {
	merged := []MergedRecord{
		{City: "Houston", Date: day("2024-01-01"), TempMaxF: Float(60), TempMinF: Float(40), EnergyUsageMWh: Float(500)},
		{City: "Houston", Date: day("2024-01-02"), TempMaxF: Float(61), TempMinF: Float(41), EnergyUsageMWh: Float(math.NaN())},
		{City: "Houston", Date: day("2024-01-03"), TempMaxF: Float(62), TempMinF: Float(42), EnergyUsageMWh: nil},
		{City: "Houston", Date: day("2024-01-04"), TempMaxF: Float(63), TempMinF: Float(43), EnergyUsageMWh: Float(math.Inf(1))},
		{City: "Houston", Date: day("2024-01-05"), TempMaxF: Float(64), TempMinF: Float(44), EnergyUsageMWh: Float(520)},
	}

	res := Clean(merged, FillByCity)

	// The non-numeric value on 01-02 is carried into the gap on 01-03 and
	// both are coerced to missing afterwards.
	require.Len(t, res.Rows, 2)
	assert.Equal(t, day("2024-01-01"), res.Rows[0].Date)
	assert.Equal(t, day("2024-01-05"), res.Rows[1].Date)
	assert.Equal(t, 3, res.Dropped)
}

func TestClean_FillScope(t *testing.T) {
	// Chicago's last energy value must not leak into Houston's leading gap
	// when filling by city; the legacy table-wide fill does leak it.
	merged := []MergedRecord{
		{City: "Chicago", Date: day("2024-01-01"), TempMaxF: Float(30), TempMinF: Float(10), EnergyUsageMWh: Float(250)},
		{City: "Houston", Date: day("2024-01-01"), TempMaxF: Float(60), TempMinF: Float(40), EnergyUsageMWh: nil},
		{City: "Houston", Date: day("2024-01-02"), TempMaxF: Float(61), TempMinF: Float(41), EnergyUsageMWh: Float(500)},
	}

	t.Run("city", func(t *testing.T) {
		res := Clean(merged, FillByCity)
		require.Len(t, res.Rows, 2)
		assert.Equal(t, "Chicago", res.Rows[0].City)
		assert.Equal(t, day("2024-01-02"), res.Rows[1].Date)
		assert.Equal(t, 1, res.Dropped)
	})

	t.Run("table", func(t *testing.T) {
		res := Clean(merged, FillTable)
		require.Len(t, res.Rows, 3)
		assert.Equal(t, "Houston", res.Rows[1].City)
		assert.Equal(t, 250.0, res.Rows[1].EnergyUsageMWh)
		assert.Zero(t, res.Dropped)
	})
}

func TestClean_SortsBeforeFilling(t *testing.T) {
	merged := []MergedRecord{
		{City: "Seattle", Date: day("2024-01-02"), TempMaxF: nil, TempMinF: Float(41), EnergyUsageMWh: Float(90)},
		{City: "Seattle", Date: day("2024-01-01"), TempMaxF: Float(50), TempMinF: Float(40), EnergyUsageMWh: Float(80)},
	}

	res := Clean(merged, FillByCity)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, 50.0, res.Rows[1].TempMaxF)
	assert.Nil(t, merged[0].TempMaxF, "input must not be modified")
}

func TestClean_Idempotent(t *testing.T) {
	merged := []MergedRecord{
		{City: "Chicago", Date: day("2024-01-01"), TempMinF: Float(10.04)},
		{City: "Chicago", Date: day("2024-01-02"), TempMaxF: Float(31.26), TempMinF: Float(11.15), EnergyUsageMWh: Float(250.555)},
		{City: "Chicago", Date: day("2024-01-03"), EnergyUsageMWh: Float(251.004)},
		{City: "New York", Date: day("2024-01-01"), TempMaxF: Float(40.05), TempMinF: Float(28.95), EnergyUsageMWh: Float(400.125)},
		{City: "New York", Date: day("2024-01-02")},
	}

	once := Clean(merged, FillByCity)
	twice := Clean(widen(once.Rows), FillByCity)

	if diff := cmp.Diff(once.Rows, twice.Rows); diff != "" {
		t.Fatalf("clean is not idempotent (-once +twice):\n%s", diff)
	}
	assert.Zero(t, twice.Dropped)
}

func TestClean_Empty(t *testing.T) {
	res := Clean(nil, FillByCity)
	assert.Empty(t, res.Rows)
	assert.Zero(t, res.Dropped)
}

func TestParseFillScope(t *testing.T) {
	s, err := ParseFillScope("City")
	require.NoError(t, err)
	assert.Equal(t, FillByCity, s)

	s, err = ParseFillScope(" table ")
	require.NoError(t, err)
	assert.Equal(t, FillTable, s)

	_, err = ParseFillScope("region")
	require.Error(t, err)
}
