package normalize

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/patchnotes/internal/types"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2025-04-10", time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC), true},
		{"2025-04-10T13:45:00Z", time.Date(2025, 4, 10, 13, 45, 0, 0, time.UTC), true},
		{"2025-02-30", time.Time{}, false},
		{"04/10/2025", time.Time{}, false},
		{"2025-04-10T13:45:00", time.Time{}, false},
		{"2025-04-10T13:45:00.123Z", time.Time{}, false},
		{"H.R. 2025-04-10", time.Time{}, false},
		{"", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
		})
	}
}

func TestDates(t *testing.T) {
	in := types.Record{
		"title":        "Protecting American Energy",
		"signing_date": "2025-01-20",
		"updateDate":   "2025-01-21T08:00:00Z",
		"number":       14154,
		"citation":     "90 FR 8353",
		"latestAction": map[string]any{"actionDate": "2025-01-22", "text": "Referred"},
		"formats":      []any{"2025-01-23", "pdf"},
	}

	out := Dates(in)

	assert.Equal(t, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), out["signing_date"])
	assert.Equal(t, time.Date(2025, 1, 21, 8, 0, 0, 0, time.UTC), out["updateDate"])
	assert.Equal(t, "Protecting American Energy", out["title"])
	assert.Equal(t, 14154, out["number"])
	assert.Equal(t, "90 FR 8353", out["citation"])

	nested, ok := out["latestAction"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 22, 0, 0, 0, 0, time.UTC), nested["actionDate"])
	assert.Equal(t, "Referred", nested["text"])

	list, ok := out["formats"].([]any)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 23, 0, 0, 0, 0, time.UTC), list[0])

	// input untouched
	assert.Equal(t, "2025-01-20", in["signing_date"])
}

func TestDates_Nil(t *testing.T) {
	assert.Nil(t, Dates(nil))
	assert.Empty(t, All([]types.Record{nil, nil}))
}

func TestDates_Idempotent(t *testing.T) {
	r := types.Record{"postedDate": "2024-01-05T05:00:00Z", "docketId": "EPA-HQ-OAR-2023-0001"}
	once := Dates(r)
	twice := Dates(once)
	assert.Equal(t, once, twice)
}

func genDateString() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(1900, 2100),
		gen.IntRange(1, 12),
		gen.IntRange(1, 31),
		gen.IntRange(0, 23),
		gen.IntRange(0, 59),
		gen.Bool(),
	).Map(func(vals []interface{}) string {
		d := fmt.Sprintf("%04d-%02d-%02d", vals[0].(int), vals[1].(int), vals[2].(int))
		if vals[5].(bool) {
			d += fmt.Sprintf("T%02d:%02d:00Z", vals[3].(int), vals[4].(int))
		}
		return d
	})
}

func TestDates_IdempotentProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("normalize(normalize(r)) == normalize(r)", prop.ForAll(
		func(date string, text string, n int) bool {
			r := types.Record{
				"date":   date,
				"text":   text,
				"n":      n,
				"nested": map[string]any{"date": date, "list": []any{date, text}},
			}
			once := Dates(r)
			return reflect.DeepEqual(once, Dates(once))
		},
		genDateString(),
		gen.AnyString(),
		gen.Int(),
	))

	properties.Property("every valid date string becomes a time", prop.ForAll(
		func(date string) bool {
			out := Dates(types.Record{"d": date})
			_, isTime := out["d"].(time.Time)
			_, parses := ParseDate(date)
			return isTime == parses
		},
		genDateString(),
	))

	properties.TestingRun(t)
}
