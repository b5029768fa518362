package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{a: "2", b: "10", want: -1},
		{a: "10", b: "2", want: 1},
		{a: "-3", b: "1.5", want: -1},
		{a: "7", b: "7", want: 0},
		{a: "2", b: "2.0", want: -1},
		{a: "99", b: "MTD1", want: -1},
		{a: "MTD1", b: "99", want: 1},
		{a: "MTD10", b: "MTD2", want: -1},
		{a: "NaN", b: "1", want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.a+" vs "+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareIDs(tt.a, tt.b))
		})
	}
}

func TestPartitionOrdersNumericIDs(t *testing.T) {
	var records []Record
	for _, id := range []string{"10", "B", "2", "1", "A"} {
		records = append(records, Record{GroupID: id, Observation: Observation{Kelvin: 290}})
	}
	groups, err := Partition(records)
	require.NoError(t, err)

	var ids []string
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []string{"1", "2", "10", "A", "B"}, ids)
}
