package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedTable() *RcTable {
	t := &RcTable{}
	for k := 0; k < 9; k++ {
		t.Rows = append(t.Rows, RcRow{SOC: BinCenter(k), Tau1: 1, Tau2: 10, R0: float64(k + 1)})
	}
	return t
}

func TestBinCenter(t *testing.T) {
	assert.Equal(t, 0.9, BinCenter(0))
	assert.Equal(t, 0.5, BinCenter(4))
	assert.Equal(t, 0.1, BinCenter(8))
}

func TestLookup_NearestBin(t *testing.T) {
	tbl := numberedTable()

	assert.Equal(t, 0.9, tbl.Lookup(0.93).SOC)
	assert.Equal(t, 0.8, tbl.Lookup(0.82).SOC)
	assert.Equal(t, 0.3, tbl.Lookup(0.27).SOC)
}

func TestLookup_TieGoesToHigherSOC(t *testing.T) {
	tbl := numberedTable()

	assert.Equal(t, 0.9, tbl.Lookup(0.85).SOC)
	assert.Equal(t, 0.5, tbl.Lookup(0.45).SOC)
	assert.Equal(t, 0.2, tbl.Lookup(0.15).SOC)
}

func TestLookup_ClampsOutsideGrid(t *testing.T) {
	tbl := numberedTable()

	assert.Equal(t, 0.9, tbl.Lookup(1.07).SOC)
	assert.Equal(t, 0.1, tbl.Lookup(-0.2).SOC)
}

func TestLookup_MissingBinsUseRemainingRows(t *testing.T) {
	tbl := &RcTable{Rows: []RcRow{
		{SOC: 0.9, Tau1: 1, Tau2: 1},
		{SOC: 0.6, Tau1: 1, Tau2: 1},
	}}

	assert.Equal(t, 0.9, tbl.Lookup(0.8).SOC)
	assert.Equal(t, 0.6, tbl.Lookup(0.7).SOC)
	assert.Equal(t, 0.9, tbl.Lookup(0.75).SOC)
}

func TestRcTableValidate(t *testing.T) {
	require.NoError(t, numberedTable().Validate())

	empty := &RcTable{}
	assert.Error(t, empty.Validate())

	bad := numberedTable()
	bad.Rows[3].R1 = math.NaN()
	assert.Error(t, bad.Validate())

	bad = numberedTable()
	bad.Rows[0].Tau2 = 0
	assert.Error(t, bad.Validate())
}

func TestMeanR0(t *testing.T) {
	assert.InDelta(t, 5.0, numberedTable().MeanR0(), 1e-12)
	assert.Zero(t, (&RcTable{}).MeanR0())
}

func TestUniform(t *testing.T) {
	tbl := Uniform(RcRow{Tau1: 100, Tau2: 1000, R0: 0.002})
	require.Equal(t, 9, tbl.Len())
	for k, r := range tbl.Rows {
		assert.Equal(t, BinCenter(k), r.SOC)
		assert.Equal(t, 0.002, r.R0)
	}
}
