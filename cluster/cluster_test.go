package cluster_test

import (
	"math"
	"strings"
	"testing"

	"github.com/grailbio/microarray/cluster"
	"github.com/grailbio/microarray/genotype"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const brlmmModels = `#%SnpPosteriorFormatVersion=1.0
#%algorithm=brlmm-p
id	BB	AB	AA	CV
AX-1	-2,0.1,10,11,9,0.2,0.01	0,0.2,20,21,10,0.3,0.02	2,0.3,30,31,11,0.4,0.03	0.5,0.5
AX-2:1	-1.5,0.1,5,6,8,0.2,0	0,1,0.2,0.2,8,1,0	1.5,0.1,7,8,8,0.2,0
AX-2	-1,1,1,1,1,1,1	0,1,1,1,1,1,1	1,1,1,1,1,1,1
`

const birdseedModels = `SNP_A-8575125;100 1000 1 2 3 4;500 500 5 6 7 8;1000 100 9 10 11 12
SNP_A-8575126-1;1000 100 1 0 1 3;100 1000 1 0 1 4
`

func TestReadBrlmm(t *testing.T) {
	ms, err := cluster.Read(strings.NewReader(brlmmModels))
	require.NoError(t, err)
	assert.False(t, ms.Birdseed)
	nh, nd := ms.Len()
	assert.Equal(t, 1, nh)
	assert.Equal(t, 2, nd)

	m := ms.Lookup("AX-1")
	require.NotNil(t, m)
	assert.Equal(t, 2, m.CopyNumber)
	assert.False(t, m.Haploid())
	assert.Equal(t, cluster.Cluster{MeanX: 2, VarX: 0.3, NObsMean: 30, NObsVar: 31, MeanY: 11, VarY: 0.4, CovarXY: 0.03}, m.AA)
	assert.Equal(t, float32(20), m.AB.NObsMean)
	assert.Equal(t, float32(-2), m.BB.MeanX)

	// Diploid wins over haploid.
	assert.Equal(t, float32(1), ms.Lookup("AX-2").AA.MeanX)
	h := ms.Get(true, "AX-2")
	require.NotNil(t, h)
	assert.Equal(t, 1, h.CopyNumber)
	assert.Equal(t, float32(1.5), h.AA.MeanX)
	assert.Nil(t, ms.Get(true, "AX-1"))
	assert.Nil(t, ms.Lookup("AX-3"))
}

func TestReadBirdseed(t *testing.T) {
	ms, err := cluster.Read(strings.NewReader(birdseedModels))
	require.NoError(t, err)
	assert.True(t, ms.Birdseed)

	m := ms.Lookup("SNP_A-8575125")
	require.NotNil(t, m)
	assert.Equal(t, cluster.Cluster{MeanX: 100, MeanY: 1000, VarX: 1, CovarXY: 2, VarY: 3, NObsMean: 4, NObsVar: 4}, m.AA)
	assert.Equal(t, float32(1000), m.BB.MeanX)

	h := ms.Get(true, "SNP_A-8575126")
	require.NotNil(t, h)
	assert.True(t, math.IsNaN(float64(h.AB.MeanX)))
	assert.True(t, math.IsNaN(float64(h.AB.CovarXY)))
	assert.Equal(t, float32(4), h.BB.NObsVar)
}

func TestReadErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"#only comments\n",
		"id\tAA\tBB\n",
		"id\tBB\tAB\tAA\tCV\nAX-1\t1,2,3,4,5,6,7\t1,2,3,4,5,6,7\n",
		"id\tBB\tAB\tAA\tCV\nAX-1\t1,2,3,4,5,6\t1,2,3,4,5,6,7\t1,2,3,4,5,6,7\n",
		"id\tBB\tAB\tAA\tCV\nAX-1\t1,2,3,x,5,6,7\t1,2,3,4,5,6,7\t1,2,3,4,5,6,7\n",
		"SNP_A-8575125;1 2 3 4 5 6;1 2 3 4 5 6\n",
		"SNP_A-8575125;1 2 3 4 5;1 2 3 4 5 6;1 2 3 4 5 6\n",
	} {
		_, err := cluster.Read(strings.NewReader(in))
		assert.Equal(t, cluster.ErrModelFormat, errors.Cause(err), "%q", in)
	}
}

func TestAdjust(t *testing.T) {
	m := cluster.Model{CopyNumber: 2}
	m.AA.MeanX, m.AA.MeanY = 10, 10
	m.AB.MeanX, m.AB.MeanY = 5, 5
	m.BB.MeanX, m.BB.MeanY = 1, 1
	calls := []genotype.Call{genotype.AA, genotype.AA, genotype.NoCall, genotype.BB}
	x := []float32{8, 12, 100, 3}
	y := []float32{9, 11, 100, 3}
	m.Adjust(calls, x, y)

	assert.InDelta(t, 10, m.AA.MeanX, 1e-5)
	assert.InDelta(t, 10, m.AA.MeanY, 1e-5)
	assert.InDelta(t, 2.2, m.AA.NObsMean, 1e-6)
	// No observations: only the scaled prior is left.
	assert.InDelta(t, 5, m.AB.MeanX, 1e-5)
	assert.InDelta(t, 0.2, m.AB.NObsMean, 1e-6)
	assert.InDelta(t, (0.2+3)/1.2, m.BB.MeanX, 1e-5)
}

func TestCentersHaploidMidpoint(t *testing.T) {
	m := cluster.Model{CopyNumber: 1}
	m.AA.MeanX, m.AA.MeanY = 1000, 100
	m.BB.MeanX, m.BB.MeanY = 100, 1000
	m.AB.MeanX, m.AB.MeanY = float32(math.NaN()), float32(math.NaN())
	c := m.Centers(true)
	assert.InDelta(t, (c[0].Theta+c[2].Theta)/2, c[1].Theta, 1e-6)
	assert.InDelta(t, (c[0].R+c[2].R)/2, c[1].R, 1e-6)
	assert.InDelta(t, 0.5, c[1].Theta, 1e-6)
	assert.Equal(t, c, m.Centers(true))
}

func TestCentersContrastSize(t *testing.T) {
	m := cluster.Model{CopyNumber: 2}
	// Contrast 0 and size 8 is the point where both signals are 256.
	m.AB.MeanX, m.AB.MeanY = 0, 8
	m.AA.MeanX, m.AA.MeanY = 2, 8
	m.BB.MeanX, m.BB.MeanY = -2, 8
	c := m.Centers(false)
	assert.InDelta(t, 0.5, c[1].Theta, 1e-6)
	assert.InDelta(t, 512, c[1].R, 1e-3)
	assert.True(t, c[0].Theta < c[1].Theta && c[1].Theta < c[2].Theta)

	// The same point seen as a sample projects onto the AB center.
	p := cluster.SamplePolar(256, 256)
	assert.InDelta(t, c[1].Theta, p.Theta, 1e-6)
	assert.InDelta(t, c[1].R, p.R, 1e-3)

	a, b := genotype.ToSignal(2, 8)
	pa := cluster.SamplePolar(a, b)
	assert.InDelta(t, c[0].Theta, pa.Theta, 1e-6)
	assert.InDelta(t, c[0].R, pa.R, 1e-2)
}

func TestBAFLRR(t *testing.T) {
	centers := [3]cluster.Polar{{Theta: 0.1, R: 1}, {Theta: 0.5, R: 2}, {Theta: 0.9, R: 1}}
	for _, test := range []struct {
		s        cluster.Polar
		baf, lrr float64
	}{
		{cluster.Polar{Theta: 0.5, R: 2}, 0.5, 0},
		{cluster.Polar{Theta: 0.5, R: 4}, 0.5, 1},
		{cluster.Polar{Theta: 0.1, R: 1}, 0, 0},
		{cluster.Polar{Theta: 0.9, R: 0.5}, 1, -1},
		{cluster.Polar{Theta: 0.3, R: 1.5}, 0.25, 0},
		{cluster.Polar{Theta: 0.7, R: 3}, 0.75, 1},
		{cluster.Polar{Theta: 0, R: 0.75}, 0, 0},
		{cluster.Polar{Theta: 1, R: 0.75}, 1, 0},
	} {
		baf, lrr := cluster.BAFLRR(test.s, centers)
		assert.InDelta(t, test.baf, baf, 1e-5, "%+v", test.s)
		assert.InDelta(t, test.lrr, lrr, 1e-5, "%+v", test.s)
	}
	baf, lrr := cluster.BAFLRR(cluster.Polar{Theta: float32(math.NaN()), R: 1}, centers)
	assert.True(t, math.IsNaN(float64(baf)))
	assert.True(t, math.IsNaN(float64(lrr)))
}

func TestProject(t *testing.T) {
	centers := [3]cluster.Polar{{Theta: 0, R: 200}, {Theta: 0.5, R: 200}, {Theta: 1, R: 200}}
	baf := make([]float32, 2)
	lrr := make([]float32, 2)
	cluster.Project(centers, []float32{100, 400}, []float32{100, 0}, baf, lrr)
	assert.InDelta(t, 0.5, baf[0], 1e-6)
	assert.InDelta(t, 0, lrr[0], 1e-6)
	assert.InDelta(t, 0, baf[1], 1e-6)
	assert.InDelta(t, 1, lrr[1], 1e-6)
}
