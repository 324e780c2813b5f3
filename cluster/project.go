package cluster

import (
	"math"

	"github.com/grailbio/microarray/genotype"
)

// priorWeight is the pseudo-count given to the stored cluster means when
// they are recentered on observed data.
const priorWeight = 0.2

// Adjust recenters the clusters of m on the samples called into them. The
// stored means act as a weak prior: each mean becomes
// (priorWeight*mean + sum of observations) / (priorWeight + observations),
// and NObsMean becomes priorWeight plus the number of observations. x and y
// are in the space of the model: allele signals for birdseed models,
// (contrast, size) otherwise.
func (m *Model) Adjust(calls []genotype.Call, x, y []float32) {
	clusters := [3]*Cluster{&m.AA, &m.AB, &m.BB}
	for _, c := range clusters {
		c.MeanX *= priorWeight
		c.MeanY *= priorWeight
		c.NObsMean = priorWeight
	}
	for i, call := range calls {
		var c *Cluster
		switch call {
		case genotype.AA:
			c = &m.AA
		case genotype.AB:
			c = &m.AB
		case genotype.BB:
			c = &m.BB
		default:
			continue
		}
		c.NObsMean++
		c.MeanX += x[i]
		c.MeanY += y[i]
	}
	for _, c := range clusters {
		c.MeanX /= c.NObsMean
		c.MeanY /= c.NObsMean
	}
}

// Polar is a position in (theta, r) coordinates. Theta is in [0, 1], 0 being
// pure allele A signal and 1 pure allele B signal; r is the total signal.
type Polar struct {
	Theta, R float32
}

// SamplePolar converts a pair of allele signals to polar coordinates.
func SamplePolar(normX, normY float32) Polar {
	return Polar{
		Theta: float32(math.Atan(float64(normY)/float64(normX)) * 2 / math.Pi),
		R:     normX + normY,
	}
}

func (c *Cluster) polar(birdseed bool) Polar {
	if birdseed {
		return SamplePolar(c.MeanX, c.MeanY)
	}
	xm, ym := float64(c.MeanX), float64(c.MeanY)
	return Polar{
		Theta: float32(math.Atan(math.Exp2(-xm)) * 2 / math.Pi),
		R:     float32(math.Exp2(ym) * 2 * math.Cosh(xm*0.5*math.Ln2)),
	}
}

// Centers returns the polar coordinates of the AA, AB and BB cluster means.
// Haploid models with copy number 1 get an AB center halfway between AA and
// BB.
func (m *Model) Centers(birdseed bool) [3]Polar {
	c := [3]Polar{m.AA.polar(birdseed), m.AB.polar(birdseed), m.BB.polar(birdseed)}
	if m.CopyNumber == 1 {
		c[1] = Polar{
			Theta: (c[0].Theta + c[2].Theta) * 0.5,
			R:     (c[0].R + c[2].R) * 0.5,
		}
	}
	return c
}

// Project fills baf and lrr for each sample from its allele signals and the
// cluster centers.
func Project(centers [3]Polar, normX, normY, baf, lrr []float32) {
	for i := range normX {
		baf[i], lrr[i] = BAFLRR(SamplePolar(normX[i], normY[i]), centers)
	}
}

// BAFLRR interpolates a sample position against the cluster centers. The
// B allele frequency is linear in theta between neighbouring centers (0 at
// AA, 0.5 at AB, 1 at BB) and is clamped to [0, 1]. The log R ratio is
// log2(r / rRef), where rRef lies on the line through the two neighbouring
// centers in (theta, r) space, extrapolated beyond AA and BB. NaN inputs give
// NaN outputs.
func BAFLRR(s Polar, centers [3]Polar) (baf, lrr float32) {
	aa, ab, bb := centers[0], centers[1], centers[2]
	theta, r := float64(s.Theta), float64(s.R)
	var lo, hi Polar
	var base float64
	switch {
	case theta == float64(ab.Theta):
		return 0.5, float32(math.Log2(r / float64(ab.R)))
	case theta < float64(ab.Theta):
		lo, hi, base = aa, ab, 0
	case theta > float64(ab.Theta):
		lo, hi, base = ab, bb, 0.5
	default:
		nan := float32(math.NaN())
		return nan, nan
	}
	t := (theta - float64(lo.Theta)) / float64(hi.Theta-lo.Theta)
	rRef := float64(lo.R) + t*float64(hi.R-lo.R)
	b := base + t*0.5
	if b < 0 {
		b = 0
	} else if b > 1 {
		b = 1
	}
	return float32(b), float32(math.Log2(r / rRef))
}
