// Package backbones builds the text-recognition feature extractors: a
// width-scalable mobile network and a virtual-depth residual network. Both
// consume NCHW image tensors; at the standard recognition geometry the
// emitted feature map has height 1 and a quarter of the input width.
package backbones

// ChannelDivisor is the rounding granularity for every derived channel count.
const ChannelDivisor = 8

// MakeDivisible rounds v to the nearest multiple of divisor with a floor of
// minValue (divisor when minValue is not positive). If rounding loses more
// than 10% of v, one divisor step is added back.
func MakeDivisible(v float64, divisor, minValue int) int {
	if minValue <= 0 {
		minValue = divisor
	}
	n := int(v+float64(divisor)/2) / divisor * divisor
	if n < minValue {
		n = minValue
	}
	if float64(n) < 0.9*v {
		n += divisor
	}
	return n
}

// divisible applies the default divisor to a scaled channel width.
func divisible(v float64) int {
	return MakeDivisible(v, ChannelDivisor, ChannelDivisor)
}
