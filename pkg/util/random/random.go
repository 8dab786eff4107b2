// Package random is a small deterministic Park-Miller generator. The same
// seed always yields the same sequence, which keeps synthetic logs
// reproducible across runs and platforms.
package random

const (
	modulus    = uint32(2147483647) // 2^31-1
	multiplier = uint32(16807)
)

type Random struct {
	seed uint32
}

func New(s uint32) *Random {
	s &= 0x7fffffff
	if s == 0 || s == modulus {
		s = 1
	}
	return &Random{seed: s}
}

// Next returns the next value in [1, 2^31-2].
func (r *Random) Next() uint32 {
	product := uint64(r.seed) * uint64(multiplier)
	r.seed = uint32(product>>31) + (uint32(product) & modulus)
	// the first reduction may overflow by one bit
	if r.seed > modulus {
		r.seed -= modulus
	}
	return r.seed
}

// Uniform returns a value in [0, n). n must be positive.
func (r *Random) Uniform(n int) uint32 {
	return r.Next() % uint32(n)
}

// OneIn is true about once every n calls.
func (r *Random) OneIn(n int) bool {
	return r.Uniform(n) == 0
}

// Float32 returns a value in [0, 1).
func (r *Random) Float32() float32 {
	return float32(r.Next()>>7) / (1 << 24)
}

// Jitter returns a value in [-amp, amp].
func (r *Random) Jitter(amp float32) float32 {
	return (2*r.Float32() - 1) * amp
}
