package capture

import (
	"fmt"
	"math/bits"

	"github.com/nfnt/resize"
)

// Fingerprint is a 64-bit difference hash of a frame
type Fingerprint uint64

// FingerprintBits is the width of a Fingerprint
const FingerprintBits = 64

const (
	hashWidth  = 9 // one column wider than the 8 comparisons per row
	hashHeight = 8
)

func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// Hash computes the dHash of a frame: the frame is downsampled to a 9x8 luma
// grid and each bit records whether a sample is brighter than its right-hand
// neighbour. Invalid frames hash to zero.
func Hash(f *Frame) Fingerprint {
	if !f.Valid() {
		return 0
	}

	small := resize.Resize(hashWidth, hashHeight, f.ToRGBA(), resize.Bilinear)
	b := small.Bounds()

	var luma [hashHeight][hashWidth]float64
	for y := 0; y < hashHeight; y++ {
		for x := 0; x < hashWidth; x++ {
			r, g, bl, _ := small.At(b.Min.X+x, b.Min.Y+y).RGBA()
			luma[y][x] = 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)
		}
	}

	var fp Fingerprint
	bit := uint(0)
	for y := 0; y < hashHeight; y++ {
		for x := 0; x < hashWidth-1; x++ {
			if luma[y][x] > luma[y][x+1] {
				fp |= 1 << bit
			}
			bit++
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints (0..64)
func Distance(a, b Fingerprint) int {
	return bits.OnesCount64(uint64(a ^ b))
}

// ChangeRatio returns Distance as a fraction of the fingerprint width
func ChangeRatio(a, b Fingerprint) float64 {
	return float64(Distance(a, b)) / FingerprintBits
}

// Changed reports whether cur differs from prev by at least threshold of
// the fingerprint bits. With the default 0.05 that is 4 of 64 bits.
func Changed(prev, cur Fingerprint, threshold float64) bool {
	return ChangeRatio(prev, cur) >= threshold
}
