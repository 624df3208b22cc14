package timeline

import (
	"crypto/sha1"
	"errors"
	"math/big"
)

var ErrInvalidSampleRate = errors.New("sample rate must be >= 1")

// rowSampler keeps 1/N rows, deciding on the formatted row time. Every
// process forwarding the same run keeps the same rows.
type rowSampler struct {
	rate       uint
	upperBound *big.Int
}

func newRowSampler(rate uint) (*rowSampler, error) {
	if rate < 1 {
		return nil, ErrInvalidSampleRate
	}
	// largest sha1 sum divided by the rate
	maxVal := new(big.Int).Lsh(big.NewInt(1), sha1.Size*8)
	maxVal.Sub(maxVal, big.NewInt(1))
	return &rowSampler{
		rate:       rate,
		upperBound: maxVal.Div(maxVal, big.NewInt(int64(rate))),
	}, nil
}

func (s *rowSampler) keep(key string) bool {
	if s.rate == 1 {
		return true
	}
	sum := sha1.Sum([]byte(key))
	return new(big.Int).SetBytes(sum[:]).Cmp(s.upperBound) <= 0
}
