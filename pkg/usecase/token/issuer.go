package token

import (
	"fmt"
	"math/rand/v2"

	"github.com/integrasalud/integrasalud/pkg/model"
)

// Words is the fixed vocabulary of anonymous codes
var Words = []string{"LUNA", "SOL", "RIOJA", "SALTA", "NORTE", "CEIBO", "FLOR", "PAZ"}

const (
	minNumber = 100
	maxNumber = 999
)

// Issuer generates anonymous appointment codes of the form WORD-WORD-NNN.
// Codes are not unique and carry no state between calls.
type Issuer struct {
	intN func(n int) int
}

type Option func(*Issuer)

// WithRand draws codes from r instead of the global source. r is not
// safe for concurrent use, so an Issuer built with it must not be shared.
func WithRand(r *rand.Rand) Option {
	return func(x *Issuer) {
		x.intN = r.IntN
	}
}

func New(opts ...Option) *Issuer {
	x := &Issuer{
		intN: rand.IntN,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Issue creates a token for facility and specialty. Validation of the pair
// is up to the caller.
func (x *Issuer) Issue(facility, specialty string) *model.Token {
	w1 := Words[x.intN(len(Words))]
	w2 := Words[x.intN(len(Words))]
	n := minNumber + x.intN(maxNumber-minNumber+1)

	return &model.Token{
		Code:      fmt.Sprintf("%s-%s-%d", w1, w2, n),
		Facility:  facility,
		Specialty: specialty,
	}
}
