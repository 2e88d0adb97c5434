package manager

import (
	"math/rand"
	"time"

	"github.com/Noofbiz/mriData/datasets"
)

// Split names in compile order.
const (
	Train      = "train"
	Validation = "validation"
	Test       = "test"
)

// SplitNames lists the splits in the order they are compiled.
var SplitNames = []string{Train, Validation, Test}

// Splits is the partition of one dataset's subjects. The three lists are
// disjoint and together hold every subject exactly once.
type Splits struct {
	Train      []string
	Validation []string
	Test       []string
}

// Get returns the named split.
func (s Splits) Get(name string) ([]string, bool) {
	switch name {
	case Train:
		return s.Train, true
	case Validation:
		return s.Validation, true
	case Test:
		return s.Test, true
	default:
		return nil, false
	}
}

// Len returns the total number of subjects across the splits.
func (s Splits) Len() int { return len(s.Train) + len(s.Validation) + len(s.Test) }

// SplitOptions are the split fractions and the optional random seed. The
// test split receives whatever train and validation leave.
type SplitOptions struct {
	Train float64
	Valid float64
	// Seed makes the split reproducible. Nil draws a seed from the clock.
	Seed *int64
}

// DefaultSplitOptions returns a 60/20/20 unseeded split.
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{Train: 0.6, Valid: 0.2}
}

// Seeded returns a copy of o using seed.
func (o SplitOptions) Seeded(seed int64) SplitOptions {
	o.Seed = &seed
	return o
}

// Validate rejects fractions outside [0, 1] or summing above 1.
func (o SplitOptions) Validate() error {
	if o.Train < 0 || o.Train > 1 || o.Valid < 0 || o.Valid > 1 {
		return datasets.InvalidSplit.New("fractions must be in [0, 1], got train=%v valid=%v", o.Train, o.Valid)
	}
	if o.Train+o.Valid > 1 {
		return datasets.InvalidSplit.New("train=%v and valid=%v sum above 1", o.Train, o.Valid)
	}
	return nil
}

// partition shuffles ids and cuts the permutation into train, validation
// and test at floor(Train*m) and floor(Valid*m). ids is not modified.
func partition(ids []string, opts SplitOptions) Splits {
	seed := time.Now().UnixNano()
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	rng := rand.New(rand.NewSource(seed))

	perm := append([]string(nil), ids...)
	rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

	m := len(perm)
	trainEnd := int(opts.Train * float64(m))
	validEnd := trainEnd + int(opts.Valid*float64(m))
	return Splits{
		Train:      perm[:trainEnd:trainEnd],
		Validation: perm[trainEnd:validEnd:validEnd],
		Test:       perm[validEnd:],
	}
}
