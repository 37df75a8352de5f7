package gesture

// DefaultMaxLength is the sequence length the classifier was trained with.
const DefaultMaxLength = 100

// Sequence is fixed-length classifier input: Values is [maxLength][featureDim],
// left-aligned, and Mask is 1 for real rows and 0 for padding.
type Sequence struct {
	Values [][]float64
	Mask   []float64
	Length int
}

// Rows returns the unpadded rows.
func (s Sequence) Rows() [][]float64 {
	return s.Values[:s.Length]
}

// Assemble packs vectors into a Sequence, keeping only the most recent
// maxLength vectors. Feature columns beyond FeatureCount are zero; columns
// beyond featureDim are dropped.
func Assemble(vectors []Vector, maxLength, featureDim int) Sequence {
	if maxLength < 0 {
		maxLength = 0
	}
	if featureDim <= 0 {
		featureDim = FeatureCount
	}

	if len(vectors) > maxLength {
		vectors = vectors[len(vectors)-maxLength:]
	}

	seq := Sequence{
		Values: make([][]float64, maxLength),
		Mask:   make([]float64, maxLength),
		Length: len(vectors),
	}

	backing := make([]float64, maxLength*featureDim)
	for i := range seq.Values {
		seq.Values[i] = backing[i*featureDim : (i+1)*featureDim : (i+1)*featureDim]
	}

	for i, v := range vectors {
		copy(seq.Values[i], v[:])
		seq.Mask[i] = 1
	}

	return seq
}
