package gesture

import "math"

// Softmax converts logits into probabilities. The maximum logit is
// subtracted first; if the exponentials sum to zero or less, the zero
// vector is returned.
func Softmax(logits []float64) []float64 {
	probs := make([]float64, len(logits))
	if len(logits) == 0 {
		return probs
	}

	maxLogit := logits[0]
	for _, l := range logits[1:] {
		if l > maxLogit {
			maxLogit = l
		}
	}

	var sum float64
	for i, l := range logits {
		probs[i] = math.Exp(l - maxLogit)
		sum += probs[i]
	}
	if !(sum > 0) {
		return make([]float64, len(logits))
	}

	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// ArgMax returns the index and value of the largest element, preferring the
// lowest index on ties. It returns -1 for an empty slice.
func ArgMax(values []float64) (int, float64) {
	best := -1
	bestValue := 0.0
	for i, v := range values {
		if best < 0 || v > bestValue {
			best, bestValue = i, v
		}
	}
	return best, bestValue
}

// Decision is the verdict for one evaluated window.
type Decision struct {
	Pass       bool
	TargetProb float64
	Top1Index  int
	Top1Prob   float64
	Confidence float64
}

// Decide compares the target probability and classifier confidence against
// their thresholds. A negative or out-of-range labelIndex falls back to the
// arg-max probability.
func Decide(probs []float64, confidence float64, labelIndex int, probThreshold, confThreshold float64) Decision {
	top, topProb := ArgMax(probs)

	target := topProb
	if labelIndex >= 0 && labelIndex < len(probs) {
		target = probs[labelIndex]
	}

	return Decision{
		Pass:       target >= probThreshold && confidence >= confThreshold,
		TargetProb: target,
		Top1Index:  top,
		Top1Prob:   topProb,
		Confidence: confidence,
	}
}

// Policy binds decision thresholds to a label map.
type Policy struct {
	ProbThreshold float64
	ConfThreshold float64
	Labels        *LabelMap
}

// Evaluate turns raw classifier logits into a decision for target.
func (p Policy) Evaluate(logits []float64, confidence float64, target string) Decision {
	index := -1
	if p.Labels != nil {
		if i, ok := p.Labels.Index(target); ok {
			index = i
		}
	}
	return Decide(Softmax(logits), confidence, index, p.ProbThreshold, p.ConfThreshold)
}

// Verdict decides from a target probability reported by a remote
// classifier that has already applied softmax.
func (p Policy) Verdict(targetProb, confidence float64) bool {
	return targetProb >= p.ProbThreshold && confidence >= p.ConfThreshold
}
