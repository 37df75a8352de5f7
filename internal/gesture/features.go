// Package gesture turns landmark frames into classifier input and classifier
// output into pass/fail verdicts: feature extraction, windowing, sequence
// assembly, and the decision policy.
package gesture

import (
	"math"

	"github.com/ayusman/mudra/internal/detector"
)

// FeatureCount is the length of a per-frame feature vector.
const FeatureCount = 20

// SpeedSlot is the trailing feature overwritten with the motion-speed scalar.
const SpeedSlot = FeatureCount - 1

const (
	// normEpsilon keeps hand-size normalization finite for degenerate hands.
	normEpsilon = 1e-6
	// boneEpsilon is the length below which a bone has no direction.
	boneEpsilon = 1e-8

	// Bend angles in degrees: a straight joint reads 0, a fully curled one 1.
	straightDegrees = 165.0
	curledDegrees   = 30.0
)

// Vector is the fixed-length feature summary of one frame:
// [0,5) fingertip-to-palm distances, [5,15) bend angles (two per finger),
// [15,19) distances between neighbouring fingertips, 19 motion speed.
type Vector [FeatureCount]float64

var (
	fingerBases = [4]int{detector.IndexMCP, detector.MiddleMCP, detector.RingMCP, detector.PinkyMCP}
	palmPoints  = [5]int{detector.Wrist, detector.IndexMCP, detector.MiddleMCP, detector.RingMCP, detector.PinkyMCP}
	fingertips  = [5]int{detector.ThumbTip, detector.IndexTip, detector.MiddleTip, detector.RingTip, detector.PinkyTip}

	fingerChains = [5][4]int{
		{detector.ThumbCMC, detector.ThumbMCP, detector.ThumbIP, detector.ThumbTip},
		{detector.IndexMCP, detector.IndexPIP, detector.IndexDIP, detector.IndexTip},
		{detector.MiddleMCP, detector.MiddlePIP, detector.MiddleDIP, detector.MiddleTip},
		{detector.RingMCP, detector.RingPIP, detector.RingDIP, detector.RingTip},
		{detector.PinkyMCP, detector.PinkyPIP, detector.PinkyDIP, detector.PinkyTip},
	}
)

// Normalize translates the landmarks so the wrist sits at the origin and
// scales them by the inverse of the mean wrist-to-finger-base distance.
func Normalize(points [detector.NumLandmarks]detector.Point3D) [detector.NumLandmarks]detector.Point3D {
	var out [detector.NumLandmarks]detector.Point3D

	wrist := points[detector.Wrist]
	for i := range points {
		out[i] = points[i].Sub(wrist)
	}

	var size float64
	for _, b := range fingerBases {
		size += out[b].Norm()
	}
	scale := 1.0 / (size/float64(len(fingerBases)) + normEpsilon)

	for i := range out {
		out[i] = out[i].Scale(scale)
	}
	return out
}

// Extract computes the feature vector of normalized landmarks. The speed
// slot is left at zero; see ApplyMotionSpeed.
func Extract(points [detector.NumLandmarks]detector.Point3D) Vector {
	var v Vector
	k := 0

	palm := palmCenter(points)
	for _, tip := range fingertips {
		v[k] = detector.Distance(points[tip], palm)
		k++
	}

	for _, chain := range fingerChains {
		for j := 0; j+2 < len(chain); j++ {
			v[k] = bend(points[chain[j]], points[chain[j+1]], points[chain[j+2]])
			k++
		}
	}

	for j := 0; j+1 < len(fingertips); j++ {
		v[k] = detector.Distance(points[fingertips[j]], points[fingertips[j+1]])
		k++
	}

	return v
}

// FrameFeatures extracts the feature vector of a single frame. Untracked
// frames map to the zero vector.
func FrameFeatures(f detector.Frame) Vector {
	if !f.Tracked {
		return Vector{}
	}
	return Extract(Normalize(f.Points))
}

// ApplyMotionSpeed fills the speed slot of each vector with the Euclidean
// change of the fingertip distances since the previous vector.
func ApplyMotionSpeed(seq []Vector) {
	if len(seq) == 0 {
		return
	}
	seq[0][SpeedSlot] = 0
	for i := 1; i < len(seq); i++ {
		var sum float64
		for k := 0; k < len(fingertips); k++ {
			d := seq[i][k] - seq[i-1][k]
			sum += d * d
		}
		seq[i][SpeedSlot] = math.Sqrt(sum)
	}
}

// Features extracts the feature sequence of frames in order, speed included.
func Features(frames []detector.Frame) []Vector {
	seq := make([]Vector, len(frames))
	for i, f := range frames {
		seq[i] = FrameFeatures(f)
	}
	ApplyMotionSpeed(seq)
	return seq
}

func palmCenter(points [detector.NumLandmarks]detector.Point3D) detector.Point3D {
	var c detector.Point3D
	for _, i := range palmPoints {
		c.X += points[i].X
		c.Y += points[i].Y
		c.Z += points[i].Z
	}
	return c.Scale(1.0 / float64(len(palmPoints)))
}

// bend returns the normalized bend at joint between the bones towards
// parent and child. A degenerate bone yields 0.
func bend(parent, joint, child detector.Point3D) float64 {
	a := parent.Sub(joint)
	b := child.Sub(joint)

	la, lb := a.Norm(), b.Norm()
	if la < boneEpsilon || lb < boneEpsilon {
		return 0
	}

	cos := a.Dot(b) / (la * lb)
	cos = math.Max(-1, math.Min(1, cos))
	degrees := math.Acos(cos) * 180 / math.Pi

	return clamp01((degrees - straightDegrees) / (curledDegrees - straightDegrees))
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
