// Package detector provides hand tracking interfaces and the landmark frame
// type consumed by the gesture validation pipeline.
package detector

import "math"

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point3D represents a 3D point in space with x, y, z coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sub returns p - q.
func (p Point3D) Sub(q Point3D) Point3D {
	return Point3D{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Scale returns p multiplied by s.
func (p Point3D) Scale(s float64) Point3D {
	return Point3D{X: p.X * s, Y: p.Y * s, Z: p.Z * s}
}

// Dot returns the dot product of p and q.
func (p Point3D) Dot(q Point3D) float64 {
	return p.X*q.X + p.Y*q.Y + p.Z*q.Z
}

// Norm returns the Euclidean length of p.
func (p Point3D) Norm() float64 {
	return math.Sqrt(p.Dot(p))
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point3D) float64 {
	return a.Sub(b).Norm()
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Frame is one sample of tracked-hand geometry as delivered by the tracker.
// Points are zeroed when Tracked is false.
type Frame struct {
	Tracked         bool                  `json:"tracked"`
	IsRightHand     bool                  `json:"is_right_hand"`
	HandednessScore float64               `json:"handedness_score"`
	TimestampMillis int64                 `json:"timestamp_ms"`
	Points          [NumLandmarks]Point3D `json:"points"`
}

// Untracked returns a frame recording that no hand was seen at ts.
func Untracked(ts int64) Frame {
	return Frame{TimestampMillis: ts}
}

// Frame converts detector output into a tracked frame stamped with ts.
func (h HandLandmarks) Frame(ts int64) Frame {
	return Frame{
		Tracked:         true,
		IsRightHand:     h.Handedness == "Right",
		HandednessScore: h.Score,
		TimestampMillis: ts,
		Points:          h.Points,
	}
}
