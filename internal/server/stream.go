package server

import (
	"fmt"
	"image"
	"image/color"
	"net/http"
	"time"

	"github.com/ayusman/mudra/internal/detector"
	"gocv.io/x/gocv"
)

// Preview dimensions and frame rate.
const (
	PreviewWidth    = 320
	PreviewHeight   = 240
	previewInterval = 66 * time.Millisecond
)

// bones lists the landmark pairs joined when drawing a hand.
var bones = [][2]int{
	{detector.Wrist, detector.ThumbCMC}, {detector.ThumbCMC, detector.ThumbMCP},
	{detector.ThumbMCP, detector.ThumbIP}, {detector.ThumbIP, detector.ThumbTip},
	{detector.Wrist, detector.IndexMCP}, {detector.IndexMCP, detector.IndexPIP},
	{detector.IndexPIP, detector.IndexDIP}, {detector.IndexDIP, detector.IndexTip},
	{detector.IndexMCP, detector.MiddleMCP}, {detector.MiddleMCP, detector.MiddlePIP},
	{detector.MiddlePIP, detector.MiddleDIP}, {detector.MiddleDIP, detector.MiddleTip},
	{detector.MiddleMCP, detector.RingMCP}, {detector.RingMCP, detector.RingPIP},
	{detector.RingPIP, detector.RingDIP}, {detector.RingDIP, detector.RingTip},
	{detector.RingMCP, detector.PinkyMCP}, {detector.Wrist, detector.PinkyMCP},
	{detector.PinkyMCP, detector.PinkyPIP}, {detector.PinkyPIP, detector.PinkyDIP},
	{detector.PinkyDIP, detector.PinkyTip},
}

var (
	boneColor  = color.RGBA{R: 0, G: 200, B: 255, A: 0}
	jointColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

// FrameSource supplies the most recent tracked frame.
type FrameSource interface {
	Latest() (detector.Frame, bool)
}

// StreamHandler serves an MJPEG preview of the tracked hand skeleton. It
// renders landmarks rather than camera pixels so it never competes with the
// tracker for the camera.
type StreamHandler struct {
	frames FrameSource
}

// NewStreamHandler creates a new StreamHandler reading from frames.
func NewStreamHandler(frames FrameSource) *StreamHandler {
	return &StreamHandler{frames: frames}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(previewInterval)
	defer ticker.Stop()

	var last int64 = -1
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		f, ok := h.frames.Latest()
		if !ok || f.TimestampMillis == last {
			continue
		}
		last = f.TimestampMillis

		jpeg, err := renderSkeleton(f, PreviewWidth, PreviewHeight)
		if err != nil {
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(jpeg))
		w.Write(jpeg)
		fmt.Fprintf(w, "\r\n")

		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
	}
}

// projectLandmarks maps normalized landmark coordinates onto a width x
// height canvas, clamping to its bounds. It returns nil for untracked
// frames.
func projectLandmarks(f detector.Frame, width, height int) []image.Point {
	if !f.Tracked {
		return nil
	}

	pts := make([]image.Point, detector.NumLandmarks)
	for i, p := range f.Points {
		pts[i] = image.Point{
			X: clamp(int(p.X*float64(width)), 0, width-1),
			Y: clamp(int(p.Y*float64(height)), 0, height-1),
		}
	}
	return pts
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// renderSkeleton draws f on a black canvas and encodes it as JPEG.
func renderSkeleton(f detector.Frame, width, height int) ([]byte, error) {
	canvas := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	defer canvas.Close()
	canvas.SetTo(gocv.NewScalar(0, 0, 0, 0))

	if pts := projectLandmarks(f, width, height); pts != nil {
		for _, b := range bones {
			gocv.Line(&canvas, pts[b[0]], pts[b[1]], boneColor, 2)
		}
		for _, p := range pts {
			gocv.Circle(&canvas, p, 3, jointColor, -1)
		}
	}

	buf, err := gocv.IMEncode(".jpg", canvas)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}
