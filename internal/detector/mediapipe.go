package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const serviceScript = "mediapipe_service.py"

// MediaPipeDetector implements Detector by piping JPEG frames into a Python
// MediaPipe subprocess and reading one JSON line of hands per frame.
type MediaPipeDetector struct {
	config     Config
	scriptPath string

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	idleTimer *time.Timer
}

// NewMediaPipeDetector locates the service script. The subprocess itself is
// started lazily on the first Detect call.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	script := config.ScriptPath
	if script == "" {
		script = locate(scriptCandidates())
	}
	if script == "" {
		return nil, fmt.Errorf("%s not found", serviceScript)
	}

	return &MediaPipeDetector{config: config, scriptPath: script}, nil
}

// Detect sends one frame to the service and returns the hands it reports.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.start(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	if err := d.writeFrame(buf.GetBytes()); err != nil {
		d.stop()
		return nil, err
	}

	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		d.stop()
		return nil, fmt.Errorf("read response: %w", err)
	}

	var response struct {
		Hands []HandLandmarks `json:"hands"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	d.armIdleTimer()
	return response.Hands, nil
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop()
}

// writeFrame writes a 4-byte big-endian length prefix followed by data.
func (d *MediaPipeDetector) writeFrame(data []byte) error {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))

	if _, err := d.stdin.Write(prefix[:]); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

func (d *MediaPipeDetector) start() error {
	if d.cmd != nil {
		return nil
	}

	python := locate(venvCandidates())
	if python == "" {
		python = "python3"
	}

	args := []string{d.scriptPath}
	if d.config.MaxHands > 0 {
		args = append(args, "--max-hands", strconv.Itoa(d.config.MaxHands))
	}
	if d.config.MinConfidence > 0 {
		args = append(args, "--min-confidence", strconv.FormatFloat(d.config.MinConfidence, 'f', 2, 64))
	}

	cmd := exec.Command(python, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start mediapipe service: %w", err)
	}

	d.cmd = cmd
	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	return nil
}

func (d *MediaPipeDetector) stop() error {
	if d.cmd == nil {
		return nil
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	d.stdin.Close()
	err := d.cmd.Wait()
	d.cmd, d.stdin, d.stdout = nil, nil, nil
	return err
}

func (d *MediaPipeDetector) armIdleTimer() {
	if d.config.IdleShutdown <= 0 {
		return
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleShutdown, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.stop()
	})
}

func scriptCandidates() []string {
	paths := []string{
		filepath.Join("scripts", serviceScript),
		filepath.Join("..", "scripts", serviceScript),
	}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), "scripts", serviceScript))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".mudra", "scripts", serviceScript))
	}
	return paths
}

func venvCandidates() []string {
	paths := []string{
		filepath.Join("venv", "bin", "python"),
		filepath.Join("..", "venv", "bin", "python"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".mudra", "venv", "bin", "python"))
	}
	return paths
}

// locate returns the absolute path of the first candidate that exists.
func locate(candidates []string) string {
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	}
	return ""
}
