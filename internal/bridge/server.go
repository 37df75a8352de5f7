package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"

	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/inference"
)

// Server answers classifier requests over the bridge protocol using a local
// engine.
type Server struct {
	engine     inference.Engine
	labels     *gesture.LabelMap
	maxLength  int
	featureDim int

	wg sync.WaitGroup
}

// NewServer creates a server that classifies with engine. Non-positive
// maxLength and featureDim select the defaults.
func NewServer(engine inference.Engine, labels *gesture.LabelMap, maxLength, featureDim int) *Server {
	if maxLength <= 0 {
		maxLength = gesture.DefaultMaxLength
	}
	if featureDim <= 0 {
		featureDim = gesture.FeatureCount
	}
	return &Server{
		engine:     engine,
		labels:     labels,
		maxLength:  maxLength,
		featureDim: featureDim,
	}
}

// Serve accepts connections until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	defer s.wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(ctx, conn)
		}()
	}
}

// ServeConn handles one client until it disconnects. Blank lines, invalid
// JSON, stop commands and malformed windows are skipped.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	log.Printf("bridge: client connected from %s", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	w := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var msg envelope
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			log.Printf("bridge: invalid JSON received: %v", err)
			continue
		}
		if msg.Command == CommandStop || len(msg.Sequence) == 0 {
			continue
		}

		resp, ok := s.Classify(ctx, msg.Request)
		if !ok {
			continue
		}

		data, err := json.Marshal(resp)
		if err != nil {
			log.Printf("bridge: encode response: %v", err)
			continue
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			log.Printf("bridge: write response: %v", err)
			return
		}
		if err := w.Flush(); err != nil {
			log.Printf("bridge: flush response: %v", err)
			return
		}

		log.Printf("bridge: window processed: frames=%d duration=%.2fs top1=%s top1_prob=%.2f target_prob=%.2f conf=%.2f",
			msg.FrameCount, msg.Duration, resp.Top1, resp.Top1Prob, resp.Prob, resp.Confidence)
	}

	log.Printf("bridge: client %s disconnected", conn.RemoteAddr())
}

// Classify runs one request through the engine. It reports false when the
// window is malformed or the engine fails.
func (s *Server) Classify(ctx context.Context, req Request) (Response, bool) {
	frames, ok := req.Frames()
	if !ok || len(frames) == 0 {
		return Response{}, false
	}

	seq := gesture.Assemble(gesture.Features(frames), s.maxLength, s.featureDim)
	out, err := s.engine.Infer(ctx, seq)
	if err == nil && len(out.Logits) == 0 {
		err = inference.ErrMissingLogits
	}
	if err != nil {
		log.Printf("bridge: inference failed: %v", err)
		return Response{}, false
	}

	probs := gesture.Softmax(out.Logits)
	top, topProb := gesture.ArgMax(probs)

	resp := Response{
		ID:          req.ID,
		Top1:        s.labels.Label(top),
		Top1Prob:    topProb,
		TargetLabel: req.TargetLabel,
		Prob:        topProb,
		Confidence:  out.Confidence,
	}

	if req.TargetLabel != "" {
		resp.Prob = 0
		if i, ok := s.labels.Index(req.TargetLabel); ok && i < len(probs) {
			resp.Prob = probs[i]
			resp.Match = i == top
		}
	}

	return resp, true
}
