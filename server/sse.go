package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/deepzdhq/deepzd/pkg/geo"
)

var errStreamingUnsupported = errors.New("response writer does not support streaming")

// streamRun describes one orchestration to execute behind an SSE
// session. The session owns the protocol: progress relay in emission
// order, heartbeats, exactly one terminal frame, and the guarantee
// that persist happens before the terminal frame is written.
type streamRun struct {
	completeType string
	errorType    string

	// execute runs the pipeline, pushing progress through sink. It is
	// called once, on its own goroutine, and must honor ctx.
	execute func(ctx context.Context, sink geo.Sink) (any, error)

	// persist records the terminal state. Called exactly once for
	// completed/failed outcomes, never on client abort. Errors are
	// logged and swallowed; the stream is already committed.
	persist func(status string, result any, duration time.Duration, runErr error) error

	// payload builds the completion frame data from execute's result.
	payload func(result any, duration time.Duration) any
}

// streamSession writes one Server-Sent Events response.
type streamSession struct {
	w         io.Writer
	flusher   http.Flusher
	heartbeat time.Duration
	capacity  int
	logger    zerolog.Logger
}

// newStreamSession commits the response to the SSE wire format. After
// this returns no non-stream error response is possible.
func newStreamSession(c *gin.Context, heartbeat time.Duration, capacity int, logger zerolog.Logger) (*streamSession, error) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache, no-transform")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	if capacity <= 0 {
		capacity = 16
	}
	return &streamSession{
		w:         c.Writer,
		flusher:   flusher,
		heartbeat: heartbeat,
		capacity:  capacity,
		logger:    logger,
	}, nil
}

type runResult struct {
	data any
	err  error
	code string
}

// run drives the session to its terminal state: relay every pipeline
// event in order, heartbeat while idle, then persist and emit exactly
// one terminal frame. On client abort it stops writing immediately and
// leaves the record for the reconciler.
func (s *streamSession) run(reqCtx context.Context, sr streamRun) {
	ctx, cancel := context.WithCancel(reqCtx)
	defer cancel()

	events := make(chan geo.Event, s.capacity)
	result := make(chan runResult, 1)
	start := time.Now()

	go func() {
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				result <- runResult{err: fmt.Errorf("pipeline panic: %v", r), code: codeStreamError}
			}
		}()
		data, err := sr.execute(ctx, func(e geo.Event) {
			select {
			case events <- e:
			case <-ctx.Done():
			}
		})
		result <- runResult{data: data, err: err, code: codeCheckError}
	}()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-reqCtx.Done():
			// Client went away: no further writes, heartbeat stops,
			// the pipeline is cancelled via ctx. The record stays in
			// its last persisted state.
			s.logger.Debug().Msg("stream client disconnected")
			return

		case <-ticker.C:
			s.writeComment("keepalive")

		case ev, ok := <-events:
			if !ok {
				s.finish(reqCtx, sr, <-result, time.Since(start))
				return
			}
			s.writeFrame(streamFrame{Type: ev.Kind(), Timestamp: time.Now().UTC(), Data: ev.Payload()})
		}
	}
}

// finish persists the terminal state, then emits the single terminal
// frame. Persistence happens first so a client that sees the terminal
// event reads a consistent record on re-fetch.
func (s *streamSession) finish(reqCtx context.Context, sr streamRun, res runResult, elapsed time.Duration) {
	if res.err != nil {
		if errors.Is(res.err, context.Canceled) && reqCtx.Err() != nil {
			// Abort raced the pipeline's return; treat as client gone.
			s.logger.Debug().Msg("stream cancelled before terminal event")
			return
		}
		if err := sr.persist(StatusFailed, nil, elapsed, res.err); err != nil {
			s.logger.Error().Err(err).Msg("failed to persist terminal failure state")
		}
		s.writeFrame(streamFrame{
			Type:      sr.errorType,
			Timestamp: time.Now().UTC(),
			Data:      streamErrorPayload{Message: res.err.Error(), Code: res.code},
		})
		return
	}

	if err := sr.persist(StatusCompleted, res.data, elapsed, nil); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist terminal completed state")
	}
	s.writeFrame(streamFrame{
		Type:      sr.completeType,
		Timestamp: time.Now().UTC(),
		Data:      sr.payload(res.data, elapsed),
	})
}

// writeFrame emits one `data:` frame and flushes it. Write failures
// after the stream is committed are logged and swallowed.
func (s *streamSession) writeFrame(frame streamFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error().Err(err).Str("type", frame.Type).Msg("failed to encode stream frame")
		return
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		s.logger.Debug().Err(err).Msg("stream write failed")
		return
	}
	s.flusher.Flush()
}

// writeComment emits a comment-only heartbeat frame.
func (s *streamSession) writeComment(text string) {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		s.logger.Debug().Err(err).Msg("heartbeat write failed")
		return
	}
	s.flusher.Flush()
}
