// Package narration serves narration requests from the bus, one run at a time.
package narration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-narrator/internal/eventstore"
	"github.com/loqalabs/loqa-narrator/internal/pipeline"
	"github.com/loqalabs/loqa-narrator/internal/protocol"
	"github.com/loqalabs/loqa-narrator/internal/textprep"
	"github.com/nats-io/nats.go"
)

// QueueGroup spreads requests across every daemon subscribed to the bus.
const QueueGroup = "narrator"

// ErrBusy is reported when the request queue is full.
var ErrBusy = errors.New("narration queue is full")

// Runner executes one pipeline job.
type Runner interface {
	Run(ctx context.Context, job pipeline.Job) (pipeline.Result, error)
}

// Options configure request defaults.
type Options struct {
	InputPath  string
	OutputPath string
	QueueSize  int
}

type request struct {
	req   protocol.NarrationRequest
	reply string
}

// Service consumes narration requests and publishes progress and results.
type Service struct {
	runner  Runner
	journal Journal
	pub     Publisher
	opts    Options
	log     *slog.Logger

	queue chan request
	sub   *nats.Subscription
	conn  *nats.Conn
	wg    sync.WaitGroup
}

func NewService(runner Runner, journal Journal, pub Publisher, opts Options, log *slog.Logger) *Service {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	return &Service{
		runner:  runner,
		journal: journal,
		pub:     pub,
		opts:    opts,
		log:     log.With(slog.String("component", "narration")),
		queue:   make(chan request, opts.QueueSize),
	}
}

// Start subscribes to narration requests on conn and processes them until ctx
// is cancelled.
func (s *Service) Start(ctx context.Context, conn *nats.Conn) error {
	sub, err := conn.QueueSubscribe(protocol.SubjectNarrationRequest, QueueGroup, func(msg *nats.Msg) {
		var req protocol.NarrationRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.log.Warn("invalid narration request", slog.String("error", err.Error()))
			s.respond(msg.Reply, protocol.NarrationResult{
				State:     pipeline.Failed.String(),
				Error:     fmt.Sprintf("decode request: %v", err),
				Timestamp: time.Now().UTC(),
			})
			return
		}
		select {
		case s.queue <- request{req: req, reply: msg.Reply}:
		default:
			s.log.Warn("narration request rejected", slog.String("request_id", req.RequestID), slog.String("error", ErrBusy.Error()))
			s.respond(msg.Reply, protocol.NarrationResult{
				RequestID: req.RequestID,
				State:     pipeline.Failed.String(),
				Error:     ErrBusy.Error(),
				Timestamp: time.Now().UTC(),
			})
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe narration requests: %w", err)
	}
	s.sub = sub
	s.conn = conn

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case r := <-s.queue:
				res := s.Handle(ctx, r.req)
				s.respond(r.reply, res)
			}
		}
	}()

	s.log.Info("narration service subscribed", slog.String("subject", protocol.SubjectNarrationRequest))
	return nil
}

// Stop unsubscribes and waits for the in-flight run to finish.
func (s *Service) Stop() {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.log.Warn("failed to unsubscribe", slog.String("error", err.Error()))
		}
	}
	s.wg.Wait()
}

func (s *Service) respond(reply string, res protocol.NarrationResult) {
	if reply == "" || s.conn == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		s.log.Warn("failed to encode reply", slog.String("error", err.Error()))
		return
	}
	if err := s.conn.Publish(reply, data); err != nil {
		s.log.Warn("failed to send reply", slog.String("error", err.Error()))
	}
}

// Handle runs one request to completion, journals it and publishes the result
// on the done subject.
func (s *Service) Handle(ctx context.Context, req protocol.NarrationRequest) protocol.NarrationResult {
	runID := uuid.NewString()
	log := s.log.With(slog.String("run_id", runID), slog.String("request_id", req.RequestID))

	inputPath := req.InputPath
	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = s.opts.OutputPath
	}

	result := protocol.NarrationResult{RunID: runID, RequestID: req.RequestID}
	finish := func() protocol.NarrationResult {
		result.Timestamp = time.Now().UTC()
		errMsg := result.Error
		if err := s.journal.FinishRun(ctx, runID, result.State, errMsg); err != nil {
			log.Warn("failed to journal run result", slog.String("error", err.Error()))
		}
		if err := s.pub.PublishJSON(protocol.SubjectNarrationDone, result); err != nil {
			log.Warn("failed to publish result", slog.String("error", err.Error()))
		}
		return result
	}

	text := textprep.Clean(req.Text)
	if req.Text == "" {
		if inputPath == "" {
			inputPath = s.opts.InputPath
		}
		var err error
		if text, err = textprep.ReadFile(inputPath); err != nil {
			log.Error("failed to read narration input", slog.String("error", err.Error()))
			if jerr := s.journal.BeginRun(ctx, eventstore.Run{RunID: runID, InputPath: inputPath, OutputPath: outputPath}); jerr != nil {
				log.Warn("failed to journal run", slog.String("error", jerr.Error()))
			}
			result.State = pipeline.Failed.String()
			result.Error = err.Error()
			return finish()
		}
	}

	if err := s.journal.BeginRun(ctx, eventstore.Run{RunID: runID, InputPath: inputPath, OutputPath: outputPath}); err != nil {
		log.Warn("failed to journal run", slog.String("error", err.Error()))
	}

	log.Info("narration started", slog.String("output", outputPath))
	res, err := s.runner.Run(ctx, pipeline.Job{
		RunID:      runID,
		Text:       text,
		OutputPath: outputPath,
		Speed:      req.Speed,
		Language:   req.Language,
		MaxLength:  req.MaxLength,
		Observer: pipeline.Observers{
			NewStoreObserver(s.journal, log),
			NewBusObserver(s.pub, req.RequestID, log),
		},
	})

	result.State = res.State.String()
	result.OutputPath = res.OutputPath
	result.SpeedOutputPath = res.SpeedOutputPath
	result.Chunks = len(res.Chunks)
	result.DurationMS = res.Duration.Milliseconds()
	if err != nil {
		result.State = pipeline.Failed.String()
		result.Error = err.Error()
		var se *pipeline.StageError
		if errors.As(err, &se) {
			result.Stage = string(se.Stage)
			result.Diagnostic = se.Diagnostic
			if se.ChunkIndex >= 0 {
				index := se.ChunkIndex
				result.FailedChunk = &index
			}
		}
	}
	log.Info("narration finished", slog.String("state", result.State))
	return finish()
}
