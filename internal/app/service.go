// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/okian/textguard/internal/domain/detect"
	"github.com/okian/textguard/internal/domain/memo"
	"github.com/okian/textguard/internal/domain/similarity"
	"github.com/okian/textguard/pkg/logger"
	"github.com/okian/textguard/pkg/metrics"
)

// Comparison sources reported to metrics.
const (
	SourceText = "text"
	SourceFile = "file"
)

const defaultMemoSize = 1024

// Service implements the API dependencies for detection and plagiarism
// screening. The engines are immutable; the memo is the only shared state.
type Service struct {
	mu sync.RWMutex

	// Core components
	detector detect.Detector
	comparer similarity.Comparer
	results  memo.Memo[detect.Result]

	// Configuration
	memoSize int
	encoding string

	// State
	started bool

	logger  logger.Logger
	metrics *metrics.Manager
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDetector sets the AI-text detector.
func WithDetector(d detect.Detector) Option {
	return func(s *Service) {
		if d != nil {
			s.detector = d
		}
	}
}

// WithComparer sets the document comparer. Defaults to a similarity engine
// with English stop words.
func WithComparer(c similarity.Comparer) Option {
	return func(s *Service) {
		if c != nil {
			s.comparer = c
		}
	}
}

// WithMemoSize sets the number of detection results kept. Zero disables
// the memo; negative values are ignored.
func WithMemoSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.memoSize = size
		}
	}
}

// WithEncoding records the tokenizer encoding published with the model info.
func WithEncoding(encoding string) Option {
	return func(s *Service) {
		s.encoding = encoding
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics manager. Defaults to the global one.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		comparer: similarity.New(),
		memoSize: defaultMemoSize,
		metrics:  metrics.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.results = memo.NewInMemory[detect.Result](memo.WithMaxSize(s.memoSize))
	return s
}

// Start checks the wiring and publishes the model identity.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.detector == nil {
		return detect.ErrNoModel
	}

	s.metrics.SetModelInfo(s.detector.ModelName(), s.encoding)
	s.started = true
	s.logger.Info(ctx, "textguard service started",
		logger.String("model", s.detector.ModelName()),
		logger.String("encoding", s.encoding),
		logger.Int("memoSize", s.memoSize),
	)
	return nil
}

// Stop marks the service as stopped. In-flight calls finish normally.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "textguard service stopped")
}

func (s *Service) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Score runs the full detection on text. Results are memoized per model and
// text since classification is deterministic for a loaded snapshot.
func (s *Service) Score(ctx context.Context, text string) (detect.Result, error) {
	if !s.running() {
		return detect.Result{}, ErrNotStarted
	}

	key := memo.Key(s.detector.ModelName(), text)
	if res, ok := s.results.Get(ctx, key); ok {
		s.metrics.RecordMemoLookup(true)
		s.metrics.RecordDetection(string(res.Label), 0)
		return res, nil
	}
	s.metrics.RecordMemoLookup(false)

	start := time.Now()
	res, err := s.detector.Classify(ctx, text)
	if err != nil {
		return detect.Result{}, err
	}
	elapsed := float64(time.Since(start).Milliseconds())

	s.results.Put(ctx, key, res)
	s.metrics.UpdateMemoSize(int(s.results.Size()))
	s.metrics.RecordDetection(string(res.Label), elapsed)

	s.logger.Debug(ctx, "text classified",
		logger.String("label", string(res.Label)),
		logger.Float64("perplexity", res.Perplexity),
		logger.Float64("burstiness", res.Burstiness),
		logger.Float64("entropy", res.Entropy),
		logger.Float64("combined", res.CombinedScore),
		logger.Float64("threshold", res.Threshold),
	)
	return res, nil
}

// Detect returns only the label of Score.
func (s *Service) Detect(ctx context.Context, text string) (detect.Label, error) {
	res, err := s.Score(ctx, text)
	if err != nil {
		return "", err
	}
	return res.Label, nil
}

// ComparePair screens two texts for plagiarism.
func (s *Service) ComparePair(ctx context.Context, a, b string) (similarity.Result, error) {
	return s.compare(ctx, a, b, SourceText)
}

// CompareFiles screens two uploaded documents. Both must be valid UTF-8.
func (s *Service) CompareFiles(ctx context.Context, a, b []byte) (similarity.Result, error) {
	if !utf8.Valid(a) {
		return similarity.Result{}, fmt.Errorf("%w: file1", ErrInvalidEncoding)
	}
	if !utf8.Valid(b) {
		return similarity.Result{}, fmt.Errorf("%w: file2", ErrInvalidEncoding)
	}
	return s.compare(ctx, string(a), string(b), SourceFile)
}

func (s *Service) compare(ctx context.Context, a, b, source string) (similarity.Result, error) {
	if !s.running() {
		return similarity.Result{}, ErrNotStarted
	}
	res, err := s.comparer.ComparePair(a, b)
	if err != nil {
		return similarity.Result{}, err
	}
	s.metrics.RecordComparison(string(res.Label), source, res.Score)
	s.logger.Debug(ctx, "pair compared",
		logger.String("source", source),
		logger.Float64("score", res.Score),
		logger.String("label", string(res.Label)),
	)
	return res, nil
}

// ModelName reports the language model behind detection.
func (s *Service) ModelName() string {
	if s.detector == nil {
		return ""
	}
	return s.detector.ModelName()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"started":     s.started,
		"model":       s.ModelName(),
		"encoding":    s.encoding,
		"memoSize":    s.memoSize,
		"memoEntries": s.results.Size(),
	}
}
