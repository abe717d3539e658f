// Package explain produces streamed explanations of source code, serving
// repeats from a cache, and answers follow-up chat turns.
package explain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/codeinsight/internal/langdetect"
	"github.com/nhle/codeinsight/internal/model"
)

const (
	defaultModel           = "gpt-4o-mini"
	defaultMaxTokens       = 2048
	defaultReplayChunkSize = 100
	defaultReplayDelay     = 15 * time.Millisecond
	defaultBufferSize      = 16
)

// Config tunes a Service. Zero values fall back to defaults.
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature float64

	// ReplayChunkSize is the rune count of each chunk replayed from cache.
	ReplayChunkSize int
	// ReplayDelay is the pause between replayed chunks. Negative disables it.
	ReplayDelay time.Duration

	// BufferSize is the capacity of each Explain channel.
	BufferSize int

	// HistoryLimit caps the messages sent per Chat call.
	HistoryLimit int
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.ReplayChunkSize <= 0 {
		c.ReplayChunkSize = defaultReplayChunkSize
	}
	if c.ReplayDelay == 0 {
		c.ReplayDelay = defaultReplayDelay
	}
	if c.ReplayDelay < 0 {
		c.ReplayDelay = 0
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	return c
}

// Service resolves explanation requests from the cache or the transport.
// It is safe for concurrent use; each request runs independently.
type Service struct {
	transport Transport
	creds     CredentialSource
	cache     *Cache
	cfg       Config
	logger    *zap.Logger
}

// NewService creates a Service. A nil cache gets a default-sized one and a
// nil logger discards output.
func NewService(
	transport Transport,
	creds CredentialSource,
	cache *Cache,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cache == nil {
		cache = NewCache(DefaultCacheEntries, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		transport: transport,
		creds:     creds,
		cache:     cache,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Cache returns the service's cache.
func (s *Service) Cache() *Cache { return s.cache }

// Model returns the configured model name.
func (s *Service) Model() string { return s.cfg.Model }

// Explain starts an explanation of code and returns its event stream. The
// channel is closed after the terminal event.
//
// Requests that fail validation yield a single Error wrapping ErrConfig and
// no Start. Otherwise the stream is Start, zero or more Chunk, then Complete
// or Error. Cancelling ctx abandons the request: no further events are sent
// and nothing is cached.
func (s *Service) Explain(ctx context.Context, code string) <-chan Event {
	ch := make(chan Event, s.cfg.BufferSize)

	apiKey, err := s.validate(code)
	if err != nil {
		s.logger.Warn("explain rejected", zap.Error(err))
		ch <- Failed(err)
		close(ch)
		return ch
	}

	go func() {
		defer close(ch)

		if cached, ok := s.cache.Get(code); ok {
			s.logger.Debug("explain cache hit", zap.Int("chars", len(cached)))
			s.replay(ctx, ch, cached)
			return
		}
		s.stream(ctx, ch, code, apiKey)
	}()

	return ch
}

func (s *Service) validate(code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("%w: no code to explain", ErrConfig)
	}
	return s.apiKey()
}

func (s *Service) apiKey() (string, error) {
	if s.creds == nil {
		return "", fmt.Errorf("%w: no API key configured", ErrConfig)
	}
	key, err := s.creds.Lookup()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: no API key configured", ErrConfig)
	}
	return key, nil
}

// replay emits a cached explanation with the same shape as a live stream.
func (s *Service) replay(ctx context.Context, ch chan<- Event, text string) {
	if !send(ctx, ch, Start()) {
		return
	}

	runes := []rune(text)
	size := s.cfg.ReplayChunkSize
	for i := 0; i < len(runes); i += size {
		if i > 0 && !sleep(ctx, s.cfg.ReplayDelay) {
			return
		}
		end := min(i+size, len(runes))
		if !send(ctx, ch, Chunk(string(runes[i:end]))) {
			return
		}
	}

	send(ctx, ch, Complete())
}

// stream runs a live request and caches the result on success.
func (s *Service) stream(ctx context.Context, ch chan<- Event, code, apiKey string) {
	if !send(ctx, ch, Start()) {
		return
	}

	lang := langdetect.Detect(code)
	started := time.Now()
	s.logger.Info("explain request",
		zap.String("model", s.cfg.Model),
		zap.String("language", lang),
		zap.Int("chars", len(code)),
	)

	deltas := s.transport.Stream(ctx, Request{
		APIKey:      apiKey,
		Model:       s.cfg.Model,
		System:      systemPrompt,
		Prompt:      buildPrompt(code, lang),
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	})
	defer deltas.Close()

	var sb strings.Builder
	for deltas.Next() {
		delta := deltas.Delta()
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if !send(ctx, ch, Chunk(delta)) {
			return
		}
	}

	if ctx.Err() != nil {
		s.logger.Debug("explain cancelled")
		return
	}
	if err := deltas.Err(); err != nil {
		s.logger.Warn("explain stream failed", zap.Error(err), zap.Int("partial_chars", sb.Len()))
		send(ctx, ch, Failed(&TransportError{Err: err}))
		return
	}

	text := sb.String()
	if text != "" {
		s.cache.Put(code, text)
	}
	s.logger.Info("explain complete",
		zap.Int("chars", len(text)),
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("cache_entries", s.cache.Len()),
	)
	send(ctx, ch, Complete())
}

// Chat sends history to the model and returns its single reply.
func (s *Service) Chat(ctx context.Context, history []model.Message) (string, error) {
	apiKey, err := s.apiKey()
	if err != nil {
		return "", err
	}

	msgs := windowHistory(history, s.cfg.HistoryLimit)
	if len(msgs) == 0 {
		return "", errors.New("chat: empty history")
	}
	msgs = append([]model.Message{model.System(chatSystemPrompt)}, msgs...)

	reply, err := s.transport.Complete(ctx, ChatRequest{
		APIKey:      apiKey,
		Model:       s.cfg.Model,
		Messages:    msgs,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.Warn("chat request failed", zap.Error(err))
		return "", &TransportError{Err: err}
	}
	return reply, nil
}

// send delivers ev unless ctx is done. It reports whether the event was
// delivered.
func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
