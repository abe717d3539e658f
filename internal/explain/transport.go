package explain

import (
	"context"

	"github.com/nhle/codeinsight/internal/model"
)

// Request is a single streaming explanation request.
type Request struct {
	APIKey      string
	Model       string
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature float64
}

// ChatRequest is a single non-streamed completion over a transcript.
type ChatRequest struct {
	APIKey      string
	Model       string
	Messages    []model.Message
	MaxTokens   int64
	Temperature float64
}

// DeltaStream yields text deltas in order. Next returns false at the end of
// the stream or on failure; Err tells the two apart.
type DeltaStream interface {
	Next() bool
	Delta() string
	Err() error
	Close() error
}

// Transport talks to the remote model.
type Transport interface {
	Stream(ctx context.Context, req Request) DeltaStream
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// CredentialSource supplies the API key. An empty key with a nil error is
// treated as absent.
type CredentialSource interface {
	Lookup() (string, error)
}

// StaticKey is a CredentialSource returning a fixed key.
type StaticKey string

// Lookup returns the key.
func (k StaticKey) Lookup() (string, error) { return string(k), nil }
