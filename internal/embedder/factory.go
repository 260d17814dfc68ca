package embedder

import (
	"fmt"
	"os"
	"strings"

	"github.com/dshills/patternvec/internal/config"
	"github.com/dshills/patternvec/internal/encoder"
)

// TokenizerBytes selects the vocabulary-free ByteTokenizer
const TokenizerBytes = "bytes"

// NewFromConfig builds the encoder described by cfg.Encoder and wraps it in a
// ChunkedEncoder configured by cfg.Window
func NewFromConfig(cfg *config.Config) (*ChunkedEncoder, error) {
	enc, err := NewEncoder(cfg.Encoder)
	if err != nil {
		return nil, err
	}

	ce, err := New(enc, Config{
		ChunkSize:    cfg.Window.ChunkSize,
		Stride:       cfg.Window.Stride,
		InferTimeout: cfg.Window.InferTimeout,
		CacheSize:    cfg.Window.CacheSize,
	})
	if err != nil {
		_ = enc.Close()
		return nil, err
	}
	return ce, nil
}

// NewEncoder creates the tokenizer/model pair for a provider.
// An empty provider falls back to DetectProvider.
func NewEncoder(cfg config.EncoderConfig) (encoder.Encoder, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = DetectProvider()
	}

	device, err := encoder.ResolveDevice(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch provider {
	case encoder.ProviderLocal:
		hidden := cfg.HiddenSize
		if hidden <= 0 {
			hidden = encoder.LocalHiddenSize
		}
		tok, err := newTokenizer(cfg.TokenizerEncoding, TokenizerBytes)
		if err != nil {
			return nil, err
		}
		model, err := encoder.NewLocalModel(hidden)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		return encoder.NewPair("local", tok, model), nil

	case encoder.ProviderRemote:
		tok, err := newTokenizer(cfg.TokenizerEncoding, encoder.DefaultEncoding)
		if err != nil {
			return nil, err
		}
		model, err := encoder.NewRemoteModel(encoder.RemoteConfig{
			Endpoint:   cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Device:     device,
			HiddenSize: cfg.HiddenSize,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		name := "remote"
		if cfg.Model != "" {
			name = "remote:" + cfg.Model
		}
		return encoder.NewPair(name, tok, model), nil

	default:
		return nil, fmt.Errorf("%w: %s", encoder.ErrUnknownEncoder, provider)
	}
}

func newTokenizer(encoding, fallback string) (encoder.Tokenizer, error) {
	if encoding == "" {
		encoding = fallback
	}
	if strings.EqualFold(encoding, TokenizerBytes) {
		return encoder.ByteTokenizer{}, nil
	}
	tok, err := encoder.NewTiktokenTokenizer(encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return tok, nil
}

// DetectProvider returns the provider that would be used based on the current environment.
// Priority:
// 1. PATTERNVEC_ENCODER_PROVIDER
// 2. remote when PATTERNVEC_INFERENCE_URL is set
// 3. local
func DetectProvider() string {
	if provider := os.Getenv("PATTERNVEC_ENCODER_PROVIDER"); provider != "" {
		return strings.ToLower(provider)
	}
	if os.Getenv("PATTERNVEC_INFERENCE_URL") != "" {
		return encoder.ProviderRemote
	}
	return encoder.ProviderLocal
}
