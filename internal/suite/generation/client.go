package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sony/gobreaker/v2"
	"google.golang.org/genai"

	errx "github.com/bert-suite/server/internal/core/error"
	"github.com/bert-suite/server/internal/suite/model"
	logx "github.com/bert-suite/server/pkg/logger"
)

var (
	ErrInvalidJSON   = errors.New("response is not valid JSON")
	ErrInvalidShape  = errors.New("response does not match schema")
	ErrCircuitOpen   = errors.New("generation circuit open")
	ErrStreamReused  = errors.New("stream already consumed")
	ErrEmptyResponse = errors.New("empty response")
)

const (
	defaultBreakerMaxFailures uint32        = 5
	defaultBreakerTimeout     time.Duration = 30 * time.Second
	defaultBreakerInterval    time.Duration = 60 * time.Second
)

// contentGenerator is the slice of genai.Models used for structured calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config holds everything needed to reach Gemini.
type Config struct {
	APIKey     string
	BaseURL    string
	Generation model.GenerationModelConfig
	Chat       model.ChatModelConfig
	Breaker    model.BreakerConfig
}

// Options configures a Client built from already constructed collaborators.
type Options struct {
	Model       string
	Temperature float32
	Breaker     model.BreakerConfig
}

// Client is the Generation Collaborator: structured JSON generation through
// genai and streaming chat sessions through the Eino Gemini chat model.
type Client struct {
	gen         contentGenerator
	chat        einomodel.BaseChatModel
	model       string
	temperature float32
	validator   *Validator

	structured *gobreaker.CircuitBreaker[*genai.GenerateContentResponse]
	streams    *gobreaker.CircuitBreaker[*schema.StreamReader[*schema.Message]]
}

var _ model.Collaborator = (*Client)(nil)

// NewClient creates the genai client and the Eino chat model from config.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is empty: %w", errx.ErrMissingCredential)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Chat.Model,
		Temperature: &cfg.Chat.Temperature,
		MaxTokens:   &cfg.Chat.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating chat model")
		return nil, fmt.Errorf("error creating chat model: %w", err)
	}

	return New(client.Models, chatModel, Options{
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		Breaker:     cfg.Breaker,
	}), nil
}

// New wires a Client around a content generator and a chat model.
func New(gen contentGenerator, chat einomodel.BaseChatModel, opts Options) *Client {
	return &Client{
		gen:         gen,
		chat:        chat,
		model:       opts.Model,
		temperature: opts.Temperature,
		validator:   NewValidator(),
		structured:  newBreaker[*genai.GenerateContentResponse]("generation:structured", opts.Breaker),
		streams:     newBreaker[*schema.StreamReader[*schema.Message]]("generation:chat", opts.Breaker),
	}
}

// OpenChatSession starts a session whose history is the system instruction
// followed by the seed messages.
func (c *Client) OpenChatSession(ctx context.Context, system string, seed []*schema.Message) (model.ChatSession, error) {
	if c.chat == nil {
		return nil, fmt.Errorf("chat model is nil")
	}
	history := make([]*schema.Message, 0, len(seed)+1)
	if system != "" {
		history = append(history, schema.SystemMessage(system))
	}
	for _, m := range seed {
		if m != nil {
			history = append(history, m)
		}
	}
	logx.Debug().Int("seed", len(seed)).Msg("chat session opened")
	return &ChatSession{client: c, history: history}, nil
}

// Validator exposes the schema validator used for structured results.
func (c *Client) Validator() *Validator {
	return c.validator
}

func newBreaker[T any](name string, cfg model.BreakerConfig) *gobreaker.CircuitBreaker[T] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logx.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return err
}
