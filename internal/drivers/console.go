package drivers

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/t031a5/internal/plugin"
	"github.com/normanking/t031a5/pkg/types"
)

// ConsoleVoice turns lines read from a reader into G1Voice records. Each
// non-empty line is one utterance, reported once.
type ConsoleVoice struct {
	*plugin.Lifecycle

	log        zerolog.Logger
	r          io.Reader
	confidence float64

	once  sync.Once
	lines chan string
}

// NewConsoleVoice creates a console voice input reading from r.
func NewConsoleVoice(cfg plugin.Config, r io.Reader, log zerolog.Logger) *ConsoleVoice {
	c := &ConsoleVoice{
		log:        log,
		r:          r,
		confidence: types.ClampUnit(optFloat(cfg.Options, "confidence", 0.9)),
		lines:      make(chan string, 16),
	}
	c.Lifecycle = plugin.NewLifecycle(cfg, plugin.Hooks{
		Start: c.start,
	})
	return c
}

func (c *ConsoleVoice) start(context.Context) error {
	// The reader goroutine lives until EOF; a restart reuses it.
	c.once.Do(func() { go c.readLines() })
	return nil
}

func (c *ConsoleVoice) readLines() {
	sc := bufio.NewScanner(c.r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		c.lines <- line
	}
	if err := sc.Err(); err != nil {
		c.log.Warn().Err(err).Str("op", "read").Msg("console input closed")
	}
}

// GetData returns the next pending utterance or nil when there is none.
func (c *ConsoleVoice) GetData(ctx context.Context) (*types.InputRecord, error) {
	if !c.Enabled() {
		return nil, nil
	}
	if !c.Active() {
		return nil, plugin.ErrNotRunning
	}
	select {
	case line := <-c.lines:
		rec := types.NewInputRecord(types.InputVoice, c.Name(), map[string]any{
			"speech_detected": true,
			"transcription":   line,
			"confidence":      c.confidence,
		}, c.confidence, c.Config().Priority)
		return &rec, nil
	default:
		return nil, nil
	}
}
