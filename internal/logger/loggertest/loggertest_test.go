package loggertest_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/schmitthub/stencil/internal/logger"
	"github.com/schmitthub/stencil/internal/logger/loggertest"
)

func TestNew_CapturesOutput(t *testing.T) {
	tl := loggertest.New()

	tl.Info().Msg("hello world")

	output := tl.Output()
	if !strings.Contains(output, "hello world") {
		t.Errorf("Output() should contain logged message, got %q", output)
	}
}

func TestNew_CapturesDebug(t *testing.T) {
	tl := loggertest.New()
	tl.Debug().Str("kind", "WebApi").Msg("materialized")
	if !strings.Contains(tl.Output(), `"kind":"WebApi"`) {
		t.Errorf("debug events should be captured, got %q", tl.Output())
	}
}

func TestNew_Reset(t *testing.T) {
	tl := loggertest.New()

	tl.Info().Msg("first message")
	tl.Reset()

	if tl.Output() != "" {
		t.Error("Output() should be empty after Reset()")
	}

	tl.Info().Msg("second message")
	if !strings.Contains(tl.Output(), "second message") {
		t.Error("Output() should contain message logged after Reset()")
	}
}

func TestNew_ConcurrentWrites(t *testing.T) {
	tl := loggertest.New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tl.Info().Int("n", n).Msg("line")
		}(i)
	}
	wg.Wait()

	if got := strings.Count(tl.Output(), "\n"); got != 8 {
		t.Errorf("expected 8 log lines, got %d", got)
	}
}

func TestNewNop_DiscardsOutput(t *testing.T) {
	tl := loggertest.NewNop()

	tl.Info().Msg("should be discarded")

	if tl.Output() != "" {
		t.Errorf("NewNop().Output() should be empty, got %q", tl.Output())
	}
}

// Compile-time check: *TestLogger satisfies logger.Logger
var _ logger.Logger = (*loggertest.TestLogger)(nil)
