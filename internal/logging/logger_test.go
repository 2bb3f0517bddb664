package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewLoggerDefaultsToTextFormat(t *testing.T) {
	logger := NewLogger(nil)
	if logger == nil {
		t.Fatal("NewLogger(nil) returned nil")
	}
	if logger.format != "text" {
		t.Errorf("expected default format text, got %q", logger.format)
	}
}

func TestLoggerTextFormatIncludesLevelAndMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Format: "text", Output: &buf})

	logger.Info("hello", "k", "v")

	out := buf.String()
	if !strings.Contains(out, "[INFO]") || !strings.Contains(out, "hello") || !strings.Contains(out, "k=v") {
		t.Errorf("unexpected text log line: %q", out)
	}
}

func TestLoggerJSONFormatEncodesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Format: "json", Output: &buf})

	logger.Error("boom", "minor", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("json log line did not decode: %v (line: %q)", err, buf.String())
	}
	if rec["level"] != "ERROR" || rec["msg"] != "boom" {
		t.Errorf("unexpected decoded record: %+v", rec)
	}
	if rec["minor"] != float64(3) {
		t.Errorf("expected minor=3 field, got %+v", rec["minor"])
	}
}

func TestLoggerRespectsLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Format: "text", Output: &buf})

	logger.Debug("should be filtered")
	logger.Info("also filtered")
	if buf.Len() != 0 {
		t.Errorf("expected no output below the configured level, got: %q", buf.String())
	}

	logger.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Errorf("expected warn output, got: %q", buf.String())
	}
}

func TestForSlotBindsMinorToEveryLine(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Format: "text", Output: &buf})

	slotLogger := logger.ForSlot(42)
	slotLogger.Info("opened")

	if !strings.Contains(buf.String(), "minor=42") {
		t.Errorf("expected minor=42 in output, got: %q", buf.String())
	}
}

func TestWithOpStacksOnForSlot(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Format: "text", Output: &buf})

	logger.ForSlot(42).WithOp(7, "READ").Debug("parked")

	out := buf.String()
	for _, want := range []string{"minor=42", "id=7", "op=READ"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got: %q", want, out)
		}
	}
}

func TestWithErrorBindsErrorMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Format: "text", Output: &buf})

	logger.WithError(errors.New("disk full")).Warn("write failed")

	if !strings.Contains(buf.String(), "disk full") {
		t.Errorf("expected error message in output, got: %q", buf.String())
	}
}

func TestWithErrorNilIsNoop(t *testing.T) {
	logger := NewLogger(nil)
	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the receiver unchanged")
	}
}

// TestChainsDoNotAlias covers the reason With copies its field slice
// rather than appending in place: branching one ForSlot logger into
// two WithOp chains must not let the second branch's fields bleed
// into the first, which a naive append-in-place would risk once the
// backing array has spare capacity.
func TestChainsDoNotAlias(t *testing.T) {
	var bufA, bufB bytes.Buffer
	base := NewLogger(&Config{Level: LevelDebug, Format: "text", Output: &bufA}).ForSlot(1)

	a := base.WithOp(1, "READ")
	b := base.WithOp(2, "WRITE")
	b.out = &bufB

	a.Info("a")
	b.Info("b")

	if strings.Contains(bufA.String(), "op=WRITE") {
		t.Errorf("branch a leaked branch b's fields: %q", bufA.String())
	}
	if strings.Contains(bufB.String(), "op=READ") {
		t.Errorf("branch b leaked branch a's fields: %q", bufB.String())
	}
}

func TestGlobalLoggerFunctionsUseDefault(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Format: "text", Output: &buf}))

	Debug("debug message", "key", "value")
	if !strings.Contains(buf.String(), "debug message") || !strings.Contains(buf.String(), "key=value") {
		t.Errorf("expected debug message with fields, got: %q", buf.String())
	}

	buf.Reset()
	Info("info message")
	if !strings.Contains(buf.String(), "info message") {
		t.Errorf("expected info message, got: %q", buf.String())
	}

	buf.Reset()
	Warn("warning message")
	if !strings.Contains(buf.String(), "warning message") {
		t.Errorf("expected warning message, got: %q", buf.String())
	}

	buf.Reset()
	Error("error message")
	if !strings.Contains(buf.String(), "error message") {
		t.Errorf("expected error message, got: %q", buf.String())
	}
}
