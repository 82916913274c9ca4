package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/crosspost/crosspost/pkg/config"
)

func TestScalyrEncoder(t *testing.T) {
	cfg := &config.LoggingConfig{
		Level:        "INFO",
		Format:       "json",
		ScalyrFormat: true,
	}

	if err := InitLogger(cfg); err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	var buf bytes.Buffer
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:      "timestamp",
		LevelKey:     "level",
		MessageKey:   "message",
		CallerKey:    "caller",
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.LowercaseLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}

	core := zapcore.NewCore(NewScalyrEncoder(encoderConfig), zapcore.AddSync(&buf), zapcore.InfoLevel)
	logger := zap.New(core).With(zap.String("component", "publisher"))

	logger.Info("entry published",
		zap.String("platform", "reddit"),
		zap.Int("attempt", 2),
		zap.Error(errors.New("boom")))

	var logObj map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logObj); err != nil {
		t.Fatalf("Failed to parse JSON: %v (%s)", err, buf.String())
	}

	expect := map[string]interface{}{
		"message":   "entry published",
		"platform":  "reddit",
		"component": "publisher",
		"error":     "boom",
		"attempt":   float64(2),
	}
	for k, want := range expect {
		if logObj[k] != want {
			t.Errorf("field %q = %v, want %v", k, logObj[k], want)
		}
	}
	if _, ok := logObj["timestamp"]; !ok {
		t.Error("Expected 'timestamp' field in log output")
	}
}

func TestScalyrEncoderCloneIsolation(t *testing.T) {
	enc := NewScalyrEncoder(zapcore.EncoderConfig{}).(*ScalyrEncoder)
	enc.AddString("shared", "a")

	clone := enc.Clone().(*ScalyrEncoder)
	clone.AddString("only_clone", "b")

	if _, ok := enc.Fields["only_clone"]; ok {
		t.Error("clone fields leaked into parent encoder")
	}
	if clone.Fields["shared"] != "a" {
		t.Error("clone lost parent field")
	}
}

func TestGetLoggerFallback(t *testing.T) {
	SetLogger(nil)
	if GetLogger() == nil {
		t.Fatal("GetLogger() returned nil")
	}
}
