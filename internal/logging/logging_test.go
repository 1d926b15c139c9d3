package logging

import (
	"bytes"
	"testing"
)

func TestParseVerbosity(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{name: "empty defaults to info", in: "", want: INFO},
		{name: "info", in: "info", want: INFO},
		{name: "debug upper case", in: "DEBUG", want: DEBUG},
		{name: "trace", in: " trace ", want: TRACE},
		{name: "numeric", in: "3", want: 3},
		{name: "negative", in: "-1", wantErr: true},
		{name: "garbage", in: "loud", wantErr: true},
		{name: "numeric with trailing garbage", in: "3abc", wantErr: true},
		{name: "numeric with spaces", in: " 2 ", want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVerbosity(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVerbosity(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseVerbosity(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLoggerVerbosity(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Options{Verbosity: INFO, Output: &buf})

	logger.V(DEBUG).Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug message to be suppressed, got %q", buf.String())
	}

	logger.Info("visible", "cores", 3)
	if !bytes.Contains(buf.Bytes(), []byte("visible")) {
		t.Errorf("expected info message in output, got %q", buf.String())
	}

	buf.Reset()
	debugLogger := NewLogger(Options{Verbosity: DEBUG, Output: &buf})
	debugLogger.V(DEBUG).Info("shown")
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Errorf("expected debug message in output, got %q", buf.String())
	}
}
