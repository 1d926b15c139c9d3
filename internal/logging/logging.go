/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logging builds the logr loggers used across the mapper.
//
// Loggers are zap-backed through controller-runtime so that every package can
// use ctrl.Log or ctrl.LoggerFrom(ctx) without caring how output is produced.
package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/onsi/ginkgo/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	crzap "sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Verbosity levels passed to logr's V().
const (
	INFO  = 0
	DEBUG = 1
	TRACE = 2
)

// Options controls logger construction.
type Options struct {
	// Verbosity is the highest V() level that is emitted.
	Verbosity int
	// Development switches to the console encoder with stack traces on warnings.
	Development bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// NewLogger returns a zap-backed logr.Logger configured by opts.
func NewLogger(opts Options) logr.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	// zap levels are negative for logr verbosity: V(1) maps to zapcore.Level(-1).
	level := zap.NewAtomicLevelAt(zapcore.Level(-opts.Verbosity))
	return crzap.New(
		crzap.UseDevMode(opts.Development),
		crzap.WriteTo(out),
		crzap.Level(level),
	)
}

// Setup builds a logger and installs it as the controller-runtime global logger.
func Setup(opts Options) logr.Logger {
	logger := NewLogger(opts)
	ctrl.SetLogger(logger)
	return logger
}

// NewTestLogger installs a debug logger writing to the Ginkgo writer.
func NewTestLogger() {
	ctrl.SetLogger(NewLogger(Options{
		Verbosity:   DEBUG,
		Development: true,
		Output:      ginkgo.GinkgoWriter,
	}))
}

// ParseVerbosity maps a level name ("info", "debug", "trace") or a non-negative
// integer string to a verbosity value.
func ParseVerbosity(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return INFO, nil
	case "debug":
		return DEBUG, nil
	case "trace":
		return TRACE, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return v, nil
}
