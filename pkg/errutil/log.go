// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package errutil bridges oops errors to logging and tests.
package errutil

import (
	"fmt"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error with structured context if it's an oops error.
// For oops errors, it extracts and logs the message, code, domain and context.
// For standard errors, it logs the error string. Extra attrs are appended
// in both cases.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		fields := []any{
			"error", oopsErr.Error(),
		}
		if code := Code(err); code != "" {
			fields = append(fields, "code", code)
		}
		if domain := oopsErr.Domain(); domain != "" {
			fields = append(fields, "domain", domain)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			fields = append(fields, "context", ctx)
		}
		logger.Error(msg, append(fields, attrs...)...)
		return
	}
	logger.Error(msg, append([]any{"error", err}, attrs...)...)
}

// Code returns the oops error code of err, or "" if err carries none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code := oopsErr.Code()
	if code == nil {
		return ""
	}
	if s, ok := code.(string); ok {
		return s
	}
	return fmt.Sprint(code)
}

// HasCode reports whether err is an oops error carrying code.
func HasCode(err error, code string) bool {
	return err != nil && Code(err) == code
}
