// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/holomush/plughost/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("INSTANCE_NOT_FOUND").Errorf("test error")
	// Should not fail
	errutil.AssertErrorCode(t, err, "INSTANCE_NOT_FOUND")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("plugin", "hello").Errorf("test error")
	// Should not fail
	errutil.AssertErrorContext(t, err, "plugin", "hello")
}
