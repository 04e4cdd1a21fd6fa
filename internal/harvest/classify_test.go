package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassSuccess},
		{"not found", ErrNotFound, ClassNotFound},
		{"wrapped not found", fmt.Errorf("resolve: %w", ErrNotFound), ClassNotFound},
		{"quota", &QuotaError{Reason: "quotaExceeded"}, ClassQuotaExhausted},
		{"wrapped quota", fmt.Errorf("call: %w", &QuotaError{Reason: "dailyLimitExceeded"}), ClassQuotaExhausted},
		{"auth", &AuthError{Reason: "keyInvalid"}, ClassFatalAuth},
		{"transient", &TransientError{Err: io.ErrUnexpectedEOF}, ClassTransient},
		{"persistence", &PersistenceError{Err: errors.New("tx aborted")}, ClassPersistence},
		{"context canceled", context.Canceled, ClassTransient},
		{"deadline", context.DeadlineExceeded, ClassTransient},
		{"unknown defaults to transient", errors.New("weird"), ClassTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestClassString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "success", ClassSuccess.String())
	assert.Equal(t, "not_found", ClassNotFound.String())
	assert.Equal(t, "transient", ClassTransient.String())
	assert.Equal(t, "quota_exhausted", ClassQuotaExhausted.String())
	assert.Equal(t, "fatal_auth", ClassFatalAuth.String())
	assert.Equal(t, "persistence", ClassPersistence.String())
	assert.Equal(t, "unknown", Class(99).String())
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()
	inner := errors.New("conn reset")
	assert.ErrorIs(t, &TransientError{Err: inner}, inner)
	assert.ErrorIs(t, &PersistenceError{Err: inner}, inner)
}

func TestOutcomeCommittable(t *testing.T) {
	t.Parallel()
	for _, o := range []Outcome{
		OutcomePersisted,
		OutcomeSkippedNoEntity,
		OutcomeSkippedNoChildren,
		OutcomeSkippedAlreadyProcessed,
		OutcomeFailed,
	} {
		assert.True(t, o.Committable(), string(o))
	}
	assert.False(t, Outcome("").Committable())
}
