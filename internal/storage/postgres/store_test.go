package postgres

import (
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: codeSerializationFailure}, want: true},
		{name: "deadlock", err: &pgconn.PgError{Code: codeDeadlockDetected}, want: true},
		{
			name: "wrapped serialization failure",
			err:  errors.Wrap(&pgconn.PgError{Code: codeSerializationFailure}, "lock products"),
			want: true,
		},
		{
			name: "idempotency key race",
			err:  &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: idempotencyIndex},
			want: true,
		},
		{
			name: "other unique violation",
			err:  &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "orders_pkey"},
			want: false,
		},
		{name: "check violation", err: &pgconn.PgError{Code: "23514"}, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestStoreOptions_Defaults(t *testing.T) {
	var opts StoreOptions
	opts.setDefaults()

	assert.Equal(t, DefaultMaxAttempts, opts.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, opts.InitialBackoff)
	assert.Equal(t, 250*time.Millisecond, opts.MaxBackoff)

	custom := StoreOptions{MaxAttempts: 9}
	custom.setDefaults()
	assert.Equal(t, 9, custom.MaxAttempts)
}
