package db

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{gorm.ErrDuplicatedKey, true},
		{fmt.Errorf("mirror: %w", gorm.ErrDuplicatedKey), true},
		{errors.New(`ERROR: duplicate key value violates unique constraint "ux_checkout_sessions_external_id"`), true},
		{errors.New("Error 1062 (23000): Duplicate entry 'cs_1'"), true},
		{errors.New("UNIQUE constraint failed: products.price_ref"), true},
		{errors.New("connection reset"), false},
	}
	for _, tc := range cases {
		if got := IsDuplicateKeyErr(tc.err); got != tc.want {
			t.Fatalf("IsDuplicateKeyErr(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
