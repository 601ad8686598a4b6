package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

// TestIsUniqueViolation проверяет распознавание SQLSTATE 23505.
func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"нарушение уникальности", &pgconn.PgError{Code: "23505"}, true},
		{"обёрнутое нарушение", fmt.Errorf("вставка: %w", &pgconn.PgError{Code: "23505"}), true},
		{"другой код SQLSTATE", &pgconn.PgError{Code: "23503"}, false},
		{"обычная ошибка", errors.New("connection refused"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation() = %v, ожидался %v", got, tt.want)
			}
		})
	}
}
