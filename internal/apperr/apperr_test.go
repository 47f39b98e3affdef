package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := New(CodeDuplicateVote, "user 3 already voted for option 7")
	if !errors.Is(err, ErrDuplicateVote) {
		t.Error("expected errors.Is to match by code")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("different codes should not match")
	}
}

func TestIsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("cast vote: %w", ErrDuplicateVote)
	if !errors.Is(err, ErrDuplicateVote) {
		t.Error("expected wrapped error to match")
	}
	if got := CodeOf(err); got != CodeDuplicateVote {
		t.Errorf("CodeOf = %q, want %q", got, CodeDuplicateVote)
	}
}

func TestWrapUnwrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeNotFound, "event missing", cause)
	if !errors.Is(err, cause) {
		t.Error("expected cause in chain")
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != "" {
		t.Errorf("CodeOf = %q, want empty", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusUnprocessableEntity},
		{CodeUnauthorized, http.StatusForbidden},
		{CodeNotInvited, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeDuplicateVote, http.StatusConflict},
		{CodeAlreadyInvited, http.StatusConflict},
		{Code("OTHER"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestValidationFields(t *testing.T) {
	err := Validation(map[string]string{"title": "title is required"})
	if !errors.Is(err, ErrValidation) {
		t.Error("expected validation code")
	}
	if err.Fields["title"] != "title is required" {
		t.Errorf("fields = %v", err.Fields)
	}
}
