package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIs_MatchesKind(t *testing.T) {
	err := fmt.Errorf("chat: post: %w", Forbidden("not a participant"))

	if !errors.Is(err, ErrForbidden) {
		t.Error("expected wrapped forbidden to match ErrForbidden")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("forbidden should not match ErrNotFound")
	}
	if KindOf(err) != KindForbidden {
		t.Errorf("KindOf = %v, want forbidden", KindOf(err))
	}
}

func TestError_Message(t *testing.T) {
	if got := NotFound("room 4").Error(); got != "not found: room 4" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&Error{Kind: KindValidation}).Error(); got != "validation" {
		t.Errorf("Error() = %q", got)
	}
}

func TestField(t *testing.T) {
	err := Field("attachment_ids", "attachment 9 does not belong to this room")

	e, ok := As(err)
	if !ok {
		t.Fatal("As returned false")
	}
	if e.Kind != KindValidation {
		t.Errorf("Kind = %v, want validation", e.Kind)
	}
	if e.Fields["attachment_ids"] == "" {
		t.Errorf("Fields = %v, want attachment_ids entry", e.Fields)
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != 0 {
		t.Error("plain error should have no kind")
	}
}
