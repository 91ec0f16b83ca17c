package reqid

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	got, ok := FromContext(ctx)
	if !ok || got != id {
		t.Fatalf("expected %s from context, got %s ok=%v", id, got, ok)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("generated id is not a uuid: %v", err)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("unexpected id in empty context")
	}
}

func TestWithID(t *testing.T) {
	incoming := uuid.NewString()
	ctx, id := WithID(context.Background(), incoming)
	if got, _ := FromContext(ctx); got != incoming || id != incoming {
		t.Fatalf("expected incoming id %s, got %s", incoming, got)
	}

	_, id = WithID(context.Background(), "not-a-uuid")
	if id == "not-a-uuid" {
		t.Fatalf("malformed id should be replaced")
	}
}
