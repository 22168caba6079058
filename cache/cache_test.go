package cache

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"
)

func TestKeyIsOrderIndependent(t *testing.T) {
	a := Key("api:schueler", url.Values{"q": {" Max "}, "class_id": {"3"}})
	b := Key("api:schueler", url.Values{"class_id": {"3"}, "q": {"max"}})
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}
	if a != "api:schueler:class_id=3:q=max" {
		t.Fatalf("unexpected key %q", a)
	}
}

func TestNopAlwaysMisses(t *testing.T) {
	var c Cache = Nop{}
	ctx := context.Background()
	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}
