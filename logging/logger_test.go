package logging

import "testing"

func TestInitLevel(t *testing.T) {
	l, err := Init("debug", "dev")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Closer()
	if !l.Debug() {
		t.Fatal("debug level expected")
	}

	l, err = Init("nonsense", "prod")
	if err != nil {
		t.Fatal(err)
	}
	if l.Debug() {
		t.Fatal("unknown level must fall back to info")
	}
}
