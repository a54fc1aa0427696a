package plugin

import "testing"

func TestRegisterAndBuildRoundTrip(t *testing.T) {
	Register("registry-test-echo", func() (*Descriptor, error) {
		return NewBuilder("registry-test-echo").Build()
	})

	desc, ok, err := Build("registry-test-echo")
	if !ok {
		t.Fatal("expected registered factory to be found")
	}
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.Name != "registry-test-echo" {
		t.Fatalf("got name %q", desc.Name)
	}
}

func TestBuildUnknownNameReturnsNotOK(t *testing.T) {
	_, ok, err := Build("registry-test-does-not-exist")
	if ok {
		t.Fatal("expected unknown name to report not-ok")
	}
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegisteredListsRegisteredNames(t *testing.T) {
	Register("registry-test-listed", func() (*Descriptor, error) {
		return NewBuilder("registry-test-listed").Build()
	})

	found := false
	for _, name := range Registered() {
		if name == "registry-test-listed" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected Registered() to include registry-test-listed")
	}
}
