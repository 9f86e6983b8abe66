package stream

import (
	"strings"
	"testing"
)

func newTestRegistry() (*Registry, *fakeTransport) {
	tr := &fakeTransport{}
	return NewRegistry("https://backend.example.com/api", tr, testOptions()), tr
}

func TestGetOrCreateReturnsSameInstance(t *testing.T) {
	r, _ := newTestRegistry()

	c1 := r.GetOrCreate(TopicTrades, "MintA")
	c2 := r.GetOrCreate(TopicTrades, "MintA")
	if c1 != c2 {
		t.Fatal("identical keys must return the same connection instance")
	}
	if r.Len() != 1 {
		t.Errorf("registry has %d entries, want 1", r.Len())
	}
}

func TestGetOrCreateSeparatesKeys(t *testing.T) {
	r, _ := newTestRegistry()

	a := r.GetOrCreate(TopicTrades, "MintA")
	b := r.GetOrCreate(TopicTrades, "MintB")
	c := r.GetOrCreate(TopicChat, "MintA")
	if a == b || a == c || b == c {
		t.Fatal("distinct keys must own distinct connections")
	}
	if r.Len() != 3 {
		t.Errorf("registry has %d entries, want 3", r.Len())
	}
}

func TestConnectionURLDerivation(t *testing.T) {
	r, _ := newTestRegistry()

	c := r.GetOrCreate(TopicToken, "So11111111111111111111111111111111111111112")
	want := "https://backend.example.com/api/stream/token?mint=So11111111111111111111111111111111111111112"
	if c.URL() != want {
		t.Errorf("url = %s, want %s", c.URL(), want)
	}

	// resource ids are query-escaped
	c2 := r.GetOrCreate(TopicChat, "a b&c")
	if !strings.Contains(c2.URL(), "mint=a+b%26c") {
		t.Errorf("mint not escaped in %s", c2.URL())
	}
}

func TestRegistryDisconnectRemovesEntry(t *testing.T) {
	r, _ := newTestRegistry()

	c1 := r.GetOrCreate(TopicTrades, "MintA")
	r.Disconnect(TopicTrades, "MintA")
	if r.Len() != 0 {
		t.Errorf("registry has %d entries after disconnect, want 0", r.Len())
	}
	if c1.State() != StateClosed {
		t.Errorf("removed connection state = %s, want closed", c1.State())
	}

	// a fresh request builds a new connection
	c2 := r.GetOrCreate(TopicTrades, "MintA")
	if c1 == c2 {
		t.Error("disconnected entry was not replaced")
	}
}

func TestRegistryDisconnectAbsentIsNoop(t *testing.T) {
	r, _ := newTestRegistry()
	r.Disconnect(TopicTrades, "NoSuchMint")
	if r.Len() != 0 {
		t.Errorf("registry has %d entries, want 0", r.Len())
	}
}

func TestDisconnectAll(t *testing.T) {
	r, _ := newTestRegistry()

	conns := []*Connection{
		r.GetOrCreate(TopicTrades, "MintA"),
		r.GetOrCreate(TopicToken, "MintA"),
		r.GetOrCreate(TopicChat, "MintB"),
	}
	r.DisconnectAll()

	if r.Len() != 0 {
		t.Errorf("registry has %d entries after DisconnectAll, want 0", r.Len())
	}
	for i, c := range conns {
		if c.State() != StateClosed {
			t.Errorf("connection %d state = %s, want closed", i, c.State())
		}
	}
}

func TestTopicValidation(t *testing.T) {
	for _, topic := range []Topic{TopicTrades, TopicToken, TopicChat} {
		if !topic.Valid() {
			t.Errorf("%s should be valid", topic)
		}
	}
	if Topic("orders").Valid() {
		t.Error("unknown topic should be invalid")
	}
}
