package mcpserver

import "testing"

func TestAgentFromSessionID_ExtractsAgentPrefix(t *testing.T) {
	agent, ok := AgentFromSessionID("alice-1a2b3c4d")
	if !ok || agent != "alice" {
		t.Fatalf("agent=%q ok=%v", agent, ok)
	}
}

func TestAgentFromSessionID_RejectsMalformedID(t *testing.T) {
	if _, ok := AgentFromSessionID("not-a-session-id"); ok {
		t.Fatal("expected malformed session id to be rejected")
	}
	if _, ok := AgentFromSessionID("bob-zzzzzzzz"); ok {
		t.Fatal("expected non-hex suffix to be rejected")
	}
}

func TestAgentFromSessionID_HandlesHyphenatedAgentNames(t *testing.T) {
	agent, ok := AgentFromSessionID("research-lead-deadbeef")
	if !ok || agent != "research-lead" {
		t.Fatalf("agent=%q ok=%v", agent, ok)
	}
}

func TestUnionAgents_DeduplicatesPreservingOrder(t *testing.T) {
	got := unionAgents([]string{"alice", "bob"}, "bob", "user")
	want := []string{"alice", "bob", "user"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestRandomHex8_ProducesEightLowercaseHexChars(t *testing.T) {
	id := randomHex8()
	if len(id) != 8 {
		t.Fatalf("expected 8 chars, got %q", id)
	}
	if !sessionIDPattern.MatchString("x-" + id) {
		t.Fatalf("generated suffix does not match session id pattern: %q", id)
	}
}
