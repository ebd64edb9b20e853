package sharedcontext

import "testing"

func TestAppendChannel_IDsMonotonicallyIncrease(t *testing.T) {
	p, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	e1, _ := p.AppendChannel("alice", "hello", AppendOptions{})
	e2, _ := p.AppendChannel("bob", "hi", AppendOptions{})
	if e2.ID <= e1.ID {
		t.Fatalf("expected increasing ids, got %d then %d", e1.ID, e2.ID)
	}
}

func TestReadChannel_FiltersPrivateDMs(t *testing.T) {
	p, _ := Open(t.TempDir())
	p.AppendChannel("alice", "public", AppendOptions{})
	p.AppendChannel("alice", "private to bob", AppendOptions{To: "bob"})

	forCarol, _ := p.ReadChannel(ReadOptions{Agent: "carol"})
	if len(forCarol) != 1 {
		t.Fatalf("expected carol to see only the public entry, got %d", len(forCarol))
	}

	forBob, _ := p.ReadChannel(ReadOptions{Agent: "bob"})
	if len(forBob) != 2 {
		t.Fatalf("expected bob to see both entries, got %d", len(forBob))
	}
}

func TestReadChannel_FiltersLogEntriesForNonAdmin(t *testing.T) {
	p, _ := Open(t.TempDir())
	p.AppendChannel("system", "read 1 message", AppendOptions{Kind: KindLog})
	p.AppendChannel("alice", "hi", AppendOptions{})

	nonAdmin, _ := p.ReadChannel(ReadOptions{})
	if len(nonAdmin) != 1 {
		t.Fatalf("expected 1 non-log entry, got %d", len(nonAdmin))
	}

	admin, _ := p.ReadChannel(ReadOptions{Admin: true})
	if len(admin) != 2 {
		t.Fatalf("expected 2 entries for admin, got %d", len(admin))
	}
}

// Scenario 6 from the spec's literal end-to-end scenarios: bob receives
// entries with to="bob" at ids 5, 7, 9, interleaved with filler entries
// addressed to no one in particular.
func TestInboxOrdering_MatchesSpecScenario(t *testing.T) {
	p2, _ := Open(t.TempDir())
	for i := 0; i < 4; i++ {
		p2.AppendChannel("alice", "filler", AppendOptions{})
	}
	five, _ := p2.AppendChannel("alice", "msg5", AppendOptions{To: "bob"})
	p2.AppendChannel("alice", "filler", AppendOptions{})
	seven, _ := p2.AppendChannel("alice", "msg7", AppendOptions{To: "bob"})
	p2.AppendChannel("alice", "filler", AppendOptions{})
	nine, _ := p2.AppendChannel("alice", "msg9", AppendOptions{To: "bob"})

	if five.ID != 5 || seven.ID != 7 || nine.ID != 9 {
		t.Fatalf("expected ids 5,7,9 got %d,%d,%d", five.ID, seven.ID, nine.ID)
	}

	inbox, err := p2.GetInbox("bob")
	if err != nil || len(inbox) != 3 {
		t.Fatalf("inbox=%v err=%v", inbox, err)
	}

	if err := p2.AckInbox("bob", 7); err != nil {
		t.Fatalf("AckInbox: %v", err)
	}
	after, _ := p2.GetInbox("bob")
	if len(after) != 1 || after[0].ID != 9 {
		t.Fatalf("expected only id 9 after ack, got %+v", after)
	}
}

func TestResource_CreateThenReadRoundTrips(t *testing.T) {
	p, _ := Open(t.TempDir())
	res, err := p.CreateResource("hello world", "alice", ResourceText)
	if err != nil {
		t.Fatalf("CreateResource: %v", err)
	}
	got, err := p.ReadResource(res.ID)
	if err != nil || got.Content != "hello world" {
		t.Fatalf("got=%+v err=%v", got, err)
	}
}

func TestDocuments_WriteAppendRead(t *testing.T) {
	p, _ := Open(t.TempDir())
	if err := p.WriteDocument("hello", "notes.md"); err != nil {
		t.Fatalf("WriteDocument: %v", err)
	}
	if err := p.AppendDocument(" world", "notes.md"); err != nil {
		t.Fatalf("AppendDocument: %v", err)
	}
	got, err := p.ReadDocument("notes.md")
	if err != nil || got != "hello world" {
		t.Fatalf("got=%q err=%v", got, err)
	}

	names, err := p.ListDocuments()
	if err != nil || len(names) != 1 || names[0] != "notes.md" {
		t.Fatalf("names=%v err=%v", names, err)
	}
}

func TestMentionCallback_FiresForMentionsAndTo(t *testing.T) {
	p, _ := Open(t.TempDir())
	var notified []string
	p.SetMentionCallback(func(agent string, _ ChannelEntry) {
		notified = append(notified, agent)
	})
	p.AppendChannel("alice", "hey @bob and @carol", AppendOptions{To: "dave"})

	want := map[string]bool{"bob": true, "carol": true, "dave": true}
	if len(notified) != 3 {
		t.Fatalf("got %v", notified)
	}
	for _, n := range notified {
		if !want[n] {
			t.Errorf("unexpected notification for %q", n)
		}
	}
}

func TestOpen_RecoversLastIDAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	p1, _ := Open(dir)
	p1.AppendChannel("alice", "one", AppendOptions{})
	p1.AppendChannel("alice", "two", AppendOptions{})

	p2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	e3, _ := p2.AppendChannel("alice", "three", AppendOptions{})
	if e3.ID != 3 {
		t.Fatalf("expected id 3 after reopen, got %d", e3.ID)
	}
}
