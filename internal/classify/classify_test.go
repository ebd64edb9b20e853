package classify

import "testing"

func TestClassify_StatusCodes(t *testing.T) {
	cases := []struct {
		status    int
		wantClass Class
		retryable bool
	}{
		{401, ClassAuth, false},
		{403, ClassAuth, false},
		{429, ClassTransient, true},
		{500, ClassTransient, true},
		{599, ClassTransient, true},
	}
	for _, c := range cases {
		got := Classify(Fault{Status: c.status, Message: "boom"})
		if got.Class != c.wantClass || got.Retryable != c.retryable {
			t.Errorf("status %d: got class=%s retryable=%v, want class=%s retryable=%v",
				c.status, got.Class, got.Retryable, c.wantClass, c.retryable)
		}
	}
}

func TestClassify_NetworkCodes(t *testing.T) {
	got := Classify(Fault{Code: "ECONNRESET", Message: "reset"})
	if got.Class != ClassTransient || !got.Retryable {
		t.Fatalf("got %+v", got)
	}
}

func TestClassify_Timeout(t *testing.T) {
	got := Classify(Fault{Timeout: true, Message: "slow"})
	if got.Class != ClassTransient || !got.Retryable {
		t.Fatalf("got %+v", got)
	}
}

func TestClassify_RateLimitBeforeResource(t *testing.T) {
	// "Rate limit exceeded" contains no resource pattern, but verifies
	// ordering holds even for messages that could plausibly match both.
	got := Classify(Fault{Message: "Rate limit exceeded, please retry"})
	if got.Class != ClassTransient || !got.Retryable {
		t.Fatalf("got %+v", got)
	}
}

func TestClassify_ResourcePatterns(t *testing.T) {
	got := Classify(Fault{Message: "Quota exceeded"})
	if got.Class != ClassResource || got.Retryable {
		t.Fatalf("got %+v", got)
	}
}

func TestClassify_AuthPatterns(t *testing.T) {
	got := Classify(Fault{Message: "Invalid API key supplied"})
	if got.Class != ClassAuth || got.Retryable {
		t.Fatalf("got %+v", got)
	}
}

func TestClassify_TransientPatterns(t *testing.T) {
	got := Classify(Fault{Message: "upstream server error, bad gateway"})
	if got.Class != ClassTransient || !got.Retryable {
		t.Fatalf("got %+v", got)
	}
}

func TestClassify_Unknown(t *testing.T) {
	got := Classify(Fault{Message: "something strange happened"})
	if got.Class != ClassUnknown || got.Retryable {
		t.Fatalf("got %+v", got)
	}
}

func TestClassify_Invariants(t *testing.T) {
	transientMsgs := []string{"Rate limit exceeded, please retry", "timeout", "bad gateway"}
	for _, m := range transientMsgs {
		if c := Classify(Fault{Message: m}); !c.Retryable {
			t.Errorf("expected retryable for %q, got %+v", m, c)
		}
	}
	fixedMsgs := []string{"Quota exceeded", "forbidden", "unauthorized"}
	for _, m := range fixedMsgs {
		if c := Classify(Fault{Message: m}); c.Retryable {
			t.Errorf("expected non-retryable for %q, got %+v", m, c)
		}
	}
}
