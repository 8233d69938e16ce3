package status

import "testing"

func TestParse_KnownLabels(t *testing.T) {
	cases := []struct {
		raw  string
		want Status
	}{
		{"success", Success},
		{"no_match", NoMatch},
		{"insufficient_stock", InsufficientStock},
		{"invalid_request", InvalidRequest},
		{"unsupported_intent", UnsupportedIntent},
		{"  SUCCESS  ", Success}, // case and whitespace tolerant
		{"No_Match", NoMatch},
	}
	for _, tc := range cases {
		got, ok := Parse(tc.raw)
		if !ok {
			t.Errorf("Parse(%q): not recognized", tc.raw)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestParse_UnknownLabel(t *testing.T) {
	for _, raw := range []string{"", "ok", "error", "succes"} {
		if st, ok := Parse(raw); ok {
			t.Errorf("Parse(%q) = %q, expected rejection", raw, st)
		}
	}
}

// TestNormalize_FallsBack verifies that any unusable label/message pair
// collapses to invalid_request with the canned apology, never an empty
// response.
func TestNormalize_FallsBack(t *testing.T) {
	cases := []struct {
		name    string
		label   string
		message string
	}{
		{"EmptyBoth", "", ""},
		{"UnknownLabel", "done", "purchase complete"},
		{"EmptyMessage", "success", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, msg, ok := Normalize(tc.label, tc.message)
			if ok {
				t.Fatalf("Normalize(%q, %q) reported ok", tc.label, tc.message)
			}
			if st != InvalidRequest {
				t.Errorf("status = %q, want %q", st, InvalidRequest)
			}
			if msg != FallbackMessage {
				t.Errorf("message = %q, want fallback", msg)
			}
		})
	}
}

func TestNormalize_PassesThrough(t *testing.T) {
	st, msg, ok := Normalize("Success", "Done! Your total is $160.00.")
	if !ok {
		t.Fatal("Normalize rejected a valid pair")
	}
	if st != Success || msg != "Done! Your total is $160.00." {
		t.Errorf("got (%q, %q)", st, msg)
	}
}

func TestValid_CoversAll(t *testing.T) {
	for _, st := range All {
		if !st.Valid() {
			t.Errorf("%q should be valid", st)
		}
	}
	if Status("refunded").Valid() {
		t.Error("unknown status reported valid")
	}
}
