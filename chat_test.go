package geminiwebapi

import (
	"errors"
	"testing"
)

func testChatSession() *ChatSession {
	c := &GeminiClient{
		creds: NewCredentialStore(nil),
		tasks: newTaskRegistry(),
	}
	return &ChatSession{client: c, model: ModelUnspecified}
}

func TestChatSessionLineageSlots(t *testing.T) {
	cs := testChatSession()

	cs.SetCID("c_1")
	cs.SetRID("r_2")
	cs.SetRCID("rc_3")
	if cs.CID() != "c_1" || cs.RID() != "r_2" || cs.RCID() != "rc_3" {
		t.Fatalf("slots = %v", cs.Lineage())
	}

	// Single-slot setters leave the other slots alone.
	cs.SetRID("r_9")
	if cs.CID() != "c_1" || cs.RCID() != "rc_3" {
		t.Errorf("other slots changed: %v", cs.Lineage())
	}
}

func TestChatSessionSetLineage(t *testing.T) {
	t.Run("too many elements", func(t *testing.T) {
		cs := testChatSession()
		err := cs.SetLineage([]string{"a", "b", "c", "d"})
		var valErr *ValueError
		if !errors.As(err, &valErr) {
			t.Fatalf("want ValueError, got %v", err)
		}
	})

	t.Run("prefix overwrite keeps trailing slots", func(t *testing.T) {
		cs := testChatSession()
		if err := cs.SetLineage([]string{"c_1", "r_2", "rc_3"}); err != nil {
			t.Fatal(err)
		}
		if err := cs.SetLineage([]string{"c_9", "r_8"}); err != nil {
			t.Fatal(err)
		}
		got := cs.Lineage()
		if got[0] != "c_9" || got[1] != "r_8" || got[2] != "rc_3" {
			t.Errorf("lineage = %v", got)
		}
	})
}

func TestChatSessionLineageForWire(t *testing.T) {
	cases := []struct {
		name string
		set  [3]string
		want []string
	}{
		{"empty", [3]string{}, nil},
		{"full", [3]string{"c", "r", "rc"}, []string{"c", "r", "rc"}},
		{"prefix only", [3]string{"c", "r", ""}, []string{"c", "r"}},
		{"single", [3]string{"c", "", ""}, []string{"c"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cs := testChatSession()
			cs.lineage = tc.set
			got := cs.lineageForWire()
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestChatSessionApplyOutput(t *testing.T) {
	cs := testChatSession()
	out := ModelOutput{
		Lineage: []string{"c_1", "r_2"},
		Candidates: []Candidate{
			{RCID: "rc_a", Text: "first"},
			{RCID: "rc_b", Text: "second"},
		},
	}
	cs.ApplyOutput(out)
	if cs.CID() != "c_1" || cs.RID() != "r_2" {
		t.Errorf("lineage = %v", cs.Lineage())
	}
	if cs.RCID() != "rc_a" {
		t.Errorf("rcid = %q, want chosen candidate's", cs.RCID())
	}
	if cs.LastOutput() == nil || cs.LastOutput().Text() != "first" {
		t.Errorf("last output not adopted")
	}
}

func TestChatSessionChooseCandidate(t *testing.T) {
	t.Run("no previous output", func(t *testing.T) {
		cs := testChatSession()
		_, err := cs.ChooseCandidate(0)
		var valErr *ValueError
		if !errors.As(err, &valErr) {
			t.Fatalf("want ValueError, got %v", err)
		}
	})

	t.Run("index out of range", func(t *testing.T) {
		cs := testChatSession()
		cs.ApplyOutput(ModelOutput{Candidates: []Candidate{{RCID: "rc_a"}}})
		_, err := cs.ChooseCandidate(5)
		var valErr *ValueError
		if !errors.As(err, &valErr) {
			t.Fatalf("want ValueError, got %v", err)
		}
	})

	t.Run("switches rcid", func(t *testing.T) {
		cs := testChatSession()
		cs.ApplyOutput(ModelOutput{
			Lineage: []string{"c_1", "r_2"},
			Candidates: []Candidate{
				{RCID: "rc_a", Text: "first"},
				{RCID: "rc_b", Text: "second"},
			},
		})
		out, err := cs.ChooseCandidate(1)
		if err != nil {
			t.Fatal(err)
		}
		if out.Text() != "second" {
			t.Errorf("chosen text = %q", out.Text())
		}
		if cs.RCID() != "rc_b" {
			t.Errorf("rcid = %q", cs.RCID())
		}
	})
}
