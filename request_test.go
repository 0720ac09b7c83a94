package geminiwebapi

import (
	"encoding/json"
	"testing"

	"github.com/tidwall/gjson"
)

func TestBuildContentEnvelope(t *testing.T) {
	t.Run("prompt only", func(t *testing.T) {
		env, err := buildContentEnvelope("hello", nil)
		if err != nil {
			t.Fatal(err)
		}
		if env != `["hello"]` {
			t.Fatalf("unexpected envelope: %s", env)
		}
	})

	t.Run("with attachments", func(t *testing.T) {
		env, err := buildContentEnvelope("describe", []Attachment{
			{Ref: "ref-1", Name: "a.png"},
			{Ref: "ref-2", Name: "b.txt"},
		})
		if err != nil {
			t.Fatal(err)
		}
		parsed := gjson.Parse(env)
		if got := parsed.Get("0").String(); got != "describe" {
			t.Errorf("prompt slot = %q", got)
		}
		if got := parsed.Get("1").Int(); got != 0 {
			t.Errorf("mode slot = %d", got)
		}
		if parsed.Get("2").Type != gjson.Null {
			t.Errorf("slot 2 should be null, got %s", parsed.Get("2").Raw)
		}
		uploads := parsed.Get("3")
		if n := len(uploads.Array()); n != 2 {
			t.Fatalf("uploads len = %d", n)
		}
		if got := uploads.Get("0.0.0").String(); got != "ref-1" {
			t.Errorf("first upload ref = %q", got)
		}
		if got := uploads.Get("1.1").String(); got != "b.txt" {
			t.Errorf("second upload name = %q", got)
		}
	})
}

func TestBuildTurnEnvelope(t *testing.T) {
	content := `["hi"]`

	t.Run("no lineage no gem", func(t *testing.T) {
		env, err := buildTurnEnvelope(content, nil, "")
		if err != nil {
			t.Fatal(err)
		}
		parsed := gjson.Parse(env)
		if n := len(parsed.Array()); n != 3 {
			t.Fatalf("envelope len = %d, want 3", n)
		}
		if parsed.Get("2").Type != gjson.Null {
			t.Errorf("lineage slot should be null, got %s", parsed.Get("2").Raw)
		}
	})

	t.Run("lineage carried verbatim", func(t *testing.T) {
		env, err := buildTurnEnvelope(content, []string{"c_1", "r_2", "rc_3"}, "")
		if err != nil {
			t.Fatal(err)
		}
		lin := gjson.Parse(env).Get("2")
		if lin.Raw != `["c_1","r_2","rc_3"]` {
			t.Errorf("lineage slot = %s", lin.Raw)
		}
	})

	t.Run("partial lineage keeps prefix only", func(t *testing.T) {
		env, err := buildTurnEnvelope(content, []string{"c_1"}, "")
		if err != nil {
			t.Fatal(err)
		}
		lin := gjson.Parse(env).Get("2")
		if lin.Raw != `["c_1"]` {
			t.Errorf("lineage slot = %s", lin.Raw)
		}
	})

	t.Run("gem id padded to its slot", func(t *testing.T) {
		env, err := buildTurnEnvelope(content, nil, "coding-partner")
		if err != nil {
			t.Fatal(err)
		}
		parsed := gjson.Parse(env)
		arr := parsed.Array()
		if len(arr) != idxTurnGem+1 {
			t.Fatalf("envelope len = %d, want %d", len(arr), idxTurnGem+1)
		}
		for i := 3; i < idxTurnGem; i++ {
			if arr[i].Type != gjson.Null {
				t.Errorf("slot %d should be null, got %s", i, arr[i].Raw)
			}
		}
		if got := arr[idxTurnGem].String(); got != "coding-partner" {
			t.Errorf("gem slot = %q", got)
		}
	})
}

func TestBuildGenerateForm(t *testing.T) {
	form, err := buildGenerateForm("tok", "hello", nil, []string{"c_1", "r_2"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if got := form.Get("at"); got != "tok" {
		t.Errorf("at = %q", got)
	}
	outer := gjson.Parse(form.Get("f.req"))
	if outer.Get("0").Type != gjson.Null {
		t.Errorf("outer slot 0 should be null")
	}
	innerStr := outer.Get("1")
	if innerStr.Type != gjson.String {
		t.Fatalf("inner envelope must travel as a JSON string, got %s", innerStr.Type)
	}
	inner := gjson.Parse(innerStr.String())
	if got := inner.Get("0.0").String(); got != "hello" {
		t.Errorf("prompt = %q", got)
	}
	if got := inner.Get("2").Raw; got != `["c_1","r_2"]` {
		t.Errorf("lineage = %s", got)
	}
}

func TestBuildGemListForm(t *testing.T) {
	form, err := buildGemListForm("tok")
	if err != nil {
		t.Fatal(err)
	}
	var batch []any
	if err = json.Unmarshal([]byte(form.Get("f.req")), &batch); err != nil {
		t.Fatal(err)
	}
	parsed := gjson.Parse(form.Get("f.req"))
	if got := parsed.Get("0.0.0").String(); got != rpcGemList {
		t.Errorf("first method = %q", got)
	}
	if got := parsed.Get("0.0.3").String(); got != "custom" {
		t.Errorf("first tag = %q", got)
	}
	if got := parsed.Get("0.1.3").String(); got != "system" {
		t.Errorf("second tag = %q", got)
	}
}
