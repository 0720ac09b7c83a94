package geminiwebapi

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/tidwall/sjson"
)

// Attachment is an already-uploaded file: the opaque reference returned by
// the upload endpoint plus the original file name.
type Attachment struct {
	Ref  string
	Name string
}

// buildContentEnvelope serializes the prompt and its attachments:
// [prompt] bare, or [prompt, 0, null, [[[uploadRef], fileName], ...]].
func buildContentEnvelope(prompt string, attachments []Attachment) (string, error) {
	env, err := sjson.Set("[]", strconv.Itoa(idxContentPrompt), prompt)
	if err != nil {
		return "", err
	}
	if len(attachments) == 0 {
		return env, nil
	}
	if env, err = sjson.Set(env, strconv.Itoa(idxContentMode), 0); err != nil {
		return "", err
	}
	list := make([]any, 0, len(attachments))
	for _, a := range attachments {
		list = append(list, []any{[]any{a.Ref}, a.Name})
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	// Index 3 on a 2-element array: sjson pads the gap (slot 2) with null.
	return sjson.SetRaw(env, strconv.Itoa(idxContentAttachments), string(raw))
}

// buildTurnEnvelope wraps the content envelope with conversation lineage and
// an optional gem override: [content, null, lineageOrNull, ...16 nulls..., gemID].
// A session that has never completed a turn carries no lineage array at all.
func buildTurnEnvelope(contentEnvelope string, lineage []string, gemID string) (string, error) {
	env, err := sjson.SetRaw("[]", strconv.Itoa(idxTurnContent), contentEnvelope)
	if err != nil {
		return "", err
	}
	if env, err = sjson.SetRaw(env, "1", "null"); err != nil {
		return "", err
	}
	if len(lineage) == 0 {
		env, err = sjson.SetRaw(env, strconv.Itoa(idxTurnLineage), "null")
	} else {
		var raw []byte
		if raw, err = json.Marshal(lineage); err != nil {
			return "", err
		}
		env, err = sjson.SetRaw(env, strconv.Itoa(idxTurnLineage), string(raw))
	}
	if err != nil {
		return "", err
	}
	if gemID != "" {
		// sjson fills the 16 reserved slots between lineage and gem with nulls.
		env, err = sjson.Set(env, strconv.Itoa(idxTurnGem), gemID)
		if err != nil {
			return "", err
		}
	}
	return env, nil
}

// buildGenerateForm assembles the POST form for a generation call. The inner
// envelope travels as a JSON-encoded string inside [null, <inner>].
func buildGenerateForm(accessToken, prompt string, attachments []Attachment, lineage []string, gemID string) (url.Values, error) {
	content, err := buildContentEnvelope(prompt, attachments)
	if err != nil {
		return nil, err
	}
	inner, err := buildTurnEnvelope(content, lineage, gemID)
	if err != nil {
		return nil, err
	}
	outer, err := sjson.SetRaw("[]", "0", "null")
	if err != nil {
		return nil, err
	}
	if outer, err = sjson.Set(outer, "1", inner); err != nil {
		return nil, err
	}
	form := url.Values{}
	form.Set("at", accessToken)
	form.Set("f.req", outer)
	return form, nil
}

// buildGemListForm assembles the batch-RPC form listing both predefined and
// custom gems in one round trip. Each tuple is (method, args, _, tag); the
// tag comes back on the matching reply part.
func buildGemListForm(accessToken string) (url.Values, error) {
	batch := []any{
		[]any{
			[]any{rpcGemList, `[2,["en"],0]`, nil, "custom"},
			[]any{rpcGemList, `[3,["en"],0]`, nil, "system"},
		},
	}
	raw, err := json.Marshal(batch)
	if err != nil {
		return nil, err
	}
	form := url.Values{}
	form.Set("at", accessToken)
	form.Set("f.req", string(raw))
	return form, nil
}
