package geminiwebapi

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// ChatSession threads conversation identity across turns. The lineage triple
// [cid, rid, rcid] is position-significant and each slot is optional; only
// when all three are set does the server retrieve full history. Sessions hold
// a non-owning reference to the client and must not outlive it.
type ChatSession struct {
	client     *GeminiClient
	lineage    [3]string
	lastOutput *ModelOutput
	model      Model
	gem        *Gem
}

func (cs *ChatSession) String() string {
	return fmt.Sprintf("ChatSession(cid='%s', rid='%s', rcid='%s')", cs.lineage[0], cs.lineage[1], cs.lineage[2])
}

// Lineage returns a copy of the full triple; unset slots are empty strings.
func (cs *ChatSession) Lineage() []string {
	out := make([]string, 3)
	copy(out, cs.lineage[:])
	return out
}

// SetLineage overwrites the leading slots with the given values, leaving any
// trailing slots untouched. More than three elements is an error.
func (cs *ChatSession) SetLineage(values []string) error {
	if len(values) > 3 {
		return &ValueError{Msg: "lineage cannot exceed 3 elements"}
	}
	copy(cs.lineage[:], values)
	return nil
}

func (cs *ChatSession) CID() string  { return cs.lineage[0] }
func (cs *ChatSession) RID() string  { return cs.lineage[1] }
func (cs *ChatSession) RCID() string { return cs.lineage[2] }

// Each setter touches exactly one slot.
func (cs *ChatSession) SetCID(v string)  { cs.lineage[0] = v }
func (cs *ChatSession) SetRID(v string)  { cs.lineage[1] = v }
func (cs *ChatSession) SetRCID(v string) { cs.lineage[2] = v }

// LastOutput returns the output of the most recent successful turn, or nil.
func (cs *ChatSession) LastOutput() *ModelOutput { return cs.lastOutput }

// lineageForWire returns the set prefix of the triple for the request codec,
// or nil when the session has never completed a turn: the wire carries no
// lineage array at all in that case.
func (cs *ChatSession) lineageForWire() []string {
	end := 3
	for end > 0 && cs.lineage[end-1] == "" {
		end--
	}
	if end == 0 {
		return nil
	}
	out := make([]string, end)
	copy(out, cs.lineage[:end])
	return out
}

// ApplyOutput adopts a generation result into the session: it replaces the
// last output, takes cid/rid from the output's lineage snapshot, and takes
// rcid from the output's chosen candidate. SendMessage calls this on every
// successful turn; callers replaying an output obtained elsewhere may call it
// directly.
func (cs *ChatSession) ApplyOutput(output ModelOutput) {
	cs.lastOutput = &output
	_ = cs.SetLineage(output.Lineage)
	cs.SetRCID(output.RCID())
}

// SendMessage generates content with this session's lineage and persona.
// Updating the lineage from the new output is a documented side effect of a
// successful send.
func (cs *ChatSession) SendMessage(prompt string, files []string) (ModelOutput, error) {
	output, err := cs.client.GenerateContent(prompt, files, cs.model, cs.gem, cs)
	if err != nil {
		return output, err
	}
	cs.ApplyOutput(output)
	cs.persist()
	return output, nil
}

// ChooseCandidate selects a candidate from the last output to steer the
// ongoing conversation, updating rcid accordingly.
func (cs *ChatSession) ChooseCandidate(index int) (ModelOutput, error) {
	if cs.lastOutput == nil {
		return ModelOutput{}, &ValueError{Msg: "No previous output data found in this chat session."}
	}
	if index < 0 || index >= len(cs.lastOutput.Candidates) {
		return ModelOutput{}, &ValueError{Msg: fmt.Sprintf("Index %d exceeds the number of candidates in last model output.", index)}
	}
	cs.lastOutput.Chosen = index
	cs.SetRCID(cs.lastOutput.RCID())
	cs.persist()
	return *cs.lastOutput, nil
}

func (cs *ChatSession) persist() {
	store := cs.client.convStore
	if store == nil {
		return
	}
	if err := store.SaveLineage(cs.client.accountID, cs.model.Name, cs.lineageForWire()); err != nil {
		log.Warnf("failed to persist chat lineage: %v", err)
	}
}
