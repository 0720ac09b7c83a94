package geminiwebapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketLineage = "chat_lineage"
	bucketRecords = "conv_records"
	bucketIndex   = "conv_index"
)

// Sha256Hex computes the SHA256 hash of a string and returns its hex
// representation.
func Sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// StoredMessage is one persisted conversation turn.
type StoredMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationRecord is a full persisted conversation, addressable by the
// hash of its message history.
type ConversationRecord struct {
	Model     string          `json:"model"`
	ClientID  string          `json:"client_id"`
	Lineage   []string        `json:"lineage"`
	Messages  []StoredMessage `json:"messages"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// HashMessage hashes a single stored message with a stable serialization.
func HashMessage(m StoredMessage) string {
	s := fmt.Sprintf(`{"content":%q,"role":%q}`, m.Content, strings.ToLower(m.Role))
	return Sha256Hex(s)
}

// HashConversation derives the lookup key for a conversation from its owner,
// model, and message history.
func HashConversation(clientID, model string, msgs []StoredMessage) string {
	var b strings.Builder
	b.WriteString(clientID)
	b.WriteString("|")
	b.WriteString(model)
	for _, m := range msgs {
		b.WriteString("|")
		b.WriteString(HashMessage(m))
	}
	return Sha256Hex(b.String())
}

// ConvStore persists chat lineage and conversation records in a single bolt
// file. Safe for concurrent use; bolt serializes writers internally.
type ConvStore struct {
	db *bolt.DB
}

// OpenConvStore opens (creating if needed) the store at path.
func OpenConvStore(path string) (*ConvStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	return &ConvStore{db: db}, nil
}

func (s *ConvStore) Close() error {
	return s.db.Close()
}

func lineageKey(account, model string) []byte {
	return []byte(fmt.Sprintf("lineage|%s|%s", account, model))
}

// SaveLineage stores the latest lineage prefix for an account/model pair. An
// empty lineage deletes the entry.
func (s *ConvStore) SaveLineage(account, model string, lineage []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketLineage))
		if err != nil {
			return err
		}
		key := lineageKey(account, model)
		if len(lineage) == 0 {
			return b.Delete(key)
		}
		enc, err := json.Marshal(lineage)
		if err != nil {
			return err
		}
		return b.Put(key, enc)
	})
}

// LoadLineage fetches the stored lineage prefix for an account/model pair.
// The second return is false when nothing was persisted.
func (s *ConvStore) LoadLineage(account, model string) ([]string, bool, error) {
	var out []string
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLineage))
		if b == nil {
			return nil
		}
		v := b.Get(lineageKey(account, model))
		if len(v) == 0 {
			return nil
		}
		if err := json.Unmarshal(v, &out); err != nil {
			// Malformed entries read as absent rather than failing the call.
			return nil
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, found, nil
}

// SaveRecords replaces the conversation record set wholesale: the buckets are
// recreated so the store reflects the given snapshot exactly.
func (s *ConvStore) SaveRecords(records map[string]ConversationRecord, index map[string]string) error {
	if records == nil {
		records = map[string]ConversationRecord{}
	}
	if index == nil {
		index = map[string]string{}
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketRecords, bucketIndex} {
			if tx.Bucket([]byte(name)) != nil {
				if err := tx.DeleteBucket([]byte(name)); err != nil {
					return err
				}
			}
		}
		br, err := tx.CreateBucket([]byte(bucketRecords))
		if err != nil {
			return err
		}
		for k, rec := range records {
			enc, e := json.Marshal(rec)
			if e != nil {
				return e
			}
			if e = br.Put([]byte(k), enc); e != nil {
				return e
			}
		}
		bx, err := tx.CreateBucket([]byte(bucketIndex))
		if err != nil {
			return err
		}
		for k, v := range index {
			if e := bx.Put([]byte(k), []byte(v)); e != nil {
				return e
			}
		}
		return nil
	})
}

// LoadRecords reads all conversation records and the hash index.
func (s *ConvStore) LoadRecords() (map[string]ConversationRecord, map[string]string, error) {
	records := map[string]ConversationRecord{}
	index := map[string]string{}
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(bucketRecords)); b != nil {
			if e := b.ForEach(func(k, v []byte) error {
				var rec ConversationRecord
				if len(v) > 0 {
					if e2 := json.Unmarshal(v, &rec); e2 != nil {
						return nil
					}
					records[string(k)] = rec
				}
				return nil
			}); e != nil {
				return e
			}
		}
		if b := tx.Bucket([]byte(bucketIndex)); b != nil {
			if e := b.ForEach(func(k, v []byte) error {
				index[string(k)] = string(v)
				return nil
			}); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return records, index, nil
}

// BuildConversationRecord constructs a record from history plus the latest
// output. Returns false when the output carries no candidates.
func BuildConversationRecord(model, clientID string, history []RoleText, output *ModelOutput, lineage []string) (ConversationRecord, bool) {
	if output == nil || len(output.Candidates) == 0 {
		return ConversationRecord{}, false
	}
	text := RemoveThinkTags(output.Candidates[output.Chosen].Text)
	final := append([]RoleText{}, history...)
	final = append(final, RoleText{Role: "assistant", Text: text})
	now := time.Now()
	return ConversationRecord{
		Model:     model,
		ClientID:  clientID,
		Lineage:   lineage,
		Messages:  ToStoredMessages(final),
		CreatedAt: now,
		UpdatedAt: now,
	}, true
}

// ToStoredMessages converts role/text pairs to their persisted form.
func ToStoredMessages(msgs []RoleText) []StoredMessage {
	out := make([]StoredMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, StoredMessage{Role: m.Role, Content: m.Text})
	}
	return out
}

// FindConversation looks up a record by hashed message history, trying the
// exact history first and then the sanitized form.
func FindConversation(records map[string]ConversationRecord, index map[string]string, clientID, model string, msgs []RoleText) (ConversationRecord, bool) {
	if len(msgs) == 0 {
		return ConversationRecord{}, false
	}
	for _, candidate := range [][]RoleText{msgs, SanitizeAssistantMessages(msgs)} {
		hash := HashConversation(clientID, model, ToStoredMessages(candidate))
		if key, ok := index["hash:"+hash]; ok {
			if rec, ok2 := records[key]; ok2 {
				return rec, true
			}
		}
		if rec, ok := records[hash]; ok {
			return rec, true
		}
	}
	return ConversationRecord{}, false
}

// FindReusableSession walks the history back-to-front looking for the longest
// stored prefix ending on an assistant or system turn, returning that
// record's lineage and the message suffix still to send.
func FindReusableSession(records map[string]ConversationRecord, index map[string]string, clientID, model string, msgs []RoleText) ([]string, []RoleText) {
	if len(msgs) < 2 {
		return nil, nil
	}
	for end := len(msgs); end >= 2; end-- {
		sub := msgs[:end]
		tail := sub[len(sub)-1]
		if !strings.EqualFold(tail.Role, "assistant") && !strings.EqualFold(tail.Role, "system") {
			continue
		}
		if rec, ok := FindConversation(records, index, clientID, model, sub); ok {
			return rec.Lineage, msgs[end:]
		}
	}
	return nil, nil
}
