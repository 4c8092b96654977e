package scholarindex

import (
	"fmt"
	"io"
	"os"
)

// ═══════════════════════════════════════════════════════════════════════════════
// LEXICON: token ↔ token_id
// ═══════════════════════════════════════════════════════════════════════════════
// Ids are dense, contiguous, and assigned in first-occurrence order. The
// word2id map is authoritative and append-only for the duration of a single
// build; id2word is the lexicon vector persisted to lexicon.bin.
// ═══════════════════════════════════════════════════════════════════════════════

// Lexicon maps tokens to dense 32-bit ids and back.
type Lexicon struct {
	word2id map[string]uint32
	id2word []string
}

// NewLexicon returns an empty lexicon.
func NewLexicon() *Lexicon {
	return &Lexicon{word2id: make(map[string]uint32)}
}

// GetID returns the id for token. When create is true and the token hasn't
// been seen, it is appended at id len(id2word) and that id is returned. When
// create is false and the token is unknown, ok is false.
func (l *Lexicon) GetID(token string, create bool) (id uint32, ok bool) {
	if id, exists := l.word2id[token]; exists {
		return id, true
	}
	if !create {
		return 0, false
	}
	id = uint32(len(l.id2word))
	l.word2id[token] = id
	l.id2word = append(l.id2word, token)
	return id, true
}

// Token returns the token for id, or "" and false if id is out of range.
func (l *Lexicon) Token(id uint32) (string, bool) {
	if int(id) >= len(l.id2word) {
		return "", false
	}
	return l.id2word[id], true
}

// Len returns the vocabulary size.
func (l *Lexicon) Len() int {
	return len(l.id2word)
}

// WriteBinary serializes the lexicon to path in this format:
//
//	u32 vocab_size
//	repeated vocab_size times:
//	  u32 token_len
//	  bytes[token_len] utf8_token
//	  u32 token_id         -- equals the record index
//
// The trailing token_id is redundant given record ordering but is written
// for compatibility with readers that verify it.
func (l *Lexicon) WriteBinary(path string) error {
	w, err := newAtomicWriter(path)
	if err != nil {
		return err
	}
	if err := w.writeUint32(uint32(len(l.id2word))); err != nil {
		w.Abort()
		return fmt.Errorf("writing vocab_size: %w", err)
	}
	for id, token := range l.id2word {
		encoded := []byte(token)
		if err := w.writeUint32(uint32(len(encoded))); err != nil {
			w.Abort()
			return fmt.Errorf("writing token_len for %q: %w", token, err)
		}
		if _, err := w.Write(encoded); err != nil {
			w.Abort()
			return fmt.Errorf("writing token bytes for %q: %w", token, err)
		}
		if err := w.writeUint32(uint32(id)); err != nil {
			w.Abort()
			return fmt.Errorf("writing token_id for %q: %w", token, err)
		}
	}
	return w.Close()
}

// LoadLexicon reads lexicon.bin back into a Lexicon. It verifies the
// trailing token_id of each record against the record's own index and
// treats a mismatch as a format violation.
func LoadLexicon(path string) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputMissing, err)
	}
	defer f.Close()

	vocabSize, err := readUint32(f)
	if err != nil {
		return nil, fmt.Errorf("reading vocab_size: %w", err)
	}

	lex := &Lexicon{
		word2id: make(map[string]uint32, vocabSize),
		id2word: make([]string, 0, vocabSize),
	}

	for i := uint32(0); i < vocabSize; i++ {
		tokenLen, err := readUint32(f)
		if err != nil {
			return nil, fmt.Errorf("reading token_len at record %d: %w", i, err)
		}
		raw := make([]byte, tokenLen)
		if _, err := io.ReadFull(f, raw); err != nil {
			return nil, fmt.Errorf("reading token bytes at record %d: %w", i, err)
		}
		storedID, err := readUint32(f)
		if err != nil {
			return nil, fmt.Errorf("reading token_id at record %d: %w", i, err)
		}
		if storedID != i {
			return nil, fmt.Errorf("%w: lexicon record %d declares token_id %d", ErrFormatViolation, i, storedID)
		}
		token := string(raw)
		lex.word2id[token] = i
		lex.id2word = append(lex.id2word, token)
	}

	return lex, nil
}
