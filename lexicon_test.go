package scholarindex

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestLexicon_GetID_AssignsDenseIDsInFirstOccurrenceOrder(t *testing.T) {
	lex := NewLexicon()

	id0, ok := lex.GetID("virus", true)
	if !ok || id0 != 0 {
		t.Fatalf("GetID(virus) = (%d, %v), want (0, true)", id0, ok)
	}
	id1, ok := lex.GetID("cell", true)
	if !ok || id1 != 1 {
		t.Fatalf("GetID(cell) = (%d, %v), want (1, true)", id1, ok)
	}
	// re-seeing "virus" must return its existing id, not a new one.
	id0Again, ok := lex.GetID("virus", true)
	if !ok || id0Again != 0 {
		t.Fatalf("GetID(virus) second time = (%d, %v), want (0, true)", id0Again, ok)
	}
	if lex.Len() != 2 {
		t.Errorf("Len() = %d, want 2", lex.Len())
	}
}

func TestLexicon_GetID_NoCreateMissesUnknownToken(t *testing.T) {
	lex := NewLexicon()
	if _, ok := lex.GetID("virus", false); ok {
		t.Error("GetID(virus, false) on empty lexicon should miss")
	}
	lex.GetID("virus", true)
	if _, ok := lex.GetID("cell", false); ok {
		t.Error("GetID(cell, false) should miss when cell was never created")
	}
}

func TestLexicon_Token_RoundTripsID(t *testing.T) {
	lex := NewLexicon()
	id, _ := lex.GetID("virus", true)
	tok, ok := lex.Token(id)
	if !ok || tok != "virus" {
		t.Fatalf("Token(%d) = (%q, %v), want (virus, true)", id, tok, ok)
	}
	if _, ok := lex.Token(id + 1); ok {
		t.Error("Token() on an id past vocab_size should miss")
	}
}

func TestLexicon_WriteBinary_LoadLexicon_RoundTrip(t *testing.T) {
	lex := NewLexicon()
	for _, tok := range []string{"virus", "cell", "host", "ångström"} {
		lex.GetID(tok, true)
	}

	path := filepath.Join(t.TempDir(), "lexicon.bin")
	if err := lex.WriteBinary(path); err != nil {
		t.Fatalf("WriteBinary: %v", err)
	}

	loaded, err := LoadLexicon(path)
	if err != nil {
		t.Fatalf("LoadLexicon: %v", err)
	}
	if loaded.Len() != lex.Len() {
		t.Fatalf("loaded vocab_size = %d, want %d", loaded.Len(), lex.Len())
	}
	for id := 0; id < lex.Len(); id++ {
		want, _ := lex.Token(uint32(id))
		got, ok := loaded.Token(uint32(id))
		if !ok || got != want {
			t.Errorf("loaded.Token(%d) = (%q, %v), want (%q, true)", id, got, ok, want)
		}
		gotID, ok := loaded.GetID(want, false)
		if !ok || gotID != uint32(id) {
			t.Errorf("loaded.GetID(%q) = (%d, %v), want (%d, true)", want, gotID, ok, id)
		}
	}
}

func TestLoadLexicon_MissingFileIsInputMissing(t *testing.T) {
	_, err := LoadLexicon(filepath.Join(t.TempDir(), "does-not-exist.bin"))
	if !errors.Is(err, ErrInputMissing) {
		t.Fatalf("LoadLexicon() error = %v, want wrapping ErrInputMissing", err)
	}
}
