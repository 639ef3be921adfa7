package idgen

import (
	"regexp"
	"testing"
)

func TestMintFormat(t *testing.T) {
	m := MemoryMinter()
	re := regexp.MustCompile(`^mem_[0-9A-Za-z]{12}$`)
	for i := 0; i < 100; i++ {
		id, err := m.Mint()
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		if !re.MatchString(id) {
			t.Fatalf("id %q does not match expected format", id)
		}
	}
}

func TestMintUniqueness(t *testing.T) {
	m := ChunkMinter()
	seen := make(map[string]bool, 10000)
	for i := 0; i < 10000; i++ {
		id, err := m.Mint()
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id minted: %s", id)
		}
		seen[id] = true
	}
}

func TestChunkPrefix(t *testing.T) {
	id := ChunkMinter().MustMint()
	if id[:3] != "ch_" {
		t.Fatalf("expected ch_ prefix, got %s", id)
	}
}
