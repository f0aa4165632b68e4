package tokenutil

import (
	"strings"
	"testing"
)

func TestCountTokens_Empty(t *testing.T) {
	if got := CountTokens("   "); got != 0 {
		t.Errorf("CountTokens(blank) = %d, want 0", got)
	}
}

func TestEstimateFast_Empty(t *testing.T) {
	if got := EstimateFast(""); got != 0 {
		t.Errorf("EstimateFast(\"\") = %d, want 0", got)
	}
}

func TestEstimateFast_MinWordCount(t *testing.T) {
	// 4 words, 7 runes: runes/4 = 1, so the word count wins.
	if got := EstimateFast("a b c d"); got != 4 {
		t.Errorf("EstimateFast(\"a b c d\") = %d, want 4", got)
	}
}

func TestEstimateFast_RuneBased(t *testing.T) {
	text := strings.Repeat("x", 400)
	if got := EstimateFast(text); got != 100 {
		t.Errorf("EstimateFast(400 runes) = %d, want 100", got)
	}
}

func TestEstimateFast_CountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("ж", 40)
	if got := EstimateFast(text); got != 10 {
		t.Errorf("EstimateFast(40 cyrillic runes) = %d, want 10", got)
	}
}
