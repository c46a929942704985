package textnorm

import "testing"

func TestSimilarityIdentity(t *testing.T) {
	t.Parallel()

	if got := Similarity("cualquier texto no vacío", "cualquier texto no vacío"); got != 100 {
		t.Fatalf("identical texts scored %d, want 100", got)
	}
}

func TestSimilarityNormalizedEquality(t *testing.T) {
	t.Parallel()

	// Accents and punctuation disappear during normalization.
	got := Similarity("Artículo 5. Del derecho...", "articulo 5 del derecho")
	if got != 100 {
		t.Fatalf("normalized-equal texts scored %d, want 100", got)
	}
}

func TestSimilarityEmpty(t *testing.T) {
	t.Parallel()

	cases := [][2]string{
		{"", ""},
		{"", "algo"},
		{"algo", ""},
	}
	for _, c := range cases {
		if got := Similarity(c[0], c[1]); got != 0 {
			t.Fatalf("Similarity(%q, %q) = %d, want 0", c[0], c[1], got)
		}
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	t.Parallel()

	a := "del derecho de reunión pacífica y sin armas"
	b := "derecho fundamental de manifestación pacífica"

	ab := Similarity(a, b)
	ba := Similarity(b, a)
	if ab != ba {
		t.Fatalf("asymmetric: %d != %d", ab, ba)
	}
	if ab < 0 || ab > 100 {
		t.Fatalf("score %d outside [0,100]", ab)
	}
}

func TestSimilarityTokenOverlap(t *testing.T) {
	t.Parallel()

	// Tokens of length <= 2 are dropped; sets become {uno,dos,tres} and
	// {uno,dos,cuatro}: 2 common over max size 3.
	got := Similarity("uno dos tres", "uno dos cuatro")
	if got != 67 {
		t.Fatalf("overlap scored %d, want 67", got)
	}
}

func TestSimilarityShortTokenRunes(t *testing.T) {
	t.Parallel()

	// "5º" is two runes (three bytes); the cutoff counts runes, so it is
	// dropped like any other two-character token and both sides reduce to
	// {derecho, reunion}.
	got := Similarity("derecho reunión 5º", "derecho reunion")
	if got != 100 {
		t.Fatalf("scored %d, want 100 with the ordinal token dropped", got)
	}
}

func TestSimilarityShortTokensOnly(t *testing.T) {
	t.Parallel()

	// Different texts whose tokens are all droppable score 0, not a panic.
	if got := Similarity("ab cd", "ab ef"); got != 0 {
		t.Fatalf("short-token texts scored %d, want 0", got)
	}
}
