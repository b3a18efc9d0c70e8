package token

import "testing"

func TestScanEmpty(t *testing.T) {
	toks := Scan("")
	if len(toks) != 0 {
		t.Fatalf("expected empty stream, got %d tokens", len(toks))
	}
}

func TestScanNestedParensWithComments(t *testing.T) {
	src := "(begin ; a comment\n  (+ 1 2))"
	toks := Scan(src)
	var texts []string
	for _, tok := range toks {
		texts = append(texts, tok.Text)
	}
	want := []string{"(", "begin", "(", "+", "1", "2", ")", ")"}
	if len(texts) != len(want) {
		t.Fatalf("got %v, want %v", texts, want)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Fatalf("token %d: got %q want %q", i, texts[i], want[i])
		}
	}
}

func TestTokensAbutParensWithoutWhitespace(t *testing.T) {
	toks := Scan("(a(b)c)")
	var texts []string
	for _, tok := range toks {
		texts = append(texts, tok.Text)
	}
	want := []string{"(", "a", "(", "b", ")", "c", ")"}
	if len(texts) != len(want) {
		t.Fatalf("got %v", texts)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Fatalf("token %d: got %q want %q", i, texts[i], want[i])
		}
	}
}

func TestCommentRunsToEOF(t *testing.T) {
	toks := Scan("(a) ; trailing comment with no newline")
	if len(toks) != 3 {
		t.Fatalf("expected 3 tokens, got %d: %v", len(toks), toks)
	}
}

func TestCRLFNewline(t *testing.T) {
	src := "(a)\r\n(b)"
	toks := Scan(src)
	if len(toks) != 6 {
		t.Fatalf("expected 6 tokens, got %d: %v", len(toks), toks)
	}
	// second '(' should be on line 2
	if toks[3].FirstLine != 2 {
		t.Fatalf("expected second form on line 2, got %d", toks[3].FirstLine)
	}
}

func TestSpansMonotonic(t *testing.T) {
	src := "(foo bar\n  baz)"
	toks := Scan(src)
	prevLine, prevCol := 1, -1
	for _, tok := range toks {
		if tok.EndColumn < tok.FirstColumn {
			t.Fatalf("token %q has endColumn < firstColumn", tok.Text)
		}
		if tok.FirstLine < prevLine || (tok.FirstLine == prevLine && tok.FirstColumn < prevCol) {
			t.Fatalf("token %q is not monotonic after line %d col %d", tok.Text, prevLine, prevCol)
		}
		prevLine, prevCol = tok.FirstLine, tok.FirstColumn
	}
}

func TestExactColumns(t *testing.T) {
	toks := Scan("(+ 12 3)")
	// "+" starts at column 1
	if toks[1].Text != "+" || toks[1].FirstColumn != 1 || toks[1].EndColumn != 1 {
		t.Fatalf("unexpected span for '+': %+v", toks[1])
	}
	// "12" spans columns 3-4
	if toks[2].Text != "12" || toks[2].FirstColumn != 3 || toks[2].EndColumn != 4 {
		t.Fatalf("unexpected span for '12': %+v", toks[2])
	}
}
