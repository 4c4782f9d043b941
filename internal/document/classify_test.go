package document

import (
	"strings"
	"testing"
	"time"

	"marl/internal/arl"
)

var today = arl.NewDate(2025, time.February, 15)

func token(n int) string {
	return strings.Repeat("aB3", n/3+1)[:n]
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want Classification
	}{
		{"image alt", Node{Kind: KindImage, Text: "Brazil/Brasil"}, Classification{Class: RegionMarker, Region: "Brazil"}},
		{"image no slash", Node{Kind: KindImage, Text: "France"}, Classification{Class: RegionMarker, Region: "France"}},
		{"image no alt", Node{Kind: KindImage}, Classification{}},
		{"image empty first segment", Node{Kind: KindImage, Text: "/Brasil"}, Classification{}},
		{"centered date", Node{Kind: KindText, Text: "<- 2025-03-01 ->"}, Classification{Class: DateCandidate, Date: arl.NewDate(2025, time.March, 1)}},
		{"bare date", Node{Kind: KindText, Text: "expires 2025-03-01"}, Classification{Class: DateCandidate, Date: arl.NewDate(2025, time.March, 1)}},
		{"date today", Node{Kind: KindText, Text: "2025-02-15"}, Classification{Class: DateCandidate, Date: today}},
		{"first date wins", Node{Kind: KindText, Text: "2025-04-01 2025-05-01"}, Classification{Class: DateCandidate, Date: arl.NewDate(2025, time.April, 1)}},
		{"past date", Node{Kind: KindText, Text: "<- 2025-02-14 ->"}, Classification{}},
		{"first date past", Node{Kind: KindText, Text: "2025-01-01 2025-05-01"}, Classification{}},
		{"no date", Node{Kind: KindText, Text: "Region | Expiry | ARL"}, Classification{}},
		{"boundary", Node{Kind: KindText, Text: "⠀⠀⠀"}, Classification{Class: TableBoundary}},
		{"boundary wins over date", Node{Kind: KindText, Text: "⠀ 2025-03-01"}, Classification{Class: TableBoundary}},
		{"token", Node{Kind: KindCode, Text: token(130)}, Classification{Class: TokenCandidate, Token: token(130)}},
		{"token exact length", Node{Kind: KindCode, Text: token(128)}, Classification{Class: TokenCandidate, Token: token(128)}},
		{"token too short", Node{Kind: KindCode, Text: token(127)}, Classification{}},
		{"token letter number", Node{Kind: KindCode, Text: token(127) + "Ⅻ"}, Classification{Class: TokenCandidate, Token: token(127) + "Ⅻ"}},
		{"token other number", Node{Kind: KindCode, Text: token(127) + "½"}, Classification{Class: TokenCandidate, Token: token(127) + "½"}},
		{"token punctuation", Node{Kind: KindCode, Text: token(129) + "-"}, Classification{}},
		{"other", Node{Kind: KindOther, Text: token(130)}, Classification{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.node, today)
			if got != tt.want {
				t.Errorf("Classify(%+v) = %+v, want %+v", tt.node, got, tt.want)
			}
		})
	}
}

func TestParseNodeOrder(t *testing.T) {
	tok := token(130)
	src := "# Tokens\n\n" +
		"![Brazil/Brasil](https://example.com/br.png)\n\n" +
		"Expires 2030-01-01\n\n" +
		"`" + tok + "`\n\n" +
		"⠀⠀⠀\n"

	nodes, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var got []Node
	for _, n := range nodes {
		if n.Kind != KindOther {
			got = append(got, n)
		}
	}

	want := []Node{
		{Kind: KindText, Text: "Tokens"},
		{Kind: KindImage, Text: "Brazil/Brasil"},
		{Kind: KindText, Text: "Brazil/Brasil"},
		{Kind: KindText, Text: "Expires 2030-01-01"},
		{Kind: KindCode, Text: tok},
		{Kind: KindText, Text: "⠀⠀⠀"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d nodes, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("node %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestParseInvalidUTF8(t *testing.T) {
	_, err := Parse("ok \xff\xfe")
	if err == nil {
		t.Fatal("expected parse error")
	}
	if _, ok := err.(*ParseError); !ok {
		t.Errorf("expected *ParseError, got %T", err)
	}
}
