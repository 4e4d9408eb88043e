package memory

import (
	"strings"
	"testing"

	"github.com/recallkit/recall/pkg/storage"
)

func TestTruncateAtSentence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short input untouched", "Hello.", 20, "Hello."},
		{"period past half", "Hello world. This is more text", 20, "Hello world."},
		{"newline past half", "line one is here\nline two goes on", 20, "line one is here\n"},
		{"boundary too early", "Hi. abcdefghijklmnopqrstuvwxyz", 20, "Hi. abcdefghijklmnop"},
		{"boundary exactly at half", "abcdefghij.klmnopqrstuvwxyz", 20, "abcdefghij.klmnopqrs"},
		{"no boundary", strings.Repeat("x", 30), 20, strings.Repeat("x", 20)},
		{"counts characters", "日本語のテキスト。さらに続く文章です", 10, "日本語のテキスト。さ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateAtSentence(tt.in, tt.max); got != tt.want {
				t.Errorf("truncateAtSentence(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestTruncateAtSentence_Cap(t *testing.T) {
	in := strings.Repeat("A sentence of filler text. ", 500)
	got := truncateAtSentence(in, 8000)
	if charLen(got) > 8000 {
		t.Fatalf("length %d exceeds cap", charLen(got))
	}
	if !strings.HasSuffix(got, ".") {
		t.Errorf("expected cut at a period, got suffix %q", got[len(got)-5:])
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo", 2); got != "hé" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 0); got != "" {
		t.Errorf("truncate(0) = %q", got)
	}
}

func TestTranscript(t *testing.T) {
	msgs := []*storage.Message{
		{Role: "user", Parts: []storage.Part{{Type: "text", Text: "hi"}, {Type: "image"}, {Type: "text", Text: "there"}}},
		{Role: "assistant", Parts: []storage.Part{{Type: "text", Text: "hello"}}},
	}
	want := "[user] hi\nthere\n[assistant] hello"
	if got := transcript(msgs); got != want {
		t.Errorf("transcript = %q, want %q", got, want)
	}
}
