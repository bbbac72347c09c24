package format

import (
	"bytes"
	"strings"
	"testing"
)

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONFormatter{}).Write(&buf, map[string]int{"models": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.String() != "{\"models\":2}\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}

	buf.Reset()
	if err := (JSONFormatter{Indent: true}).Write(&buf, map[string]int{"models": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "\n  \"models\": 2\n") {
		t.Fatalf("expected indented output, got %q", buf.String())
	}
}

func TestTableRender(t *testing.T) {
	tbl := Table{
		Headers: []string{"ID", "Size"},
		Rows:    [][]string{{"md-1", "12 B"}, {"md-2"}},
		Align:   []Alignment{AlignLeft, AlignRight},
	}
	out := tbl.Render()
	if !strings.Contains(out, "md-1") || !strings.Contains(out, "md-2") || !strings.Contains(out, "Size") {
		t.Fatalf("expected headers and rows in output, got %q", out)
	}
	if (Table{}).Render() != "" {
		t.Fatal("expected empty output without headers")
	}
}

func TestTableWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := (Table{Headers: []string{"ID"}}).Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.String() != "(none)\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestBytes(t *testing.T) {
	tests := map[int64]string{
		0:       "0 B",
		1023:    "1023 B",
		1024:    "1.0 KiB",
		1536:    "1.5 KiB",
		5 << 20: "5.0 MiB",
		3 << 30: "3.0 GiB",
	}
	for size, want := range tests {
		if got := Bytes(size); got != want {
			t.Fatalf("Bytes(%d) = %q, want %q", size, got, want)
		}
	}
}
