package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrefixedLines(t *testing.T) {
	tests := []struct {
		name  string
		print func(w *Writer)
		want  string
	}{
		{
			name:  "step",
			print: func(w *Writer) { w.Step("Listening on %s", ":8080") },
			want:  "-> Listening on :8080\n",
		},
		{
			name:  "success",
			print: func(w *Writer) { w.Success("Server stopped") },
			want:  "OK Server stopped\n",
		},
		{
			name:  "warning",
			print: func(w *Writer) { w.Warning("index page %q not found", "index.html") },
			want:  "WARNING index page \"index.html\" not found\n",
		},
		{
			name:  "error",
			print: func(w *Writer) { w.Error("shutdown: %v", "deadline exceeded") },
			want:  "ERROR shutdown: deadline exceeded\n",
		},
		{
			name:  "info",
			print: func(w *Writer) { w.Info("Press Ctrl+C to stop") },
			want:  "   Press Ctrl+C to stop\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			tc.print(NewTest(&buf))
			if got := buf.String(); got != tc.want {
				t.Errorf("output = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResult(t *testing.T) {
	var buf bytes.Buffer
	w := NewTest(&buf)
	w.Result([]KeyValue{
		{Key: "Photos dir", Value: "test_photos"},
		{Key: "Chunk size", Value: "1024"},
		{Key: "Archiver", Value: "zip"},
	})

	want := "\n" +
		"  Photos dir  test_photos\n" +
		"  Chunk size  1024\n" +
		"  Archiver    zip\n"
	if got := buf.String(); got != want {
		t.Errorf("Result output = %q, want %q", got, want)
	}
}

func TestResultEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewTest(&buf).Result(nil)

	if buf.Len() != 0 {
		t.Errorf("Result with nil pairs should produce no output, got %q", buf.String())
	}
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	w := NewTest(&buf)
	w.Table(
		[]string{"METHOD", "PATH"},
		[][]string{
			{"GET", "/archive/{id}/"},
			{"GET", "/metrics"},
		},
	)

	got := buf.String()
	for _, s := range []string{"METHOD", "PATH", "/archive/{id}/", "/metrics"} {
		if !strings.Contains(got, s) {
			t.Errorf("Table output = %q, want substring %q", got, s)
		}
	}
	if strings.Contains(got, "\x1b[") {
		t.Errorf("test writer must not emit escape sequences, got %q", got)
	}
}

func TestPrintln(t *testing.T) {
	var buf bytes.Buffer
	NewTest(&buf).Println("archive-server %s", "1.0.0")

	if got := buf.String(); got != "archive-server 1.0.0\n" {
		t.Errorf("Println output = %q, want %q", got, "archive-server 1.0.0\n")
	}
}

func TestNewWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if w.Color() {
		t.Error("NewWriter with bytes.Buffer should not use color")
	}

	w.Step("test step")
	if buf.String() != "-> test step\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestColorAllowed(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want bool
	}{
		{name: "plain environment", want: true},
		{name: "CI", env: map[string]string{"CI": "true"}, want: false},
		{name: "NO_COLOR", env: map[string]string{"NO_COLOR": "1"}, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			getenv = func(key string) string { return tc.env[key] }
			t.Cleanup(func() { getenv = defaultGetenv })

			if got := colorAllowed(); got != tc.want {
				t.Errorf("colorAllowed() = %v, want %v", got, tc.want)
			}
		})
	}
}

var defaultGetenv = getenv
