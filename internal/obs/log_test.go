package obs

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestLogWritesBaseKeys(t *testing.T) {
	l := Logger()
	orig := l.Writer()
	var buf bytes.Buffer
	l.SetOutput(&buf)
	defer l.SetOutput(orig)

	Warn("authz_rejected", map[string]any{
		"msg":   "must not override",
		"err":   errors.New("boom"),
		"path":  "/api/my_view/",
		"level": "debug",
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	if entry["msg"] != "authz_rejected" || entry["level"] != "warn" {
		t.Fatalf("base keys overridden: %v", entry)
	}
	if entry["err"] != "boom" {
		t.Fatalf("expected error to be rendered as string, got %v", entry["err"])
	}
	if entry["path"] != "/api/my_view/" {
		t.Fatalf("missing field: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("missing ts")
	}
}
