package output

import (
	"bytes"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/gitstamp/gitstamp/pkg/types"
)

func TestWriteMetadataText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMetadata(sampleSnapshot(), "", &buf); err != nil {
		t.Fatalf("write text: %v", err)
	}
	want := "head:       main\ncommit:     v1.0-1-gdef4567\nbuild time: 2025-06-01T08:30:00Z\n"
	if buf.String() != want {
		t.Fatalf("unexpected text output:\n%q", buf.String())
	}
}

func TestWriteMetadataTextDegraded(t *testing.T) {
	snap := types.Snapshot{
		Metadata: types.BuildMetadata{Head: "", Commit: "error", BuildTime: "2025-06-01T08:30:00Z"},
		Degraded: map[types.Field]string{types.FieldHead: "not inside a git repository"},
	}
	var buf bytes.Buffer
	if err := WriteMetadata(snap, FormatText, &buf); err != nil {
		t.Fatalf("write text: %v", err)
	}
	if !strings.Contains(buf.String(), "degraded:   head (not inside a git repository)") {
		t.Fatalf("expected degraded line, got:\n%s", buf.String())
	}
}

func TestWriteMetadataYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMetadata(sampleSnapshot(), FormatYAML, &buf); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if doc["head"] != "main" || doc["buildTime"] != "2025-06-01T08:30:00Z" || doc["tag"] != "v1.0" {
		t.Fatalf("unexpected yaml document: %v", doc)
	}
}

func TestWriteMetadataEnv(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMetadata(sampleSnapshot(), FormatEnv, &buf); err != nil {
		t.Fatalf("write env: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`GITSTAMP_HEAD="main"`, `GITSTAMP_COMMIT="v1.0-1-gdef4567"`, `GITSTAMP_BUILD_TIME="2025-06-01T08:30:00Z"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in env output:\n%s", want, out)
		}
	}
}

func TestWriteMetadataStamp(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMetadata(sampleSnapshot(), FormatStamp, &buf); err != nil {
		t.Fatalf("write stamp: %v", err)
	}
	if buf.String() != "main-v1.0-1-gdef4567\n" {
		t.Fatalf("unexpected stamp %q", buf.String())
	}
}

func TestWriteMetadataUnsupported(t *testing.T) {
	if err := WriteMetadata(sampleSnapshot(), "toml", &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}
