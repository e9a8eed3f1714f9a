package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gitstamp/gitstamp/pkg/types"
)

// Metadata formats.
const (
	FormatText  = "text"
	FormatYAML  = "yaml"
	FormatEnv   = "env"
	FormatStamp = "stamp"
)

// MetadataFormats lists the formats WriteMetadata accepts.
var MetadataFormats = []string{FormatText, FormatJSON, FormatYAML, FormatEnv, FormatStamp}

// WriteMetadata renders resolved build metadata.
func WriteMetadata(snap types.Snapshot, format string, w io.Writer) error {
	switch strings.ToLower(format) {
	case "", FormatText:
		return writeMetadataText(snap, w)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(metadataDocument(snap))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(metadataDocument(snap)); err != nil {
			return err
		}
		return enc.Close()
	case FormatEnv:
		out, err := godotenv.Marshal(map[string]string{
			"GITSTAMP_HEAD":       snap.Metadata.Head,
			"GITSTAMP_COMMIT":     snap.Metadata.Commit,
			"GITSTAMP_BUILD_TIME": snap.Metadata.BuildTime,
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, out)
		return err
	case FormatStamp:
		_, err := fmt.Fprintln(w, snap.Metadata.Stamp())
		return err
	default:
		return fmt.Errorf("unsupported format %q (expected %s)", format, strings.Join(MetadataFormats, "|"))
	}
}

type metadataDoc struct {
	Head      string            `json:"head" yaml:"head"`
	Commit    string            `json:"commit" yaml:"commit"`
	BuildTime string            `json:"buildTime" yaml:"buildTime"`
	Tag       string            `json:"tag,omitempty" yaml:"tag,omitempty"`
	Distance  int               `json:"distance,omitempty" yaml:"distance,omitempty"`
	Dirty     bool              `json:"dirty,omitempty" yaml:"dirty,omitempty"`
	Root      string            `json:"root,omitempty" yaml:"root,omitempty"`
	Degraded  map[string]string `json:"degraded,omitempty" yaml:"degraded,omitempty"`
}

func metadataDocument(snap types.Snapshot) metadataDoc {
	doc := metadataDoc{
		Head:      snap.Metadata.Head,
		Commit:    snap.Metadata.Commit,
		BuildTime: snap.Metadata.BuildTime,
		Tag:       snap.Description.Tag,
		Distance:  snap.Description.Distance,
		Dirty:     snap.Description.Dirty,
		Root:      snap.Root,
	}
	if len(snap.Degraded) > 0 {
		doc.Degraded = make(map[string]string, len(snap.Degraded))
		for f, reason := range snap.Degraded {
			doc.Degraded[string(f)] = reason
		}
	}
	return doc
}

func writeMetadataText(snap types.Snapshot, w io.Writer) error {
	rows := [][2]string{
		{"head", snap.Metadata.Head},
		{"commit", snap.Metadata.Commit},
		{"build time", snap.Metadata.BuildTime},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%-11s %s\n", row[0]+":", row[1]); err != nil {
			return err
		}
	}
	for _, f := range snap.DegradedFields() {
		if _, err := fmt.Fprintf(w, "degraded:   %s (%s)\n", f, snap.Degraded[f]); err != nil {
			return err
		}
	}
	return nil
}
