package rego_test

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	regoloader "github.com/gitstamp/gitstamp/pkg/plugin/rego"
	"github.com/gitstamp/gitstamp/pkg/types"
)

func bundlesDir(t *testing.T) string {
	t.Helper()
	_, self, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("unable to determine test file path")
	}
	return filepath.Join(filepath.Dir(self), "..", "..", "..", "bundles")
}

func TestCuratedBundlesCompile(t *testing.T) {
	dir := bundlesDir(t)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read bundles directory: %v", err)
	}
	ctx := context.Background()
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		bundlePath := filepath.Join(dir, entry.Name())
		hasRego := false
		_ = filepath.WalkDir(bundlePath, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if !d.IsDir() && filepath.Ext(d.Name()) == ".rego" {
				hasRego = true
			}
			return nil
		})
		if !hasRego {
			continue
		}
		plugins, err := regoloader.NewLoader(bundlePath).Load(ctx)
		if err != nil {
			t.Fatalf("bundle %s failed to load: %v", entry.Name(), err)
		}
		if len(plugins) == 0 {
			t.Fatalf("bundle %s produced no plugins", entry.Name())
		}
		for _, plug := range plugins {
			if plug.Metadata().ID == "" {
				t.Fatalf("bundle %s contains plugin with empty id", entry.Name())
			}
		}
	}
}

func TestReleaseBundleFlagsNonSemverTag(t *testing.T) {
	plugins, err := regoloader.NewLoader(filepath.Join(bundlesDir(t), "release")).Load(context.Background())
	if err != nil {
		t.Fatalf("load bundle: %v", err)
	}
	snap := types.Snapshot{
		Metadata:    types.BuildMetadata{Head: "release/1", Commit: "nightly"},
		Description: types.Description{Tag: "nightly", Exact: true, Abbrev: "abc1234"},
	}
	findings, err := plugins[0].Check(context.Background(), snap)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(findings) != 1 || findings[0].RuleID != "RB001" {
		t.Fatalf("expected RB001 finding, got %+v", findings)
	}

	snap.Description.Tag = "v1.4.0"
	findings, err = plugins[0].Check(context.Background(), snap)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("expected semver tag to pass, got %+v", findings)
	}
}
