package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"marl/internal/arl"
	"marl/internal/logging"

	"github.com/spf13/cobra"
)

var testNow = time.Date(2025, time.February, 15, 12, 0, 0, 0, time.UTC)

func token(seed string) string {
	return strings.Repeat(seed, 130/len(seed)+1)[:130]
}

const testDoc = "![Brazil](https://example.com/br.png)\n\n" +
	"Expires 2025-03-01\n\n`%s`\n\n" +
	"![France](https://example.com/fr.png)\n\n" +
	"Expires 2025-03-02\n\n`%s`\n"

// newTestApp serves the document from a local server and keeps state in a
// temp dir. The returned counter tracks document requests.
func newTestApp(t *testing.T) (*app, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	body := strings.Replace(strings.Replace(testDoc, "%s", token("Ab1"), 1), "%s", token("Cd2"), 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return &app{
		now:      testNow,
		logger:   logging.Discard(),
		homeFlag: t.TempDir(),
		url:      srv.URL,
		timeout:  5 * time.Second,
	}, &hits
}

func testCmd(out *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	return cmd
}

func TestRunGet(t *testing.T) {
	a, hits := newTestApp(t)

	var out bytes.Buffer
	if err := a.runGet(testCmd(&out), nil); err != nil {
		t.Fatalf("runGet: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != token("Ab1") {
		t.Errorf("expected Brazil token, got %q", got)
	}

	// A second invocation is served from the cache.
	out.Reset()
	a.region = "France"
	if err := a.runGet(testCmd(&out), nil); err != nil {
		t.Fatalf("runGet: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != token("Cd2") {
		t.Errorf("expected France token, got %q", got)
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 fetch, got %d", hits.Load())
	}
}

func TestRunGetUnknownRegion(t *testing.T) {
	a, _ := newTestApp(t)
	a.region = "Atlantis"

	var out bytes.Buffer
	err := a.runGet(testCmd(&out), nil)
	var nf *arl.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if len(nf.Regions) != 2 || nf.Regions[0] != "Brazil" {
		t.Errorf("unexpected regions %v", nf.Regions)
	}
	if out.Len() != 0 {
		t.Errorf("nothing should be printed, got %q", out.String())
	}
}

func TestInvalidateThenGet(t *testing.T) {
	a, _ := newTestApp(t)

	inv := newInvalidateCmd(a)
	inv.SetContext(context.Background())
	inv.SetErr(&bytes.Buffer{})
	if err := inv.RunE(inv, nil); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	var out bytes.Buffer
	if err := a.runGet(testCmd(&out), nil); err != nil {
		t.Fatalf("runGet: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != token("Cd2") {
		t.Errorf("expected France token after invalidation, got %q", got)
	}

	// Invalidating an absent region is not an error.
	if err := inv.RunE(inv, []string{"Atlantis"}); err != nil {
		t.Errorf("invalidate absent region: %v", err)
	}
}

func TestRegionsOutput(t *testing.T) {
	tests := []struct {
		format string
		check  func(t *testing.T, out string)
	}{
		{formatPlain, func(t *testing.T, out string) {
			if out != "Brazil\nFrance\n" {
				t.Errorf("unexpected plain output %q", out)
			}
		}},
		{formatTable, func(t *testing.T, out string) {
			lines := strings.Split(strings.TrimSpace(out), "\n")
			if len(lines) != 3 || !strings.HasPrefix(lines[0], "REGION") {
				t.Fatalf("unexpected table output:\n%s", out)
			}
			if !strings.Contains(lines[2], "2025-03-02") {
				t.Errorf("expected France expiry in %q", lines[2])
			}
		}},
		{formatJSON, func(t *testing.T, out string) {
			var got []regionSummary
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("decode json: %v\n%s", err, out)
			}
			if len(got) != 2 || got[1].Region != "France" || got[1].Tokens != 1 {
				t.Errorf("unexpected summaries %+v", got)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			a, _ := newTestApp(t)
			cmd := newRegionsCmd(a)
			var out bytes.Buffer
			cmd.SetContext(context.Background())
			cmd.SetOut(&out)
			if err := cmd.Flags().Set("output", tt.format); err != nil {
				t.Fatal(err)
			}
			if err := cmd.RunE(cmd, nil); err != nil {
				t.Fatalf("regions: %v", err)
			}
			tt.check(t, out.String())
		})
	}
}

func TestBoundaryLimit(t *testing.T) {
	body := "![Brazil](https://example.com/br.png)\n\n" +
		"Expires 2025-03-01\n\n`" + token("Ab1") + "`\n\n" +
		"⠀⠀⠀\n\n" +
		"![France](https://example.com/fr.png)\n\n" +
		"Expires 2025-03-02\n\n`" + token("Cd2") + "`\n"

	for _, tt := range []struct {
		limit int
		want  string
	}{
		{1, "Brazil\n"},
		{2, "Brazil\nFrance\n"},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		defer srv.Close()

		a := &app{
			now:           testNow,
			logger:        logging.Discard(),
			homeFlag:      t.TempDir(),
			url:           srv.URL,
			timeout:       5 * time.Second,
			boundaryLimit: tt.limit,
		}
		cmd := newRegionsCmd(a)
		var out bytes.Buffer
		cmd.SetContext(context.Background())
		cmd.SetOut(&out)
		if err := cmd.Flags().Set("output", formatPlain); err != nil {
			t.Fatal(err)
		}
		if err := cmd.RunE(cmd, nil); err != nil {
			t.Fatalf("regions: %v", err)
		}
		if out.String() != tt.want {
			t.Errorf("limit %d: got %q, want %q", tt.limit, out.String(), tt.want)
		}
	}
}

func TestRegionsUnknownFormat(t *testing.T) {
	a, hits := newTestApp(t)
	cmd := newRegionsCmd(a)
	cmd.SetContext(context.Background())
	_ = cmd.Flags().Set("output", "yaml")
	if err := cmd.RunE(cmd, nil); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if hits.Load() != 0 {
		t.Error("format should be validated before fetching")
	}
}

func TestConfigStreamrip(t *testing.T) {
	a, _ := newTestApp(t)
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	const cfg = "[deezer]\n# Paste your ARL here\narl = \"\"\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := newConfigCmd(a).Commands()[0]
	cmd.SetContext(context.Background())
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)

	if err := cmd.RunE(cmd, []string{cfgPath}); err != nil {
		t.Fatalf("config streamrip: %v", err)
	}
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if want := strings.Replace(cfg, `arl = ""`, `arl = "`+token("Ab1")+`"`, 1); string(data) != want {
		t.Errorf("unexpected config:\n%s", data)
	}

	stderr.Reset()
	if err := cmd.RunE(cmd, []string{cfgPath}); err != nil {
		t.Fatalf("config streamrip: %v", err)
	}
	if !strings.Contains(stderr.String(), "already has") {
		t.Errorf("expected no-op message, got %q", stderr.String())
	}
}

func TestSummarize(t *testing.T) {
	records := []arl.Record{
		{Region: "Brazil", Value: "a", Expiry: arl.NewDate(2025, 3, 1)},
		{Region: "France", Value: "b", Expiry: arl.NewDate(2025, 3, 5)},
		{Region: "Brazil", Value: "c", Expiry: arl.NewDate(2025, 3, 9)},
	}
	got := summarize(records)
	if len(got) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(got))
	}
	if got[0].Region != "Brazil" || got[0].Tokens != 2 || got[0].Expiry.String() != "2025-03-09" {
		t.Errorf("unexpected Brazil summary %+v", got[0])
	}
	if got[1].Region != "France" || got[1].Tokens != 1 {
		t.Errorf("unexpected France summary %+v", got[1])
	}
}

func TestSetupLogging(t *testing.T) {
	a := &app{logLevel: "verbose"}
	if err := a.setupLogging(); err == nil {
		t.Error("expected error for unknown level")
	}
	a = &app{logLevel: "info", debug: []string{"fetch"}}
	if err := a.setupLogging(); err != nil {
		t.Fatalf("setupLogging: %v", err)
	}
	if !a.logger.With("component", "fetch").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("fetch debug logging should be enabled")
	}
}
