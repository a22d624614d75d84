// ABOUTME: Tests for CLI commands
// ABOUTME: Runs zone, transition, history, backup, migrate, distance, and sync commands end to end

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/harper/geofence/internal/models"
	"github.com/harper/geofence/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func init() {
	color.NoColor = true
}

// setupCLI points config, data, and sync paths at a temp dir and returns the data dir.
func setupCLI(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	dataDir := filepath.Join(tmp, "data")

	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmp, "share"))
	t.Setenv("GEOFENCE_BACKEND", "sqlite")
	t.Setenv("GEOFENCE_DATA_DIR", dataDir)
	t.Setenv("GEOFENCE_LOG_LEVEL", "error")
	for _, key := range []string{
		"GEOFENCE_HTTP_ADDR", "GEOFENCE_MQTT_BROKER", "GEOFENCE_DEVICE_ID", "GEOFENCE_AMQP_URL",
		"GEOFENCE_REDIS_ADDR", "GEOFENCE_CHARM_HOST", "GEOFENCE_TRACKING_BACKGROUND",
		"GEOFENCE_SYNC_SERVER", "GEOFENCE_SYNC_TOKEN", "GEOFENCE_SYNC_DEVICE_ID", "GEOFENCE_SYNC_AUTO",
	} {
		t.Setenv(key, "")
	}
	return dataDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeWithInput(t, "", args...)
}

func executeWithInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	if store != nil {
		// PersistentPostRunE is skipped when a command fails.
		_ = store.Close()
		store = nil
	}
	return out.String(), err
}

// resetFlags restores every flag to its default between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("geofence %s: %v", strings.Join(args, " "), err)
	}
	return out
}

// seed writes collections straight into the sqlite store the CLI will open.
func seed(t *testing.T, dataDir string, fn func(kv storage.KV)) {
	t.Helper()
	kv, err := storage.NewSQLiteKV(filepath.Join(dataDir, "geofence.db"))
	if err != nil {
		t.Fatalf("open seed store: %v", err)
	}
	fn(kv)
	if err := kv.Close(); err != nil {
		t.Fatalf("close seed store: %v", err)
	}
}

func TestRootCmd_Metadata(t *testing.T) {
	if rootCmd.Use != "geofence" {
		t.Errorf("expected Use 'geofence', got %q", rootCmd.Use)
	}
	if !strings.Contains(rootCmd.Long, "dog park") {
		t.Error("expected description in Long")
	}

	want := []string{"zone", "run", "transitions", "history", "backup", "restore", "export", "migrate", "distance", "mcp", "sync"}
	for _, name := range want {
		if c, _, err := rootCmd.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("expected subcommand %q", name)
		}
	}
}

func TestZoneAddCmd_Flags(t *testing.T) {
	for _, name := range []string{"radius", "category", "disabled", "no-entry", "no-exit"} {
		if zoneAddCmd.Flags().Lookup(name) == nil {
			t.Errorf("flag %q not found", name)
		}
	}
	if f := zoneAddCmd.Flags().Lookup("radius"); f.Shorthand != "r" || f.DefValue != "100" {
		t.Errorf("unexpected radius flag: -%s default %s", f.Shorthand, f.DefValue)
	}
}

func TestZoneLifecycle(t *testing.T) {
	setupCLI(t)

	out := mustExecute(t, "zone", "add", "--radius", "150", "--category", "park", "Dog Run", "40.7829", "-73.9654")
	if !strings.Contains(out, "Added zone Dog Run") {
		t.Errorf("unexpected add output: %q", out)
	}

	out = mustExecute(t, "zone", "list")
	if !strings.Contains(out, "Dog Run") || !strings.Contains(out, "[park]") {
		t.Errorf("expected zone in list, got %q", out)
	}

	out = mustExecute(t, "zone", "show", "dog run")
	if !strings.Contains(out, "Radius:   150m") {
		t.Errorf("unexpected show output: %q", out)
	}

	mustExecute(t, "zone", "update", "Dog Run", "--radius", "250", "--enabled=false")
	out = mustExecute(t, "zone", "show", "Dog Run")
	if !strings.Contains(out, "Radius:   250m") || !strings.Contains(out, "Enabled:  no") {
		t.Errorf("update not applied: %q", out)
	}

	out = mustExecute(t, "zone", "list", "--enabled")
	if !strings.Contains(out, "No zones defined") {
		t.Errorf("disabled zone must not be listed with --enabled: %q", out)
	}

	mustExecute(t, "zone", "remove", "--confirm", "Dog Run")
	out = mustExecute(t, "zone", "list")
	if !strings.Contains(out, "No zones defined") {
		t.Errorf("expected empty list after remove, got %q", out)
	}
}

func TestZoneAdd_Invalid(t *testing.T) {
	setupCLI(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad_lat", []string{"zone", "add", "x", "91", "0"}, "latitude"},
		{"not_a_number", []string{"zone", "add", "x", "north", "0"}, "invalid latitude"},
		{"bad_radius", []string{"zone", "add", "--radius", "0", "x", "1", "1"}, "radius"},
		{"bad_category", []string{"zone", "add", "--category", "zoo", "x", "1", "1"}, "category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got error %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestZoneUpdate_NothingToUpdate(t *testing.T) {
	setupCLI(t)
	mustExecute(t, "zone", "add", "Dog Run", "1", "1")

	if _, err := execute(t, "zone", "update", "Dog Run"); err == nil {
		t.Error("expected error for empty update")
	}
}

func TestZoneRemove_Cancelled(t *testing.T) {
	setupCLI(t)
	mustExecute(t, "zone", "add", "Dog Run", "1", "1")

	out, err := executeWithInput(t, "n\n", "zone", "remove", "Dog Run")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Cancelled.") {
		t.Errorf("expected cancellation, got %q", out)
	}
	if out := mustExecute(t, "zone", "list"); !strings.Contains(out, "Dog Run") {
		t.Error("zone must survive a cancelled remove")
	}
}

func TestZoneImportExport(t *testing.T) {
	setupCLI(t)
	dir := t.TempDir()

	in := filepath.Join(dir, "zones.geojson")
	data := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[-73.9934,40.7505]},"properties":{"name":"Vet","category":"vet","radius_meters":100}},
		{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},"properties":{"name":"","radius_meters":10}}
	]}`
	if err := os.WriteFile(in, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	out := mustExecute(t, "zone", "import", in)
	if !strings.Contains(out, "Imported 1 of 2 zones") {
		t.Errorf("unexpected import output: %q", out)
	}

	exported := filepath.Join(dir, "out.geojson")
	mustExecute(t, "zone", "export", "-o", exported)
	got, err := os.ReadFile(exported)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(got), `"name": "Vet"`) || !strings.Contains(string(got), `"radius_meters": 100`) {
		t.Errorf("unexpected export:\n%s", got)
	}
}

func TestTransitionsCommands(t *testing.T) {
	dataDir := setupCLI(t)
	now := time.Now()
	seed(t, dataDir, func(kv storage.KV) {
		_ = storage.SaveTransitions(kv, []models.Transition{
			{ID: "aaaaaaaa-1111", ZoneID: "z1", ZoneName: "Dog Run", Kind: models.TransitionEntry, OccurredAt: now.Add(-time.Hour).UnixMilli()},
			{ID: "bbbbbbbb-2222", ZoneID: "z1", ZoneName: "Dog Run", Kind: models.TransitionExit, OccurredAt: now.UnixMilli()},
		})
	})

	out := mustExecute(t, "transitions", "list")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "left") || !strings.Contains(lines[1], "entered") {
		t.Errorf("expected newest first, got %q", out)
	}

	out = mustExecute(t, "transitions", "ack", "aaaaaaaa")
	if !strings.Contains(out, "Acknowledged 1") {
		t.Errorf("unexpected ack output: %q", out)
	}

	out = mustExecute(t, "transitions", "list", "-u")
	if strings.Contains(out, "entered") || !strings.Contains(out, "left") {
		t.Errorf("expected only the unacknowledged exit, got %q", out)
	}

	if _, err := execute(t, "transitions", "ack", "zzz"); err == nil {
		t.Error("expected error for unknown transition")
	}
	if _, err := execute(t, "transitions", "ack"); err == nil {
		t.Error("expected error without IDs or --all")
	}

	out = mustExecute(t, "transitions", "clear")
	if !strings.Contains(out, "Cleared 2") {
		t.Errorf("unexpected clear output: %q", out)
	}
	out = mustExecute(t, "transitions", "list")
	if !strings.Contains(out, "No transitions recorded.") {
		t.Errorf("expected empty log, got %q", out)
	}
}

func TestHistoryCommands(t *testing.T) {
	dataDir := setupCLI(t)
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	seed(t, dataDir, func(kv storage.KV) {
		_ = storage.SaveHistory(kv, []models.Sample{
			{Latitude: 40.78, Longitude: -73.96, CapturedAt: base.UnixMilli()},
			{Latitude: 40.79, Longitude: -73.97, CapturedAt: base.Add(time.Minute).UnixMilli()},
		})
	})

	out := mustExecute(t, "history", "list", "-n", "1")
	if strings.Count(strings.TrimSpace(out), "\n") != 0 || !strings.Contains(out, "40.7900") {
		t.Errorf("expected only the most recent sample, got %q", out)
	}

	out = mustExecute(t, "history", "list", "--from", "2026-06-01T11:59:00Z", "--to", "2026-06-01T12:00:30Z")
	if !strings.Contains(out, "40.7800") || strings.Contains(out, "40.7900") {
		t.Errorf("unexpected range output: %q", out)
	}

	if _, err := execute(t, "history", "list", "--from", "yesterday"); err == nil {
		t.Error("expected error for invalid --from")
	}

	out = mustExecute(t, "history", "export", "--shape", "line")
	if !strings.Contains(out, "LineString") {
		t.Errorf("expected a LineString export, got %q", out)
	}

	mustExecute(t, "history", "clear")
	out = mustExecute(t, "history", "list")
	if !strings.Contains(out, "No location history recorded.") {
		t.Errorf("expected empty history, got %q", out)
	}
}

func TestHistoryImport(t *testing.T) {
	setupCLI(t)
	track := filepath.Join(t.TempDir(), "walk.geojson")
	data := `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"LineString","coordinates":[[-73.96,40.78],[-73.97,40.79],[-73.98,40.80]]},"properties":{}}]}`
	if err := os.WriteFile(track, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	out := mustExecute(t, "history", "import", track)
	if !strings.Contains(out, "Imported 3 sample(s)") {
		t.Errorf("unexpected import output: %q", out)
	}
	out = mustExecute(t, "history", "list")
	if strings.Count(out, "(40.") != 3 {
		t.Errorf("expected 3 samples, got %q", out)
	}
}

func TestBackupRestore(t *testing.T) {
	setupCLI(t)
	backup := filepath.Join(t.TempDir(), "backup.yaml")

	mustExecute(t, "zone", "add", "--category", "vet", "Emergency Vet", "40.7505", "-73.9934")
	out := mustExecute(t, "backup", "-o", backup)
	if !strings.Contains(out, "1 zones, 0 transitions, 0 samples") {
		t.Errorf("unexpected backup output: %q", out)
	}

	mustExecute(t, "zone", "remove", "--confirm", "Emergency Vet")
	out = mustExecute(t, "restore", backup)
	if !strings.Contains(out, "1 zones") {
		t.Errorf("unexpected restore output: %q", out)
	}
	if out := mustExecute(t, "zone", "list"); !strings.Contains(out, "Emergency Vet") {
		t.Errorf("zone not restored: %q", out)
	}
}

func TestExportCmd(t *testing.T) {
	setupCLI(t)
	mustExecute(t, "zone", "add", "Dog Run", "1", "1")

	out := mustExecute(t, "export")
	if !strings.Contains(out, "# Geofence Export") || !strings.Contains(out, "| Dog Run | custom |") {
		t.Errorf("unexpected markdown export: %q", out)
	}

	out = mustExecute(t, "export", "--format", "yaml")
	if !strings.Contains(out, "tool: geofence") {
		t.Errorf("unexpected yaml export: %q", out)
	}

	if _, err := execute(t, "export", "--format", "csv"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestMigrateToBadger(t *testing.T) {
	dataDir := setupCLI(t)
	mustExecute(t, "zone", "add", "Dog Run", "1", "1")

	out := mustExecute(t, "migrate", "--to", "badger")
	if !strings.Contains(out, "Zones:       1") {
		t.Errorf("unexpected migrate output: %q", out)
	}

	if _, err := execute(t, "migrate", "--to", "badger"); err == nil || !strings.Contains(err.Error(), "--force") {
		t.Errorf("expected non-empty target error, got %v", err)
	}

	dst, err := storage.NewBadgerKV(filepath.Join(dataDir, "badger"))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	defer func() { _ = dst.Close() }()
	zones, err := storage.LoadZones(dst)
	if err != nil || len(zones) != 1 || zones[0].Name != "Dog Run" {
		t.Errorf("unexpected migrated zones %+v (err %v)", zones, err)
	}
}

func TestMigrate_InvalidTarget(t *testing.T) {
	setupCLI(t)

	for _, target := range []string{"sqlite", "memory", "markdown"} {
		if _, err := execute(t, "migrate", "--to", target); err == nil {
			t.Errorf("expected error migrating to %s", target)
		}
	}
}

func TestDistanceCmd(t *testing.T) {
	setupCLI(t)

	out := mustExecute(t, "distance", "40.7829", "-73.9654", "40.7505", "-73.9934")
	if !strings.HasSuffix(strings.TrimSpace(out), "km") {
		t.Errorf("expected km distance, got %q", out)
	}

	mustExecute(t, "zone", "add", "--radius", "200", "Dog Run", "40.7829", "-73.9654")
	out = mustExecute(t, "distance", "40.7830", "-73.9655")
	if !strings.Contains(out, "Dog Run inside") || !strings.Contains(out, "Nearest: Dog Run") {
		t.Errorf("unexpected zone distance output: %q", out)
	}

	if _, err := execute(t, "distance", "1", "2", "3"); err == nil {
		t.Error("expected error for three coordinates")
	}
}

func TestSyncInitStatusPush(t *testing.T) {
	dataDir := setupCLI(t)

	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || r.Header.Get("Authorization") != "Bearer secret-token-1234" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		received.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	out := mustExecute(t, "sync", "status")
	if !strings.Contains(out, "Status: Not configured") {
		t.Errorf("unexpected status before init: %q", out)
	}

	out = mustExecute(t, "sync", "init", "--server", srv.URL, "--token", "secret-token-1234")
	if !strings.Contains(out, "Device ID:") {
		t.Errorf("unexpected init output: %q", out)
	}
	if _, err := execute(t, "sync", "init", "--server", srv.URL, "--token", "x"); err == nil {
		t.Error("expected error re-initializing without --force")
	}

	out = mustExecute(t, "sync", "status")
	if !strings.Contains(out, "Status: Configured") || !strings.Contains(out, "secr…1234") {
		t.Errorf("unexpected status after init: %q", out)
	}

	seed(t, dataDir, func(kv storage.KV) {
		_ = storage.SaveHistory(kv, []models.Sample{
			{Latitude: 1, Longitude: 1, CapturedAt: 1000},
			{Latitude: 2, Longitude: 2, CapturedAt: 2000},
		})
	})
	out = mustExecute(t, "sync", "push")
	if !strings.Contains(out, "Uploaded 2 sample(s)") || received.Load() != 2 {
		t.Errorf("unexpected push output %q with %d uploads", out, received.Load())
	}
}

func TestSyncCloud_RequiresCharm(t *testing.T) {
	setupCLI(t)
	if _, err := execute(t, "sync", "cloud"); err == nil || !strings.Contains(err.Error(), "charm backend") {
		t.Errorf("expected charm backend error, got %v", err)
	}
}

func TestNewestFirst(t *testing.T) {
	log := []models.Transition{
		{ID: "1"},
		{ID: "2", Acknowledged: true},
		{ID: "3"},
	}

	ids := func(trs []models.Transition) string {
		var parts []string
		for _, tr := range trs {
			parts = append(parts, tr.ID)
		}
		return strings.Join(parts, ",")
	}

	if got := ids(newestFirst(log, false, 0)); got != "3,2,1" {
		t.Errorf("got %s, want 3,2,1", got)
	}
	if got := ids(newestFirst(log, true, 0)); got != "3,1" {
		t.Errorf("got %s, want 3,1", got)
	}
	if got := ids(newestFirst(log, false, 2)); got != "3,2" {
		t.Errorf("got %s, want 3,2", got)
	}
}

func TestFindZone(t *testing.T) {
	zones := []models.Zone{
		{ID: "0b6f2c1e-aaaa", Name: "Dog Run"},
		{ID: "0b6f2c1e-bbbb", Name: "Vet"},
		{ID: "9c9c9c9c-cccc", Name: "Groomer"},
	}

	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{"0b6f2c1e-bbbb", "Vet", false},
		{"dog run", "Dog Run", false},
		{"9c9c9c", "Groomer", false},
		{"0b6f2c1e", "", true},
		{"9c9", "", true},
		{"Park", "", true},
	}
	for _, tt := range tests {
		z, err := findZone(zones, tt.ref)
		if tt.wantErr {
			if err == nil {
				t.Errorf("findZone(%q): expected error", tt.ref)
			}
			continue
		}
		if err != nil || z.Name != tt.want {
			t.Errorf("findZone(%q) = %q, %v; want %q", tt.ref, z.Name, err, tt.want)
		}
	}
}

func TestMaskToken(t *testing.T) {
	tests := map[string]string{
		"":                  "(not set)",
		"short":             "********",
		"secret-token-1234": "secr…1234",
	}
	for in, want := range tests {
		if got := maskToken(in); got != want {
			t.Errorf("maskToken(%q) = %q, want %q", in, got, want)
		}
	}
}
