package inventory

import "testing"

func TestReconcilePassesOnExactMatch(t *testing.T) {
	source := Aggregate{
		FileCount:  3,
		TotalBytes: 1000,
		Records: []Record{{
			RelativeFiles: []string{"a.txt", "b.txt", "config.yml"},
		}},
		Critical: map[string]string{"config.yml": "abc123"},
	}
	target := Aggregate{
		FileCount:  3,
		TotalBytes: 1000,
		Records: []Record{{
			RelativeFiles: []string{"a.txt", "b.txt", "config.yml"},
		}},
		Critical: map[string]string{"config.yml": "abc123"},
	}

	rec := Reconcile(source, target)
	if !rec.Passed() {
		t.Fatalf("expected Passed() true, got reconciliation: %+v", rec)
	}
	if len(rec.MissingFiles) != 0 {
		t.Fatalf("expected no missing files, got %v", rec.MissingFiles)
	}
}

func TestReconcileFailsOnMissingFile(t *testing.T) {
	source := Aggregate{
		FileCount:  2,
		TotalBytes: 1000,
		Records:    []Record{{RelativeFiles: []string{"a.txt", "b.txt"}}},
	}
	target := Aggregate{
		FileCount:  1,
		TotalBytes: 500,
		Records:    []Record{{RelativeFiles: []string{"a.txt"}}},
	}

	rec := Reconcile(source, target)
	if rec.Passed() {
		t.Fatal("expected Passed() false when a file is missing")
	}
	if len(rec.MissingFiles) != 1 || rec.MissingFiles[0] != "b.txt" {
		t.Fatalf("expected [b.txt] missing, got %v", rec.MissingFiles)
	}
}

func TestReconcileFailsOnCriticalChecksumMismatch(t *testing.T) {
	source := Aggregate{
		FileCount:  1,
		TotalBytes: 100,
		Records:    []Record{{RelativeFiles: []string{"app.db"}}},
		Critical:   map[string]string{"app.db": "sum1"},
	}
	target := Aggregate{
		FileCount:  1,
		TotalBytes: 100,
		Records:    []Record{{RelativeFiles: []string{"app.db"}}},
		Critical:   map[string]string{"app.db": "sum2"},
	}

	rec := Reconcile(source, target)
	if rec.Passed() {
		t.Fatal("expected Passed() false on checksum mismatch")
	}
	if rec.Critical["app.db"].Verified {
		t.Fatal("expected critical check unverified on mismatch")
	}
}

func TestReconcileToleratesByteDriftWithinOnePercent(t *testing.T) {
	source := Aggregate{FileCount: 1, TotalBytes: 1000, Records: []Record{{RelativeFiles: []string{"a"}}}}
	target := Aggregate{FileCount: 1, TotalBytes: 1005, Records: []Record{{RelativeFiles: []string{"a"}}}}

	rec := Reconcile(source, target)
	if !rec.Passed() {
		t.Fatalf("expected Passed() true for 0.5%% drift, got %+v", rec)
	}
}

func TestIsCriticalName(t *testing.T) {
	for _, name := range []string{"app.db", "data.sqlite3", "config.yml", "nginx.conf"} {
		if !isCriticalName(name) {
			t.Errorf("isCriticalName(%q) = false, want true", name)
		}
	}
	if isCriticalName("readme.txt") {
		t.Error("isCriticalName(readme.txt) = true, want false")
	}
}
