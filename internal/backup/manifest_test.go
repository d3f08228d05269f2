package backup

import (
	"sync"
	"testing"
)

func TestDeletionManifestAppendOnly(t *testing.T) {
	m := NewDeletionManifest()
	m.Append("/tmp/a", "rm -rf", "within allow-list", true)
	m.Append("/etc", "rm -rf", "deny-listed", false)

	entries := m.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(Entries()) = %d, want 2", len(entries))
	}
	if entries[0].Path != "/tmp/a" || !entries[0].Validated {
		t.Errorf("entries[0] = %+v, unexpected", entries[0])
	}
	if entries[1].Path != "/etc" || entries[1].Validated {
		t.Errorf("entries[1] = %+v, unexpected", entries[1])
	}
}

func TestDeletionManifestConcurrentAppend(t *testing.T) {
	m := NewDeletionManifest()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m.Append("/tmp/x", "rm", "ok", true)
		}(i)
	}
	wg.Wait()

	if len(m.Entries()) != 100 {
		t.Fatalf("len(Entries()) = %d, want 100", len(m.Entries()))
	}
}
