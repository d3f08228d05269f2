package backup

import "testing"

func TestValidateDeletionPathRejectsDenyListedRoots(t *testing.T) {
	gate := NewSafetyGate()
	for _, p := range []string{"/etc", "/etc/passwd", "/", "/var/lib/docker", "/home/user", "/root/.ssh"} {
		out := gate.ValidateDeletionPath(p)
		if out.Validated {
			t.Errorf("ValidateDeletionPath(%q) = validated, want rejected", p)
		}
	}
}

func TestValidateDeletionPathRejectsTraversal(t *testing.T) {
	gate := NewSafetyGate()
	out := gate.ValidateDeletionPath("/tmp/../etc/passwd")
	if out.Validated {
		t.Fatal("expected traversal path to be rejected")
	}
}

func TestValidateDeletionPathAcceptsAllowRoots(t *testing.T) {
	gate := NewSafetyGate()
	for _, p := range []string{"/tmp/backup_blog_123.tar.gz", "/var/tmp/scratch", "/opt/migration_temp/work"} {
		out := gate.ValidateDeletionPath(p)
		if !out.Validated {
			t.Errorf("ValidateDeletionPath(%q) = rejected (%s), want validated", p, out.Reason)
		}
	}
}

func TestValidateDeletionPathAcceptsAllowedExtensionsOutsideAllowRoot(t *testing.T) {
	gate := NewSafetyGate()
	for _, p := range []string{"/data/stacks/blog/docker-compose.yml", "/data/archive.tar.gz", "/data/scratch.tmp"} {
		out := gate.ValidateDeletionPath(p)
		if !out.Validated {
			t.Errorf("ValidateDeletionPath(%q) = rejected (%s), want validated", p, out.Reason)
		}
	}
}

func TestValidateDeletionPathRejectsArbitraryFileOutsideAllowRoot(t *testing.T) {
	gate := NewSafetyGate()
	out := gate.ValidateDeletionPath("/data/stacks/blog/important-data.bin")
	if out.Validated {
		t.Fatal("expected arbitrary non-allow-listed file to be rejected")
	}
}

func TestValidateZFSSnapshotDeletionRules(t *testing.T) {
	gate := NewSafetyGate()

	cases := []struct {
		ref   string
		valid bool
	}{
		{"pool/appdata@migrate_20260730T120000Z", true},
		{"pool/appdata@backup_blog_20260730T120000Z", true},
		{"pool/appdata@short", false},
		{"pool/appdata@randomname123456", false},
		{"pool/appdata", false},
	}
	for _, c := range cases {
		out := gate.ValidateZFSSnapshotDeletion(c.ref)
		if out.Validated != c.valid {
			t.Errorf("ValidateZFSSnapshotDeletion(%q) = %v, want %v", c.ref, out.Validated, c.valid)
		}
	}
}
