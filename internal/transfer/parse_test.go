package transfer

import "testing"

// rsync 3.1.x --stats output (Debian stable era).
const rsync31Stats = `Number of files: 1,237 (reg: 1,234, dir: 3)
Number of files transferred: 1,234
Total file size: 536,870,912 bytes
Total transferred file size: 536,870,912 bytes
Literal data: 536,870,912 bytes
Matched data: 0 bytes
File list size: 28,451
File list generation time: 0.003 seconds
File list transfer time: 0.000 seconds
Total bytes sent: 536,920,112
Total bytes received: 24,680

sent 536,920,112 bytes  received 24,680 bytes  8,234,567.12 bytes/sec
total size is 536,870,912  speedup is 1.00
`

// rsync 3.2.x --stats output: same line order as the 3.1.x fixture, plus a
// "Number of regular files transferred" line alongside the older spelling.
const rsync32Stats = `Number of files: 1,237 (reg: 1,234, dir: 3)
Number of files transferred: 1,234
Number of regular files transferred: 1,234
Total file size: 536,870,912 bytes
Total transferred file size: 536,870,912 bytes
Literal data: 536,870,912 bytes
Matched data: 0 bytes
File list size: 28,451
File list generation time: 0.003 seconds
File list transfer time: 0.000 seconds
Total bytes sent: 536,920,112
Total bytes received: 24,680

sent 536,920,112 bytes  received 24,680 bytes  9,876,543.21 bytes/sec
total size is 536,870,912  speedup is 1.00
`

func TestParseRsyncStats31(t *testing.T) {
	files, bytes, rate, speedup := parseRsyncStats(rsync31Stats)
	if files != 1234 {
		t.Errorf("files = %d, want 1234", files)
	}
	if bytes != 536870912 {
		t.Errorf("bytes = %d, want 536870912", bytes)
	}
	if rate != "8,234,567.12 bytes/sec" {
		t.Errorf("rate = %q, want %q", rate, "8,234,567.12 bytes/sec")
	}
	if speedup != "1.00" {
		t.Errorf("speedup = %q, want 1.00", speedup)
	}
}

func TestParseRsyncStats32(t *testing.T) {
	files, bytes, _, speedup := parseRsyncStats(rsync32Stats)
	if files != 1234 {
		t.Errorf("files = %d, want 1234", files)
	}
	if bytes != 536870912 {
		t.Errorf("bytes = %d, want 536870912", bytes)
	}
	if speedup != "1.00" {
		t.Errorf("speedup = %q, want 1.00", speedup)
	}
}

func TestParseZFSProperties(t *testing.T) {
	out := "pool/appdata\treferenced\t536870912\t-\n"
	props := parseZFSProperties(out)
	if props["referenced"] != "536870912" {
		t.Errorf("referenced = %q, want 536870912", props["referenced"])
	}
}
