package migration

import "testing"

func TestParseListeningPortsExtractsSSOutput(t *testing.T) {
	out := `State   Recv-Q   Send-Q   Local Address:Port   Peer Address:Port
LISTEN  0        128      0.0.0.0:8080          0.0.0.0:*
LISTEN  0        128      127.0.0.1:5432        0.0.0.0:*
LISTEN  0        128      [::]:8080             [::]:*`

	ports := parseListeningPorts(out)
	if !ports[8080] {
		t.Error("expected 8080 to be detected as listening")
	}
	if !ports[5432] {
		t.Error("expected 5432 to be detected as listening")
	}
	if ports[9999] {
		t.Error("did not expect 9999 to be listening")
	}
}

func TestParseListeningPortsExtractsNetstatOutput(t *testing.T) {
	out := `Active Internet connections (only servers)
Proto Recv-Q Send-Q Local Address           Foreign Address         State
tcp        0      0 0.0.0.0:3000            0.0.0.0:*               LISTEN`

	ports := parseListeningPorts(out)
	if !ports[3000] {
		t.Error("expected 3000 to be detected as listening")
	}
}

func TestParseListeningPortsIgnoresMalformedLines(t *testing.T) {
	ports := parseListeningPorts("garbage\n\nonly two fields")
	if len(ports) != 0 {
		t.Errorf("expected no ports parsed from malformed input, got %v", ports)
	}
}
