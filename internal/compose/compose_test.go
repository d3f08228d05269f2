package compose

import (
	"strings"
	"testing"
)

const sampleCompose = `
services:
  blog:
    image: wordpress:latest
    ports:
      - "8080:80"
    volumes:
      - ${APPDATA_PATH}/blog:/var/www/html
  db:
    image: mysql:8
    volumes:
      - blog_db:/var/lib/mysql
volumes:
  blog_db:
`

func TestParseExtractsServicesAndVolumes(t *testing.T) {
	p, err := Parse("blog", sampleCompose)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(p.Services) != 2 {
		t.Fatalf("len(Services) = %d, want 2", len(p.Services))
	}
	if len(p.Volumes) != 1 {
		t.Fatalf("len(Volumes) = %d, want 1", len(p.Volumes))
	}
}

func TestExtractPortsFindsPublishedPort(t *testing.T) {
	p, err := Parse("blog", sampleCompose)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	ports := p.ExtractPorts()
	if len(ports) != 1 {
		t.Fatalf("len(ExtractPorts()) = %d, want 1", len(ports))
	}
	if ports[0].HostPort != 8080 || ports[0].ContainerPort != 80 {
		t.Errorf("port = %+v, want host 8080 -> container 80", ports[0])
	}
}

func TestExtractVolumeSpecsPreservesAppdataToken(t *testing.T) {
	p, err := Parse("blog", sampleCompose)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	specs := p.ExtractVolumeSpecs()
	var found bool
	for _, s := range specs {
		if strings.HasPrefix(s, "${APPDATA_PATH}/blog:") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a spec keeping the ${APPDATA_PATH} token for host-side expansion, got %v", specs)
	}
}

func TestRewriteAppdataPathLeavesNoTokenBehind(t *testing.T) {
	out := RewriteAppdataPath(sampleCompose, "/mnt/pool1/appdata")
	if strings.Contains(out, "${APPDATA_PATH}") {
		t.Fatal("rewritten compose still contains ${APPDATA_PATH} token")
	}
	if !strings.Contains(out, "/mnt/pool1/appdata/blog") {
		t.Errorf("expected rewritten path in output, got:\n%s", out)
	}
}

func TestRewriteBindPathsMapsSourcePath(t *testing.T) {
	text := "source: /opt/appdata/blog:/var/www/html"
	out := RewriteBindPaths(text, map[string]string{"/opt/appdata/blog": "/srv/appdata/blog"})
	if !strings.Contains(out, "/srv/appdata/blog") {
		t.Errorf("expected mapped path in output, got %q", out)
	}
	if strings.Contains(out, "/opt/appdata/blog:") {
		t.Errorf("expected original source path to be replaced, got %q", out)
	}
}

func TestRewriteBindPathsSubstitutesLongestPathFirst(t *testing.T) {
	text := "a: /opt/appdata/blog, b: /opt/appdata/blog/sub"
	out := RewriteBindPaths(text, map[string]string{
		"/opt/appdata/blog":     "/srv/blog",
		"/opt/appdata/blog/sub": "/srv/blog-sub",
	})
	if !strings.Contains(out, "/srv/blog-sub") || strings.Contains(out, "/srv/blog/sub") {
		t.Errorf("expected nested path substituted independently, got %q", out)
	}
}

func TestRewritePortReplacesHostPortOnly(t *testing.T) {
	old := PortMapping{HostPort: 8080, ContainerPort: 80, Protocol: "tcp"}
	out := RewritePort(sampleCompose, old, 8081)
	if strings.Contains(out, `"8080:80"`) {
		t.Error("expected original port mapping to be rewritten")
	}
	if !strings.Contains(out, `"8081:80"`) {
		t.Errorf("expected remapped port in output, got:\n%s", out)
	}
}
