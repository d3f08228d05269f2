package migration

import "testing"

func TestMapPathReattachesSuffixUnderTargetStack(t *testing.T) {
	got := MapPath("/mnt/pool1/blog/config", "blog", "/srv/appdata")
	if want := "/srv/appdata/blog/config"; got != want {
		t.Errorf("MapPath() = %q, want %q", got, want)
	}
}

func TestMapPathReattachesSiblingSuffix(t *testing.T) {
	got := MapPath("/mnt/pool1/blog-redis/data", "blog", "/srv/appdata")
	if want := "/srv/appdata/blog-redis/data"; got != want {
		t.Errorf("MapPath() = %q, want %q", got, want)
	}
}

func TestMapPathFallsBackToBasenameWhenNoStackSegment(t *testing.T) {
	got := MapPath("/mnt/misc/letsencrypt", "blog", "/srv/appdata")
	if want := "/srv/appdata/letsencrypt"; got != want {
		t.Errorf("MapPath() = %q, want %q", got, want)
	}
}

func TestMapPathHandlesBareStackSegment(t *testing.T) {
	got := MapPath("/mnt/pool1/blog", "blog", "/srv/appdata")
	if want := "/srv/appdata/blog"; got != want {
		t.Errorf("MapPath() = %q, want %q", got, want)
	}
}

func TestMapVolumesLeavesNamedVolumesUntouched(t *testing.T) {
	pm := NewPathMapper("blog", "/srv/appdata")
	named, _ := ParseSpec("blog_data:/data", "/srv/appdata")

	out := pm.MapVolumes([]Volume{named})
	if out[0].VolumeName != "blog_data" {
		t.Errorf("named volume was modified: %+v", out[0])
	}
	if RenderSpec(out[0]) != "blog_data:/data" {
		t.Errorf("RenderSpec(out[0]) = %q, want unchanged spec", RenderSpec(out[0]))
	}
}

func TestMapVolumesRewritesBindMountSourcePath(t *testing.T) {
	pm := NewPathMapper("blog", "/srv/appdata")
	bind, _ := ParseSpec("/mnt/pool1/blog/config:/data", "/mnt/pool1")

	out := pm.MapVolumes([]Volume{bind})
	if out[0].SourcePath != "/srv/appdata/blog/config" {
		t.Errorf("SourcePath = %q, want /srv/appdata/blog/config", out[0].SourcePath)
	}
}
