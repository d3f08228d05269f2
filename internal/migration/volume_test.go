package migration

import "testing"

func TestParseSpecClassifiesBindMount(t *testing.T) {
	v, err := ParseSpec("${APPDATA_PATH}/blog:/data:ro", "/srv/appdata")
	if err != nil {
		t.Fatalf("ParseSpec returned error: %v", err)
	}
	if v.Kind != VolumeKindBind {
		t.Fatalf("Kind = %v, want bind", v.Kind)
	}
	if v.SourcePath != "/srv/appdata/blog" {
		t.Errorf("SourcePath = %q, want /srv/appdata/blog", v.SourcePath)
	}
	if v.Destination != "/data" || v.Mode != "ro" {
		t.Errorf("Destination/Mode = %q/%q, want /data/ro", v.Destination, v.Mode)
	}
}

func TestParseSpecClassifiesNamedVolume(t *testing.T) {
	v, err := ParseSpec("blog_data:/data", "/srv/appdata")
	if err != nil {
		t.Fatalf("ParseSpec returned error: %v", err)
	}
	if v.Kind != VolumeKindNamed {
		t.Fatalf("Kind = %v, want named", v.Kind)
	}
	if v.VolumeName != "blog_data" {
		t.Errorf("VolumeName = %q, want blog_data", v.VolumeName)
	}
}

func TestParseSpecRejectsMissingDestination(t *testing.T) {
	if _, err := ParseSpec("justasourcepath", "/srv/appdata"); err == nil {
		t.Fatal("expected error for spec with no destination")
	}
}

func TestRenderSpecRoundTripsThroughParse(t *testing.T) {
	specs := []string{
		"/srv/appdata/blog:/data:ro",
		"blog_data:/data",
		"./relative/path:/data:rw",
	}
	for _, s := range specs {
		v, err := ParseSpec(s, "/srv/appdata")
		if err != nil {
			t.Fatalf("ParseSpec(%q) returned error: %v", s, err)
		}
		if got := RenderSpec(v); got != s {
			t.Errorf("RenderSpec(ParseSpec(%q)) = %q, want %q", s, got, s)
		}
	}
}

func TestRenderSpecReconstructsWhenSpecCleared(t *testing.T) {
	v := Volume{Kind: VolumeKindBind, SourcePath: "/target/blog", Destination: "/data", Mode: "ro"}
	if got, want := RenderSpec(v), "/target/blog:/data:ro"; got != want {
		t.Errorf("RenderSpec() = %q, want %q", got, want)
	}

	v.Mode = ""
	if got, want := RenderSpec(v), "/target/blog:/data"; got != want {
		t.Errorf("RenderSpec() = %q, want %q", got, want)
	}
}

func TestBindMountsFiltersOutNamedVolumes(t *testing.T) {
	bind, _ := ParseSpec("/srv/appdata/blog:/data", "/srv/appdata")
	named, _ := ParseSpec("blog_data:/data", "/srv/appdata")

	out := BindMounts([]Volume{bind, named})
	if len(out) != 1 || out[0].Kind != VolumeKindBind {
		t.Fatalf("BindMounts() = %+v, want only the bind mount", out)
	}
}
