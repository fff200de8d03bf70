package jobs

import (
	"errors"
	"testing"
)

func TestRegistryParse(t *testing.T) {
	data := []byte(`
jobs:
  - name: wiki
    index: search-wiki
    source:
      mode: local
      local_path: /data/wiki
  - name: drive
    index: search-drive
    disabled: true
    source:
      mode: gcs
      gcs_bucket: corp-drive-export
  - name: crm
    index: search-crm
    source:
      mode: s3
      s3_bucket: crm-export
      s3_region: us-east-1
`)

	reg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	enabled := reg.Enabled()
	if len(enabled) != 2 {
		t.Fatalf("got %d enabled jobs, want 2", len(enabled))
	}
	// Sorted by name.
	if enabled[0].Name != "crm" || enabled[1].Name != "wiki" {
		t.Errorf("enabled order = %v, %v", enabled[0].Name, enabled[1].Name)
	}

	job, err := reg.Get("drive")
	if err != nil {
		t.Fatalf("Get(drive) failed: %v", err)
	}
	if !job.Disabled || job.Source.Mode != "gcs" || job.Source.GCSBucket != "corp-drive-export" {
		t.Errorf("drive = %+v", job)
	}

	if _, err := reg.Get("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get(nope) err = %v, want ErrJobNotFound", err)
	}

	if got := len(reg.All()); got != 3 {
		t.Errorf("All() = %d jobs, want 3", got)
	}
}

func TestRegistryValidation(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("empty registry must fail")
	}

	_, err := New([]Job{
		{Name: "a", Index: "idx-a"},
		{Name: "a", Index: "idx-b"},
	})
	if !errors.Is(err, ErrDuplicateJob) {
		t.Errorf("duplicate name err = %v, want ErrDuplicateJob", err)
	}

	if _, err := New([]Job{{Index: "idx"}}); err == nil {
		t.Error("nameless job must fail")
	}
	if _, err := New([]Job{{Name: "a"}}); err == nil {
		t.Error("indexless job must fail")
	}
}
