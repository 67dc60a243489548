package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitializeDefaults(t *testing.T) {
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if Instance.Output.Dir != "." {
		t.Errorf("default output.dir is %q, want %q", Instance.Output.Dir, ".")
	}
	if Instance.Docdat.Type != "psp" {
		t.Errorf("default docdat.type is %q, want %q", Instance.Docdat.Type, "psp")
	}
}

// Initialize runs once per process; an explicit config file passed later
// must take effect through Reload.
func TestReloadReplacesInstance(t *testing.T) {
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "go-docdat.yaml")
	content := []byte("output:\n  dir: manuals\ndocdat:\n  type: ps1\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("writing config file failed: %v", err)
	}

	// The once guard makes a second Initialize a no-op.
	if err := Initialize(path); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}
	if Instance.Output.Dir == "manuals" {
		t.Fatal("second Initialize unexpectedly reloaded configuration")
	}

	if err := Reload(path); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if Instance.Output.Dir != "manuals" {
		t.Errorf("output.dir after Reload is %q, want %q", Instance.Output.Dir, "manuals")
	}
	if Instance.Docdat.Type != "ps1" {
		t.Errorf("docdat.type after Reload is %q, want %q", Instance.Docdat.Type, "ps1")
	}
	if !ConfigLoaded || ConfigFile != path {
		t.Errorf("config status not updated: loaded=%v file=%q", ConfigLoaded, ConfigFile)
	}

	// Keys absent from the file keep their defaults.
	if Instance.LogFormat != "human" {
		t.Errorf("log_format after Reload is %q, want default %q", Instance.LogFormat, "human")
	}

	// Restore defaults for any test running after this one.
	if err := Reload(""); err != nil {
		t.Fatalf("restoring defaults failed: %v", err)
	}
}
