package aperturecfg

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(dir)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	cfg, err := mgr.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultTimeoutSecs != 30 {
		t.Errorf("want default timeout 30, got %d", cfg.DefaultTimeoutSecs)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(dir)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	cfg := Default()
	if err := cfg.AddAPI("petstore", APIConfig{SpecPath: filepath.Join(mgr.SpecsDir(), "petstore.yaml")}); err != nil {
		t.Fatalf("add api: %v", err)
	}
	if err := cfg.SetURL("petstore", "", "https://api.example.com"); err != nil {
		t.Fatalf("set url: %v", err)
	}
	if err := cfg.SetURL("petstore", "staging", "https://staging.example.com"); err != nil {
		t.Fatalf("set env url: %v", err)
	}
	if err := mgr.Save(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := mgr.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	base, envs, err := loaded.ListURLs("petstore")
	if err != nil {
		t.Fatalf("list urls: %v", err)
	}
	if base != "https://api.example.com" {
		t.Errorf("want base url preserved, got %s", base)
	}
	if envs["staging"] != "https://staging.example.com" {
		t.Errorf("want staging url preserved, got %v", envs)
	}
}

func TestAddAPIRejectsDuplicateAndInvalidName(t *testing.T) {
	cfg := Default()
	if err := cfg.AddAPI("petstore", APIConfig{}); err != nil {
		t.Fatalf("add api: %v", err)
	}
	if err := cfg.AddAPI("petstore", APIConfig{}); err == nil {
		t.Fatal("expected error for duplicate API name")
	}
	if err := cfg.AddAPI("../etc", APIConfig{}); err == nil {
		t.Fatal("expected error for invalid API name")
	}
}

func TestRemoveAPIRequiresExisting(t *testing.T) {
	cfg := Default()
	if err := cfg.RemoveAPI("missing"); err == nil {
		t.Fatal("expected error removing unknown API")
	}
	_ = cfg.AddAPI("petstore", APIConfig{})
	if err := cfg.RemoveAPI("petstore"); err != nil {
		t.Fatalf("remove api: %v", err)
	}
	if len(cfg.ListAPIs()) != 0 {
		t.Errorf("expected no APIs remaining, got %v", cfg.ListAPIs())
	}
}

func TestSetSecretAndListSecrets(t *testing.T) {
	cfg := Default()
	_ = cfg.AddAPI("petstore", APIConfig{})
	if err := cfg.SetSecret("petstore", "apiKeyAuth", "PETSTORE_API_KEY"); err != nil {
		t.Fatalf("set secret: %v", err)
	}
	secrets, err := cfg.ListSecrets("petstore")
	if err != nil {
		t.Fatalf("list secrets: %v", err)
	}
	if secrets["apiKeyAuth"] != "PETSTORE_API_KEY" {
		t.Errorf("unexpected secrets: %v", secrets)
	}
}

func TestInvocationRetryDefaultsParsesDurations(t *testing.T) {
	cfg := Default()
	cfg.RetryDefaults.BaseDelay = "500ms"
	cfg.RetryDefaults.MaxDelay = "10s"
	retry := cfg.InvocationRetryDefaults()
	if retry.BaseDelay.String() != "500ms" {
		t.Errorf("unexpected base delay: %v", retry.BaseDelay)
	}
	if retry.MaxDelay.String() != "10s" {
		t.Errorf("unexpected max delay: %v", retry.MaxDelay)
	}
}

func TestValidateAPIName(t *testing.T) {
	valid := []string{"petstore", "my-api", "api_v2", "a"}
	for _, name := range valid {
		if err := ValidateAPIName(name); err != nil {
			t.Errorf("expected %q to be valid, got %v", name, err)
		}
	}
	invalid := []string{"", "-leading", ".leading", "has/slash"}
	for _, name := range invalid {
		if err := ValidateAPIName(name); err == nil {
			t.Errorf("expected %q to be invalid", name)
		}
	}
}
