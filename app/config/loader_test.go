package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSeed(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write seed file: %v", err)
	}
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "food-tours.yml", `
channel:
  url: https://www.youtube.com/channel/UCfood1
  name: Food Tours Israel
settings:
  enabled: true
  priority: 5
  check_interval_hours: 12
`)
	writeSeed(t, dir, "street-food.yaml", `
channel:
  url: https://www.youtube.com/channel/UCfood2
settings:
  enabled: true
`)

	configs, err := NewLoader(dir).LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("Expected 2 configs, got %d", len(configs))
	}

	byURL := make(map[string]*ChannelConfig)
	for _, config := range configs {
		byURL[config.Channel.URL] = config
	}

	first := byURL["https://www.youtube.com/channel/UCfood1"]
	if first == nil {
		t.Fatal("Expected UCfood1 config loaded")
	}
	if first.Channel.Name != "Food Tours Israel" {
		t.Errorf("Expected channel name, got '%s'", first.Channel.Name)
	}
	if first.Settings.Priority != 5 || first.Settings.CheckIntervalHours != 12 {
		t.Errorf("Expected priority 5 / interval 12, got %d / %d",
			first.Settings.Priority, first.Settings.CheckIntervalHours)
	}

	second := byURL["https://www.youtube.com/channel/UCfood2"]
	if second == nil {
		t.Fatal("Expected UCfood2 config loaded")
	}
	if second.Settings.CheckIntervalHours != 24 {
		t.Errorf("Expected default interval 24, got %d", second.Settings.CheckIntervalHours)
	}
	if second.Channel.Name != second.Channel.URL {
		t.Errorf("Expected name defaulted to URL, got '%s'", second.Channel.Name)
	}
}

func TestLoadAllMissingDirectory(t *testing.T) {
	configs, err := NewLoader(filepath.Join(t.TempDir(), "missing")).LoadAll()
	if err != nil {
		t.Fatalf("Expected missing directory to be tolerated, got %v", err)
	}
	if len(configs) != 0 {
		t.Errorf("Expected no configs, got %d", len(configs))
	}
}

func TestLoadAllRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "broken.yml", `
channel:
  name: No URL Channel
settings:
  enabled: true
`)

	if _, err := NewLoader(dir).LoadAll(); err == nil {
		t.Error("Expected error for seed without channel URL")
	}
}

func TestLoadAllRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "garbage.yml", `channel: [unclosed`)

	if _, err := NewLoader(dir).LoadAll(); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}
