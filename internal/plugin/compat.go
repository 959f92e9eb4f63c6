package plugin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
)

const (
	// EnvLoadClaudePlugins controls whether to load Claude Code plugins.
	EnvLoadClaudePlugins = "VTCODE_LOAD_CLAUDE_PLUGINS"
)

// LoadClaudePlugins imports plugins from Claude Code's plugin
// directories, gated behind VTCODE_LOAD_CLAUDE_PLUGINS. The manifest
// formats are close enough that only the source suffix needs fixing up.
func (r *Registry) LoadClaudePlugins(ctx context.Context) error {
	if !IsClaudePluginLoadingEnabled() {
		return nil
	}

	homeDir, _ := os.UserHomeDir()
	claudeEnabled := loadClaudeEnabledPlugins(homeDir)

	for _, dir := range GetClaudePluginDirs() {
		plugins, err := LoadPluginsFromDir(dir, ScopeUser, "claude")
		if err != nil {
			continue
		}
		for _, p := range plugins {
			convertClaudePlugin(p)

			key := p.FullName()
			switch {
			case hasKey(claudeEnabled, key):
				p.Enabled = claudeEnabled[key]
			case hasKey(claudeEnabled, p.Name()):
				p.Enabled = claudeEnabled[p.Name()]
			default:
				// Present in the cache means installed; default on.
				p.Enabled = true
			}

			r.mu.Lock()
			r.plugins[key] = p
			r.mu.Unlock()
		}
	}
	return nil
}

func hasKey(m map[string]bool, k string) bool {
	_, ok := m[k]
	return ok
}

// loadClaudeEnabledPlugins reads the enabledPlugins map out of Claude
// Code's settings file.
func loadClaudeEnabledPlugins(homeDir string) map[string]bool {
	result := make(map[string]bool)

	settingsPath := filepath.Join(homeDir, ".claude", "settings.json")
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return result
	}

	var settings struct {
		EnabledPlugins map[string]bool `json:"enabledPlugins"`
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return result
	}

	return settings.EnabledPlugins
}

// convertClaudePlugin sets the source suffix for Claude Code plugins.
func convertClaudePlugin(p *Plugin) {
	if p.Source == "" {
		p.Source = p.Name() + "@claude"
	}
}

// GetClaudePluginDirs returns Claude Code plugin directories.
func GetClaudePluginDirs() []string {
	homeDir, _ := os.UserHomeDir()
	return []string{
		filepath.Join(homeDir, ".claude", "plugins", "cache"),
		filepath.Join(homeDir, ".claude", "plugins"),
	}
}

// IsClaudePluginLoadingEnabled returns whether Claude plugin loading is enabled.
func IsClaudePluginLoadingEnabled() bool {
	return os.Getenv(EnvLoadClaudePlugins) == "true"
}

// GetClaudeInstalledPlugins reads Claude Code's installed_plugins.json.
func GetClaudeInstalledPlugins() ([]InstalledPlugin, error) {
	homeDir, _ := os.UserHomeDir()
	installedFile := filepath.Join(homeDir, ".claude", "plugins", "installed_plugins.json")

	data, err := os.ReadFile(installedFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	// Try v2 format first
	var v2 InstalledPluginsV2
	if err := json.Unmarshal(data, &v2); err == nil && v2.Version == 2 {
		var installed []InstalledPlugin
		for source, installs := range v2.Plugins {
			if len(installs) == 0 {
				continue
			}
			info := installs[0]
			name, _ := ParsePluginRef(source)
			installed = append(installed, InstalledPlugin{
				Name:        name,
				Source:      source,
				Path:        info.InstallPath,
				Version:     info.Version,
				InstalledAt: info.InstalledAt,
			})
		}
		return installed, nil
	}

	// Fall back to v1 format
	var installed []InstalledPlugin
	if err := json.Unmarshal(data, &installed); err != nil {
		return nil, err
	}
	return installed, nil
}

// ConvertClaudeManifest maps a Claude Code manifest onto this module's
// Manifest type; the formats differ only at the edges.
func ConvertClaudeManifest(claudeManifest map[string]any) *Manifest {
	manifest := &Manifest{
		Author:     AuthorFromAny(claudeManifest["author"]),
		Commands:   claudeManifest["commands"],
		Agents:     claudeManifest["agents"],
		Skills:     claudeManifest["skills"],
		Hooks:      claudeManifest["hooks"],
		MCPServers: claudeManifest["mcpServers"],
		LSPServers: claudeManifest["lspServers"],
	}

	// Extract string fields
	stringFields := map[string]*string{
		"name":        &manifest.Name,
		"version":     &manifest.Version,
		"description": &manifest.Description,
		"homepage":    &manifest.Homepage,
		"repository":  &manifest.Repository,
		"license":     &manifest.License,
	}
	for key, target := range stringFields {
		if v, ok := claudeManifest[key].(string); ok {
			*target = v
		}
	}

	// Extract keywords
	if keywords, ok := claudeManifest["keywords"].([]any); ok {
		for _, k := range keywords {
			if s, ok := k.(string); ok {
				manifest.Keywords = append(manifest.Keywords, s)
			}
		}
	}

	return manifest
}

// SyncFromClaudeSettings mirrors enabled/disabled plugin state from
// Claude Code settings into the registry.
func SyncFromClaudeSettings(r *Registry) error {
	homeDir, _ := os.UserHomeDir()
	enabled := loadClaudeEnabledPlugins(homeDir)

	r.mu.Lock()
	defer r.mu.Unlock()

	for name, isEnabled := range enabled {
		for _, key := range []string{name, name + "@claude"} {
			if p, ok := r.plugins[key]; ok {
				p.Enabled = isEnabled
			}
		}
	}

	return nil
}
