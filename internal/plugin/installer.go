package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Installer handles plugin installation and management.
type Installer struct {
	registry           *Registry
	cwd                string
	marketplaces       map[string]MarketplaceSource
	marketplaceManager *MarketplaceManager
}

// NewInstaller builds a plugin installer.
func NewInstaller(registry *Registry, cwd string) *Installer {
	return &Installer{
		registry:           registry,
		cwd:                cwd,
		marketplaces:       make(map[string]MarketplaceSource),
		marketplaceManager: NewMarketplaceManager(cwd),
	}
}

// LoadMarketplaces loads known marketplace definitions.
func (i *Installer) LoadMarketplaces() error {
	if err := i.marketplaceManager.Load(); err != nil {
		return err
	}

	// Sync marketplace manager data to i.marketplaces
	for _, id := range i.marketplaceManager.List() {
		entry, ok := i.marketplaceManager.Get(id)
		if !ok {
			continue
		}
		source := MarketplaceSource{
			Name: id,
			Type: entry.Source.Source,
		}
		switch entry.Source.Source {
		case "github":
			source.Repository = entry.Source.Repo
		case "directory":
			source.Path = entry.Source.Path
		}
		i.marketplaces[id] = source
	}

	homeDir, _ := os.UserHomeDir()

	// Also load legacy format for backward compatibility
	paths := []string{
		filepath.Join(homeDir, ".vtcode", "plugins", "known_marketplaces.json"),
		filepath.Join(i.cwd, ".vtcode", "plugins", "known_marketplaces.json"),
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var km KnownMarketplaces
		if err := json.Unmarshal(data, &km); err != nil {
			continue
		}
		for _, m := range km.Marketplaces {
			i.marketplaces[m.Name] = m
		}
	}

	return nil
}

// ParsePluginRef parses a plugin reference like "git@my-marketplace" or "git".
func ParsePluginRef(ref string) (name, marketplace string) {
	parts := strings.SplitN(ref, "@", 2)
	name = parts[0]
	if len(parts) > 1 {
		marketplace = parts[1]
	}
	return
}

// Install installs a plugin from a reference.
// Reference format: "plugin-name@marketplace" or "plugin-name" (searched in
// every known marketplace)
func (i *Installer) Install(ctx context.Context, ref string, scope Scope) error {
	name, marketplace := ParsePluginRef(ref)

	source, ok := i.marketplaces[marketplace]
	if !ok && marketplace != "" {
		return fmt.Errorf("unknown marketplace: %s", marketplace)
	}

	installDir := i.getInstallDir(scope)
	pluginPath := filepath.Join(installDir, name)

	if err := os.MkdirAll(installDir, 0755); err != nil {
		return fmt.Errorf("failed to create install directory: %w", err)
	}

	// Install based on source type
	var err error
	switch source.Type {
	case "directory":
		srcPath, pathErr := i.marketplaceManager.GetPluginPath(marketplace, name)
		if pathErr != nil {
			// Fallback to direct path
			srcPath = filepath.Join(source.Path, name)
		}
		err = copyDir(srcPath, pluginPath)
	case "github":
		if syncErr := i.marketplaceManager.Sync(ctx, marketplace); syncErr != nil {
			return fmt.Errorf("failed to sync marketplace %s: %w", marketplace, syncErr)
		}
		srcPath, pathErr := i.marketplaceManager.GetPluginPath(marketplace, name)
		if pathErr != nil {
			return fmt.Errorf("plugin %s not found in marketplace %s: %w", name, marketplace, pathErr)
		}
		err = copyDir(srcPath, pluginPath)
	default:
		if marketplace == "" {
			for mktID := range i.marketplaces {
				srcPath, pathErr := i.marketplaceManager.GetPluginPath(mktID, name)
				if pathErr == nil {
					err = copyDir(srcPath, pluginPath)
					marketplace = mktID
					break
				}
			}
		}
		if marketplace == "" {
			return fmt.Errorf("could not find plugin: %s", name)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to install plugin: %w", err)
	}

	fullName := name
	if marketplace != "" {
		fullName = name + "@" + marketplace
	}
	if err := i.addToInstalled(scope, InstalledPlugin{
		Name:        name,
		Source:      fullName,
		Path:        pluginPath,
		InstalledAt: time.Now().Format(time.RFC3339),
	}); err != nil {
		return err
	}

	plugin, err := LoadPlugin(pluginPath, scope, fullName)
	if err != nil {
		return fmt.Errorf("failed to load installed plugin: %w", err)
	}
	plugin.Enabled = true
	i.registry.Register(plugin)

	// Enable the plugin
	return i.registry.Enable(fullName, scope)
}

// Uninstall removes a plugin.
func (i *Installer) Uninstall(name string, scope Scope) error {
	plugin, ok := i.registry.Get(name)
	if !ok {
		return fmt.Errorf("plugin not found: %s", name)
	}

	if plugin.Path != "" {
		if err := os.RemoveAll(plugin.Path); err != nil {
			return fmt.Errorf("failed to remove plugin directory: %w", err)
		}
	}

	if err := i.removeFromInstalled(scope, plugin.FullName()); err != nil {
		return err
	}

	// Unregister from registry
	i.registry.Unregister(plugin.FullName())

	return nil
}

// Update updates a plugin to the latest version.
func (i *Installer) Update(ctx context.Context, name string, scope Scope) error {
	plugin, ok := i.registry.Get(name)
	if !ok {
		return fmt.Errorf("plugin not found: %s", name)
	}

	// For git-based plugins, try git pull
	gitDir := filepath.Join(plugin.Path, ".git")
	if _, err := os.Stat(gitDir); err == nil {
		cmd := exec.CommandContext(ctx, "git", "-C", plugin.Path, "pull", "--ff-only")
		return cmd.Run()
	}

	// For directory-based plugins, re-install
	return i.Install(ctx, plugin.FullName(), scope)
}

// getInstallDir reports the installation directory for a scope.
func (i *Installer) getInstallDir(scope Scope) string {
	homeDir, _ := os.UserHomeDir()

	switch scope {
	case ScopeUser:
		return filepath.Join(homeDir, ".vtcode", "plugins", "cache")
	case ScopeProject:
		return filepath.Join(i.cwd, ".vtcode", "plugins")
	case ScopeLocal:
		return filepath.Join(i.cwd, ".vtcode", "plugins-local")
	default:
		return filepath.Join(homeDir, ".vtcode", "plugins", "cache")
	}
}

// addToInstalled adds a plugin to installed_plugins.json using v2 format.
func (i *Installer) addToInstalled(scope Scope, plugin InstalledPlugin) error {
	return i.addToInstalledV2(scope, plugin.Source, PluginInstallInfo{
		Scope:       string(scope),
		InstallPath: plugin.Path,
		Version:     plugin.Version,
		InstalledAt: plugin.InstalledAt,
		LastUpdated: plugin.InstalledAt,
	})
}

// addToInstalledV2 adds a plugin to installed_plugins.json using v2 format.
func (i *Installer) addToInstalledV2(scope Scope, pluginKey string, info PluginInstallInfo) error {
	installedFile := GetInstalledPluginsFile(i.cwd, scope)
	if err := os.MkdirAll(filepath.Dir(installedFile), 0755); err != nil {
		return err
	}

	v2 := loadInstalledPluginsV2(installedFile)
	existing := v2.Plugins[pluginKey]

	updated := false
	for idx, inst := range existing {
		if inst.Scope == info.Scope {
			existing[idx] = info
			updated = true
			break
		}
	}
	if !updated {
		existing = append([]PluginInstallInfo{info}, existing...)
	}
	v2.Plugins[pluginKey] = existing

	data, err := json.MarshalIndent(v2, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(installedFile, data, 0644)
}

// loadInstalledPluginsV2 loads the installed plugins in v2 format.
func loadInstalledPluginsV2(path string) *InstalledPluginsV2 {
	v2 := &InstalledPluginsV2{
		Version: 2,
		Plugins: make(map[string][]PluginInstallInfo),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return v2
	}

	if err := json.Unmarshal(data, v2); err == nil && v2.Version == 2 {
		if v2.Plugins == nil {
			v2.Plugins = make(map[string][]PluginInstallInfo)
		}
		return v2
	}

	var v1 []InstalledPlugin
	if err := json.Unmarshal(data, &v1); err == nil {
		for _, p := range v1 {
			info := PluginInstallInfo{
				Scope:       "user",
				InstallPath: p.Path,
				Version:     p.Version,
				InstalledAt: p.InstalledAt,
			}
			v2.Plugins[p.Source] = append(v2.Plugins[p.Source], info)
		}
	}

	return v2
}

// removeFromInstalled removes a plugin from installed_plugins.json.
func (i *Installer) removeFromInstalled(scope Scope, source string) error {
	installedFile := GetInstalledPluginsFile(i.cwd, scope)

	v2 := loadInstalledPluginsV2(installedFile)

	if entries, ok := v2.Plugins[source]; ok {
		var filtered []PluginInstallInfo
		for _, e := range entries {
			if e.Scope != string(scope) {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(v2.Plugins, source)
		} else {
			v2.Plugins[source] = filtered
		}
	}

	if len(v2.Plugins) == 0 {
		return os.Remove(installedFile)
	}

	data, err := json.MarshalIndent(v2, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(installedFile, data, 0644)
}


// copyDir copies a directory recursively.
func copyDir(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !srcInfo.IsDir() {
		return fmt.Errorf("source is not a directory: %s", src)
	}

	if err := os.MkdirAll(dst, srcInfo.Mode()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
		} else {
			if err := copyFile(srcPath, dstPath); err != nil {
				return err
			}
		}
	}

	return nil
}

// copyFile copies a single file.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}

	return os.WriteFile(dst, data, srcInfo.Mode())
}

// ListInstalled returns all installed plugins for a scope.
func (i *Installer) ListInstalled(scope Scope) ([]InstalledPlugin, error) {
	installedFile := GetInstalledPluginsFile(i.cwd, scope)

	data, err := os.ReadFile(installedFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	if len(data) == 0 {
		return nil, nil
	}

	// loadInstalledPluginsV2 reads both the v2 map and the legacy v1 array.
	var installed []InstalledPlugin
	for source, installs := range loadInstalledPluginsV2(installedFile).Plugins {
		info := findInstallForScope(installs, scope)
		if info == nil {
			continue
		}
		name, _ := ParsePluginRef(source)
		installed = append(installed, InstalledPlugin{Name: name, Source: source, Path: info.InstallPath, Version: info.Version, InstalledAt: info.InstalledAt})
	}
	return installed, nil
}

// GetMarketplaces returns all known marketplaces.
func (i *Installer) GetMarketplaces() []MarketplaceSource {
	result := make([]MarketplaceSource, 0, len(i.marketplaces))
	for _, m := range i.marketplaces {
		result = append(result, m)
	}
	return result
}

// AddMarketplace adds a new marketplace source.
func (i *Installer) AddMarketplace(source MarketplaceSource) error {
	homeDir, _ := os.UserHomeDir()
	path := filepath.Join(homeDir, ".vtcode", "plugins", "known_marketplaces.json")

	var km KnownMarketplaces
	if data, err := os.ReadFile(path); err == nil {
		json.Unmarshal(data, &km)
	}

	for idx, m := range km.Marketplaces {
		if m.Name == source.Name {
			km.Marketplaces[idx] = source
			data, _ := json.MarshalIndent(km, "", "  ")
			return os.WriteFile(path, data, 0644)
		}
	}

	km.Marketplaces = append(km.Marketplaces, source)
	i.marketplaces[source.Name] = source

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(km, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
