package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/agentd-ai/agentd/pkg/types"
	"github.com/tidwall/jsonc"
)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/agentd/)
// 2. Project config (.agentd/ or agentd.json in the working directory)
// 3. AGENTD_CONFIG file
// 4. AGENTD_CONFIG_CONTENT inline JSON
// 5. Environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
	}

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadConfigFile(path, config, baseDir) == nil {
			loaded[absPath] = true
		}
	}

	// 1. XDG global config (~/.config/agentd/)
	globalPath := GetPaths().Config
	loadOnce(filepath.Join(globalPath, "agentd.json"), globalPath)
	loadOnce(filepath.Join(globalPath, "agentd.jsonc"), globalPath)

	// 2. Project config
	if directory != "" {
		projectConfigDir := filepath.Join(directory, ".agentd")
		loadOnce(filepath.Join(directory, "agentd.json"), directory)
		loadOnce(filepath.Join(directory, "agentd.jsonc"), directory)
		loadOnce(filepath.Join(projectConfigDir, "agentd.json"), projectConfigDir)
		loadOnce(filepath.Join(projectConfigDir, "agentd.jsonc"), projectConfigDir)
	}

	// 3. AGENTD_CONFIG file override
	if configPath := os.Getenv("AGENTD_CONFIG"); configPath != "" {
		configDir := filepath.Dir(configPath)
		loadOnce(configPath, configDir)
	}

	// 4. AGENTD_CONFIG_CONTENT inline JSON
	if configContent := os.Getenv("AGENTD_CONFIG_CONTENT"); configContent != "" {
		var inlineConfig types.Config
		if err := json.Unmarshal([]byte(configContent), &inlineConfig); err == nil {
			mergeConfig(config, &inlineConfig)
		}
	}

	// 5. Environment variables (highest priority)
	applyEnvOverrides(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	// Strip JSONC comments using tidwall/jsonc
	data = jsonc.ToJSON(data)

	// Apply interpolation
	data = interpolate(data, baseDir)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	// Handle {env:VAR_NAME} placeholders
	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	// Handle {file:path} placeholders
	filePattern := regexp.MustCompile(`\{file:([^}]+)\}`)
	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		// Resolve path
		if strings.HasPrefix(filePath, "~/") {
			home := os.Getenv("HOME")
			filePath = filepath.Join(home, filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		// Escape for JSON string
		escaped := strings.ReplaceAll(string(content), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")

		return escaped
	})

	return []byte(str)
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Model != "" {
		target.Model = source.Model
	}

	// Merge providers
	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	// Merge tool server settings
	if source.ToolServer.Addr != "" {
		target.ToolServer.Addr = source.ToolServer.Addr
	}
	if source.ToolServer.DialTimeout != 0 {
		target.ToolServer.DialTimeout = source.ToolServer.DialTimeout
	}
	if source.ToolServer.ElicitationTimeout != 0 {
		target.ToolServer.ElicitationTimeout = source.ToolServer.ElicitationTimeout
	}

	// Merge session settings
	if source.Session.IdleTimeout != 0 {
		target.Session.IdleTimeout = source.Session.IdleTimeout
	}
	if source.Session.InboxSize != 0 {
		target.Session.InboxSize = source.Session.InboxSize
	}
	if source.Session.IntentGate {
		target.Session.IntentGate = true
	}

	// Merge channel settings
	if source.Channels.Console {
		target.Channels.Console = true
	}
	if source.Channels.TCPAddr != "" {
		target.Channels.TCPAddr = source.Channels.TCPAddr
	}
	if source.Channels.WebAddr != "" {
		target.Channels.WebAddr = source.Channels.WebAddr
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	// Provider API keys
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
	}

	for provider, envVar := range providerEnvMap {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			if config.Provider == nil {
				config.Provider = make(map[string]types.ProviderConfig)
			}
			p := config.Provider[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				config.Provider[provider] = p
			}
		}
	}

	// Model override
	if model := os.Getenv("AGENTD_MODEL"); model != "" {
		config.Model = model
	}

	// Tool server address override
	if addr := os.Getenv("AGENTD_TOOL_SERVER"); addr != "" {
		config.ToolServer.Addr = addr
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
