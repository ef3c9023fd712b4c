// Package config provides configuration loading, merging, and path management
// for agentd.
//
// # Configuration Loading
//
// The Load function searches for and merges configuration from multiple
// sources in priority order:
//
//  1. Global config (~/.config/agentd/ - XDG compatible)
//  2. Project config (agentd.json/agentd.jsonc or .agentd/ in the working
//     directory)
//  3. AGENTD_CONFIG file
//  4. AGENTD_CONFIG_CONTENT inline JSON
//  5. Environment variables
//
// More specific sources override more general ones; environment variables
// have the highest precedence.
//
// # Supported Formats
//
// Both JSON and JSONC (JSON with Comments) formats are accepted:
//   - agentd.json - Standard JSON configuration
//   - agentd.jsonc - JSON with comments, processed using tidwall/jsonc
//
// # Variable Interpolation
//
// Configuration files support two types of variable interpolation:
//   - {env:VAR_NAME} - Expands to environment variable values
//   - {file:path} - Expands to file contents (properly escaped for JSON)
//
// File paths in {file:path} placeholders support absolute paths, relative
// paths (resolved relative to the config file directory), and home directory
// expansion (~/).
//
// Example:
//
//	{
//	  "provider": {
//	    "anthropic": {
//	      "apiKey": "{env:ANTHROPIC_API_KEY}"
//	    }
//	  },
//	  "toolServer": {
//	    "addr": "127.0.0.1:9001"
//	  }
//	}
//
// # Environment Variable Overrides
//
// Several environment variables provide direct configuration overrides:
//   - AGENTD_MODEL - Override the default model
//   - AGENTD_TOOL_SERVER - Override the tool server address
//   - AGENTD_CONFIG - Path to a specific config file
//   - AGENTD_CONFIG_CONTENT - Inline JSON configuration
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY - Provider credentials
//
// # Path Management
//
// The package provides XDG Base Directory Specification compliant path
// management through the Paths type:
//   - Data: ~/.local/share/agentd (XDG_DATA_HOME)
//   - Config: ~/.config/agentd (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/agentd (XDG_CACHE_HOME)
//   - State: ~/.local/state/agentd (XDG_STATE_HOME)
//
// On Windows, these paths are adapted to use APPDATA as appropriate.
package config
