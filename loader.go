// FILE: lixenwraith/phaseconf/loader.go
package phaseconf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// SourceKind names one standard configuration source, used to define load precedence
type SourceKind string

const (
	// SourceDefault represents schema default values
	SourceDefault SourceKind = "default"
	// SourceFile represents values loaded from a configuration file
	SourceFile SourceKind = "file"
	// SourceEnv represents values loaded from environment variables
	SourceEnv SourceKind = "env"
	// SourceCLI represents values loaded from command-line arguments
	SourceCLI SourceKind = "cli"
)

// Ordinals of the built-in sources. Higher ordinals win.
const (
	OrdinalDefaultValues   = -1000
	OrdinalRunTimeDefaults = -500
	OrdinalBuildTimeConfig = 100
	// ordinalTop is the ordinal of the first entry of LoadOptions.Sources
	ordinalTop  = 400
	ordinalStep = 100
)

// EnvTransformFunc converts a configuration path to an environment variable name
type EnvTransformFunc func(path string) string

// LoadOptions configures how configuration is loaded from multiple sources
type LoadOptions struct {
	// Sources defines the precedence order (first = highest priority)
	// Default: [SourceCLI, SourceEnv, SourceFile, SourceDefault]
	Sources []SourceKind

	// EnvPrefix is prepended to environment variable names
	// Example: "MYAPP_" transforms "server.port" to "MYAPP_SERVER_PORT"
	EnvPrefix string

	// EnvTransform customizes how paths map to environment variables
	// If nil, uses default transformation (dots to underscores, uppercase)
	EnvTransform EnvTransformFunc

	// EnvWhitelist limits which paths are checked for env vars (nil = all)
	EnvWhitelist map[string]bool

	// FileFormat forces the file format ("toml", "json", "yaml"); empty or "auto" detects it
	FileFormat string

	// Security restricts which files may be read, nil disables the checks
	Security *SecurityOptions
}

// SecurityOptions restricts configuration file access
type SecurityOptions struct {
	PreventPathTraversal bool
	EnforceFileOwnership bool
	MaxFileSize          int64
}

// DefaultLoadOptions returns the standard load options
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Sources: []SourceKind{SourceCLI, SourceEnv, SourceFile, SourceDefault},
	}
}

// OrdinalOf returns the ordinal of a source kind under opts, false when the kind is not listed.
func (opts LoadOptions) OrdinalOf(kind SourceKind) (int, bool) {
	for i, k := range opts.Sources {
		if k == kind {
			return ordinalTop - i*ordinalStep, true
		}
	}
	return 0, false
}

// readConfigFile reads a configuration file under the security options
func readConfigFile(path string, sec *SecurityOptions) ([]byte, error) {
	// Security: Path traversal check
	if sec != nil && sec.PreventPathTraversal {
		cleanPath := filepath.Clean(path)
		if strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) || cleanPath == ".." {
			return nil, fmt.Errorf("potential path traversal detected in config path: %s", path)
		}
		if filepath.IsAbs(cleanPath) && !filepath.IsAbs(path) {
			return nil, fmt.Errorf("potential path traversal detected in config path: %s", path)
		}
	}

	fileInfo, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat config file '%s': %w", path, err)
	}

	if sec != nil && sec.MaxFileSize > 0 && fileInfo.Size() > sec.MaxFileSize {
		return nil, fmt.Errorf("config file '%s' exceeds maximum size %d bytes", path, sec.MaxFileSize)
	}

	// Security: File ownership check (Unix only)
	if sec != nil && sec.EnforceFileOwnership && runtime.GOOS != "windows" {
		if stat, ok := fileInfo.Sys().(*syscall.Stat_t); ok {
			if stat.Uid != uint32(os.Geteuid()) {
				return nil, fmt.Errorf("config file '%s' is not owned by current user (file UID: %d, process UID: %d)",
					path, stat.Uid, os.Geteuid())
			}
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file '%s': %w", path, err)
	}
	defer file.Close()

	var reader io.Reader = file
	if sec != nil && sec.MaxFileSize > 0 {
		reader = io.LimitReader(file, sec.MaxFileSize)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	return data, nil
}

// parseDocument decodes a TOML, JSON or YAML document into a nested map
func parseDocument(data []byte, format, name string) (map[string]any, error) {
	doc := make(map[string]any)
	switch format {
	case "toml":
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config file '%s': %w", name, err)
		}
	case "json":
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.UseNumber() // Preserve number precision
		if err := decoder.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config file '%s': %w", name, err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config file '%s': %w", name, err)
		}
	default:
		return nil, fmt.Errorf("unable to determine config format for file '%s'", name)
	}
	return doc, nil
}

// resolveFormat picks the document format from a hint, the extension, then the content
func resolveFormat(hint, path string, data []byte) string {
	if hint != "" && hint != "auto" {
		return hint
	}
	if format := detectFileFormat(path); format != "" {
		return format
	}
	return detectFormatFromContent(data)
}

// defaultEnvTransform creates the default environment variable transformer
func defaultEnvTransform(prefix string) EnvTransformFunc {
	return func(path string) string {
		env := strings.ReplaceAll(path, ".", "_")
		env = strings.ReplaceAll(env, "-", "_")
		env = strings.ToUpper(env)
		if prefix != "" {
			env = prefix + env
		}
		return env
	}
}

// atomicWriteFile performs atomic file write
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	tempPath := tempFile.Name()
	defer os.Remove(tempPath) // Clean up on any error

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

// parseArgs processes command-line arguments into a flat map of dotted keys.
// Values are kept as raw strings; converters handle typing.
func parseArgs(args []string) (map[string]string, error) {
	result := make(map[string]string)
	i := 0
	for i < len(args) {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			// Skip non-flag arguments
			i++
			continue
		}

		argContent := strings.TrimPrefix(arg, "--")
		if argContent == "" {
			// Skip "--" argument if used as a separator
			i++
			continue
		}

		var keyPath string
		var valueStr string

		// Check for "--key=value" format
		if strings.Contains(argContent, "=") {
			parts := strings.SplitN(argContent, "=", 2)
			keyPath = parts[0]
			valueStr = parts[1]
			i++
		} else {
			// Handle "--key value" or "--booleanflag"
			keyPath = argContent
			if i+1 >= len(args) || strings.HasPrefix(args[i+1], "--") {
				valueStr = "true"
				i++
			} else {
				valueStr = args[i+1]
				i += 2
			}
		}

		if keyPath == "" {
			// Skip invalid flags like --=value
			continue
		}

		// Map keys are free-form; only reject empty segments and whitespace.
		for _, segment := range splitSegments(keyPath) {
			if segment == "" || strings.ContainsAny(segment, " \t\n") {
				return nil, fmt.Errorf("invalid command-line key segment %q in path %q", segment, keyPath)
			}
		}
		if len(valueStr) > MaxValueSize {
			return nil, ErrValueSize
		}

		result[keyPath] = valueStr
	}

	return result, nil
}

// detectFileFormat determines format from file extension
func detectFileFormat(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml", ".tml":
		return "toml"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		// .conf, .config and unknown extensions are detected from content
		return ""
	}
}

// detectFormatFromContent attempts to detect format by parsing
func detectFormatFromContent(data []byte) string {
	// Try JSON first (strict format)
	var jsonTest any
	if err := json.Unmarshal(data, &jsonTest); err == nil {
		return "json"
	}

	// TOML before YAML: most TOML documents are not valid YAML, but key = value lines
	// can slip through a lenient YAML parse as plain scalars
	var tomlTest map[string]any
	if err := toml.Unmarshal(data, &tomlTest); err == nil {
		return "toml"
	}

	var yamlTest map[string]any
	if err := yaml.Unmarshal(data, &yamlTest); err == nil {
		return "yaml"
	}

	return ""
}
