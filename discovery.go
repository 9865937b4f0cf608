// FILE: lixenwraith/phaseconf/discovery.go
package phaseconf

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// FileDiscoveryOptions configures how Build locates the configuration file when WithFile
// was not called. An explicit path may come from a CLI flag or an environment variable;
// otherwise the search directories are scanned for Name plus one of Extensions.
type FileDiscoveryOptions struct {
	// Name is the base name of the file, without extension
	Name string

	// Extensions are tried in order within each directory
	Extensions []string

	// Paths are searched before the current and XDG directories
	Paths []string

	// EnvVar names an environment variable holding an explicit path
	EnvVar string

	// CLIFlag names a flag holding an explicit path, e.g. "--config"
	CLIFlag string

	UseXDG        bool
	UseCurrentDir bool
}

// DefaultDiscoveryOptions returns discovery options for an application name
func DefaultDiscoveryOptions(appName string) FileDiscoveryOptions {
	return FileDiscoveryOptions{
		Name:          appName,
		Extensions:    []string{".toml", ".yaml", ".yml", ".json", ".conf", ".config"},
		EnvVar:        strings.ToUpper(appName) + "_CONFIG",
		CLIFlag:       "--config",
		UseXDG:        true,
		UseCurrentDir: true,
	}
}

// DiscoveredFile is the outcome of file discovery.
// Via is the source kind that named the path: SourceCLI for the flag, SourceEnv for the
// environment variable and SourceFile for a directory search.
type DiscoveredFile struct {
	Path string
	Via  SourceKind
}

// discover resolves the configuration file under the precedence of opts.Sources: an explicit
// path named by a higher-ranked source kind wins, and directory search ranks last. The CLI
// flag is removed from the returned arguments so the CLI source never sees it. Nothing is
// discovered when the file source is disabled.
func (o FileDiscoveryOptions) discover(load LoadOptions, args []string) (DiscoveredFile, []string) {
	if _, ok := load.OrdinalOf(SourceFile); !ok {
		return DiscoveredFile{}, args
	}

	var flagPath string
	if _, ok := load.OrdinalOf(SourceCLI); ok {
		flagPath, args = o.takeFlag(args)
	}
	explicit := map[SourceKind]string{SourceCLI: flagPath}
	if _, ok := load.OrdinalOf(SourceEnv); ok && o.EnvVar != "" {
		explicit[SourceEnv] = os.Getenv(o.EnvVar)
	}

	for _, kind := range load.Sources {
		if path := explicit[kind]; path != "" {
			return DiscoveredFile{Path: path, Via: kind}, args
		}
	}

	for _, dir := range o.searchDirs() {
		for _, ext := range o.Extensions {
			path := filepath.Join(dir, o.Name+ext)
			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				return DiscoveredFile{Path: path, Via: SourceFile}, args
			}
		}
	}
	// Not an error, the application can run on defaults and env
	return DiscoveredFile{}, args
}

// takeFlag extracts the value of the discovery flag, in "--config path" or "--config=path"
// form. The last occurrence wins, as it does for the CLI source.
func (o FileDiscoveryOptions) takeFlag(args []string) (string, []string) {
	if o.CLIFlag == "" {
		return "", args
	}
	var path string
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == o.CLIFlag && i+1 < len(args):
			path = args[i+1]
			i++
		case strings.HasPrefix(arg, o.CLIFlag+"="):
			path = strings.TrimPrefix(arg, o.CLIFlag+"=")
		default:
			rest = append(rest, arg)
		}
	}
	return path, rest
}

func (o FileDiscoveryOptions) searchDirs() []string {
	dirs := slices.Clone(o.Paths)
	if o.UseCurrentDir {
		if cwd, err := os.Getwd(); err == nil {
			dirs = append(dirs, cwd)
		}
	}
	if o.UseXDG {
		dirs = append(dirs, xdgConfigDirs(o.Name)...)
	}
	return dirs
}

// xdgConfigDirs returns the XDG configuration directories of an application
func xdgConfigDirs(appName string) []string {
	var dirs []string
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		dirs = append(dirs, filepath.Join(xdgHome, appName))
	} else if home := os.Getenv("HOME"); home != "" {
		dirs = append(dirs, filepath.Join(home, ".config", appName))
	}

	if xdgDirs := os.Getenv("XDG_CONFIG_DIRS"); xdgDirs != "" {
		for _, dir := range filepath.SplitList(xdgDirs) {
			dirs = append(dirs, filepath.Join(dir, appName))
		}
	} else {
		dirs = append(dirs, filepath.Join("/etc/xdg", appName), filepath.Join("/etc", appName))
	}
	return dirs
}
