// Command configgen renders one config file per ctfoj binary from a shared
// base file, a profile-wide shared section and per-binary overrides.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"ctfoj/internal/app"

	"gopkg.in/yaml.v3"
)

type Profile struct {
	OutputDir string                   `yaml:"outputDir"`
	Shared    map[string]interface{}   `yaml:"shared"`
	Binaries  map[string]BinaryProfile `yaml:"binaries"`
}

type BinaryProfile struct {
	Base      string                 `yaml:"base"`
	Output    string                 `yaml:"output"`
	Overrides map[string]interface{} `yaml:"overrides"`
}

func main() {
	profilePath := flag.String("profile", "configs/dev-profile.yaml", "Path to config profile")
	outputDir := flag.String("output-dir", "", "Override output directory")
	only := flag.String("only", "", "Render a single binary")
	flag.Parse()

	if err := run(*profilePath, *outputDir, *only); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
}

func run(profilePath, outputDir, only string) error {
	profilePathAbs, err := filepath.Abs(profilePath)
	if err != nil {
		return fmt.Errorf("resolve profile path failed: %w", err)
	}
	profile, err := loadProfile(profilePathAbs)
	if err != nil {
		return err
	}
	if outputDir != "" {
		profile.OutputDir = outputDir
	}
	if profile.OutputDir == "" {
		return errors.New("output directory is required")
	}
	profileDir := filepath.Dir(profilePathAbs)
	if !filepath.IsAbs(profile.OutputDir) {
		profile.OutputDir = filepath.Join(profileDir, profile.OutputDir)
	}

	names := make([]string, 0, len(profile.Binaries))
	for name := range profile.Binaries {
		if only == "" || only == name {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no binary named %q in profile", only)
	}
	sort.Strings(names)

	for _, name := range names {
		path, err := render(profile, profileDir, profile.Binaries[name])
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Printf("%s -> %s\n", name, path)
	}
	return nil
}

// render merges base, shared and overrides in that order, checks the result
// decodes as a ctfoj config and writes it.
func render(profile *Profile, profileDir string, binary BinaryProfile) (string, error) {
	if binary.Base == "" {
		return "", errors.New("missing base config")
	}
	if !filepath.IsAbs(binary.Base) {
		binary.Base = filepath.Join(profileDir, binary.Base)
	}
	config, err := loadYAML(binary.Base)
	if err != nil {
		return "", err
	}
	config = normalizeValue(config)

	for _, layer := range []map[string]interface{}{profile.Shared, binary.Overrides} {
		if len(layer) == 0 {
			continue
		}
		config, err = mergeMap(config, normalizeValue(layer))
		if err != nil {
			return "", err
		}
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("marshal yaml failed: %w", err)
	}
	if _, err := app.ParseConfig(data); err != nil {
		return "", fmt.Errorf("rendered config is invalid: %w", err)
	}

	path, err := resolveOutputPath(profile.OutputDir, binary)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create output dir failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write yaml failed: %w", err)
	}
	return path, nil
}

func loadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile failed: %w", err)
	}
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile failed: %w", err)
	}
	if len(profile.Binaries) == 0 {
		return nil, errors.New("profile has no binaries")
	}
	return &profile, nil
}

func loadYAML(path string) (interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read yaml failed: %w", err)
	}
	var value interface{}
	if err := yaml.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("parse yaml failed: %w", err)
	}
	return value, nil
}

func resolveOutputPath(outputDir string, binary BinaryProfile) (string, error) {
	output := binary.Output
	if output == "" {
		output = filepath.Base(binary.Base)
	}
	if output == "" || output == "." {
		return "", errors.New("output path is empty")
	}
	if filepath.IsAbs(output) {
		return output, nil
	}
	return filepath.Join(outputDir, output), nil
}

// normalizeValue turns yaml's interface-keyed maps into string-keyed ones.
func normalizeValue(value interface{}) interface{} {
	switch typed := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			out[k] = normalizeValue(v)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			out[fmt.Sprint(k)] = normalizeValue(v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return value
	}
}

// mergeMap deep-merges override into base. Lists and scalars are replaced.
func mergeMap(base, override interface{}) (interface{}, error) {
	baseMap, ok := base.(map[string]interface{})
	if !ok {
		return nil, errors.New("base config is not a map")
	}
	overrideMap, ok := override.(map[string]interface{})
	if !ok {
		return nil, errors.New("override config is not a map")
	}

	merged := make(map[string]interface{}, len(baseMap))
	for k, v := range baseMap {
		merged[k] = v
	}
	for key, value := range overrideMap {
		baseChild, baseIsMap := merged[key].(map[string]interface{})
		overrideChild, overrideIsMap := value.(map[string]interface{})
		if !baseIsMap || !overrideIsMap {
			merged[key] = value
			continue
		}
		combined, err := mergeMap(baseChild, overrideChild)
		if err != nil {
			return nil, err
		}
		merged[key] = combined
	}
	return merged, nil
}
