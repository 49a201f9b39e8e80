package configutils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// ImportKey lists files merged beneath a configuration file.
var ImportKey = "imports"

// ResolveAndMergeFile reads filePath into v, with every file it imports
// merged first.
func ResolveAndMergeFile(v *viper.Viper, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return err
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == "" {
		return errors.New("configuration file has no extension")
	}

	if !slices.Contains(viper.SupportedExts, ext[1:]) {
		return fmt.Errorf("unsupported configuration file extension: %s", ext)
	}
	v.SetConfigType(ext[1:])
	v.SetConfigFile(filePath)
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	if err := resolveAllImports(v); err != nil {
		return fmt.Errorf("could not resolve configuration imports: %v", err)
	}

	return nil
}

// resolveImports appends the imports of v to configs depth first, children
// before parents. Each file is visited once.
func resolveImports(v *viper.Viper, configs *[]string, visited map[string]struct{}) error {
	for _, i := range v.GetStringSlice(ImportKey) {
		if i == "" {
			continue
		}

		path := filepath.Clean(i)
		if !filepath.IsAbs(i) {
			path = filepath.Join(filepath.Dir(v.ConfigFileUsed()), i)
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return err
		}
		if _, ok := visited[path]; ok {
			continue
		}
		visited[path] = struct{}{}

		child := viper.New()
		child.SetConfigFile(path)
		if err := child.ReadInConfig(); err != nil {
			return err
		}
		if err := resolveImports(child, configs, visited); err != nil {
			return err
		}
		*configs = append(*configs, path)
	}
	return nil
}

func resolveAllImports(v *viper.Viper) error {
	var configs []string
	if err := resolveImports(v, &configs, map[string]struct{}{}); err != nil {
		return err
	}

	configs = append(configs, v.ConfigFileUsed())
	for _, configFilePath := range configs {
		if err := mergeConfigFile(v, configFilePath); err != nil {
			return fmt.Errorf("merging config %s: %w", configFilePath, err)
		}
	}

	return nil
}

func mergeConfigFile(v *viper.Viper, filePath string) error {
	r, err := os.Open(filePath)
	if err != nil {
		return err
	}

	defer func() { _ = r.Close() }()
	return v.MergeConfig(r)
}

// BindEnvsRecursive binds every mapstructure-tagged field of the struct
// pointed to by iface (recursing into nested structs) to its environment
// variable, so that v.Unmarshal sees values supplied only through the
// environment. path is the key prefix of iface inside v.
func BindEnvsRecursive(v *viper.Viper, iface interface{}, path string) error {
	val := reflect.ValueOf(iface).Elem()
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		fieldType := typ.Field(i)
		tag := fieldType.Tag.Get("mapstructure")

		if tag == "" || strings.HasPrefix(tag, ",") {
			continue
		}

		fullPath := tag
		if path != "" {
			fullPath = path + "." + tag
		}

		field := val.Field(i)

		if field.Kind() == reflect.Ptr {
			if field.IsNil() && field.Type().Elem().Kind() == reflect.Struct {
				field.Set(reflect.New(field.Type().Elem()))
			}
			field = field.Elem()
		}

		if field.Kind() == reflect.Struct {
			if err := BindEnvsRecursive(v, field.Addr().Interface(), fullPath); err != nil {
				return err
			}
			continue
		}

		if err := v.BindEnv(fullPath); err != nil {
			return fmt.Errorf("failed to bind environment variable: %w", err)
		}
	}

	return nil
}
