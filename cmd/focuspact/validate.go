package main

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/color"
	"github.com/focuspact/focuspact/internal/config"
	"github.com/spf13/cobra"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the FocusPact configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with non-default values highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	unknownKeys, err := config.UnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		_, _ = red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	if validateDump {
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))

		dumpConfig(cfg, config.Defaults())

		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
	}

	return nil
}

// dumpConfig prints every setting, highlighting values that differ from the
// defaults.
func dumpConfig(cfg, defaults *config.Config) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	section := func(name string, value, def interface{}) {
		_, _ = cyan.Printf("\n[%s]\n", name)
		dumpStruct("  ", reflect.ValueOf(value), reflect.ValueOf(def), yellow, green, cyan)
	}

	section("server", cfg.Server, defaults.Server)
	section("storage", cfg.Storage, defaults.Storage)
	section("backend", redactBackend(cfg.Backend), redactBackend(defaults.Backend))
	section("session", cfg.Session, defaults.Session)
	section("usage", cfg.Usage, defaults.Usage)
	section("limits", cfg.Limits, defaults.Limits)
	section("logging", cfg.Logging, defaults.Logging)
}

// dumpStruct walks a config section using its mapstructure tags as names.
func dumpStruct(indent string, v, def reflect.Value, modified, unchanged, heading *color.Color) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := field.Tag.Get("mapstructure")
		if name == "" {
			name = strings.ToLower(field.Name)
		}

		if field.Type.Kind() == reflect.Struct {
			_, _ = heading.Printf("%s[%s]\n", indent, name)
			dumpStruct(indent+"  ", v.Field(i), def.Field(i), modified, unchanged, heading)
			continue
		}

		value := v.Field(i).Interface()
		if name == "password" {
			value = redactSecret(value.(string))
		}
		defValue := def.Field(i).Interface()
		if name == "password" {
			defValue = redactSecret(defValue.(string))
		}
		dumpField(indent+name, value, defValue, modified, unchanged)
	}
}

// dumpField prints a field with color if it differs from default
func dumpField(name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	isDefault := reflect.DeepEqual(value, defaultValue)

	valueStr := fmt.Sprintf("%v", value)

	if isDefault {
		_, _ = defaultColor.Printf("%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Printf("%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

func redactBackend(b config.BackendConfig) config.BackendConfig {
	b.APIKey = redactSecret(b.APIKey)
	b.AccessToken = redactSecret(b.AccessToken)
	return b
}

// redactSecret redacts a secret if not empty
func redactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return "***REDACTED***"
}
