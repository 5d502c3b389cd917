package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/MustafaMerchant21/Nova/internal/domain"
)

// EnvPrefix namespaces environment overrides: security.max_input_bytes is
// read from NOVA_SECURITY_MAX_INPUT_BYTES.
const EnvPrefix = "NOVA"

type fieldSet struct {
	strings map[string]*string
	ints    map[string]*int
	bools   map[string]*bool
}

func fieldsOf(cfg *domain.Config) fieldSet {
	return fieldSet{
		strings: map[string]*string{
			"security.rules_file":           &cfg.Security.RulesFile,
			"security.custom_pattern_level": &cfg.Security.CustomPatternLevel,
			"policy.command_threshold":      &cfg.Policy.CommandThreshold,
			"policy.force_threshold":        &cfg.Policy.ForceThreshold,
			"policy.script_threshold":       &cfg.Policy.ScriptThreshold,
			"policy.automation_threshold":   &cfg.Policy.AutomationThreshold,
			"execution.shell":               &cfg.Execution.Shell,
			"execution.working_dir":         &cfg.Execution.WorkingDir,
			"history.backend":               &cfg.History.Backend,
		},
		ints: map[string]*int{
			"security.max_input_bytes":     &cfg.Security.MaxInputBytes,
			"security.max_nesting_depth":   &cfg.Security.MaxNestingDepth,
			"execution.timeout_seconds":    &cfg.Execution.TimeoutSeconds,
			"execution.max_output_bytes":   &cfg.Execution.MaxOutputBytes,
			"execution.kill_grace_seconds": &cfg.Execution.KillGraceSeconds,
			"history.retention_days":       &cfg.History.RetentionDays,
		},
		bools: map[string]*bool{
			"history.enabled": &cfg.History.Enabled,
		},
	}
}

// Keys lists every dotted key the overlay understands.
func Keys() []string {
	var cfg domain.Config
	fields := fieldsOf(&cfg)
	keys := make([]string, 0, len(fields.strings)+len(fields.ints)+len(fields.bools))
	for k := range fields.strings {
		keys = append(keys, k)
	}
	for k := range fields.ints {
		keys = append(keys, k)
	}
	for k := range fields.bools {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func newEnvViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// applyEnv copies any NOVA_* overrides into cfg.
func applyEnv(cfg *domain.Config) error {
	v := newEnvViper()
	fields := fieldsOf(cfg)
	for key, ptr := range fields.strings {
		if v.IsSet(key) {
			*ptr = v.GetString(key)
		}
	}
	for key, ptr := range fields.ints {
		if !v.IsSet(key) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return fmt.Errorf("%s: not an integer: %q", EnvName(key), v.GetString(key))
		}
		*ptr = n
	}
	for key, ptr := range fields.bools {
		if v.IsSet(key) {
			*ptr = v.GetBool(key)
		}
	}
	return nil
}
