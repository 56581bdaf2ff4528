// Package workflow loads workflow definitions from YAML files and builds
// runnable engines from them. Tasks in a workflow file run shell commands;
// library users who need custom executors use the engine package directly.
package workflow

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/milad-o/agenticflow/pkg/models"
)

// File is the top-level structure of a workflow YAML file.
type File struct {
	// Name identifies the workflow in logs and run history.
	Name string `yaml:"name"`
	// MaxConcurrent overrides the configured concurrency bound when > 0.
	MaxConcurrent int `yaml:"max_concurrent"`
	// Globals are merged into every task's execution context.
	Globals map[string]any `yaml:"globals"`
	// Retry is the workflow-level retry policy override.
	Retry *RetrySpec `yaml:"retry"`
	// Tasks are the workflow's task definitions.
	Tasks []TaskDef `yaml:"tasks"`
}

// TaskDef is one task in a workflow file.
type TaskDef struct {
	ID            string     `yaml:"id"`
	Name          string     `yaml:"name"`
	Command       string     `yaml:"command"`
	DependsOn     []string   `yaml:"depends_on"`
	Priority      string     `yaml:"priority"`
	Timeout       string     `yaml:"timeout"`
	Retry         *RetrySpec `yaml:"retry"`
	Interruptible bool       `yaml:"interruptible"`
	Streaming     bool       `yaml:"streaming"`
	WorkDir       string     `yaml:"workdir"`
}

// RetrySpec is the YAML form of a retry policy. Durations are strings
// parsed with time.ParseDuration.
type RetrySpec struct {
	MaxAttempts       int      `yaml:"max_attempts"`
	InitialDelay      string   `yaml:"initial_delay"`
	MaxDelay          string   `yaml:"max_delay"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier"`
	RetryOn           []string `yaml:"retry_on"`
}

// LoadFile reads and validates a workflow file from disk.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates workflow YAML.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing workflow yaml: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// validate checks the file for problems the DAG cannot catch: empty IDs,
// missing commands, and malformed durations or priorities. Structural
// problems (duplicates, cycles, unknown dependencies) surface when the
// tasks are added to the engine.
func (f *File) validate() error {
	if len(f.Tasks) == 0 {
		return fmt.Errorf("workflow %q has no tasks", f.Name)
	}

	for i, td := range f.Tasks {
		if td.ID == "" {
			return fmt.Errorf("task %d: id is required", i)
		}
		if td.Command == "" {
			return fmt.Errorf("task %s: command is required", td.ID)
		}
		if td.Priority != "" && !knownPriority(td.Priority) {
			return fmt.Errorf("task %s: unknown priority %q", td.ID, td.Priority)
		}
		if td.Timeout != "" {
			if _, err := time.ParseDuration(td.Timeout); err != nil {
				return fmt.Errorf("task %s: invalid timeout: %w", td.ID, err)
			}
		}
		if td.Retry != nil {
			if err := td.Retry.validate(td.ID); err != nil {
				return err
			}
		}
	}

	if f.Retry != nil {
		if err := f.Retry.validate("workflow"); err != nil {
			return err
		}
	}
	return nil
}

// knownPriority reports whether s is one of the accepted priority names.
func knownPriority(s string) bool {
	switch s {
	case "low", "normal", "high", "critical":
		return true
	default:
		return false
	}
}

func (rs *RetrySpec) validate(owner string) error {
	if rs.MaxAttempts < 1 {
		return fmt.Errorf("%s: retry max_attempts must be >= 1", owner)
	}
	if rs.InitialDelay != "" {
		if _, err := time.ParseDuration(rs.InitialDelay); err != nil {
			return fmt.Errorf("%s: invalid initial_delay: %w", owner, err)
		}
	}
	if rs.MaxDelay != "" {
		if _, err := time.ParseDuration(rs.MaxDelay); err != nil {
			return fmt.Errorf("%s: invalid max_delay: %w", owner, err)
		}
	}
	for _, cat := range rs.RetryOn {
		if !models.ErrorCategory(cat).Valid() {
			return fmt.Errorf("%s: unknown retry category %q", owner, cat)
		}
	}
	return nil
}

// Policy converts the spec into a retry policy, filling unset fields from
// the defaults.
func (rs *RetrySpec) Policy() models.RetryPolicy {
	p := models.DefaultRetryPolicy()
	p.MaxAttempts = rs.MaxAttempts
	if rs.InitialDelay != "" {
		p.InitialDelay, _ = time.ParseDuration(rs.InitialDelay)
	}
	if rs.MaxDelay != "" {
		p.MaxDelay, _ = time.ParseDuration(rs.MaxDelay)
	}
	if rs.BackoffMultiplier > 0 {
		p.BackoffMultiplier = rs.BackoffMultiplier
	}
	if len(rs.RetryOn) > 0 {
		cats := make([]models.ErrorCategory, len(rs.RetryOn))
		for i, c := range rs.RetryOn {
			cats[i] = models.ErrorCategory(c)
		}
		p.RetryCategories = cats
	}
	return p
}
