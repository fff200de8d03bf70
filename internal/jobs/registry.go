// Package jobs provides the sync-job registry: a YAML file binding index
// names to document source configurations.
package jobs

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/withObsrvr/obsrvr-index-syncer/internal/source"
)

// ErrJobNotFound is returned when a named job is not in the registry.
var ErrJobNotFound = errors.New("job not found in registry")

// ErrDuplicateJob is returned when two registry entries share a name.
var ErrDuplicateJob = errors.New("duplicate job name")

// Job binds one target index to one document source.
type Job struct {
	Name     string        `yaml:"name"`
	Index    string        `yaml:"index"`
	Source   source.Config `yaml:"source"`
	Disabled bool          `yaml:"disabled"`
}

// Registry is the validated set of configured sync jobs.
type Registry struct {
	jobs map[string]Job
}

type registryFile struct {
	Jobs []Job `yaml:"jobs"`
}

// Load parses and validates a registry YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a registry from raw YAML.
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	return New(file.Jobs)
}

// New validates the job list and builds a registry.
func New(jobs []Job) (*Registry, error) {
	if len(jobs) == 0 {
		return nil, errors.New("at least one job must be configured")
	}

	byName := make(map[string]Job, len(jobs))
	for i, job := range jobs {
		if job.Name == "" {
			return nil, fmt.Errorf("job %d has no name", i)
		}
		if job.Index == "" {
			return nil, fmt.Errorf("job %q has no index", job.Name)
		}
		if _, ok := byName[job.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateJob, job.Name)
		}
		byName[job.Name] = job
	}

	return &Registry{jobs: byName}, nil
}

// Get returns the named job, enabled or not.
func (r *Registry) Get(name string) (Job, error) {
	job, ok := r.jobs[name]
	if !ok {
		return Job{}, fmt.Errorf("%w: %q", ErrJobNotFound, name)
	}
	return job, nil
}

// Enabled returns the enabled jobs sorted by name, so runs are ordered
// deterministically.
func (r *Registry) Enabled() []Job {
	var out []Job
	for _, job := range r.jobs {
		if !job.Disabled {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// All returns every configured job sorted by name.
func (r *Registry) All() []Job {
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
