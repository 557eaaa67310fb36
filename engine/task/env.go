package task

// ExecutionEnv describes where a task (or everything a flow emits) should
// run: a set of routing tags consumed by the multi-queue router, plus an
// optional container image reference for remote execution backends.
type ExecutionEnv struct {
	Tags        map[string]struct{}
	DockerImage string
}

// NewExecutionEnv builds an env from a tag list, deduplicating as it goes.
func NewExecutionEnv(dockerImage string, tags ...string) ExecutionEnv {
	env := ExecutionEnv{Tags: make(map[string]struct{}, len(tags)), DockerImage: dockerImage}
	for _, t := range tags {
		env.Tags[t] = struct{}{}
	}
	return env
}

// IsZero reports whether the env carries no tags and no image, i.e. it is
// not actually an override.
func (e ExecutionEnv) IsZero() bool {
	return len(e.Tags) == 0 && e.DockerImage == ""
}

// TagSlice returns the tag set as a sorted-free slice, mostly for logging
// and for the multi-queue router's matching pass.
func (e ExecutionEnv) TagSlice() []string {
	out := make([]string, 0, len(e.Tags))
	for t := range e.Tags {
		out = append(out, t)
	}
	return out
}

// Extend returns the union of e and other's tags; other's docker image wins
// when set, otherwise e's is kept.
func (e ExecutionEnv) Extend(other ExecutionEnv) ExecutionEnv {
	merged := NewExecutionEnv(e.DockerImage)
	for t := range e.Tags {
		merged.Tags[t] = struct{}{}
	}
	for t := range other.Tags {
		merged.Tags[t] = struct{}{}
	}
	if other.DockerImage != "" {
		merged.DockerImage = other.DockerImage
	}
	return merged
}

// ApplyDefaults fills any unset field of e (empty docker image, empty tag
// set) from defaults, without touching fields e already set.
func (e ExecutionEnv) ApplyDefaults(defaults ExecutionEnv) ExecutionEnv {
	result := e
	if len(result.Tags) == 0 {
		result.Tags = make(map[string]struct{}, len(defaults.Tags))
		for t := range defaults.Tags {
			result.Tags[t] = struct{}{}
		}
	}
	if result.DockerImage == "" {
		result.DockerImage = defaults.DockerImage
	}
	return result
}
