// Package prompts provides the AI prompts used by each workflow. The built-in
// set is embedded at compile time; a JSON file may override individual keys.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

//go:embed review.json
var promptFiles embed.FS

const builtinFile = "review.json"

// Set maps a workflow name to its prompt text
type Set map[string]string

var (
	builtin     Set
	builtinErr  error
	builtinOnce sync.Once
)

// Builtin returns a copy of the embedded prompt set
func Builtin() (Set, error) {
	builtinOnce.Do(func() {
		data, err := promptFiles.ReadFile(builtinFile)
		if err != nil {
			builtinErr = fmt.Errorf("failed to read prompt file %s: %w", builtinFile, err)
			return
		}
		builtin, builtinErr = parse(builtinFile, data)
	})
	if builtinErr != nil {
		return nil, builtinErr
	}
	return builtin.clone(), nil
}

// MustGet retrieves a built-in prompt, panicking if not found.
// Use this for prompts that are required at initialization time.
func MustGet(key string) string {
	set, err := Builtin()
	if err != nil {
		panic(fmt.Sprintf("failed to load prompt: %v", err))
	}
	prompt, err := set.Get(key)
	if err != nil {
		panic(fmt.Sprintf("failed to load prompt: %v", err))
	}
	return prompt
}

// LoadFile reads a JSON object of prompt overrides from path
func LoadFile(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", path, err)
	}
	return parse(path, data)
}

func parse(name string, data []byte) (Set, error) {
	var set Set
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", name, err)
	}
	for key, prompt := range set {
		if strings.TrimSpace(prompt) == "" {
			return nil, fmt.Errorf("prompt file %s: prompt %q is empty", name, key)
		}
	}
	return set, nil
}

// Get returns the prompt stored under key
func (s Set) Get(key string) (string, error) {
	prompt, ok := s[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found", key)
	}
	return prompt, nil
}

// Merge returns a new Set with the entries of over replacing those of s
func (s Set) Merge(over Set) Set {
	merged := s.clone()
	for key, prompt := range over {
		merged[key] = prompt
	}
	return merged
}

// Keys returns the prompt keys in sorted order
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s Set) clone() Set {
	out := make(Set, len(s))
	for key, prompt := range s {
		out[key] = prompt
	}
	return out
}
