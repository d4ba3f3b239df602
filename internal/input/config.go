package input

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type bindingDoc struct {
	Intent  string `yaml:"intent"`
	Trigger struct {
		Type     string   `yaml:"type"`
		Source   string   `yaml:"source"`
		Sources  []string `yaml:"sources"`
		Duration string   `yaml:"duration"`
	} `yaml:"trigger"`
}

// LoadBindings decodes a bindings.yaml document from path into a Binding
// slice.
func LoadBindings(path string) ([]Binding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("input.LoadBindings: %w", err)
	}
	var docs []bindingDoc
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("input.LoadBindings: %w", err)
	}

	bindings := make([]Binding, 0, len(docs))
	for _, d := range docs {
		t := Trigger{}
		switch d.Trigger.Type {
		case "single":
			t.Kind = Single
			t.Sources = []Source{Source(d.Trigger.Source)}
		case "chord":
			t.Kind = Chord
			t.Sources = toSources(d.Trigger.Sources)
		case "sequence":
			t.Kind = Sequence
			t.Sources = toSources(d.Trigger.Sources)
			dur, err := time.ParseDuration(d.Trigger.Duration)
			if err != nil {
				return nil, fmt.Errorf("input.LoadBindings: trigger %q: bad duration %q: %w", d.Intent, d.Trigger.Duration, err)
			}
			t.Duration = dur
		default:
			return nil, fmt.Errorf("input.LoadBindings: trigger %q: unknown type %q", d.Intent, d.Trigger.Type)
		}
		bindings = append(bindings, Binding{Intent: d.Intent, Trigger: t})
	}
	return bindings, nil
}

func toSources(s []string) []Source {
	out := make([]Source, len(s))
	for i, v := range s {
		out[i] = Source(v)
	}
	return out
}

type mappingPair [2]string

// LoadMappings decodes a mappings.yaml document (a sequence of
// [from_source, to_source] pairs) into a source-alias map suitable for
// repeated Binder.SetAlias calls.
func LoadMappings(path string) (map[Source]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("input.LoadMappings: %w", err)
	}
	var pairs []mappingPair
	if err := yaml.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("input.LoadMappings: %w", err)
	}
	out := make(map[Source]Source, len(pairs))
	for _, p := range pairs {
		out[Source(p[0])] = Source(p[1])
	}
	return out, nil
}
