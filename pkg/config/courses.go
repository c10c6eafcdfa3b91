package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Course is one entry of the courses key. Either ID and Sections are set,
// or only Token.
type Course struct {
	ID       string
	Sections []string
	Token    string
}

// Courses accepts two YAML shapes, kept in file order:
//
//	courses:
//	  CS101: [1]
//	  CS102: [1, 2]
//
// or a list of raw selection values:
//
//	courses:
//	  - 2026-2027-1;CS101;1;
type Courses []Course

// UnmarshalYAML decodes either shape.
func (c *Courses) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		out := make(Courses, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			sections, err := decodeSections(val)
			if err != nil {
				return fmt.Errorf("course %s: %w", key.Value, err)
			}
			out = append(out, Course{ID: strings.TrimSpace(key.Value), Sections: sections})
		}
		*c = out
		return nil

	case yaml.SequenceNode:
		out := make(Courses, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: course tokens must be strings", item.Line)
			}
			out = append(out, Course{Token: strings.TrimSpace(item.Value)})
		}
		*c = out
		return nil

	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*c = nil
			return nil
		}
	}
	return fmt.Errorf("line %d: courses must be a mapping or a list", node.Line)
}

// decodeSections accepts a list of sections or a single scalar.
func decodeSections(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if v := strings.TrimSpace(node.Value); v != "" {
			return []string{v}, nil
		}
		return nil, fmt.Errorf("no sections")
	case yaml.SequenceNode:
		out := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: sections must be scalars", item.Line)
			}
			out = append(out, strings.TrimSpace(item.Value))
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no sections")
		}
		return out, nil
	}
	return nil, fmt.Errorf("line %d: sections must be a list", node.Line)
}
