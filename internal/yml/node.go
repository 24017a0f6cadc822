// Package yml renders configuration documents as YAML.
package yml

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mask replaces redacted values.
const Mask = "******"

type (
	Node yaml.Node
)

// Encode converts v into a document node.
func Encode(v interface{}) (*Node, error) {
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	return (*Node)(&node), nil
}

// Lookup returns the value of a mapping key, or nil.
func (n *Node) Lookup(name string) *Node {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		return (*Node)(n.Content[0]).Lookup(name)
	}
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == name {
			return (*Node)(n.Content[i+1])
		}
	}
	return nil
}

// Pairs visits mapping key value pairs.
func (n *Node) Pairs(callback func(key string, node *Node) error) error {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if err := callback(n.Content[i].Value, (*Node)(n.Content[i+1])); err != nil {
			return err
		}
	}
	return nil
}

// Redact masks non empty scalar values of the named keys at any depth;
// names match case insensitively.
func (n *Node) Redact(keys ...string) {
	if n == nil {
		return
	}
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, child := range n.Content {
			(*Node)(child).Redact(keys...)
		}
	case yaml.MappingNode:
		_ = n.Pairs(func(key string, value *Node) error {
			if value.Kind == yaml.ScalarNode {
				if value.Value != "" && matches(key, keys) {
					value.Value, value.Tag, value.Style = Mask, "!!str", 0
				}
				return nil
			}
			value.Redact(keys...)
			return nil
		})
	}
}

func matches(key string, keys []string) bool {
	for _, candidate := range keys {
		if strings.EqualFold(key, candidate) {
			return true
		}
	}
	return false
}

// Marshal renders the node.
func (n *Node) Marshal() ([]byte, error) {
	return yaml.Marshal((*yaml.Node)(n))
}
