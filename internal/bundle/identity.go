package bundle

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/agentpack/internal/definition"
)

// IdentityRules control what is removed from a configuration block before it
// is emitted. Resolution hints only make sense when files are loaded from
// disk, so they are dropped from bundles.
type IdentityRules struct {
	// ReservedKeys are removed from the top-level mapping.
	ReservedKeys []string
	// InstructionKey names the top-level instruction list.
	InstructionKey string
	// InstructionMarkers drop any instruction entry mentioning one of them.
	InstructionMarkers []string
}

// DefaultIdentityRules returns the stock rules.
func DefaultIdentityRules() IdentityRules {
	return IdentityRules{
		ReservedKeys:       []string{"root", "IDE-FILE-RESOLUTION", "REQUEST-RESOLUTION"},
		InstructionKey:     "activation-instructions",
		InstructionMarkers: []string{"IDE-FILE-RESOLUTION", "REQUEST-RESOLUTION"},
	}
}

// StripIdentity applies rules to block and re-encodes it. Key order and
// comments are kept.
func StripIdentity(block string, rules IdentityRules) (string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(block), &doc); err != nil {
		doc = yaml.Node{}
		if retryErr := yaml.Unmarshal([]byte(definition.StripCommandDescriptions(block)), &doc); retryErr != nil {
			return "", fmt.Errorf("bundle: decode identity block: %w", err)
		}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return strings.TrimRight(block, "\n"), nil
	}
	root := doc.Content[0]
	reserved := map[string]struct{}{}
	for _, key := range rules.ReservedKeys {
		reserved[key] = struct{}{}
	}
	kept := make([]*yaml.Node, 0, len(root.Content))
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if _, drop := reserved[key.Value]; drop {
			continue
		}
		if key.Value == rules.InstructionKey && value.Kind == yaml.SequenceNode {
			value.Content = filterInstructions(value.Content, rules.InstructionMarkers)
		}
		kept = append(kept, key, value)
	}
	root.Content = kept

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("bundle: encode identity block: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("bundle: encode identity block: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func filterInstructions(items []*yaml.Node, markers []string) []*yaml.Node {
	out := items[:0]
	for _, item := range items {
		if item.Kind == yaml.ScalarNode && mentionsAny(item.Value, markers) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func mentionsAny(text string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(text, m) {
			return true
		}
	}
	return false
}
