package llm

import (
	"fmt"
	"strings"
)

// ProviderGroup is a named LLM backend. The set is closed.
type ProviderGroup int

const (
	GroupLlama ProviderGroup = iota + 1
	GroupGemini
	GroupDeepSeek
)

var groupNames = map[ProviderGroup]string{
	GroupLlama:    "llama",
	GroupGemini:   "gemini",
	GroupDeepSeek: "deepseek",
}

// Groups lists every provider group in declaration order.
func Groups() []ProviderGroup {
	return []ProviderGroup{GroupLlama, GroupGemini, GroupDeepSeek}
}

func (g ProviderGroup) String() string {
	if name, ok := groupNames[g]; ok {
		return name
	}
	return fmt.Sprintf("ProviderGroup(%d)", int(g))
}

// ParseGroup maps a configured group name to its ProviderGroup.
func ParseGroup(name string) (ProviderGroup, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for g, n := range groupNames {
		if n == name {
			return g, nil
		}
	}
	return 0, fmt.Errorf("unknown provider group %q", name)
}

func (g ProviderGroup) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}
