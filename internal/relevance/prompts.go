package relevance

import (
	"encoding/json"
	"fmt"
	"os"
)

// Prompt is a text prompt with its precomputed text-encoder embedding
type Prompt struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`

	unit []float64
}

// PromptSet groups the prompts a frame is compared against
type PromptSet struct {
	Model       string   `json:"model,omitempty"`
	Desirable   []Prompt `json:"desirable"`
	Undesirable []Prompt `json:"undesirable"`
}

// LoadPrompts reads a prompt embedding file written by the model export step
func LoadPrompts(path string) (*PromptSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts: %w", err)
	}

	var set PromptSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse prompts %s: %w", path, err)
	}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("invalid prompts %s: %w", path, err)
	}
	return &set, nil
}

// Validate checks both groups are present with a common dimension and caches
// unit vectors.
func (s *PromptSet) Validate() error {
	if s == nil {
		return fmt.Errorf("no prompts")
	}
	if len(s.Desirable) == 0 || len(s.Undesirable) == 0 {
		return fmt.Errorf("need at least one desirable and one undesirable prompt")
	}

	dim := len(s.Desirable[0].Embedding)
	if dim == 0 {
		return fmt.Errorf("prompt %q has empty embedding", s.Desirable[0].Text)
	}
	for _, group := range [][]Prompt{s.Desirable, s.Undesirable} {
		for i := range group {
			if len(group[i].Embedding) != dim {
				return fmt.Errorf("prompt %q has dim %d, want %d", group[i].Text, len(group[i].Embedding), dim)
			}
			group[i].unit = normalize(group[i].Embedding)
		}
	}
	return nil
}

// Dim returns the embedding dimension
func (s *PromptSet) Dim() int {
	if len(s.Desirable) == 0 {
		return 0
	}
	return len(s.Desirable[0].Embedding)
}

// Texts lists prompt texts by group, for reports
func (s *PromptSet) Texts() (desirable, undesirable []string) {
	for _, p := range s.Desirable {
		desirable = append(desirable, p.Text)
	}
	for _, p := range s.Undesirable {
		undesirable = append(undesirable, p.Text)
	}
	return desirable, undesirable
}
