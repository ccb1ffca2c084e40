package training

import (
	"fmt"
	"sort"
)

// ClassLabels is an ordered classification vocabulary mapping class names to
// model output indices. The order must match the label indices the model was
// trained with.
type ClassLabels struct {
	names   []string
	indices map[string]int
}

// DefaultClassLabels returns the waste categories the stock model is built
// for, in the sorted order directory scanning produces
func DefaultClassLabels() *ClassLabels {
	labels, _ := NewClassLabels([]string{
		"battery",
		"biological",
		"cardboard",
		"glass",
		"metal",
		"paper",
		"plastic",
		"trash",
	})
	return labels
}

// NewClassLabels creates a vocabulary from the given names, preserving their
// order. Names must be non-empty and unique.
func NewClassLabels(names []string) (*ClassLabels, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("class names cannot be empty")
	}

	indices := make(map[string]int, len(names))
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("class name at index %d is empty", i)
		}
		if _, exists := indices[name]; exists {
			return nil, fmt.Errorf("duplicate class name %q", name)
		}
		indices[name] = i
	}

	return &ClassLabels{
		names:   append([]string(nil), names...),
		indices: indices,
	}, nil
}

// NewSortedClassLabels creates a vocabulary with the names in sorted order,
// matching how classes discovered from directory names are indexed
func NewSortedClassLabels(names []string) (*ClassLabels, error) {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return NewClassLabels(sorted)
}

// Len returns the number of classes
func (c *ClassLabels) Len() int {
	return len(c.names)
}

// Name returns the class name for a model output index
func (c *ClassLabels) Name(index int) (string, error) {
	if index < 0 || index >= len(c.names) {
		return "", fmt.Errorf("class index %d out of range [0, %d)", index, len(c.names))
	}
	return c.names[index], nil
}

// Index returns the model output index for a class name
func (c *ClassLabels) Index(name string) (int, error) {
	idx, ok := c.indices[name]
	if !ok {
		return 0, fmt.Errorf("unknown class %q", name)
	}
	return idx, nil
}

// Names returns a copy of the ordered class names
func (c *ClassLabels) Names() []string {
	return append([]string(nil), c.names...)
}
