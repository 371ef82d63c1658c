package resources

import (
	"context"
	"strings"

	"github.com/sahilm/fuzzy"
)

// searchSource adapts a slice of types to fuzzy.Source.
type searchSource []ResourceType

func (s searchSource) Len() int {
	return len(s)
}

func (s searchSource) String(i int) string {
	rt := s[i]
	parts := append([]string{rt.Kind, rt.Name}, rt.ShortNames...)
	if rt.Group != "" {
		parts = append(parts, rt.Group)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// Search returns the types of a context that fuzzy match query, best match
// first. An empty query returns every type.
func (c *Catalog) Search(ctx context.Context, contextName, query string) ([]ResourceType, error) {
	types, err := c.All(ctx, contextName)
	if err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return types, nil
	}

	matches := fuzzy.FindFrom(strings.ToLower(query), searchSource(types))
	result := make([]ResourceType, 0, len(matches))
	for _, m := range matches {
		result = append(result, types[m.Index])
	}
	return result, nil
}
