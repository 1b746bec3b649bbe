package embeddings

import (
	"fmt"

	"unifydata-backend/pkg/pipelineerr"
)

// ModelSpec pins the properties of an embedding model. Dimensions is part of
// the index contract: vectors from different models never share a corpus.
type ModelSpec struct {
	Name       string
	Dimensions int
	MaxTokens  int
}

const DefaultModel = "text-embedding-3-small"

var registry = map[string]ModelSpec{
	"text-embedding-3-small": {Name: "text-embedding-3-small", Dimensions: 1536, MaxTokens: 8191},
	"text-embedding-3-large": {Name: "text-embedding-3-large", Dimensions: 3072, MaxTokens: 8191},
	"text-embedding-ada-002": {Name: "text-embedding-ada-002", Dimensions: 1536, MaxTokens: 8191},
}

// LookupModel resolves a model name against the registry. Unknown names are a
// configuration error so a typo cannot silently index garbage.
func LookupModel(name string) (ModelSpec, error) {
	if name == "" {
		name = DefaultModel
	}
	spec, ok := registry[name]
	if !ok {
		return ModelSpec{}, fmt.Errorf("%w: unknown embedding model %q", pipelineerr.ErrConfiguration, name)
	}
	return spec, nil
}
