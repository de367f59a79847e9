package domain

// ResultArtifact is a single output payload extracted from a provider
// response. Exactly one of Data and RemoteURL is expected to be set;
// providers that return hosted URLs leave Data empty.
type ResultArtifact struct {
	Data      []byte
	RemoteURL string
	MIME      string
}

// Usage captures provider-reported consumption. Fields are pointers because
// providers omit or mangle them freely; absence is not an error.
type Usage struct {
	TokensConsumed *int
}

// NormalizedResult is the fixed-shape record every provider response is
// reduced to. It is created once per response and never mutated.
type NormalizedResult struct {
	Artifacts   []ResultArtifact
	Usage       *Usage
	Warnings    []string
	RawMetadata map[string]any
}
