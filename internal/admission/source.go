package admission

import "fmt"

// Source is the closed set of producers that may propose context
// updates. It is a tagged variant rather than an open string so the
// engine's logic can switch exhaustively; strings appear only at the
// store boundary.
type Source int

const (
	// SourceUnknown is the zero value and never valid on a submitted update.
	SourceUnknown Source = iota

	// SourceGenerationInsight is extracted from a pipeline step's output.
	SourceGenerationInsight

	// SourceHumanUpload is provided directly by a human operator.
	SourceHumanUpload

	// SourceAgentSuggestion is proposed by an agent reviewing context.
	SourceAgentSuggestion

	// SourceCrossPopulationPattern originates from the aggregation job.
	SourceCrossPopulationPattern

	// SourceBestPractice is curated guidance applied across clients.
	SourceBestPractice
)

var sourceNames = map[Source]string{
	SourceGenerationInsight:      "generation_insight",
	SourceHumanUpload:            "human_upload",
	SourceAgentSuggestion:        "agent_suggestion",
	SourceCrossPopulationPattern: "cross_population_pattern",
	SourceBestPractice:           "best_practice",
}

// String returns the wire/store representation of the source.
func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether s is a member of the closed source set.
func (s Source) Valid() bool {
	_, ok := sourceNames[s]
	return ok
}

// ParseSource converts a store/wire string back into a Source.
func ParseSource(name string) (Source, error) {
	for s, n := range sourceNames {
		if n == name {
			return s, nil
		}
	}
	return SourceUnknown, fmt.Errorf("unknown update source %q", name)
}
