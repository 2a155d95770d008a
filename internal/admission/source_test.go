package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_RoundTrip(t *testing.T) {
	sources := []Source{
		SourceGenerationInsight,
		SourceHumanUpload,
		SourceAgentSuggestion,
		SourceCrossPopulationPattern,
		SourceBestPractice,
	}
	for _, s := range sources {
		assert.True(t, s.Valid())

		parsed, err := ParseSource(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
}

func TestSource_Unknown(t *testing.T) {
	assert.False(t, SourceUnknown.Valid())
	assert.Equal(t, "unknown", SourceUnknown.String())

	_, err := ParseSource("carrier_pigeon")
	assert.Error(t, err)
}
