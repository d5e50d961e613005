package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDepthLevelSubtopicCount(t *testing.T) {
	assert.Equal(t, 3, DepthShallow.SubtopicCount())
	assert.Equal(t, 5, DepthMedium.SubtopicCount())
	assert.Equal(t, 8, DepthDeep.SubtopicCount())
	assert.Equal(t, 5, DepthLevel("bogus").SubtopicCount(), "unknown depth falls back to medium")
}

func TestDefaults(t *testing.T) {
	rc := DefaultResearchConfig()
	assert.Equal(t, 3, rc.MaxAgents)
	assert.Equal(t, 5, rc.MaxSearchesPerAgent)
	assert.Equal(t, DepthMedium, rc.DepthLevel)

	ec := DefaultExitCriteria()
	assert.Equal(t, 10, ec.MaxIterations)
	assert.Equal(t, 30, ec.MaxDurationMinutes)
	assert.Equal(t, 0.7, ec.MinConfidenceScore)
	assert.Equal(t, 0.1, ec.SaturationThreshold)
	assert.Equal(t, 0.8, ec.RequiredSubtopicCoverage)
}

func TestSubtopicPending(t *testing.T) {
	assert.True(t, (&Subtopic{}).Pending())
	assert.True(t, (&Subtopic{Status: SubtopicPending}).Pending())
	assert.False(t, (&Subtopic{Status: SubtopicInProgress}).Pending())
	assert.False(t, (&Subtopic{Status: SubtopicCompleted}).Pending())
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")

	pe := &ProviderError{Provider: "anthropic", Err: cause}
	assert.ErrorIs(t, pe, cause)
	assert.Contains(t, pe.Error(), "anthropic")

	fe := &FetchError{URL: "https://example.com", Err: cause}
	assert.ErrorIs(t, fe, cause)
	assert.Contains(t, fe.Error(), "https://example.com")

	var target *FetchError
	wrapped := fmt.Errorf("search failed: %w", fe)
	assert.ErrorAs(t, wrapped, &target)

	se := &StateError{Op: "start session", Reason: "session is already running"}
	assert.Equal(t, "start session: session is already running", se.Error())

	ve := &ValidationError{Field: "topic", Message: "must not be empty"}
	assert.Equal(t, "invalid topic: must not be empty", ve.Error())
}

func TestNewIDUnique(t *testing.T) {
	assert.NotEqual(t, NewID(), NewID())
	assert.NotEmpty(t, NewID())
}
