package callmetrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/callmetrics/core"
	"github.com/itsneelabh/callmetrics/extraction"
	"github.com/itsneelabh/callmetrics/metrics"
)

func TestNewPipelineDefaults(t *testing.T) {
	p, err := NewPipeline(nil, nil)
	require.NoError(t, err)
	require.True(t, p.Extractor.IsInitialized())

	ok, err := p.Extractor.ExtractMetrics(&RemoteDependency{ID: "1", Duration: 5 * time.Millisecond, Type: "HTTP"})
	require.NoError(t, err)
	assert.True(t, ok)

	reg, err := p.Registry()
	require.NoError(t, err)
	assert.Equal(t, "Dependency duration", reg.Identifier().Name)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, p.Manager.Metrics(), []*metrics.SeriesRegistry{reg})

	err = p.Extractor.SetMaxDependencyTypesToDiscover(3)
	assert.True(t, errors.Is(err, ErrAlreadyInitialized))
}

func TestNewPipelineRejectsInvalidConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Extraction.MaxDependencyTargetsToDiscover = 0

	_, err := NewPipeline(cfg, nil)
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
}

func TestPipelineRegistryRequiresInitializedExtractor(t *testing.T) {
	ex, err := extraction.New(core.DefaultConfig().Extraction)
	require.NoError(t, err)

	p := &Pipeline{Manager: metrics.NewManager(), Extractor: ex}
	_, err = p.Registry()
	assert.True(t, errors.Is(err, ErrNotInitialized))
}
