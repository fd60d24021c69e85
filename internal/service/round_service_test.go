package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/placement-rounds-api/internal/models"
	appErrors "github.com/noah-isme/placement-rounds-api/pkg/errors"
)

type countingCatalog struct {
	*roundCatalogStub
	listCalls int
}

func (c *countingCatalog) ListByJob(ctx context.Context, jobID string) ([]models.JobRound, error) {
	c.listCalls++
	return c.roundCatalogStub.ListByJob(ctx, jobID)
}

func TestRoundServiceListByJobOrdersAndCaches(t *testing.T) {
	catalog := &countingCatalog{roundCatalogStub: newRoundCatalogStub(jobRounds(3)...)}
	cache := NewCacheService(&memoryCacheRepo{values: map[string][]byte{}}, nil, time.Minute, nil, true)
	svc := NewRoundService(catalog, cache, nil)

	rounds, err := svc.ListByJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, rounds, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{rounds[0].Sequence, rounds[1].Sequence, rounds[2].Sequence})

	_, err = svc.ListByJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.listCalls)
}

func TestRoundServiceUnknownJob(t *testing.T) {
	svc := NewRoundService(newRoundCatalogStub(jobRounds(2)...), nil, nil)

	_, err := svc.ListByJob(context.Background(), "job-x")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = svc.ListByJob(context.Background(), " ")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestRoundServiceGetMapsMissingRound(t *testing.T) {
	svc := NewRoundService(newRoundCatalogStub(jobRounds(1)...), nil, nil)

	round, err := svc.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", round.JobID)

	_, err = svc.Get(context.Background(), "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrRoundNotFound))
}
