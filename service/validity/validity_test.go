package validity

import (
	"clusterhub-service/service/meta"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var twoPairs = [][]float64{{0}, {1}, {10}, {11}}

func TestEvaluate_DefaultIndexes(t *testing.T) {
	got := Evaluate(twoPairs, []int{0, 0, 1, 1}, nil)

	require.Len(t, got, 4)
	assert.InDelta(t, (9.5/10.5+8.5/9.5)/2, got[meta.IndexSilhouette], 1e-12)
	assert.InDelta(t, 1.0, got[meta.IndexWCSS], 1e-12)
	assert.InDelta(t, 200.0, got[meta.IndexCalinskiHarabasz], 1e-9)
	assert.InDelta(t, 0.1, got[meta.IndexDaviesBouldin], 1e-12)
}

func TestEvaluate_RequestedSubset(t *testing.T) {
	got := Evaluate(twoPairs, []int{0, 0, 1, 1}, []string{meta.IndexWCSS})
	assert.Equal(t, map[string]float64{meta.IndexWCSS: 1.0}, got)
}

func TestEvaluate_SingleClusterOmitsSeparationIndexes(t *testing.T) {
	got := Evaluate(twoPairs, []int{0, 0, 0, 0}, nil)

	assert.NotContains(t, got, meta.IndexSilhouette)
	assert.NotContains(t, got, meta.IndexCalinskiHarabasz)
	assert.NotContains(t, got, meta.IndexDaviesBouldin)
	assert.Contains(t, got, meta.IndexWCSS)
}

func TestEvaluate_NoiseExcluded(t *testing.T) {
	labels := []int{0, 0, meta.NoiseLabel, meta.NoiseLabel}
	got := Evaluate(twoPairs, labels, nil)

	assert.NotContains(t, got, meta.IndexSilhouette)
	assert.InDelta(t, 0.5, got[meta.IndexWCSS], 1e-12)
}

func TestEvaluate_AllNoise(t *testing.T) {
	labels := []int{-1, -1, -1, -1}
	assert.Empty(t, Evaluate(twoPairs, labels, nil))
}

func TestSilhouette_SingletonClusterScoresZero(t *testing.T) {
	x := [][]float64{{0}, {1}, {10}}
	score, ok := Silhouette(x, []int{0, 0, 1})

	require.True(t, ok)
	assert.InDelta(t, (0.9+8.0/9.0)/3, score, 1e-12)
}

func TestSilhouette_EveryPointItsOwnCluster(t *testing.T) {
	_, ok := Silhouette(twoPairs, []int{0, 1, 2, 3})
	assert.False(t, ok)
}

func TestSilhouette_Range(t *testing.T) {
	x := [][]float64{{0, 0}, {5, 5}, {0, 1}, {5, 6}}
	score, ok := Silhouette(x, []int{0, 0, 1, 1})

	require.True(t, ok)
	assert.GreaterOrEqual(t, score, -1.0)
	assert.LessOrEqual(t, score, 1.0)
	assert.Less(t, score, 0.0)
}

func TestCalinskiHarabasz_ZeroWithinDispersion(t *testing.T) {
	x := [][]float64{{0}, {0}, {3}, {3}}
	got := Evaluate(x, []int{0, 0, 1, 1}, []string{meta.IndexCalinskiHarabasz})
	assert.Equal(t, 1.0, got[meta.IndexCalinskiHarabasz])
}

func TestValidateIndexNames(t *testing.T) {
	assert.NoError(t, ValidateIndexNames([]string{meta.IndexSilhouette, meta.IndexDaviesBouldin}))
	assert.ErrorIs(t, ValidateIndexNames([]string{"dunn"}), ErrUnknownIndex)
	assert.ErrorIs(t, ValidateIndexNames([]string{meta.IndexSuggestedK}), ErrUnknownIndex)
}

func TestSupportedIndexes(t *testing.T) {
	assert.ElementsMatch(t, meta.DefaultValidityIndexes, SupportedIndexes())
}
