package render

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/projection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScatterPNG(t *testing.T) {
	proj := &projection.Projection{
		Points: []projection.Point{
			{Token: "ross", X: -1, Y: 0.5},
			{Token: "rachel", X: 0.8, Y: 0.1},
			{Token: "joey", X: 0.2, Y: -0.6},
		},
		ExplainedVariance: [2]float64{0.7, 0.3},
	}
	var buf bytes.Buffer
	require.NoError(t, ScatterPNG(&buf, proj, "ross, rachel, joey"))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 100)
	assert.Equal(t, img.Bounds().Dx(), img.Bounds().Dy())
}

func TestScatterPNGFlatProjection(t *testing.T) {
	proj := &projection.Projection{
		Points: []projection.Point{
			{Token: "ross", X: -1},
			{Token: "rachel", X: 1},
		},
		ExplainedVariance: [2]float64{1, 0},
	}
	var buf bytes.Buffer
	require.NoError(t, ScatterPNG(&buf, proj, "flat"))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}
