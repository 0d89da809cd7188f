package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDescriptionSplitsTrailingTags(t *testing.T) {
	d := parseDescription("A dog running on a beach.\nTAGS: dog, beach, outdoors")
	assert.Equal(t, "A dog running on a beach.", d.Text)
	assert.Equal(t, []string{"dog", "beach", "outdoors"}, d.Tags)
}

func TestParseDescriptionWithoutTagsKeepsWholeText(t *testing.T) {
	d := parseDescription("Just a plain description.")
	assert.Equal(t, "Just a plain description.", d.Text)
	assert.Nil(t, d.Tags)
}

func TestParseDescriptionIgnoresCaseOfTagsPrefix(t *testing.T) {
	d := parseDescription("Sunset over the hills.\ntags: sunset, hills")
	assert.Equal(t, "Sunset over the hills.", d.Text)
	assert.Equal(t, []string{"sunset", "hills"}, d.Tags)
}

func TestEncodeDecodeVectorRoundTrips(t *testing.T) {
	v := []float32{0.5, -1.25, 3.0, 0}
	got := DecodeVector(EncodeVector(v))
	assert.Equal(t, v, got)
}
