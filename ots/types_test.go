package ots

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProperties(t *testing.T) {
	props := NewProperties(PropWrite, PropRead)

	assert.True(t, props.Has(PropRead))
	assert.True(t, props.Has(PropWrite))
	assert.False(t, props.Has(PropDelete))
	assert.Equal(t, []Property{PropRead, PropWrite}, props.List())
	assert.Equal(t, "read|write", props.String())
}

func TestEmptyProperties(t *testing.T) {
	var props Properties

	assert.False(t, props.Has(PropRead))
	assert.Empty(t, props.List())
	assert.Equal(t, "", props.String())
}

func TestPropertyString(t *testing.T) {
	assert.Equal(t, "truncate", PropTruncate.String())
	assert.Equal(t, "property(42)", Property(42).String())
}

func TestObjectIDString(t *testing.T) {
	assert.Equal(t, "0x000000000100", FirstObjectID.String())
}

func TestFeatures(t *testing.T) {
	f := Features{
		OACP: []OACPFeature{OACPRead, OACPWrite, OACPCreate},
		OLCP: []OLCPFeature{OLCPGoTo},
	}

	assert.True(t, f.SupportsOACP(OACPCreate))
	assert.False(t, f.SupportsOACP(OACPDelete))
	assert.True(t, f.SupportsOLCP(OLCPGoTo))
	assert.False(t, f.SupportsOLCP(OLCPOrder))
}
