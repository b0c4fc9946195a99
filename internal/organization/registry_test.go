package organization

import (
	"testing"

	"github.com/donorsync/donorsync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistryLookup(t *testing.T) {
	reg, err := NewRegistry(config.Config{
		Orgs: []config.OrgConfig{
			{Slug: "texas", ConnectorAPIKey: "k1", PaypalClientID: "pp"},
			{Slug: "Big Bend", ConnectorAPIKey: "k2"},
		},
	}, zap.NewNop())
	require.NoError(t, err)

	assert.NotNil(t, reg.Get("texas"))
	assert.True(t, reg.Get("texas").HasPaypal())

	// slugs are normalized on both sides of the lookup
	assert.NotNil(t, reg.Get("big-bend"))
	assert.NotNil(t, reg.Get("Big Bend"))

	assert.Nil(t, reg.Get("unknown"))

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "big-bend", all[0].Slug)
	assert.Equal(t, "texas", all[1].Slug)
}

func TestRegistryDuplicateSlug(t *testing.T) {
	_, err := NewRegistry(config.Config{
		Orgs: []config.OrgConfig{
			{Slug: "texas", ConnectorAPIKey: "k1"},
			{Slug: "Texas", ConnectorAPIKey: "k2"},
		},
	}, zap.NewNop())
	assert.Error(t, err)
}
