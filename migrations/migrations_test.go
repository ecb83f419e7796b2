package migrations

import (
	"testing"

	"github.com/joeyave/bookclub/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func TestIndexes_UniqueKeys(t *testing.T) {
	unique := map[string][]string{}
	for _, ci := range indexes() {
		for _, m := range ci.models {
			if m.Options == nil {
				continue
			}
			var opts options.IndexOptions
			for _, set := range m.Options.List() {
				require.NoError(t, set(&opts))
			}
			if opts.Unique != nil && *opts.Unique {
				keys := m.Keys.(bson.D)
				unique[ci.collection] = append(unique[ci.collection], keys[0].Key)
			}
		}
	}

	assert.Equal(t, map[string][]string{
		repository.UsersCollection:  {"email"},
		repository.BooksCollection:  {"title"},
		repository.TokensCollection: {"token"},
	}, unique)
}
