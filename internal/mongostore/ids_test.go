package mongostore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestIDFilterMatchesObjectIDAndString(t *testing.T) {
	oid := primitive.NewObjectID()

	f := idFilter(oid.Hex())
	in, ok := f["_id"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, bson.A{oid, oid.Hex()}, in["$in"])

	assert.Equal(t, bson.M{"_id": "P1"}, idFilter("P1"))
	assert.Equal(t, oid, docID(oid.Hex()))
	assert.Equal(t, "P1", docID("P1"))
}

func TestCatalogDocumentKeyedByObjectID(t *testing.T) {
	oid := primitive.NewObjectID()
	raw, err := bson.Marshal(bson.M{
		"_id": oid, "name": "Kurta", "price": 499.5, "priceCurrency": "INR",
		"quantity": 7, "active": true, "images": bson.A{"k.png"},
	})
	require.NoError(t, err)

	var doc productDoc
	require.NoError(t, bson.UnmarshalWithRegistry(Registry(), raw, &doc))
	snap := doc.snapshot()
	assert.Equal(t, oid.Hex(), snap.ID)
	assert.Equal(t, "499.5", snap.Price.String())
	assert.Equal(t, 7, snap.Quantity)
	assert.Equal(t, "k.png", snap.Image)
}

func TestCanonicalIDFoldsHexCase(t *testing.T) {
	oid := primitive.NewObjectID()
	upper := []byte(oid.Hex())
	for i, c := range upper {
		if c >= 'a' && c <= 'f' {
			upper[i] = c - 'a' + 'A'
		}
	}
	assert.Equal(t, oid.Hex(), canonicalID(string(upper)))
	assert.Equal(t, "sku-1", canonicalID("sku-1"))
}
