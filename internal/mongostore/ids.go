package mongostore

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// docID is the _id written for a product id: an ObjectId when the id is
// its hex form, the plain string otherwise.
func docID(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

// idCandidates lists every _id value a product id may be stored under.
func idCandidates(id string) bson.A {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.A{oid, id}
	}
	return bson.A{id}
}

func idFilter(id string) bson.M {
	c := idCandidates(id)
	if len(c) == 1 {
		return bson.M{"_id": id}
	}
	return bson.M{"_id": bson.M{"$in": c}}
}

// idString renders a decoded _id the way callers address products.
func idString(v any) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

// canonicalID folds hex case so "65F0..." and "65f0..." name one product.
func canonicalID(id string) string {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid.Hex()
	}
	return id
}
