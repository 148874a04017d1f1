package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	Client *mongo.Client
	DB     *mongo.Database
}

func New(client *mongo.Client, dbName string) *Store {
	return &Store{Client: client, DB: client.Database(dbName)}
}

func (s *Store) Repos() orders.Repos {
	r := &repo{products: s.DB.Collection(productsCollection), orders: s.DB.Collection(ordersCollection)}
	return orders.Repos{Catalog: r, Stock: r, Orders: r}
}

// SupportsTransactions asks the server whether it is a replica set member
// or a mongos router. A standalone mongod answers without setName.
func (s *Store) SupportsTransactions(ctx context.Context) (bool, error) {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := s.DB.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return false, err
	}
	return hello.SetName != "" || hello.Msg == "isdbgrid", nil
}

// WithTransaction runs fn inside a session transaction. The driver may call
// fn again on transient transaction errors.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, r orders.Repos) error) error {
	sess, err := s.Client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc, s.Repos())
	})
	return err
}

// UpsertProduct writes a catalog document. Used for seeding.
func (s *Store) UpsertProduct(ctx context.Context, p orders.Snapshot) error {
	doc := productDoc{
		ID:            docID(p.ID),
		Name:          p.Name,
		SKU:           p.SKU,
		Quantity:      p.Quantity,
		Price:         p.Price,
		PriceCurrency: p.Currency,
		PriceUnit:     p.Unit,
		Active:        p.Active,
		Attributes:    p.Attributes,
	}
	if p.Image != "" {
		doc.Images = []string{p.Image}
	}
	_, err := s.DB.Collection(productsCollection).ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc,
		options.Replace().SetUpsert(true))
	return err
}

func (s *Store) Quantity(ctx context.Context, productID string) (int, error) {
	var doc productDoc
	err := s.DB.Collection(productsCollection).FindOne(ctx, idFilter(productID)).Decode(&doc)
	return doc.Quantity, err
}

// productDoc mirrors the catalog service's product documents. Catalog
// products are keyed by ObjectId; string keys are accepted as well.
type productDoc struct {
	ID            any             `bson:"_id"`
	Name          string          `bson:"name"`
	SKU           string          `bson:"sku"`
	Images        []string        `bson:"images,omitempty"`
	Quantity      int             `bson:"quantity"`
	Price         decimal.Decimal `bson:"price"`
	PriceCurrency string          `bson:"priceCurrency"`
	PriceUnit     string          `bson:"priceUnit"`
	Active        bool            `bson:"active"`
	Attributes    map[string]any  `bson:"attributes,omitempty"`
}

func (d productDoc) snapshot() orders.Snapshot {
	s := orders.Snapshot{
		ID:         idString(d.ID),
		Name:       d.Name,
		SKU:        d.SKU,
		Price:      d.Price,
		Currency:   d.PriceCurrency,
		Unit:       d.PriceUnit,
		Quantity:   d.Quantity,
		Active:     d.Active,
		Attributes: d.Attributes,
	}
	if len(d.Images) > 0 {
		s.Image = d.Images[0]
	}
	return s
}

type repo struct {
	products *mongo.Collection
	orders   *mongo.Collection
}

func (r *repo) Snapshots(ctx context.Context, ids []string, activeOnly bool) (map[string]orders.Snapshot, error) {
	keys := make(bson.A, 0, 2*len(ids))
	requested := make(map[string]string, len(ids))
	for _, id := range ids {
		keys = append(keys, idCandidates(id)...)
		requested[canonicalID(id)] = id
	}
	filter := bson.M{"_id": bson.M{"$in": keys}}
	if activeOnly {
		filter["active"] = true
	}
	cur, err := r.products.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make(map[string]orders.Snapshot, len(docs))
	for _, d := range docs {
		snap := d.snapshot()
		if id, ok := requested[canonicalID(snap.ID)]; ok {
			snap.ID = id
		}
		out[snap.ID] = snap
	}
	return out, nil
}

// TryDecrement is a single conditional $inc, atomic on the document.
func (r *repo) TryDecrement(ctx context.Context, productID string, qty int) error {
	filter := idFilter(productID)
	filter["quantity"] = bson.M{"$gte": qty}
	res, err := r.products.UpdateOne(ctx, filter,
		bson.M{"$inc": bson.M{"quantity": -qty}})
	if err != nil {
		return err
	}
	if res.ModifiedCount == 1 {
		return nil
	}
	var doc productDoc
	err = r.products.FindOne(ctx, idFilter(productID)).Decode(&doc)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return err
	}
	return orders.Insufficient(productID, doc.Name, qty, doc.Quantity)
}

func (r *repo) Increment(ctx context.Context, productID string, qty int) error {
	res, err := r.products.UpdateOne(ctx, idFilter(productID), bson.M{"$inc": bson.M{"quantity": qty}})
	if err != nil {
		return err
	}
	if res.MatchedCount != 1 {
		return fmt.Errorf("increment %s: product missing", productID)
	}
	return nil
}

func (r *repo) Create(ctx context.Context, o *orders.Order) error {
	_, err := r.orders.InsertOne(ctx, o)
	if mongo.IsDuplicateKeyError(err) {
		return orders.ErrDuplicateKey
	}
	return err
}

func (r *repo) Patch(ctx context.Context, id string, p orders.Patch) (*orders.Order, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	set := bson.M{"updated_at": now}
	if p.Status != nil {
		set["status"] = *p.Status
	}
	if p.PaymentStatus != nil {
		set["payment.status"] = *p.PaymentStatus
		if *p.PaymentStatus == orders.PaymentPaid {
			set["payment.paid_at"] = now
		}
	}
	if meta := p.PaymentMeta(); meta != nil {
		set["payment.meta"] = meta
	}

	var o orders.Order
	err := r.orders.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, orders.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repo) FindByID(ctx context.Context, id string) (*orders.Order, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, userID, key string) (*orders.Order, error) {
	return r.findOne(ctx, bson.M{"user_id": userID, "idempotency_key": key})
}

func (r *repo) findOne(ctx context.Context, filter bson.M) (*orders.Order, error) {
	var o orders.Order
	err := r.orders.FindOne(ctx, filter).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, orders.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

func (r *repo) FindByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	cur, err := r.orders.Find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, err
	}
	out := []orders.Order{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) FindAll(ctx context.Context, f orders.Filter, p orders.Page) ([]orders.Order, int64, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.UserID != "" {
		filter["user_id"] = f.UserID
	}
	total, err := r.orders.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	cur, err := r.orders.Find(ctx, filter, options.Find().
		SetSort(newestFirst).
		SetSkip(int64(p.Offset())).
		SetLimit(int64(p.Limit)))
	if err != nil {
		return nil, 0, err
	}
	out := []orders.Order{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
