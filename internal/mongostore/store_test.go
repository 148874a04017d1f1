package mongostore

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StoreSuite runs against the MongoDB named by MONGO_TEST_URI.
type StoreSuite struct {
	suite.Suite
	store *Store
}

func TestStore(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	if err := godotenv.Load("../../.env.test"); err != nil {
		log.Println("Warning: .env.test file not found. Using system environment variables.")
	}
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		s.T().Skip("MONGO_TEST_URI not set")
	}
	client, err := Connect(context.Background(), uri)
	s.Require().NoError(err)
	s.store = New(client, "checkout_test_"+uuid.NewString()[:8])
	s.Require().NoError(EnsureIndexes(context.Background(), s.store.DB))
}

func (s *StoreSuite) TearDownSuite() {
	if s.store == nil {
		return
	}
	ctx := context.Background()
	_ = s.store.DB.Drop(ctx)
	_ = s.store.Client.Disconnect(ctx)
}

func (s *StoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.store.DB.Collection(productsCollection).Drop(ctx))
	s.Require().NoError(s.store.DB.Collection(ordersCollection).Drop(ctx))
	s.Require().NoError(EnsureIndexes(ctx, s.store.DB))
}

func (s *StoreSuite) order(user, key string) *orders.Order {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &orders.Order{
		ID: uuid.NewString(), UserID: user, Currency: "INR",
		Subtotal: decimal.NewFromInt(500), Shipping: decimal.NewFromInt(49), Tax: decimal.NewFromInt(90),
		GrandTotal: decimal.NewFromInt(639), Status: orders.StatusPending,
		Payment:        orders.Payment{Provider: "cod", Status: orders.PaymentUnpaid, Meta: map[string]any{}},
		IdempotencyKey: key, CreatedAt: now, UpdatedAt: now,
	}
}

func (s *StoreSuite) TestConditionalDecrement() {
	ctx := context.Background()
	s.Require().NoError(s.store.UpsertProduct(ctx, orders.Snapshot{
		ID: "P1", Name: "Kurta", SKU: "K-1", Price: decimal.NewFromInt(500), Currency: "INR", Quantity: 2, Active: true,
	}))
	stock := s.store.Repos().Stock

	s.NoError(stock.TryDecrement(ctx, "P1", 2))
	s.ErrorIs(stock.TryDecrement(ctx, "P1", 1), orders.ErrInsufficientStock)
	s.NoError(stock.Increment(ctx, "P1", 2))

	q, err := s.store.Quantity(ctx, "P1")
	s.NoError(err)
	s.Equal(2, q)

	snaps, err := s.store.Repos().Catalog.Snapshots(ctx, []string{"P1"}, true)
	s.Require().NoError(err)
	s.Equal("500", snaps["P1"].Price.String())
}

func (s *StoreSuite) TestIdempotencyIndex() {
	ctx := context.Background()
	r := s.store.Repos().Orders

	first := s.order("u1", "k1")
	s.Require().NoError(r.Create(ctx, first))
	s.ErrorIs(r.Create(ctx, s.order("u1", "k1")), orders.ErrDuplicateKey)
	s.NoError(r.Create(ctx, s.order("u1", "")))
	s.NoError(r.Create(ctx, s.order("u1", "")))

	got, err := r.FindByIdempotencyKey(ctx, "u1", "k1")
	s.Require().NoError(err)
	s.Equal(first.ID, got.ID)
	s.Equal("639", got.GrandTotal.String())
	s.Equal(first.CreatedAt, got.CreatedAt)
}

func (s *StoreSuite) TestPatchPaymentMeta() {
	ctx := context.Background()
	r := s.store.Repos().Orders
	o := s.order("u1", "")
	s.Require().NoError(r.Create(ctx, o))

	paid := orders.PaymentPaid
	track := "TRK-9"
	got, err := r.Patch(ctx, o.ID, orders.Patch{PaymentStatus: &paid, TrackingNumber: &track, Meta: map[string]any{"ref": "x"}})
	s.Require().NoError(err)
	s.Equal(orders.PaymentPaid, got.Payment.Status)
	s.NotNil(got.Payment.PaidAt)
	s.Equal("x", got.Payment.Meta["ref"])
	s.Equal("TRK-9", got.Payment.Meta["trackingNumber"])
	s.Equal(orders.StatusPending, got.Status)

	_, err = r.Patch(ctx, "missing", orders.Patch{PaymentStatus: &paid})
	s.ErrorIs(err, orders.ErrNotFound)
}

func (s *StoreSuite) TestObjectIDKeyedCatalog() {
	ctx := context.Background()
	oid := primitive.NewObjectID()
	_, err := s.store.DB.Collection(productsCollection).InsertOne(ctx, bson.M{
		"_id": oid, "name": "Kurta", "sku": "K-1", "price": 499.5, "priceCurrency": "INR",
		"priceUnit": "piece", "quantity": 3, "active": true,
	})
	s.Require().NoError(err)
	r := s.store.Repos()

	snaps, err := r.Catalog.Snapshots(ctx, []string{oid.Hex()}, true)
	s.Require().NoError(err)
	s.Require().Contains(snaps, oid.Hex())
	s.Equal("499.5", snaps[oid.Hex()].Price.String())

	s.NoError(r.Stock.TryDecrement(ctx, oid.Hex(), 3))
	s.ErrorIs(r.Stock.TryDecrement(ctx, oid.Hex(), 1), orders.ErrInsufficientStock)
	s.NoError(r.Stock.Increment(ctx, oid.Hex(), 1))

	q, err := s.store.Quantity(ctx, oid.Hex())
	s.NoError(err)
	s.Equal(1, q)
}

func (s *StoreSuite) TestTransactionProbe() {
	ok, err := s.store.SupportsTransactions(context.Background())
	s.Require().NoError(err)
	if !ok {
		s.T().Skip("standalone server, transactions unavailable")
	}
	ctx := context.Background()
	s.Require().NoError(s.store.UpsertProduct(ctx, orders.Snapshot{
		ID: "P1", Name: "Kurta", SKU: "K-1", Price: decimal.NewFromInt(500), Quantity: 5, Active: true,
	}))
	err = s.store.WithTransaction(ctx, func(ctx context.Context, r orders.Repos) error {
		if err := r.Stock.TryDecrement(ctx, "P1", 3); err != nil {
			return err
		}
		return r.Stock.TryDecrement(ctx, "P1", 3)
	})
	s.ErrorIs(err, orders.ErrInsufficientStock)
	q, err := s.store.Quantity(ctx, "P1")
	s.NoError(err)
	s.Equal(5, q)
}
