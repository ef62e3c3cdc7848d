// Package dbtest opens throwaway sqlite databases carrying the bagflow schema.
package dbtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/bagflow-backend/pkg/db"
	"github.com/angelmondragon/bagflow-backend/pkg/db/models"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	"github.com/angelmondragon/bagflow-backend/pkg/migrate"
	"github.com/angelmondragon/bagflow-backend/pkg/types"
)

// Open returns a client backed by a private in-memory sqlite database.
// A single pooled connection keeps every statement on the same database and
// serializes transactions the way row locks would on Postgres.
func Open(t *testing.T) *db.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared&_busy_timeout=5000", name, uuid.NewString()[:8])

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.New(log.New(io.Discard, "", 0), gormlogger.Config{LogLevel: gormlogger.Silent}),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.ApplySQLiteSchema(context.Background(), sqlDB); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db.FromGorm(conn)
}

// Fixture holds the read-only collaborators a bag needs.
type Fixture struct {
	Store      models.Store
	Address    models.ClientAddress
	Variations []models.ProductVariation
	ClientID   uuid.UUID
}

// StoreAddress is the pickup point used by fixtures.
func StoreAddress() types.Address {
	return types.Address{
		Line1:      "Rua Oscar Freire 100",
		City:       "Sao Paulo",
		State:      "SP",
		PostalCode: "01426-000",
		Country:    "BR",
		Lat:        -23.5614,
		Lng:        -46.6695,
	}
}

// ClientAddress sits a few kilometres from StoreAddress.
func ClientAddress() types.Address {
	return types.Address{
		Line1:      "Av. Paulista 1578",
		City:       "Sao Paulo",
		State:      "SP",
		PostalCode: "01310-200",
		Country:    "BR",
		Lat:        -23.5613,
		Lng:        -46.6560,
	}
}

// Seed inserts a store with the given variation prices and a client address.
func Seed(t *testing.T, client *db.Client, prices ...int64) Fixture {
	t.Helper()

	fx := Fixture{
		Store: models.Store{
			ID:      uuid.New(),
			OwnerID: uuid.New(),
			Name:    "Atelier Pinheiros",
			Address: StoreAddress(),
		},
		ClientID: uuid.New(),
	}
	fx.Address = models.ClientAddress{ID: uuid.New(), UserID: fx.ClientID, Address: ClientAddress()}

	conn := client.DB()
	if err := conn.Create(&fx.Store).Error; err != nil {
		t.Fatalf("seed store: %v", err)
	}
	if err := conn.Create(&fx.Address).Error; err != nil {
		t.Fatalf("seed address: %v", err)
	}
	for i, price := range prices {
		v := models.ProductVariation{
			ID:         uuid.New(),
			StoreID:    fx.Store.ID,
			Name:       fmt.Sprintf("Piece %d", i+1),
			Size:       "M",
			PriceCents: price,
			Active:     true,
		}
		if err := conn.Create(&v).Error; err != nil {
			t.Fatalf("seed variation: %v", err)
		}
		fx.Variations = append(fx.Variations, v)
	}
	return fx
}

// InsertBag stores a bag for fx in the given status with one item per
// variation, each requested and included once.
func InsertBag(t *testing.T, client *db.Client, fx Fixture, status enums.BagStatus) models.Bag {
	t.Helper()

	now := time.Now().UTC()
	bag := models.Bag{
		ID:              uuid.New(),
		ClientID:        fx.ClientID,
		StoreID:         fx.Store.ID,
		AddressID:       fx.Address.ID,
		Type:            enums.BagTypeClosed,
		Status:          status,
		PaymentSourceID: "cnon:card-nonce-ok",
		Currency:        "USD",
		RequestedAt:     now,
	}
	conn := client.DB()
	if err := conn.Create(&bag).Error; err != nil {
		t.Fatalf("seed bag: %v", err)
	}
	for _, v := range fx.Variations {
		item := models.BagItem{
			ID:             uuid.New(),
			BagID:          bag.ID,
			VariationID:    v.ID,
			RequestedQty:   1,
			IncludedQty:    1,
			UnitPriceCents: v.PriceCents,
			Status:         enums.BagItemStatusIncluded,
		}
		if err := conn.Create(&item).Error; err != nil {
			t.Fatalf("seed bag item: %v", err)
		}
	}
	return bag
}
