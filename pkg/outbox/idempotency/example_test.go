package idempotency_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/bagflow-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/bagflow-backend/pkg/redis"
)

// A webhook consumer marks each (payment, status) pair before applying it and
// forgets the mark when applying fails, so the gateway's retry gets through.
func ExampleManager_CheckAndMarkProcessed() {
	srv, _ := miniredis.Run()
	defer srv.Close()
	store := redis.FromRaw(goredis.NewClient(&goredis.Options{Addr: srv.Addr()}))
	guard, _ := idempotency.NewManager(store, 7*24*time.Hour)

	ctx := context.Background()
	apply := func(delivery string, fail bool) string {
		seen, _ := guard.CheckAndMarkProcessed(ctx, "payment-webhooks", delivery)
		if seen {
			return "duplicate"
		}
		if fail {
			_ = guard.Delete(ctx, "payment-webhooks", delivery)
			return errors.New("ledger busy").Error()
		}
		return "applied"
	}

	fmt.Println(apply("pay-7:APPROVED", true))
	fmt.Println(apply("pay-7:APPROVED", false))
	fmt.Println(apply("pay-7:APPROVED", false))
	// Output:
	// ledger busy
	// applied
	// duplicate
}
