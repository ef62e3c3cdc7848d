package dispatch

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bagflow-backend/pkg/config"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	"github.com/angelmondragon/bagflow-backend/pkg/maps"
	"github.com/angelmondragon/bagflow-backend/pkg/types"
)

const earthRadiusMeters = 6371000.0

var metersPerKm = decimal.NewFromInt(1000)

// Router returns the road distance between two points.
type Router interface {
	ComputeRoute(ctx context.Context, origin, destination maps.LatLng) (*maps.Route, error)
}

// Quote is the courier fee for one leg.
type Quote struct {
	FeeCents       int64
	DistanceMeters int64
}

// FeeCalculator prices a courier leg from its distance.
type FeeCalculator struct {
	router  Router
	logg    *logger.Logger
	base    int64
	perKm   int64
	minimum int64
}

// NewFeeCalculator returns a calculator; a nil router prices on straight-line
// distance only.
func NewFeeCalculator(cfg config.PricingConfig, router Router, logg *logger.Logger) *FeeCalculator {
	if logg == nil {
		logg = logger.Nop()
	}
	return &FeeCalculator{
		router:  router,
		logg:    logg,
		base:    cfg.ShippingBaseCents,
		perKm:   cfg.ShippingPerKmCents,
		minimum: cfg.ShippingMinCents,
	}
}

// Quote prices the leg between origin and destination. A routing failure
// falls back to the haversine distance.
func (c *FeeCalculator) Quote(ctx context.Context, origin, destination types.Address) Quote {
	meters := HaversineMeters(origin, destination)
	if c.router != nil {
		route, err := c.router.ComputeRoute(ctx,
			maps.LatLng{Latitude: origin.Lat, Longitude: origin.Lng},
			maps.LatLng{Latitude: destination.Lat, Longitude: destination.Lng})
		if err != nil {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "road distance unavailable, using straight line")
		} else if route != nil && route.DistanceMeters > 0 {
			meters = route.DistanceMeters
		}
	}
	return Quote{FeeCents: c.Fee(meters), DistanceMeters: meters}
}

// Fee is max(minimum, base + perKm * km), rounded to the cent.
func (c *FeeCalculator) Fee(meters int64) int64 {
	km := decimal.NewFromInt(meters).Div(metersPerKm)
	fee := decimal.NewFromInt(c.base).
		Add(decimal.NewFromInt(c.perKm).Mul(km)).
		Round(0).
		IntPart()
	if fee < c.minimum {
		return c.minimum
	}
	return fee
}

// HaversineMeters is the great-circle distance between two addresses.
func HaversineMeters(a, b types.Address) int64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return int64(math.Round(2 * earthRadiusMeters * math.Asin(math.Sqrt(h))))
}
