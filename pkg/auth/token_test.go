package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bagflow-backend/pkg/config"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "bagflow",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseStoreToken(t *testing.T) {
	cfg := testJWTConfig()
	userID := uuid.New()
	storeID := uuid.New()

	token, err := MintAccessToken(cfg, time.Now().UTC(), AccessTokenPayload{
		UserID:  userID,
		Role:    enums.ActorRoleStore,
		StoreID: &storeID,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.StoreID == nil || *claims.StoreID != storeID {
		t.Fatalf("store id not preserved")
	}
	if claims.Role != enums.ActorRoleStore {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be set")
	}
}

func TestMintRejectsStoreRoleWithoutStore(t *testing.T) {
	_, err := MintAccessToken(testJWTConfig(), time.Now(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.ActorRoleStore,
	})
	if err == nil {
		t.Fatal("expected error for store role without store id")
	}
}

func TestMintRejectsUnknownRole(t *testing.T) {
	_, err := MintAccessToken(testJWTConfig(), time.Now(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.ActorRole("admin"),
	})
	if err == nil || !strings.Contains(err.Error(), "invalid actor role") {
		t.Fatalf("expected invalid role error, got %v", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.ActorRoleCourier,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleClient})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	cfg.Issuer = "someone-else"
	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatal("expected issuer mismatch to fail")
	}
}
