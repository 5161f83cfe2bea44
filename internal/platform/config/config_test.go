package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "asg-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "asg-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Events.ProjectID != "asg-dev" {
		t.Errorf("expected events project to default to firebase project, got %s", cfg.Events.ProjectID)
	}
	if cfg.Events.OrderTopic != defaultOrderTopic {
		t.Errorf("expected default order topic, got %s", cfg.Events.OrderTopic)
	}
	if cfg.Carrier.BaseURL != defaultCarrierBaseURL {
		t.Errorf("expected default carrier base url, got %s", cfg.Carrier.BaseURL)
	}
	if cfg.Carrier.ShipFrom.Country != "US" {
		t.Errorf("expected default ship-from country US, got %s", cfg.Carrier.ShipFrom.Country)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":               "9090",
		"API_SERVER_READ_TIMEOUT":       "20s",
		"API_FIREBASE_PROJECT_ID":       "asg-prod",
		"API_FIRESTORE_PROJECT_ID":      "asg-fire",
		"API_STORAGE_LABELS_BUCKET":     "asg-labels-prod",
		"API_PSP_STRIPE_API_KEY":        "secret://stripe/api",
		"API_CARRIER_SHIPPO_API_KEY":    "secret://shippo/token",
		"API_CARRIER_CUSTOMS_SIGNER":    "J Operator",
		"API_CARRIER_SHIPFROM_NAME":     "ASG Warehouse",
		"API_CARRIER_SHIPFROM_STREET1":  "100 Main St",
		"API_CARRIER_SHIPFROM_CITY":     "Portland",
		"API_CARRIER_SHIPFROM_STATE":    "OR",
		"API_CARRIER_SHIPFROM_ZIP":      "97201",
		"API_EMAIL_SENDGRID_API_KEY":    "secret://sendgrid/key",
		"API_EMAIL_FROM_ADDRESS":        "orders@example.com",
		"API_EMAIL_RECEIPT_TEMPLATE_ID": "d-receipt",
		"API_EVENTS_ORDER_TOPIC":        "orders-v2",
		"API_SECURITY_ENVIRONMENT":      "PROD",
	}

	secrets := map[string]string{
		"secret://stripe/api":   "stripe-key",
		"secret://shippo/token": "shippo-token",
		"secret://sendgrid/key": "sendgrid-key",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("unexpected port: %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "asg-fire" {
		t.Errorf("expected explicit firestore project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PSP.StripeAPIKey != "stripe-key" {
		t.Errorf("stripe key not resolved: %s", cfg.PSP.StripeAPIKey)
	}
	if cfg.Carrier.ShippoAPIKey != "shippo-token" {
		t.Errorf("shippo key not resolved: %s", cfg.Carrier.ShippoAPIKey)
	}
	if cfg.Email.SendGridAPIKey != "sendgrid-key" {
		t.Errorf("sendgrid key not resolved: %s", cfg.Email.SendGridAPIKey)
	}
	if cfg.Carrier.ShipFrom.City != "Portland" {
		t.Errorf("unexpected ship-from city: %s", cfg.Carrier.ShipFrom.City)
	}
	if cfg.Events.OrderTopic != "orders-v2" {
		t.Errorf("unexpected order topic: %s", cfg.Events.OrderTopic)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected lowercased environment, got %s", cfg.Security.Environment)
	}
}

func TestLoadNormalizesLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "asg-dev",
		"API_PSP_STRIPE_API_KEY":  "sm://stripe/api",
	}

	var seen string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		seen = ref
		return "resolved", nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if seen != "secret://stripe/api" {
		t.Errorf("expected normalized reference, got %s", seen)
	}
	if cfg.PSP.StripeAPIKey != "resolved" {
		t.Errorf("unexpected resolved value: %s", cfg.PSP.StripeAPIKey)
	}
}

func TestLoadMissingRequiredSecret(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "asg-dev",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeAPIKey"))
	if err == nil {
		t.Fatal("expected missing secrets error")
	}

	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	names := missing.Names()
	if len(names) != 1 || names[0] != "PSP.StripeAPIKey" {
		t.Errorf("unexpected missing names: %v", names)
	}
}

func TestLoadValidationFailure(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error")
	}

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	if len(fields) == 0 {
		t.Fatal("expected missing fields")
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nexport API_FIREBASE_PROJECT_ID=asg-env\nAPI_SERVER_PORT=\"7070\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(path))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firebase.ProjectID != "asg-env" {
		t.Errorf("expected project from env file, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from env file, got %s", cfg.Server.Port)
	}
}
