package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "autox-dev",
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
	if cfg.Firestore.ProjectID != "autox-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "autox-dev" {
		t.Errorf("expected pubsub project to default to firebase project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.NotificationsTopic != defaultNotificationsTopic {
		t.Errorf("unexpected notifications topic %s", cfg.PubSub.NotificationsTopic)
	}
	if cfg.Auth.PartnerClaim != "partnerId" {
		t.Errorf("unexpected partner claim %s", cfg.Auth.PartnerClaim)
	}
	if !slices.Equal(cfg.Auth.OIDC.Issuers, []string{defaultOIDCIssuer}) {
		t.Errorf("expected default issuer, got %v", cfg.Auth.OIDC.Issuers)
	}
	if cfg.Requests.Currency != "LKR" {
		t.Errorf("expected default currency LKR, got %s", cfg.Requests.Currency)
	}
	if cfg.Requests.OrderNumberAttempts != defaultOrderNumberAttempts {
		t.Errorf("unexpected order number attempts %d", cfg.Requests.OrderNumberAttempts)
	}
	if cfg.Requests.MaxBodyBytes != defaultMaxBodyBytes {
		t.Errorf("unexpected max body bytes %d", cfg.Requests.MaxBodyBytes)
	}
	if cfg.Notifications.DispatchTimeout != defaultDispatchTimeout {
		t.Errorf("unexpected dispatch timeout %s", cfg.Notifications.DispatchTimeout)
	}
	if cfg.Secrets.Environment != "local" || cfg.Secrets.DefaultProject != "autox-dev" {
		t.Errorf("unexpected secrets config %+v", cfg.Secrets)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if cfg.Observability.LogLevel != "info" || cfg.Observability.TraceProjectID != "autox-dev" {
		t.Errorf("unexpected observability config %+v", cfg.Observability)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                    "9090",
		"API_SERVER_WRITE_TIMEOUT":           "25s",
		"API_FIREBASE_PROJECT_ID":            "autox-prod",
		"API_FIRESTORE_PROJECT_ID":           "autox-db",
		"API_PUBSUB_NOTIFICATIONS_TOPIC":     "sr-events",
		"API_AUTH_OIDC_AUDIENCE":             "https://api.autox.example",
		"API_AUTH_OIDC_ISSUERS":              "https://accounts.google.com, https://issuer.example",
		"API_AUTH_OIDC_ALLOWED_EMAILS":       "dispatcher@autox-prod.iam.gserviceaccount.com",
		"API_NOTIFICATIONS_SIGNING_SECRET":   "secret://notifications/signing",
		"API_NOTIFICATIONS_DISPATCH_TIMEOUT": "3s",
		"API_REQUESTS_CURRENCY":              "usd",
		"API_REQUESTS_ORDER_NUMBER_ATTEMPTS": "8",
		"API_IDEMPOTENCY_TTL":                "1h",
	}

	var requested []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		requested = append(requested, ref)
		return "resolved-" + ref, nil
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
		WithRequiredSecrets("Notifications.SigningSecret"),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.WriteTimeout != 25*time.Second {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Firestore.ProjectID != "autox-db" {
		t.Errorf("expected explicit firestore project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.NotificationsTopic != "sr-events" {
		t.Errorf("unexpected topic %s", cfg.PubSub.NotificationsTopic)
	}
	if !slices.Equal(cfg.Auth.OIDC.Issuers, []string{"https://accounts.google.com", "https://issuer.example"}) {
		t.Errorf("unexpected issuers %v", cfg.Auth.OIDC.Issuers)
	}
	if !slices.Equal(cfg.Auth.OIDC.AllowedEmails, []string{"dispatcher@autox-prod.iam.gserviceaccount.com"}) {
		t.Errorf("unexpected allowed emails %v", cfg.Auth.OIDC.AllowedEmails)
	}
	if cfg.Notifications.SigningSecret != "resolved-secret://notifications/signing" {
		t.Errorf("unexpected signing secret %q", cfg.Notifications.SigningSecret)
	}
	if cfg.Notifications.DispatchTimeout != 3*time.Second {
		t.Errorf("unexpected dispatch timeout %s", cfg.Notifications.DispatchTimeout)
	}
	if cfg.Requests.Currency != "USD" || cfg.Requests.OrderNumberAttempts != 8 {
		t.Errorf("unexpected request config %+v", cfg.Requests)
	}
	if len(requested) != 1 {
		t.Fatalf("expected one secret lookup, got %v", requested)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local overrides\nAPI_SERVER_PORT=7070\nexport API_FIREBASE_PROJECT_ID=\"autox-dot\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "autox-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	env := map[string]string{"API_FIREBASE_PROJECT_ID": "autox-dev"}
	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(filepath.Join(t.TempDir(), "absent.env")),
	)
	if err != nil {
		t.Fatalf("expected missing dotenv to be ignored, got %v", err)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if !slices.Contains(validation.Fields(), "Firebase.ProjectID") {
		t.Fatalf("expected Firebase.ProjectID in %v", validation.Fields())
	}
}

func TestLoadRejectsInvalidCurrency(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "autox-dev",
		"API_REQUESTS_CURRENCY":   "rupees",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !slices.Contains(validation.Fields(), "Requests.Currency") {
		t.Fatalf("expected Requests.Currency in %v", validation.Fields())
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":          "autox-dev",
		"API_NOTIFICATIONS_SIGNING_SECRET": "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRETS_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRETS_ENVIRONMENT", "prod")

	overrides := map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRETS_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRETS_ENVIRONMENT"]; got != "prod" {
		t.Fatalf("expected system env value, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "autox-dev",
		"API_SECRETS_REQUIRED":    "Notifications.SigningSecret",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if got := missing.Names(); len(got) != 1 || got[0] != "Notifications.SigningSecret" {
		t.Fatalf("unexpected missing names %v", got)
	}
	redacted := missing.RedactedNames()
	if len(redacted) != 1 || redacted[0] == "Notifications.SigningSecret" || len(redacted[0]) != 16 {
		t.Fatalf("expected redacted hash, got %v", redacted)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "autox-dev",
	}

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "Notifications.SigningSecret" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	_, _ = Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Notifications.SigningSecret"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":          "autox-dev",
		"API_NOTIFICATIONS_SIGNING_SECRET": "sm://notifications/signing",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://notifications/signing" {
			return "legacy-secret", nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.SigningSecret != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.Notifications.SigningSecret)
	}
}
