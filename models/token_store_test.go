package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/recon_backend/config"
	"github.com/mmdatafocus/recon_backend/models"
)

func TestTokenStoreUpsertKeepsOneRowPerSystem(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "recon_test")

	config.ConnectDatabaseWithRetry()
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}

	store := models.NewTokenStore()

	// No row yet.
	token, err := store.Get(ctx, models.TokenSystemRede)
	if err != nil {
		t.Fatalf("Get on empty table: %v", err)
	}
	if token != nil {
		t.Fatalf("expected nil token on empty table; got %+v", token)
	}

	// First save inserts.
	first := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := store.Save(ctx, &models.Token{
		System:      models.TokenSystemRede,
		AccessToken: "token-one",
		ExpiresAt:   &first,
	}); err != nil {
		t.Fatalf("first Save: %v", err)
	}

	// Second save for the same system overwrites the row.
	second := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	if err := store.Save(ctx, &models.Token{
		System:      models.TokenSystemRede,
		AccessToken: "token-two",
		ExpiresAt:   &second,
	}); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, err := store.Get(ctx, models.TokenSystemRede)
	if err != nil {
		t.Fatalf("Get after upsert: %v", err)
	}
	if got == nil || got.AccessToken != "token-two" {
		t.Fatalf("expected token-two after upsert; got %+v", got)
	}

	var count int64
	if err := config.GetDB().Model(&models.Token{}).Where("`system` = ?", models.TokenSystemRede).Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one row per system; got %d", count)
	}

	// A second system gets its own row.
	if err := store.Save(ctx, &models.Token{
		System:      models.TokenSystemSankhya,
		AccessToken: "ledger-token",
	}); err != nil {
		t.Fatalf("Save second system: %v", err)
	}
	other, err := store.Get(ctx, models.TokenSystemSankhya)
	if err != nil {
		t.Fatalf("Get second system: %v", err)
	}
	if other == nil || other.AccessToken != "ledger-token" {
		t.Fatalf("expected ledger-token for second system; got %+v", other)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("recon-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=recon_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
