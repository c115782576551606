package idempotency

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestGenerateKeyDeterministic(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	a := GenerateKey("p-1", 120, 80, at)
	b := GenerateKey("p-1", 120, 80, at)
	if a != b {
		t.Errorf("same inputs produced different keys:\n%s\n%s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(a))
	}
}

func TestGenerateKeyMinuteTruncation(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)

	// Retries within the same minute collide on purpose.
	a := GenerateKey("p-1", 120, 80, base.Add(5*time.Second))
	b := GenerateKey("p-1", 120, 80, base.Add(41*time.Second))
	if a != b {
		t.Error("keys within the same minute should match")
	}

	c := GenerateKey("p-1", 120, 80, base.Add(time.Minute))
	if a == c {
		t.Error("keys a minute apart should differ")
	}
}

func TestGenerateKeyDiscriminatesInputs(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	base := GenerateKey("p-1", 120, 80, at)

	if GenerateKey("p-2", 120, 80, at) == base {
		t.Error("different patients collided")
	}
	if GenerateKey("p-1", 121, 80, at) == base {
		t.Error("different systolic collided")
	}
	if GenerateKey("p-1", 120, 81, at) == base {
		t.Error("different diastolic collided")
	}
}

// fakeExec records the claim statement and answers with a canned tag.
type fakeExec struct {
	sql  string
	args []any
	tag  pgconn.CommandTag
	err  error
}

func (f *fakeExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = sql
	f.args = args
	return f.tag, f.err
}

func TestClaimReclaimsExpiredKeys(t *testing.T) {
	// One affected row: either a fresh insert or an expired row reclaimed.
	db := &fakeExec{tag: pgconn.NewCommandTag("INSERT 0 1")}
	first, err := claim(context.Background(), db, "key-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !first {
		t.Error("affected row should count as a first submission")
	}

	if !strings.Contains(db.sql, "DO UPDATE") || !strings.Contains(db.sql, "expires_at < NOW()") {
		t.Errorf("claim statement does not reclaim expired keys:\n%s", db.sql)
	}
}

func TestClaimReportsLiveDuplicate(t *testing.T) {
	// A live conflicting row leaves zero rows affected.
	db := &fakeExec{tag: pgconn.NewCommandTag("INSERT 0 0")}
	first, err := claim(context.Background(), db, "key-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if first {
		t.Error("a live duplicate must not count as a first submission")
	}
}

func TestClaimWrapsExecError(t *testing.T) {
	boom := errors.New("connection lost")
	db := &fakeExec{err: boom}
	if _, err := claim(context.Background(), db, "key-1", time.Now()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped exec error", err)
	}
}

func TestGenerateKeyNormalizesZone(t *testing.T) {
	utc := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	est := utc.In(time.FixedZone("EST", -5*60*60))

	if GenerateKey("p-1", 120, 80, utc) != GenerateKey("p-1", 120, 80, est) {
		t.Error("the same instant in different zones should produce one key")
	}
}
