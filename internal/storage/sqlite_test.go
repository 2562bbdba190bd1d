package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/roach88/quarry/internal/schema"
)

func blogRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry([]*schema.Entity{
		{
			Name: "user",
			Fields: []schema.Field{
				{Name: "id", Type: schema.TypeString, Primary: true},
				{Name: "email", Type: schema.TypeString, Unique: true},
				{Name: "age", Type: schema.TypeInt, Nullable: true},
			},
			Relations: []schema.Relation{
				{Name: "posts", Target: "post", Kind: schema.ToMany, ForeignKey: "authorId"},
			},
		},
		{
			Name: "post",
			Fields: []schema.Field{
				{Name: "id", Type: schema.TypeString, Primary: true},
				{Name: "title", Type: schema.TypeString},
				{Name: "authorId", Type: schema.TypeString},
			},
			Relations: []schema.Relation{
				{Name: "author", Target: "user", Kind: schema.ToOne, ForeignKey: "authorId"},
			},
		},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func openStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(":memory:", blogRegistry(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_ProvisionsTables(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if _, err := s.Exec(ctx, `INSERT INTO "user" ("id", "email") VALUES (?, ?)`, "u1", "a@x.com"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rows, err := s.Query(ctx, `SELECT "email" FROM "user" WHERE "id" = ?`, "u1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatal("expected one row")
	}
	var email string
	if err := rows.Scan(&email); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if email != "a@x.com" {
		t.Errorf("email = %q, want %q", email, "a@x.com")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blog.db")
	reg := blogRegistry(t)

	s1, err := Open(path, reg)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := s1.Exec(context.Background(), `INSERT INTO "user" ("id", "email") VALUES (?, ?)`, "u1", "a@x.com"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening must not recreate tables or drop rows.
	s2, err := Open(path, reg)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()
	rows, err := s2.Query(context.Background(), `SELECT COUNT(*) FROM "user"`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	rows.Next()
	var n int
	if err := rows.Scan(&n); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestTableDDL(t *testing.T) {
	reg := blogRegistry(t)
	post, _ := reg.Entity("post")

	got := TableDDL(post)
	want := "CREATE TABLE IF NOT EXISTS \"post\" (\n\t\"id\" TEXT PRIMARY KEY,\n\t\"title\" TEXT NOT NULL,\n\t\"authorId\" TEXT NOT NULL,\n\tFOREIGN KEY (\"authorId\") REFERENCES \"user\"\n)"
	if got != want {
		t.Errorf("ddl mismatch:\ngot:  %s\nwant: %s", got, want)
	}
}

func TestFoldFunction(t *testing.T) {
	s := openStore(t)

	rows, err := s.Query(context.Background(), `SELECT fold(?) = fold(?)`, "STRASSE", "straße")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	rows.Next()
	var equal bool
	if err := rows.Scan(&equal); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !equal {
		t.Error("fold('STRASSE') should equal fold('straße')")
	}
}

func TestCaseSensitiveLike(t *testing.T) {
	s := openStore(t)

	// Plain LIKE stays case-sensitive; insensitivity is always explicit
	// through fold().
	rows, err := s.Query(context.Background(), `SELECT 'ABC' LIKE 'abc'`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	rows.Next()
	var matched bool
	if err := rows.Scan(&matched); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if matched {
		t.Error("LIKE should be case-sensitive")
	}
}

func TestClassify_UniqueConstraint(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if _, err := s.Exec(ctx, `INSERT INTO "user" ("id", "email") VALUES (?, ?)`, "u1", "a@x.com"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err := s.Exec(ctx, `INSERT INTO "user" ("id", "email") VALUES (?, ?)`, "u2", "a@x.com")
	if err == nil {
		t.Fatal("expected constraint violation")
	}
	if !IsConstraintViolation(err) {
		t.Errorf("err = %v, want CONSTRAINT_VIOLATION", err)
	}
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("err %T is not *storage.Error", err)
	}
	if se.Retryable() {
		t.Error("constraint violations must not be retryable")
	}
}

func TestClassify_ForeignKey(t *testing.T) {
	s := openStore(t)

	_, err := s.Exec(context.Background(),
		`INSERT INTO "post" ("id", "title", "authorId") VALUES (?, ?, ?)`, "p1", "first", "ghost")
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
	if !IsConstraintViolation(err) {
		t.Errorf("err = %v, want CONSTRAINT_VIOLATION", err)
	}
}

func TestSession_CommitPersists(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	sess, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := sess.Exec(ctx, `INSERT INTO "user" ("id", "email") VALUES (?, ?)`, "u1", "a@x.com"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Read-your-writes inside the session.
	rows, err := sess.Query(ctx, `SELECT COUNT(*) FROM "user"`)
	if err != nil {
		t.Fatalf("query in session: %v", err)
	}
	rows.Next()
	var n int
	if err := rows.Scan(&n); err != nil {
		t.Fatalf("scan: %v", err)
	}
	rows.Close()
	if n != 1 {
		t.Fatalf("count inside session = %d, want 1", n)
	}

	if err := sess.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := countUsers(t, s); got != 1 {
		t.Errorf("count after commit = %d, want 1", got)
	}
}

func TestSession_RollbackDiscards(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	sess, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := sess.Exec(ctx, `INSERT INTO "user" ("id", "email") VALUES (?, ?)`, "u1", "a@x.com"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := sess.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if got := countUsers(t, s); got != 0 {
		t.Errorf("count after rollback = %d, want 0", got)
	}
}

func TestSession_RollbackAfterCommit(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	sess, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	// Enables `defer sess.Rollback()` on every path.
	if err := sess.Rollback(); err != nil {
		t.Errorf("rollback after commit: %v", err)
	}
}

func countUsers(t *testing.T, s *SQLite) int {
	t.Helper()
	rows, err := s.Query(context.Background(), `SELECT COUNT(*) FROM "user"`)
	if err != nil {
		t.Fatalf("count query: %v", err)
	}
	defer rows.Close()
	rows.Next()
	var n int
	if err := rows.Scan(&n); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return n
}
