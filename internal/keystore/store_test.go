package keystore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RowanDark/magiccipher/internal/cipher"
	"github.com/RowanDark/magiccipher/internal/magic"
)

// setupTestStore opens a store in a per-test temp directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := Open(filepath.Join(t.TempDir(), "keys.db"), logger)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func encryptEnvelope(t *testing.T, opts cipher.Options, text string) Envelope {
	t.Helper()
	engine, err := cipher.NewEngine(opts)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	res, err := engine.Encrypt(text)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	return NewEnvelope(res, engine.Options())
}

func TestSaveAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	env := encryptEnvelope(t, cipher.DefaultOptions(), "HELLO")
	if err := store.Save(ctx, &env); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if env.ID == "" {
		t.Fatal("expected Save to assign an id")
	}
	if env.CreatedAt.IsZero() {
		t.Fatal("expected Save to assign a creation time")
	}

	got, err := store.Get(ctx, env.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Key != "8/1/6/3/5/7/4/9/2" || got.Ciphertext != "_H_LO_L_E" {
		t.Fatalf("unexpected envelope %+v", got)
	}
	if got.Mode != cipher.ModeBasic || got.Filler != "_" || got.Delimiter != "/" {
		t.Fatalf("unexpected settings %+v", got)
	}
	if !got.CreatedAt.Equal(env.CreatedAt) {
		t.Fatalf("created_at mismatch: %v vs %v", got.CreatedAt, env.CreatedAt)
	}

	plain, err := got.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if plain != "HELLO" {
		t.Fatalf("expected HELLO, got %q", plain)
	}
}

func TestEnhancedEnvelopeOpens(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	opts := cipher.Options{
		Mode:            cipher.ModeEnhanced,
		Transformations: -1,
		Rand:            magic.NewSeededRand(11),
	}
	env := encryptEnvelope(t, opts, "attack at dawn")
	if err := store.Save(ctx, &env); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get(ctx, env.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	plain, err := got.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if plain != "attack at dawn" {
		t.Fatalf("expected round trip, got %q", plain)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, text := range []string{"one", "two", "three"} {
		env := encryptEnvelope(t, cipher.DefaultOptions(), text)
		env.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.Save(ctx, &env); err != nil {
			t.Fatalf("Save %s: %v", text, err)
		}
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 envelopes, got %d", len(all))
	}
	if !all[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("expected newest first, got %v", all[0].CreatedAt)
	}

	limited, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 envelopes, got %d", len(limited))
	}
}

func TestDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	env := encryptEnvelope(t, cipher.DefaultOptions(), "gone soon")
	if err := store.Save(ctx, &env); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(ctx, env.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, env.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, env.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for second delete, got %v", err)
	}
}

func TestSaveRejectsIncompleteEnvelope(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, nil); err == nil {
		t.Fatal("expected error for nil envelope")
	}
	if err := store.Save(ctx, &Envelope{Key: "8/1/6/3/5/7/4/9/2"}); err == nil {
		t.Fatal("expected error for missing ciphertext")
	}
}

func TestSaveRejectsDuplicateID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	env := encryptEnvelope(t, cipher.DefaultOptions(), "dup")
	if err := store.Save(ctx, &env); err != nil {
		t.Fatalf("Save: %v", err)
	}
	again := env
	if err := store.Save(ctx, &again); err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestEnvelopeEngineOptionsValidation(t *testing.T) {
	env := Envelope{ID: "x", Mode: "basic", Encoding: "decimal", Filler: "ab", Delimiter: "/"}
	if _, err := env.EngineOptions(); err == nil {
		t.Fatal("expected error for multi-character filler")
	}
	env.Filler = "_"
	env.Mode = "unknown"
	if _, err := env.EngineOptions(); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(" ", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestExportImport(t *testing.T) {
	src := setupTestStore(t)
	ctx := context.Background()

	var ids []string
	for _, text := range []string{"alpha", "beta"} {
		env := encryptEnvelope(t, cipher.DefaultOptions(), text)
		if err := src.Save(ctx, &env); err != nil {
			t.Fatalf("Save: %v", err)
		}
		ids = append(ids, env.ID)
	}

	var buf bytes.Buffer
	n, err := src.Export(ctx, &buf)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 exported envelopes, got %d", n)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte{0x04, 0x22, 0x4d, 0x18}) {
		t.Fatalf("expected an lz4 frame, got prefix % x", buf.Bytes()[:4])
	}

	dst := setupTestStore(t)
	existing := encryptEnvelope(t, cipher.DefaultOptions(), "alpha")
	existing.ID = ids[0]
	if err := dst.Save(ctx, &existing); err != nil {
		t.Fatalf("Save existing: %v", err)
	}

	stats, err := dst.Import(ctx, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if stats.Imported != 1 || stats.Skipped != 1 {
		t.Fatalf("unexpected import stats %+v", stats)
	}

	got, err := dst.Get(ctx, ids[1])
	if err != nil {
		t.Fatalf("Get imported: %v", err)
	}
	plain, err := got.Open()
	if err != nil || plain != "beta" {
		t.Fatalf("imported envelope opened to %q, %v", plain, err)
	}
}

func TestImportRejectsGarbage(t *testing.T) {
	store := setupTestStore(t)
	if _, err := store.Import(context.Background(), strings.NewReader("not an lz4 frame")); err == nil {
		t.Fatal("expected error for garbage input")
	}
}
