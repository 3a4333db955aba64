package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"buddy/internal/conversation"
	"buddy/internal/crypto"
)

func sampleSnapshot() conversation.Snapshot {
	return conversation.Snapshot{
		conversation.TopicGeneral: {
			{Sender: conversation.SenderUser, Text: "hello", Timestamp: "09:00"},
			{Sender: conversation.SenderAssistant, Text: "hi <there> & welcome", Timestamp: "09:01"},
			{Sender: conversation.SenderSystem, Text: "Generating with Groq Llama 3.3...", Timestamp: "09:01"},
		},
		conversation.TopicScience: {},
		"Travel": {
			{Sender: conversation.SenderUser, Text: "été à Paris ☀", Timestamp: "10:15"},
			{Sender: conversation.SenderError, Text: "Groq: provider status 500", Timestamp: "10:16"},
		},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chat_history.json")
	fs := NewFileStore(path)
	ctx := context.Background()

	empty, err := fs.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, empty)

	want := sampleSnapshot()
	require.NoError(t, fs.Save(ctx, want))

	got, err := fs.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"message": "hi <there> & welcome"`)
	require.Contains(t, string(raw), `"sender": "assistant"`)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file left behind")
}

func TestFileStoreReadsLegacyHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.json")
	legacy := `{
  "General Chat": [
    {"sender": "user", "message": "time?", "timestamp": "08:00"},
    {"sender": "buddy", "message": "08:00 AM", "timestamp": "08:00"}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	got, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, conversation.SenderAssistant, got[conversation.TopicGeneral][1].Sender)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "history.db")

	store, err := OpenSQL(ctx, "sqlite3", dsn, true)
	require.NoError(t, err)
	defer store.Close()

	want := sampleSnapshot()
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)

	// a second save replaces rather than appends
	next := conversation.Snapshot{"Travel": {{Sender: conversation.SenderUser, Text: "only", Timestamp: "11:00"}}}
	require.NoError(t, store.Save(ctx, next))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, next, got)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	store := NewRedisStore(rdb, "")

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, empty)

	want := sampleSnapshot()
	require.NoError(t, store.Save(ctx, want))
	require.True(t, mr.Exists(DefaultRedisKey))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Options{Backend: "floppy"})
	require.Error(t, err)

	b, err := Open(context.Background(), Options{Path: filepath.Join(t.TempDir(), "h.json")})
	require.NoError(t, err)
	require.NoError(t, b.Close())
}

func TestStoreRoundTripThroughFile(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(filepath.Join(t.TempDir(), "chat_history.json"))

	src := conversation.NewStore()
	require.NoError(t, src.CreateTopic("Travel"))
	for _, m := range sampleSnapshot()["Travel"] {
		require.NoError(t, src.Append("Travel", m))
	}
	require.NoError(t, src.Save(ctx, fs))

	dst := conversation.NewStore()
	_, err := dst.Load(ctx, fs)
	require.NoError(t, err)
	require.Equal(t, src.Messages("Travel"), dst.Messages("Travel"))
	require.Equal(t, src.Topics(), dst.Topics())
}

func testSealer(t *testing.T) *crypto.Sealer {
	t.Helper()
	s, err := crypto.NewSealer("k1", map[string][]byte{"k1": make([]byte, crypto.KeySize)})
	require.NoError(t, err)
	return s
}

func TestSealedFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chat_history.json")

	// A plain history stays readable after encryption is turned on.
	require.NoError(t, NewFileStore(path).Save(ctx, sampleSnapshot()))
	sealed := &FileStore{Path: path, Sealer: testSealer(t)}
	got, err := sealed.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, sampleSnapshot(), got)

	require.NoError(t, sealed.Save(ctx, got))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "welcome")
	require.True(t, crypto.IsSealed(raw))

	got, err = sealed.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, sampleSnapshot(), got)

	_, err = NewFileStore(path).Load(ctx)
	require.ErrorIs(t, err, ErrSealedHistory)
}

func TestSealedRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	store := NewRedisStore(rdb, "sealed").WithSealer(testSealer(t))
	require.NoError(t, store.Save(ctx, sampleSnapshot()))

	raw, err := mr.Get("sealed")
	require.NoError(t, err)
	require.NotContains(t, raw, "hello")

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, sampleSnapshot(), got)
}
