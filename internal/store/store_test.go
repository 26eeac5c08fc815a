package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type storeFactory func(t *testing.T) Store

func TestInMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewInMemoryStore(time.Hour)
	})
}

func TestRedisStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		s := NewRedisStore(client, "test:", time.Hour)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("LINGOCAST_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("LINGOCAST_TEST_DATABASE_URL not set")
	}
	runStoreContract(t, func(t *testing.T) Store {
		ctx := context.Background()
		s, err := NewPostgresStore(ctx, dsn, time.Hour)
		if err != nil {
			t.Fatalf("NewPostgresStore() error = %v", err)
		}
		if _, err := s.pool.Exec(ctx, `DELETE FROM lingocast_sessions`); err != nil {
			t.Fatalf("reset tables: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func runStoreContract(t *testing.T, newStore storeFactory) {
	t.Run("AppendReadInOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		mustCreate(t, s, "TEST", "")

		for i, text := range []string{"one", "two", "three"} {
			n, err := s.Append(ctx, "TEST", KindEvents, Entry{Timestamp: int64(i + 1), Text: text})
			if err != nil {
				t.Fatalf("Append(%q) error = %v", text, err)
			}
			if n != i+1 {
				t.Fatalf("Append(%q) length = %d, want %d", text, n, i+1)
			}
		}

		n, err := s.Length(ctx, "TEST", KindEvents)
		if err != nil {
			t.Fatalf("Length() error = %v", err)
		}
		if n != 3 {
			t.Fatalf("Length() = %d, want 3", n)
		}

		all, err := s.ReadRange(ctx, "TEST", KindEvents, 0, -1)
		if err != nil {
			t.Fatalf("ReadRange(0,-1) error = %v", err)
		}
		if got := texts(all); got != "one,two,three" {
			t.Fatalf("ReadRange(0,-1) = %q, want %q", got, "one,two,three")
		}

		delta, err := s.ReadRange(ctx, "TEST", KindEvents, 1, 3)
		if err != nil {
			t.Fatalf("ReadRange(1,3) error = %v", err)
		}
		if got := texts(delta); got != "two,three" {
			t.Fatalf("ReadRange(1,3) = %q, want %q", got, "two,three")
		}

		empty, err := s.ReadRange(ctx, "TEST", KindEvents, 3, 3)
		if err != nil {
			t.Fatalf("ReadRange(3,3) error = %v", err)
		}
		if len(empty) != 0 {
			t.Fatalf("ReadRange(3,3) = %d entries, want 0", len(empty))
		}

		past, err := s.ReadRange(ctx, "TEST", KindEvents, 10, -1)
		if err != nil {
			t.Fatalf("ReadRange(10,-1) error = %v", err)
		}
		if len(past) != 0 {
			t.Fatalf("ReadRange(10,-1) = %d entries, want 0", len(past))
		}
	})

	t.Run("AbsentSessionIsNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.Append(ctx, "NOPE", KindEvents, Entry{Text: "x"}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Append() error = %v, want ErrNotFound", err)
		}
		if _, err := s.Length(ctx, "NOPE", KindEvents); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Length() error = %v, want ErrNotFound", err)
		}
		if _, err := s.ReadRange(ctx, "NOPE", KindEvents, 0, -1); !errors.Is(err, ErrNotFound) {
			t.Fatalf("ReadRange() error = %v, want ErrNotFound", err)
		}
		if _, err := s.Session(ctx, "NOPE"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Session() error = %v, want ErrNotFound", err)
		}
		if err := s.EndSession(ctx, "NOPE"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("EndSession() error = %v, want ErrNotFound", err)
		}
		sessions, err := s.Sessions(ctx)
		if err != nil {
			t.Fatalf("Sessions() error = %v", err)
		}
		if len(sessions) != 0 {
			t.Fatalf("append to absent code created a session: %+v", sessions)
		}
	})

	t.Run("EmptyCodeRejected", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Append(context.Background(), "", KindEvents, Entry{Text: "x"}); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("Append(\"\") error = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("EndSessionRemovesEverything", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		mustCreate(t, s, "GONE", "en")
		mustAppend(t, s, "GONE", KindEvents, "line")
		mustAppend(t, s, "GONE", KindAudio, "chunk")

		if err := s.EndSession(ctx, "GONE"); err != nil {
			t.Fatalf("EndSession() error = %v", err)
		}
		if _, err := s.Length(ctx, "GONE", KindEvents); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Length(events) after end error = %v, want ErrNotFound", err)
		}
		if _, err := s.Length(ctx, "GONE", KindAudio); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Length(audio) after end error = %v, want ErrNotFound", err)
		}
		if _, err := s.InputLang(ctx, "GONE"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("InputLang() after end error = %v, want ErrNotFound", err)
		}
	})

	t.Run("RecreateClearsStaleEntries", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		mustCreate(t, s, "ABCD", "")
		mustAppend(t, s, "ABCD", KindEvents, "stale")
		if err := s.EndSession(ctx, "ABCD"); err != nil {
			t.Fatalf("EndSession() error = %v", err)
		}
		mustCreate(t, s, "ABCD", "")
		n, err := s.Length(ctx, "ABCD", KindEvents)
		if err != nil {
			t.Fatalf("Length() error = %v", err)
		}
		if n != 0 {
			t.Fatalf("Length() after recreate = %d, want 0", n)
		}

		mustAppend(t, s, "ABCD", KindEvents, "kept")
		mustCreate(t, s, "ABCD", "")
		n, err = s.Length(ctx, "ABCD", KindEvents)
		if err != nil {
			t.Fatalf("Length() error = %v", err)
		}
		if n != 0 {
			t.Fatalf("Length() after reset of live session = %d, want 0", n)
		}
	})

	t.Run("RecreateIssuesNewID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		mustCreate(t, s, "ABCD", "")
		first, err := s.Session(ctx, "ABCD")
		if err != nil {
			t.Fatalf("Session() error = %v", err)
		}
		if first.ID == "" {
			t.Fatalf("Session().ID is empty")
		}
		mustCreate(t, s, "ABCD", "")
		second, err := s.Session(ctx, "ABCD")
		if err != nil {
			t.Fatalf("Session() error = %v", err)
		}
		if second.ID == "" || second.ID == first.ID {
			t.Fatalf("ID after recreate = %q, want new value (was %q)", second.ID, first.ID)
		}
	})

	t.Run("InputLang", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		mustCreate(t, s, "LANG", "")

		lang, err := s.InputLang(ctx, "LANG")
		if err != nil {
			t.Fatalf("InputLang() error = %v", err)
		}
		if lang != DefaultInputLang {
			t.Fatalf("InputLang() = %q, want %q", lang, DefaultInputLang)
		}
		if err := s.SetInputLang(ctx, "LANG", "de-DE"); err != nil {
			t.Fatalf("SetInputLang() error = %v", err)
		}
		lang, err = s.InputLang(ctx, "LANG")
		if err != nil {
			t.Fatalf("InputLang() error = %v", err)
		}
		if lang != "de-DE" {
			t.Fatalf("InputLang() = %q, want %q", lang, "de-DE")
		}
		if err := s.SetInputLang(ctx, "NOPE", "fr"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("SetInputLang(absent) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("LogsAndSessionsAreIsolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		mustCreate(t, s, "AAAA", "")
		mustCreate(t, s, "BBBB", "")
		mustAppend(t, s, "AAAA", KindEvents, "a1")
		mustAppend(t, s, "BBBB", KindEvents, "b1")

		pcm := []byte{0x00, 0xff, 0x10, 0x80}
		if _, err := s.Append(ctx, "AAAA", KindAudio, Entry{Timestamp: 5, Data: pcm, ContentType: "audio/wav"}); err != nil {
			t.Fatalf("Append(audio) error = %v", err)
		}

		events, err := s.ReadRange(ctx, "AAAA", KindEvents, 0, -1)
		if err != nil {
			t.Fatalf("ReadRange() error = %v", err)
		}
		if got := texts(events); got != "a1" {
			t.Fatalf("AAAA events = %q, want %q", got, "a1")
		}

		audio, err := s.ReadRange(ctx, "AAAA", KindAudio, 0, -1)
		if err != nil {
			t.Fatalf("ReadRange(audio) error = %v", err)
		}
		if len(audio) != 1 || !bytes.Equal(audio[0].Data, pcm) || audio[0].ContentType != "audio/wav" {
			t.Fatalf("audio entries = %+v, want one wav chunk", audio)
		}

		sessions, err := s.Sessions(ctx)
		if err != nil {
			t.Fatalf("Sessions() error = %v", err)
		}
		if len(sessions) != 2 || sessions[0].Code != "AAAA" || sessions[1].Code != "BBBB" {
			t.Fatalf("Sessions() = %+v, want AAAA and BBBB", sessions)
		}
		if !sessions[0].Active || sessions[0].ExpiresAt.IsZero() {
			t.Fatalf("Sessions()[0] = %+v, want active with expiry", sessions[0])
		}
	})
}

func TestInMemoryStoreExpiry(t *testing.T) {
	s := NewInMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	mustCreate(t, s, "TTLS", "")
	mustAppend(t, s, "TTLS", KindEvents, "x")

	now = now.Add(2 * time.Minute)
	if _, err := s.Length(context.Background(), "TTLS", KindEvents); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Length() after ttl error = %v, want ErrNotFound", err)
	}
	purged, err := s.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if purged != 1 {
		t.Fatalf("PurgeExpired() = %d, want 1", purged)
	}
}

func TestRedisStoreExpiryCoversLogs(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "ttl:", time.Minute)
	ctx := context.Background()

	mustCreate(t, s, "TTLS", "")
	mustAppend(t, s, "TTLS", KindEvents, "x")

	if ttl := mr.TTL("ttl:events:{TTLS}"); ttl <= 0 {
		t.Fatalf("events list ttl = %v, want positive", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := s.Length(ctx, "TTLS", KindEvents); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Length() after ttl error = %v, want ErrNotFound", err)
	}
	if mr.Exists("ttl:events:{TTLS}") {
		t.Fatalf("events list survived session expiry")
	}
}

func TestRedisStoreKeysShareHashTag(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "slot:", time.Minute)
	ctx := context.Background()

	mustCreate(t, s, "ABCD", "fr")
	mustAppend(t, s, "ABCD", KindEvents, "x")
	for _, key := range []string{"slot:session:{ABCD}", "slot:events:{ABCD}"} {
		if !mr.Exists(key) {
			t.Fatalf("key %q missing; have %v", key, mr.Keys())
		}
	}
	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].Code != "ABCD" {
		t.Fatalf("Sessions() = %+v, want ABCD", sessions)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	s := NewRedisStore(client, "down:", time.Minute)
	mr.Close()

	_, err := s.Length(context.Background(), "DOWN", KindEvents)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Length() error = %v, want ErrUnavailable", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Ping() error = %v, want ErrUnavailable", err)
	}
}

func TestNewStoreAutoSelectsMemory(t *testing.T) {
	s, driver, err := NewStore(context.Background(), Options{Driver: "auto"})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer s.Close()
	if driver != DriverMemory {
		t.Fatalf("driver = %q, want %q", driver, DriverMemory)
	}
}

func TestNewStoreAutoSelectsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	s, driver, err := NewStore(context.Background(), Options{RedisURL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer s.Close()
	if driver != DriverRedis {
		t.Fatalf("driver = %q, want %q", driver, DriverRedis)
	}
}

func TestNewStoreRejectsUnknownDriver(t *testing.T) {
	if _, _, err := NewStore(context.Background(), Options{Driver: "etcd"}); err == nil {
		t.Fatalf("NewStore() expected error for unknown driver")
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind(""); err != nil || k != KindEvents {
		t.Fatalf("ParseKind(\"\") = %q, %v; want events", k, err)
	}
	if k, err := ParseKind("audio"); err != nil || k != KindAudio {
		t.Fatalf("ParseKind(audio) = %q, %v; want audio", k, err)
	}
	if _, err := ParseKind("video"); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("ParseKind(video) error = %v, want ErrInvalidKind", err)
	}
}

func mustCreate(t *testing.T, s Store, code, lang string) {
	t.Helper()
	if err := s.CreateSession(context.Background(), code, lang); err != nil {
		t.Fatalf("CreateSession(%q) error = %v", code, err)
	}
}

func mustAppend(t *testing.T, s Store, code string, kind Kind, text string) {
	t.Helper()
	if _, err := s.Append(context.Background(), code, kind, Entry{Timestamp: time.Now().UnixMilli(), Text: text}); err != nil {
		t.Fatalf("Append(%q, %q) error = %v", code, text, err)
	}
}

func texts(entries []Entry) string {
	var b bytes.Buffer
	for i, e := range entries {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(e.Text)
	}
	return b.String()
}
