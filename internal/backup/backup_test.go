package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dukerupert/togetherplan/internal/database"
)

// mockS3Client implements s3Client for testing. Listings are paged two
// objects at a time.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) ListObjectsV2(_ context.Context, input *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, aws.ToString(input.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if input.ContinuationToken != nil {
		start, _ = strconv.Atoi(*input.ContinuationToken)
	}
	end := min(start+2, len(keys))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(m.objects[k])))})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (m *mockS3Client) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig() Config {
	return Config{
		S3:         S3Config{Bucket: "snapshots", AccessKey: "ak", SecretKey: "sk"},
		Passphrase: "correct horse battery",
		Prefix:     "tp/",
		Interval:   time.Hour,
		Retention:  48 * time.Hour,
	}
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`INSERT INTO users (email, name) VALUES ('alice@example.com', 'Alice')`); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return db
}

// clock returns a now func that advances by step on every call.
func clock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := cur
		cur = cur.Add(step)
		return t
	}
}

func TestRunNowUploadsEncryptedSnapshot(t *testing.T) {
	db := setupDB(t)
	mock := newMockS3()
	m := newManager(testConfig(), db, mock, discard)

	snap, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(snap.Key, "tp/snapshot-") || !strings.HasSuffix(snap.Key, ".db.enc") {
		t.Errorf("key = %q", snap.Key)
	}

	data := mock.objects[snap.Key]
	if int64(len(data)) != snap.Size {
		t.Errorf("size = %d, stored %d", snap.Size, len(data))
	}
	if bytes.Contains(data, []byte("SQLite format 3")) {
		t.Error("uploaded snapshot is not encrypted")
	}
	plain, err := Decrypt(data, "correct horse battery")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.HasPrefix(plain, []byte("SQLite format 3")) {
		t.Error("decrypted snapshot is not a SQLite database")
	}

	st := m.Status()
	if st.LastKey != snap.Key || st.LastBackup == nil || st.Error != "" {
		t.Errorf("status = %+v", st)
	}
}

func TestRunNowRecordsUploadError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("bucket gone")
	m := newManager(testConfig(), setupDB(t), mock, discard)

	if _, err := m.RunNow(context.Background()); err == nil {
		t.Fatal("expected upload error")
	}
	if st := m.Status(); !strings.Contains(st.Error, "bucket gone") {
		t.Errorf("status error = %q", st.Error)
	}
}

func TestListNewestFirstAcrossPages(t *testing.T) {
	mock := newMockS3()
	m := newManager(testConfig(), setupDB(t), mock, discard)
	m.now = clock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Hour)

	for range 5 {
		if _, err := m.RunNow(context.Background()); err != nil {
			t.Fatalf("run: %v", err)
		}
	}
	mock.objects["tp/notes.txt"] = []byte("not a snapshot")
	mock.objects["other/snapshot-20260101T000000.000Z.db.enc"] = []byte("x")

	snaps, err := m.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snaps) != 5 {
		t.Fatalf("got %d snapshots, want 5", len(snaps))
	}
	for i := 1; i < len(snaps); i++ {
		if !snaps[i-1].CreatedAt.After(snaps[i].CreatedAt) {
			t.Errorf("snapshots not newest first at %d", i)
		}
	}
	want := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	if !snaps[0].CreatedAt.Equal(want) {
		t.Errorf("newest = %v, want %v", snaps[0].CreatedAt, want)
	}
}

func TestCleanupHonorsRetention(t *testing.T) {
	mock := newMockS3()
	m := newManager(testConfig(), setupDB(t), mock, discard)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m.now = clock(start, 24*time.Hour)

	// Snapshots on days 0 through 3.
	for range 4 {
		if _, err := m.RunNow(context.Background()); err != nil {
			t.Fatalf("run: %v", err)
		}
	}

	// now = day 4; retention 48h keeps days 2 and 3.
	n, err := m.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	if got := len(mock.keys()); got != 2 {
		t.Errorf("%d snapshots remain, want 2", got)
	}
}

func TestCleanupKeepsNewestSnapshot(t *testing.T) {
	mock := newMockS3()
	m := newManager(testConfig(), setupDB(t), mock, discard)
	m.now = clock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 30*24*time.Hour)

	if _, err := m.RunNow(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	n, err := m.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 0 || len(mock.keys()) != 1 {
		t.Errorf("deleted %d, remaining %v", n, mock.keys())
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	mock := newMockS3()
	m := newManager(testConfig(), setupDB(t), mock, discard)

	snap, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "restored.db")
	if err := m.Restore(context.Background(), snap.Key, dst); err != nil {
		t.Fatalf("restore: %v", err)
	}

	restored, err := database.Open(dst)
	if err != nil {
		t.Fatalf("open restored: %v", err)
	}
	defer restored.Close()

	var name string
	if err := restored.QueryRow(`SELECT name FROM users WHERE email = 'alice@example.com'`).Scan(&name); err != nil {
		t.Fatalf("query restored: %v", err)
	}
	if name != "Alice" {
		t.Errorf("name = %q, want Alice", name)
	}
}

func TestRestoreRefusesExistingTarget(t *testing.T) {
	mock := newMockS3()
	m := newManager(testConfig(), setupDB(t), mock, discard)
	snap, _ := m.RunNow(context.Background())

	dst := filepath.Join(t.TempDir(), "live.db")
	live, err := database.Open(dst)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	live.Close()

	if err := m.Restore(context.Background(), snap.Key, dst); err == nil {
		t.Fatal("expected error for existing target")
	}
}

func TestRestoreWrongPassphrase(t *testing.T) {
	mock := newMockS3()
	db := setupDB(t)
	snap, err := newManager(testConfig(), db, mock, discard).RunNow(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	cfg := testConfig()
	cfg.Passphrase = "a different passphrase"
	dst := filepath.Join(t.TempDir(), "restored.db")
	err = newManager(cfg, db, mock, discard).Restore(context.Background(), snap.Key, dst)
	if !errors.Is(err, ErrDecrypt) {
		t.Errorf("err = %v, want ErrDecrypt", err)
	}
}

func TestRestoreRejectsNonDatabase(t *testing.T) {
	mock := newMockS3()
	cfg := testConfig()
	enc, _ := Encrypt([]byte("definitely not sqlite, just some plain bytes padded out"), cfg.Passphrase)
	mock.objects["tp/snapshot-20260101T000000.000Z.db.enc"] = enc

	m := newManager(cfg, setupDB(t), mock, discard)
	dst := filepath.Join(t.TempDir(), "restored.db")
	if err := m.Restore(context.Background(), "tp/snapshot-20260101T000000.000Z.db.enc", dst); err == nil {
		t.Fatal("expected verification error")
	}
	if matches, _ := filepath.Glob(dst + "*"); len(matches) != 0 {
		t.Errorf("leftover files: %v", matches)
	}
}

func TestStartStopSafety(t *testing.T) {
	m := newManager(testConfig(), setupDB(t), newMockS3(), discard)

	m.Stop() // stop before start is a no-op
	m.Start(context.Background())
	m.Start(context.Background()) // second start is ignored
	m.Stop()
	m.Stop()
}

func TestScheduledTickUploadsAndPrunes(t *testing.T) {
	mock := newMockS3()
	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond
	m := newManager(cfg, setupDB(t), mock, discard)
	m.now = clock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 24*time.Hour)

	m.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for m.Status().LastBackup == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()

	if m.Status().LastBackup == nil {
		t.Fatal("scheduled backup did not run")
	}
	if len(mock.keys()) == 0 {
		t.Error("no snapshot uploaded")
	}
}
