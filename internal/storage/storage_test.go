package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/friendsincode/limitgate/internal/command"
	"github.com/rs/zerolog"
)

func sampleCommand() command.NormalizedCommand {
	return command.NormalizedCommand{
		Type:      command.TypeLimit,
		DeviceID:  "dev-1",
		StartAt:   "2024-06-01T17:00:00+00:00",
		Intervals: []int64{100, 342},
		MaxWh:     json.Number("1500"),
	}
}

func TestCommandStoreWritesEnvelope(t *testing.T) {
	objects := NewFilesystemStore(t.TempDir(), zerolog.Nop())
	store := NewCommandStore(objects)

	if err := store.Store(context.Background(), sampleCommand(), "tok-123"); err != nil {
		t.Fatalf("store: %v", err)
	}

	raw, err := objects.Get(context.Background(), "dev-1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := `{"Header":{"Authorization":"tok-123"},"Body":{"type":"limit","devId":"dev-1","startAt":"2024-06-01T17:00:00+00:00","interval":[100,342],"maxWh":1500}}`
	if string(raw) != want {
		t.Fatalf("object = %s\nwant     %s", raw, want)
	}

	env, err := store.Latest(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if env.Header.Authorization != "tok-123" || env.Body.Intervals[1] != 342 {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestCommandStoreOverwritesPreviousCommand(t *testing.T) {
	store := NewCommandStore(NewFilesystemStore(t.TempDir(), zerolog.Nop()))
	cmd := sampleCommand()
	if err := store.Store(context.Background(), cmd, "a"); err != nil {
		t.Fatal(err)
	}
	cmd.Intervals = []int64{1}
	if err := store.Store(context.Background(), cmd, "b"); err != nil {
		t.Fatal(err)
	}
	env, err := store.Latest(context.Background(), "dev-1")
	if err != nil {
		t.Fatal(err)
	}
	if env.Header.Authorization != "b" || len(env.Body.Intervals) != 1 {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestFilesystemStoreRejectsEscapingKeys(t *testing.T) {
	objects := NewFilesystemStore(t.TempDir(), zerolog.Nop())
	for _, key := range []string{"../evil.json", "/etc/passwd", "", "a/../../b.json"} {
		if err := objects.Put(context.Background(), key, []byte("x")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}

	store := NewCommandStore(objects)
	cmd := sampleCommand()
	cmd.DeviceID = "../../escape"
	if err := store.Store(context.Background(), cmd, "t"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("store error = %v, want ErrStorageUnavailable", err)
	}
}

func TestFilesystemStoreMissingObject(t *testing.T) {
	objects := NewFilesystemStore(t.TempDir(), zerolog.Nop())
	if _, err := objects.Get(context.Background(), "nope.json"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("error = %v", err)
	}
	if err := objects.CheckAccess(context.Background()); err != nil {
		t.Fatalf("check access: %v", err)
	}
}

type fakeS3 struct {
	objects map[string][]byte
	putErr  error
	lastPut *s3.PutObjectInput
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.lastPut = in
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	store := NewCommandStore(NewS3Store(fake, "project-intro-bucket", zerolog.Nop()))

	if err := store.Store(context.Background(), sampleCommand(), "tok"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if got := aws.ToString(fake.lastPut.Bucket); got != "project-intro-bucket" {
		t.Fatalf("bucket = %q", got)
	}
	if got := aws.ToString(fake.lastPut.Key); got != "dev-1.json" {
		t.Fatalf("key = %q", got)
	}
	if got := aws.ToString(fake.lastPut.ContentType); got != "application/json" {
		t.Fatalf("content type = %q", got)
	}

	if _, err := store.Latest(context.Background(), "dev-2"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("missing object error = %v", err)
	}

	fake.putErr = errors.New("access denied")
	if err := store.Store(context.Background(), sampleCommand(), "tok"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("error = %v, want ErrStorageUnavailable", err)
	}
}

type sinkFunc func(context.Context, command.NormalizedCommand, string) error

func (f sinkFunc) Store(ctx context.Context, cmd command.NormalizedCommand, token string) error {
	return f(ctx, cmd, token)
}

func TestFanout(t *testing.T) {
	var calls int
	ok := sinkFunc(func(context.Context, command.NormalizedCommand, string) error { calls++; return nil })
	boom := errors.New("boom")
	bad := sinkFunc(func(context.Context, command.NormalizedCommand, string) error { calls++; return boom })

	if err := (Fanout{ok, ok}).Store(context.Background(), sampleCommand(), "t"); err != nil {
		t.Fatalf("all ok: %v", err)
	}

	calls = 0
	err := (Fanout{bad, ok}).Store(context.Background(), sampleCommand(), "t")
	if calls != 2 {
		t.Fatalf("calls = %d, every sink must be attempted", calls)
	}
	if !errors.Is(err, boom) || !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("error = %v", err)
	}
}
