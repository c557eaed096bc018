package mirror

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"webdl/internal/config"
	"webdl/internal/media"
)

// fakeS3 keeps objects in memory and serves the calls the mirror makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.meta[aws.ToString(in.Key)] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{Metadata: f.meta[aws.ToString(in.Key)]}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.objects {
		out = append(out, k)
	}
	return out
}

func backends(t *testing.T) map[string]Mirror {
	t.Helper()
	fsm, err := NewFileSystemMirror("fs", filepath.Join(t.TempDir(), "mirror"))
	if err != nil {
		t.Fatalf("NewFileSystemMirror() error = %v", err)
	}
	return map[string]Mirror{
		"memory":     NewMemoryMirror("mem"),
		"filesystem": fsm,
		"s3":         NewS3Mirror("s3", "bucket", "webdl", newFakeS3()),
	}
}

func TestMirror_Blobs(t *testing.T) {
	ctx := context.Background()
	for name, m := range backends(t) {
		t.Run(name, func(t *testing.T) {
			const blob = "sha256-00ff.jpg"
			has, err := m.HasBlob(ctx, blob)
			if err != nil || has {
				t.Fatalf("HasBlob() before put = %v, %v", has, err)
			}
			var buf bytes.Buffer
			if err := m.GetBlob(ctx, blob, &buf); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetBlob() missing error = %v, want ErrNotFound", err)
			}

			data := "image bytes"
			if err := m.PutBlob(ctx, blob, strings.NewReader(data), int64(len(data))); err != nil {
				t.Fatalf("PutBlob() error = %v", err)
			}
			if err := m.PutBlob(ctx, blob, strings.NewReader(data), int64(len(data))); err != nil {
				t.Fatalf("second PutBlob() error = %v", err)
			}
			has, err = m.HasBlob(ctx, blob)
			if err != nil || !has {
				t.Errorf("HasBlob() after put = %v, %v", has, err)
			}
			buf.Reset()
			if err := m.GetBlob(ctx, blob, &buf); err != nil {
				t.Fatalf("GetBlob() error = %v", err)
			}
			if buf.String() != data {
				t.Errorf("GetBlob() = %q, want %q", buf.String(), data)
			}
			if err := m.ValidateSetup(ctx); err != nil {
				t.Errorf("ValidateSetup() error = %v", err)
			}
		})
	}
}

func TestMirror_Metadata(t *testing.T) {
	ctx := context.Background()
	for name, m := range backends(t) {
		t.Run(name, func(t *testing.T) {
			v, err := m.GetMetadataVersion(ctx, "host-1", "history.db")
			if err != nil || v != 0 {
				t.Fatalf("GetMetadataVersion() before put = %d, %v", v, err)
			}

			for _, version := range []int64{3, 7} {
				data := "snapshot"
				if err := m.PutMetadata(ctx, "host-1", "history.db", strings.NewReader(data), int64(len(data)), version); err != nil {
					t.Fatalf("PutMetadata() error = %v", err)
				}
				v, err = m.GetMetadataVersion(ctx, "host-1", "history.db")
				if err != nil || v != version {
					t.Errorf("GetMetadataVersion() = %d, %v, want %d", v, err, version)
				}
			}

			var buf bytes.Buffer
			if err := m.GetMetadata(ctx, "host-1", "history.db", &buf); err != nil {
				t.Fatalf("GetMetadata() error = %v", err)
			}
			if buf.String() != "snapshot" {
				t.Errorf("GetMetadata() = %q", buf.String())
			}
			if err := m.GetMetadata(ctx, "host-2", "history.db", &buf); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetMetadata() other host error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestMemoryMirror_SizeMismatch(t *testing.T) {
	m := NewMemoryMirror("mem")
	if err := m.PutBlob(context.Background(), "x", strings.NewReader("abc"), 10); err == nil {
		t.Error("PutBlob() with wrong size should fail")
	}
	if m.Blobs() != 0 {
		t.Errorf("Blobs() = %d after failed put", m.Blobs())
	}
}

func TestFileSystemMirror_RejectsPathNames(t *testing.T) {
	m, err := NewFileSystemMirror("fs", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", "..", "a/b", `a\b`} {
		if err := m.PutBlob(context.Background(), name, strings.NewReader(""), 0); err == nil {
			t.Errorf("PutBlob(%q) should fail", name)
		}
	}
}

func TestS3Mirror_Keys(t *testing.T) {
	ctx := context.Background()
	f := newFakeS3()
	m := NewS3Mirror("s3", "bucket", "archive", f)
	if err := m.PutBlob(ctx, "sha256-aa", strings.NewReader("x"), 1); err != nil {
		t.Fatal(err)
	}
	if err := m.PutMetadata(ctx, "h", "history.db", strings.NewReader("y"), 1, 2); err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"archive/media/sha256-aa": true, "archive/metadata/h/history.db": true}
	for _, k := range f.keys() {
		if !want[k] {
			t.Errorf("unexpected key %q", k)
		}
		delete(want, k)
	}
	if len(want) != 0 {
		t.Errorf("missing keys: %v", want)
	}
}

func TestPush(t *testing.T) {
	ctx := context.Background()
	pool := t.TempDir()
	a := media.SHA256.Sum([]byte("a"))
	b := media.SHA256.Sum([]byte("bb"))
	files := map[string]string{
		a.Name():          "a",
		a.Name() + ".png": "a",
		b.Name():          "bb",
		".tmp-123":        "partial",
		"notes.txt":       "ignored",
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(pool, name), []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}

	m := NewMemoryMirror("mem")
	stats, err := Push(ctx, m, pool)
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if stats.Uploaded != 2 || stats.Present != 0 || stats.Bytes != 3 {
		t.Errorf("first Push() = %+v, want 2 uploaded, 3 bytes", stats)
	}
	if has, _ := m.HasBlob(ctx, a.Name()+".png"); has {
		t.Error("extension alias was uploaded")
	}

	stats, err = Push(ctx, m, pool)
	if err != nil {
		t.Fatalf("second Push() error = %v", err)
	}
	if stats.Uploaded != 0 || stats.Present != 2 {
		t.Errorf("second Push() = %+v, want everything present", stats)
	}
}

func TestNewMirrorFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.MirrorConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.MirrorConfig{Type: "memory", Name: "m"}},
		{name: "filesystem", cfg: config.MirrorConfig{Type: "filesystem", Name: "f", FSRoot: t.TempDir()}},
		{name: "filesystem without root", cfg: config.MirrorConfig{Type: "filesystem", Name: "f"}, wantErr: true},
		{name: "s3 without bucket", cfg: config.MirrorConfig{Type: "s3", Name: "s"}, wantErr: true},
		{name: "unknown", cfg: config.MirrorConfig{Type: "ftp"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewMirrorFromConfig(context.Background(), tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMirrorFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if got.Name() != tt.cfg.Name {
					t.Errorf("Name() = %q, want %q", got.Name(), tt.cfg.Name)
				}
				if err := got.ValidateSetup(context.Background()); err != nil {
					t.Errorf("ValidateSetup() error = %v", err)
				}
			}
		})
	}
}
