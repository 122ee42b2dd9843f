package datasource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/fruitsalade/cloudbridge/internal/cfbridge"
)

func TestLocalSourcePull(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "docs"), 0755); err != nil {
		t.Fatal(err)
	}
	content := []byte("hello, placeholder world")
	if err := os.WriteFile(filepath.Join(dir, "docs", "a.txt"), content, 0644); err != nil {
		t.Fatal(err)
	}

	src, err := NewLocalSource(dir)
	if err != nil {
		t.Fatalf("NewLocalSource: %v", err)
	}

	tests := []struct {
		name    string
		req     cfbridge.ChunkRequest
		want    string
		eof     bool
		wantErr bool
	}{
		{"head", cfbridge.ChunkRequest{Path: "docs/a.txt", Offset: 0, MaxLength: 5}, "hello", false, false},
		{"tail", cfbridge.ChunkRequest{Path: "docs/a.txt", Offset: 19, MaxLength: 100}, "world", true, false},
		{"past end", cfbridge.ChunkRequest{Path: "docs/a.txt", Offset: 100, MaxLength: 10}, "", true, false},
		{"backslashes", cfbridge.ChunkRequest{Path: `docs\a.txt`, Offset: 7, MaxLength: 11}, "placeholder", false, false},
		{"missing", cfbridge.ChunkRequest{Path: "docs/none.txt", MaxLength: 10}, "", false, true},
		{"escape", cfbridge.ChunkRequest{Path: "../../etc/passwd", MaxLength: 10}, "", false, true},
		{"root", cfbridge.ChunkRequest{Path: "/", MaxLength: 10}, "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := src.Pull(context.Background(), tt.req)
			if (resp.Err != nil) != tt.wantErr {
				t.Fatalf("Err = %v, wantErr %v", resp.Err, tt.wantErr)
			}
			if string(resp.Data) != tt.want {
				t.Errorf("Data = %q, want %q", resp.Data, tt.want)
			}
			if resp.EOF != tt.eof {
				t.Errorf("EOF = %v, want %v", resp.EOF, tt.eof)
			}
		})
	}
}

func TestLocalSourceRequiresDirectory(t *testing.T) {
	if _, err := NewLocalSource(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("NewLocalSource on a missing dir succeeded")
	}
	file := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLocalSource(file); err == nil {
		t.Error("NewLocalSource on a file succeeded")
	}
}

func TestMemorySource(t *testing.T) {
	m := NewMemorySource()
	m.Put("/dir/f.bin", []byte("0123456789"))

	resp := m.Pull(context.Background(), cfbridge.ChunkRequest{Path: "dir/f.bin", Offset: 2, MaxLength: 3})
	if resp.Err != nil || string(resp.Data) != "234" || resp.EOF {
		t.Errorf("Pull = %+v", resp)
	}
	resp = m.Pull(context.Background(), cfbridge.ChunkRequest{Path: `dir\f.bin`, Offset: 8, MaxLength: 3})
	if resp.Err != nil || string(resp.Data) != "89" || !resp.EOF {
		t.Errorf("tail Pull = %+v", resp)
	}
	resp = m.Pull(context.Background(), cfbridge.ChunkRequest{Path: "dir/f.bin", Offset: 10, MaxLength: 3})
	if resp.Err != nil || len(resp.Data) != 0 {
		t.Errorf("past-end Pull = %+v", resp)
	}

	m.Rename("dir/f.bin", "g.bin")
	resp = m.Pull(context.Background(), cfbridge.ChunkRequest{Path: "dir/f.bin", MaxLength: 3})
	if !errors.Is(resp.Err, fs.ErrNotExist) {
		t.Errorf("Pull after rename = %v, want fs.ErrNotExist", resp.Err)
	}
	m.Delete("g.bin")
	if m.Len() != 0 {
		t.Errorf("Len = %d after delete", m.Len())
	}
}

type fakeGetter struct {
	objects map[string][]byte
	inputs  []*s3.GetObjectInput
	err     error
}

func (f *fakeGetter) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "not found"}
	}
	var first, last int64
	if _, err := fmt.Sscanf(aws.ToString(in.Range), "bytes=%d-%d", &first, &last); err != nil {
		return nil, err
	}
	size := int64(len(data))
	if first >= size {
		return nil, &smithy.GenericAPIError{Code: "InvalidRange", Message: "range not satisfiable"}
	}
	last = min(last, size-1)
	return &s3.GetObjectOutput{
		Body:         io.NopCloser(bytes.NewReader(data[first : last+1])),
		ContentRange: aws.String(fmt.Sprintf("bytes %d-%d/%d", first, last, size)),
	}, nil
}

func TestS3SourcePull(t *testing.T) {
	getter := &fakeGetter{objects: map[string][]byte{
		"users/alice/docs/a.txt": []byte(strings.Repeat("x", 10)),
	}}
	src := NewS3SourceFromClient(getter, "bucket", "/users/alice/")

	resp := src.Pull(context.Background(), cfbridge.ChunkRequest{Path: "docs/a.txt", Offset: 2, MaxLength: 4})
	if resp.Err != nil || len(resp.Data) != 4 || resp.EOF {
		t.Errorf("Pull = %+v", resp)
	}
	if got := aws.ToString(getter.inputs[0].Range); got != "bytes=2-5" {
		t.Errorf("Range = %q, want bytes=2-5", got)
	}
	if got := aws.ToString(getter.inputs[0].Bucket); got != "bucket" {
		t.Errorf("Bucket = %q", got)
	}

	resp = src.Pull(context.Background(), cfbridge.ChunkRequest{Path: "docs/a.txt", Offset: 6, MaxLength: 4})
	if resp.Err != nil || len(resp.Data) != 4 || !resp.EOF {
		t.Errorf("last-range Pull = %+v, want EOF", resp)
	}

	resp = src.Pull(context.Background(), cfbridge.ChunkRequest{Path: "docs/a.txt", Offset: 8, MaxLength: 100})
	if resp.Err != nil || len(resp.Data) != 2 || !resp.EOF {
		t.Errorf("short Pull = %+v", resp)
	}

	resp = src.Pull(context.Background(), cfbridge.ChunkRequest{Path: "docs/a.txt", Offset: 10, MaxLength: 4})
	if resp.Err != nil || len(resp.Data) != 0 {
		t.Errorf("past-end Pull = %+v, want empty EOF", resp)
	}

	resp = src.Pull(context.Background(), cfbridge.ChunkRequest{Path: "docs/missing", MaxLength: 4})
	if resp.Err == nil {
		t.Error("missing object returned no error")
	}
	if cfbridge.StatusOf(resp.Err) != cfbridge.StatusFail {
		t.Errorf("missing object status = %s", cfbridge.StatusOf(resp.Err))
	}
}

func TestS3SourceKey(t *testing.T) {
	tests := []struct {
		prefix, path, want string
	}{
		{"", "a/b.txt", "a/b.txt"},
		{"", `\a\b.txt`, "a/b.txt"},
		{"root", "a.txt", "root/a.txt"},
		{"/root/", "/a.txt", "root/a.txt"},
	}
	for _, tt := range tests {
		src := NewS3SourceFromClient(&fakeGetter{}, "b", tt.prefix)
		if got := src.Key(tt.path); got != tt.want {
			t.Errorf("Key(%q) with prefix %q = %q, want %q", tt.path, tt.prefix, got, tt.want)
		}
	}
}

func TestEndpointURL(t *testing.T) {
	if got := endpointURL("minio:9000", false); got != "http://minio:9000" {
		t.Errorf("endpointURL = %q", got)
	}
	if got := endpointURL("s3.example.com", true); got != "https://s3.example.com" {
		t.Errorf("endpointURL = %q", got)
	}
	if got := endpointURL("https://x", false); got != "https://x" {
		t.Errorf("endpointURL = %q", got)
	}
}
