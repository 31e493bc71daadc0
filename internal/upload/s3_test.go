package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type fakeS3 struct {
	objects map[string]string
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	f.objects[key] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Service(t *testing.T) {
	client := &fakeS3{objects: map[string]string{}}
	svc := newS3Service(client, "bucket", "/recordings/")

	folder, err := svc.CreateFolder(context.Background(), "[20250301] Standup", "")
	if err != nil {
		t.Fatal(err)
	}
	if folder != "recordings/[20250301] Standup" {
		t.Errorf("folder = %q", folder)
	}
	if _, ok := client.objects[folder+"/"]; !ok {
		t.Error("folder marker not written")
	}

	src := filepath.Join(t.TempDir(), "summary.txt")
	if err := os.WriteFile(src, []byte("notes"), 0644); err != nil {
		t.Fatal(err)
	}
	key, err := svc.Upload(context.Background(), src, folder, "")
	if err != nil {
		t.Fatal(err)
	}
	if key != folder+"/summary.txt" {
		t.Errorf("key = %q", key)
	}
	if client.objects[key] != "notes" {
		t.Errorf("object = %q, want notes", client.objects[key])
	}
}

func TestS3ServiceThrottled(t *testing.T) {
	client := &fakeS3{err: &smithy.GenericAPIError{Code: "SlowDown"}}
	svc := newS3Service(client, "bucket", "")

	_, err := svc.CreateFolder(context.Background(), "m", "")
	if err == nil {
		t.Fatal("CreateFolder() error = nil")
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || !IsQuotaError(err) {
		t.Errorf("error %v should stay a quota API error", err)
	}
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"", BackendNone, false},
		{"s3", BackendS3, false},
		{"local", BackendLocal, false},
		{"drive", "", true},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseBackend(%q) = (%v, %v), want %v", tt.in, got, err, tt.want)
		}
	}
}
