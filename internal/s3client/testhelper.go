package s3client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// NewInMemory serves a fresh gofakes3 backend on a loopback port and returns
// a client for bucket on it, with the bucket created. Objects are public at
// publicURL, or at the fake itself when publicURL is empty. closeFn stops
// the fake.
func NewInMemory(ctx context.Context, bucket, publicURL string) (client *Client, closeFn func(), err error) {
	fake := httptest.NewServer(gofakes3.New(s3mem.New()).Server())
	if publicURL == "" {
		publicURL = fake.URL + "/" + bucket
	}
	client, err = New(ctx, Config{
		Endpoint:        fake.URL,
		Region:          "us-east-1",
		AccessKeyID:     "fake-access-key",
		SecretAccessKey: "fake-secret-key",
		BucketName:      bucket,
		PublicURL:       publicURL,
		UsePathStyle:    true,
	})
	if err == nil {
		err = client.EnsureBucket(ctx)
	}
	if err != nil {
		fake.Close()
		return nil, nil, err
	}
	return client, fake.Close, nil
}

// TestClient returns an in-memory client that lives as long as t.
func TestClient(t testing.TB, bucket string) *Client {
	t.Helper()
	client, closeFn, err := NewInMemory(context.Background(), bucket, "")
	if err != nil {
		t.Fatalf("in-memory S3: %v", err)
	}
	t.Cleanup(closeFn)
	return client
}
