package supabase

import (
	"context"
	"net/http"

	"go-jobmarket-backend/internal/domain"
)

// FileStore implements the storage bucket primitives. Bucket administration
// needs the service role key; object uploads work with either key depending
// on the bucket policy.
type FileStore struct {
	client     *Client
	serviceKey string
}

func NewFileStore(client *Client, serviceKey string) domain.FileStore {
	return &FileStore{client: client, serviceKey: serviceKey}
}

func (f *FileStore) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	return f.client.doRaw(ctx, http.MethodPost, "/storage/v1/object/"+bucket+"/"+path,
		f.serviceKey, contentType, data)
}

func (f *FileStore) PublicURL(bucket, path string) string {
	return f.client.baseURL + "/storage/v1/object/public/" + bucket + "/" + path
}

func (f *FileStore) CreateBucket(ctx context.Context, name string, public bool) error {
	body := map[string]interface{}{"name": name, "id": name, "public": public}
	return f.client.do(ctx, http.MethodPost, "/storage/v1/bucket", f.serviceKey, body, nil)
}
