package s3publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxietl/internal/export"
)

type upload struct {
	bucket, key string
	body        string
	metadata    map[string]string
}

type fakeUploader struct {
	uploads []upload
	failKey string
}

func (f *fakeUploader) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeUploader) UploadWithContext(_ aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	key := aws.StringValue(in.Key)
	if key == f.failKey {
		return nil, errors.New("access denied")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.uploads = append(f.uploads, upload{
		bucket:   aws.StringValue(in.Bucket),
		key:      key,
		body:     string(body),
		metadata: aws.StringValueMap(in.Metadata),
	})
	return &s3manager.UploadOutput{Location: "https://bucket.example/" + key}, nil
}

func exported(t *testing.T, view, body string) export.File {
	t.Helper()
	p := filepath.Join(t.TempDir(), view+".csv")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return export.File{View: view, Path: p, Rows: 1, Bytes: int64(len(body)), Hash: 0xabc}
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestPublishUploadsWithMetadata(t *testing.T) {
	up := &fakeUploader{}
	p := NewWithUploader(up, "extracts", "nyc/2023")

	locs, err := p.Publish(context.Background(), []export.File{exported(t, "trip_enriched", "trip_id\n1\n")})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://bucket.example/nyc/2023/trip_enriched.csv"}, locs)

	require.Len(t, up.uploads, 1)
	u := up.uploads[0]
	assert.Equal(t, "extracts", u.bucket)
	assert.Equal(t, "nyc/2023/trip_enriched.csv", u.key)
	assert.Equal(t, "trip_id\n1\n", u.body)
	assert.Equal(t, map[string]string{"xxh3": "0000000000000abc", "rows": "1", "view": "trip_enriched"}, u.metadata)
}

func TestPublishStopsAtFirstFailure(t *testing.T) {
	up := &fakeUploader{failKey: "b.csv"}
	p := NewWithUploader(up, "extracts", "")

	locs, err := p.Publish(context.Background(), []export.File{
		exported(t, "a", "x\n"), exported(t, "b", "y\n"), exported(t, "c", "z\n"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://extracts/b.csv")
	assert.Len(t, locs, 1)
	assert.Len(t, up.uploads, 1)
}

func TestPublishMissingFile(t *testing.T) {
	p := NewWithUploader(&fakeUploader{}, "extracts", "")
	_, err := p.Publish(context.Background(), []export.File{{View: "gone", Path: filepath.Join(t.TempDir(), "gone.csv")}})
	require.Error(t, err)
}
