package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/yungbote/ragdesk-backend/internal/objectstore"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

type fakeAPI struct {
	objects map[string][]byte
	pages   [][]string
	puts    []string
	types   map[string]string
}

func (f *fakeAPI) ListObjectsV2(ctx context.Context, in *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	page := 0
	if in.ContinuationToken != nil {
		page = int(aws.ToString(in.ContinuationToken)[0] - '0')
	}
	out := &awss3.ListObjectsV2Output{}
	for _, k := range f.pages[page] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(f.objects[k])))})
	}
	if page+1 < len(f.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(string(rune('0' + page + 1)))
	}
	return out, nil
}

func (f *fakeAPI) GetObject(ctx context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeAPI) PutObject(ctx context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	f.objects[key] = b
	f.puts = append(f.puts, key)
	f.types[key] = aws.ToString(in.ContentType)
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeAPI) UploadPart(ctx context.Context, in *awss3.UploadPartInput, _ ...func(*awss3.Options)) (*awss3.UploadPartOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeAPI) CreateMultipartUpload(ctx context.Context, in *awss3.CreateMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeAPI) CompleteMultipartUpload(ctx context.Context, in *awss3.CompleteMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeAPI) AbortMultipartUpload(ctx context.Context, in *awss3.AbortMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.AbortMultipartUploadOutput, error) {
	return &awss3.AbortMultipartUploadOutput{}, nil
}

func newTestStore(t *testing.T, api *fakeAPI) *Store {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return NewWithAPI(log, api, "docs")
}

func TestListFollowsPages(t *testing.T) {
	api := &fakeAPI{
		objects: map[string][]byte{"pdfs/a.pdf": []byte("a"), "pdfs/b.pdf": []byte("bb")},
		pages:   [][]string{{"pdfs/", "pdfs/a.pdf"}, {"pdfs/b.pdf"}},
		types:   map[string]string{},
	}
	objs, err := newTestStore(t, api).List(context.Background(), "pdfs/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 2 || objs[1].Key != "pdfs/b.pdf" || objs[1].Size != 2 {
		t.Fatalf("List: got=%+v", objs)
	}
}

func TestDownloadMissingIsNotFound(t *testing.T) {
	api := &fakeAPI{objects: map[string][]byte{}, types: map[string]string{}}
	err := newTestStore(t, api).Download(context.Background(), "pdfs/x.pdf", &bytes.Buffer{})
	if !errors.Is(err, objectstore.ErrNotFound) {
		t.Fatalf("want ErrNotFound got=%v", err)
	}
}

func TestUploadUsesSinglePut(t *testing.T) {
	api := &fakeAPI{objects: map[string][]byte{}, types: map[string]string{}}
	s := newTestStore(t, api)
	if err := s.Upload(context.Background(), "pdfs/c.pdf", strings.NewReader("%PDF-1.4"), "application/pdf"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(api.puts) != 1 || string(api.objects["pdfs/c.pdf"]) != "%PDF-1.4" {
		t.Fatalf("puts: got=%v", api.puts)
	}
	if api.types["pdfs/c.pdf"] != "application/pdf" {
		t.Fatalf("content type: got=%q", api.types["pdfs/c.pdf"])
	}
	var buf bytes.Buffer
	if err := s.Download(context.Background(), "pdfs/c.pdf", &buf); err != nil || buf.String() != "%PDF-1.4" {
		t.Fatalf("Download: %v %q", err, buf.String())
	}
}
