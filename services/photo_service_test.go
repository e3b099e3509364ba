package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"l3v3l_server/errs"
	"l3v3l_server/models"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresigner struct {
	gets []string
	puts []*s3.PutObjectInput
	err  error
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.gets = append(f.gets, *in.Key)
	return &v4.PresignedHTTPRequest{URL: "https://bucket.test/" + *in.Key + "?sig=get"}, nil
}

func (f *fakePresigner) PresignPutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.puts = append(f.puts, in)
	return &v4.PresignedHTTPRequest{URL: "https://bucket.test/" + *in.Key + "?sig=put"}, nil
}

func newPhotoFixture() (*PhotoService, *PIIService, *fakePresigner) {
	store := NewMemoryStore()
	pii := NewPIIService(store, nil)
	pii.Now = tickingClock(epoch)
	presigner := &fakePresigner{}
	signer := &S3Service{Presigner: presigner, Bucket: "photos-bucket"}
	return NewPhotoService(signer, pii), pii, presigner
}

func TestPhotoUploadURL(t *testing.T) {
	svc, _, presigner := newPhotoFixture()
	url, key, err := svc.UploadURL(context.Background(), "alice", "me.jpg", "image/jpeg")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "photos/alice/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))
	assert.Contains(t, url, "sig=put")
	require.Len(t, presigner.puts, 1)
	assert.Equal(t, "photos-bucket", *presigner.puts[0].Bucket)
	assert.Equal(t, "image/jpeg", *presigner.puts[0].ContentType)

	_, _, err = svc.UploadURL(context.Background(), "alice", "me.gif", "image/gif")
	assert.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestPhotoReadURLRequiresGrant(t *testing.T) {
	svc, pii, _ := newPhotoFixture()
	ctx := context.Background()
	key := PhotoKey("alice") + "1.jpg"

	_, err := svc.ReadURL(ctx, "alice", "bob", key, false)
	assert.True(t, errs.Is(err, errs.Forbidden))

	req, err := pii.CreateRequest(ctx, models.CreatePIIRequest{Requester: "bob", Requestee: "alice", RequestType: models.PIITypePhotos})
	require.NoError(t, err)
	_, err = pii.Approve(ctx, req.ID, "alice")
	require.NoError(t, err)

	url, err := svc.ReadURL(ctx, "alice", "bob", key, false)
	require.NoError(t, err)
	assert.Contains(t, url, "sig=get")

	// owner and admins need no grant
	_, err = svc.ReadURL(ctx, "alice", "alice", key, false)
	assert.NoError(t, err)
	_, err = svc.ReadURL(ctx, "alice", "root", key, true)
	assert.NoError(t, err)
}

func TestPhotoReadURLRejectsForeignKeys(t *testing.T) {
	svc, _, _ := newPhotoFixture()
	_, err := svc.ReadURL(context.Background(), "alice", "alice", PhotoKey("carol")+"1.jpg", false)
	assert.True(t, errs.Is(err, errs.InvalidArgument))
	_, err = svc.ReadURL(context.Background(), "alice", "alice", PhotoKey("alice")+"../carol/1.jpg", false)
	assert.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestPhotoServiceWithoutBucket(t *testing.T) {
	svc := NewPhotoService(nil, nil)
	_, _, err := svc.UploadURL(context.Background(), "alice", "a.png", "image/png")
	assert.True(t, errs.Is(err, errs.InvalidState))
}

func TestS3ServiceWrapsPresignErrors(t *testing.T) {
	s := &S3Service{Presigner: &fakePresigner{err: errors.New("no credentials")}, Bucket: "b"}
	_, err := s.ReadURL(context.Background(), "k")
	assert.ErrorContains(t, err, "no credentials")
	_, err = s.UploadURL(context.Background(), "k", "image/png")
	assert.ErrorContains(t, err, "failed to presign upload k")
}
