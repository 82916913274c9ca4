package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	s3iface.S3API
	mock.Mock
	body []byte
}

func (m *mockS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	args := m.Called(aws.StringValue(in.Bucket), aws.StringValue(in.ContentType))
	m.body, _ = io.ReadAll(in.Body)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestUpload(t *testing.T) {
	client := &mockS3{}
	client.On("PutObjectWithContext", "media-bucket", "image/png").Return(nil)

	store := NewS3StoreWithClient(client, "media-bucket")
	url, err := store.Upload(context.Background(), "Photo.PNG", "image/png", []byte("data"))
	require.NoError(t, err)

	assert.Regexp(t, `^https://media-bucket\.s3\.amazonaws\.com/social-cross-post/images/[0-9a-f-]{36}\.png$`, url)
	assert.Equal(t, []byte("data"), client.body)
	client.AssertExpectations(t)
}

func TestUploadError(t *testing.T) {
	client := &mockS3{}
	client.On("PutObjectWithContext", "b", "video/mp4").Return(errors.New("denied"))

	_, err := NewS3StoreWithClient(client, "b").Upload(context.Background(), "clip.mp4", "video/mp4", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		filename    string
		contentType string
		want        string
	}{
		{"a.jpg", "image/jpeg", "social-cross-post/images/id.jpg"},
		{"clip.MOV", "video/quicktime", "social-cross-post/videos/id.mov"},
		{"noext", "application/octet-stream", "social-cross-post/images/id"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectKey(tt.filename, tt.contentType, "id"))
		})
	}
}
