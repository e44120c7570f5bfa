package s3_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sink "github.com/aretw0/strata/pkg/adapters/s3"
)

type fakeClient struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakeClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func TestSink_Put(t *testing.T) {
	client := &fakeClient{}
	s := sink.NewFromClient(client, "results", sink.WithPrefix("exports"))

	require.NoError(t, s.Put(context.Background(), "run-1/default.json", []byte(`{"title":"x"}`), "application/json"))
	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "results", *in.Bucket)
	assert.Equal(t, "exports/run-1/default.json", *in.Key)
	assert.Equal(t, "application/json", *in.ContentType)
	assert.Equal(t, int64(13), *in.ContentLength)
	assert.Equal(t, `{"title":"x"}`, client.bodies[0])

	assert.Error(t, s.Put(context.Background(), "", nil, ""))
}

func TestSink_PutError(t *testing.T) {
	s := sink.NewFromClient(&fakeClient{err: errors.New("access denied")}, "results")
	err := s.Put(context.Background(), "a.json", []byte("{}"), "application/json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://results/a.json")
}

// recorder answers every request with 200 and remembers what it saw.
type recorder struct {
	mu   sync.Mutex
	reqs []string
}

func (r *recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req.Method+" "+req.URL.Path)
	if req.Body != nil {
		_, _ = io.Copy(io.Discard, req.Body)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Etag": []string{`"abc"`}},
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    req,
	}, nil
}

func TestNew_PathStyleEndpoint(t *testing.T) {
	rt := &recorder{}
	s, err := sink.New(context.Background(), sink.Config{
		Bucket:          "lab",
		Prefix:          "strata",
		Endpoint:        "http://minio.local:9000",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
	})
	require.NoError(t, err)

	// route the sink's client through the recorder
	client := s3.New(s3.Options{
		Region:       "us-east-1",
		UsePathStyle: true,
		HTTPClient:   &http.Client{Transport: rt},
		BaseEndpoint: strPtr("http://minio.local:9000"),
		Credentials:  credentials.NewStaticCredentialsProvider("AKIA", "SECRET", ""),
	})
	routed := sink.NewFromClient(client, "lab", sink.WithPrefix("strata"))
	require.NoError(t, routed.Put(context.Background(), "r/default.json", []byte("{}"), "application/json"))

	require.Len(t, rt.reqs, 1)
	assert.Equal(t, "PUT /lab/strata/r/default.json", rt.reqs[0])
	assert.Equal(t, "strata/r/default.json", s.Key("r/default.json"))

	_, err = sink.New(context.Background(), sink.Config{})
	assert.Error(t, err, "bucket is required")
}

func strPtr(s string) *string { return &s }
