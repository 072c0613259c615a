package recipients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultMaxFileBytes caps recipient files read into memory.
const DefaultMaxFileBytes int64 = 5 << 20

// ErrFileTooLarge is returned when a recipient file exceeds its size cap.
var ErrFileTooLarge = errors.New("recipient file too large")

// LineSource produces the raw content of a recipient file. Content is always
// treated as newline-delimited plain text regardless of the file's name.
type LineSource interface {
	Read(ctx context.Context) ([]byte, error)
	Describe() string
}

// Lines reads src and splits it into trimmed lines. A nil source means no
// file was provided and yields nil lines.
func Lines(ctx context.Context, src LineSource) ([]string, error) {
	if src == nil {
		return nil, nil
	}
	data, err := src.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read recipients from %s: %w", src.Describe(), err)
	}
	return SplitLines(data), nil
}

// Upload is a file received in a request, already held in memory.
type Upload struct {
	Name string
	Data []byte
}

// ReadUpload consumes r up to limit bytes. A non-positive limit falls back
// to DefaultMaxFileBytes.
func ReadUpload(name string, r io.Reader, limit int64) (*Upload, error) {
	data, err := readCapped(r, limit)
	if err != nil {
		return nil, err
	}
	return &Upload{Name: name, Data: data}, nil
}

func (u *Upload) Read(context.Context) ([]byte, error) { return u.Data, nil }
func (u *Upload) Describe() string                     { return "upload " + u.Name }

// LocalFile reads recipients from a path on the server's filesystem.
type LocalFile struct {
	Path     string
	MaxBytes int64
}

func (f LocalFile) Read(context.Context) ([]byte, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return readCapped(fh, f.MaxBytes)
}

func (f LocalFile) Describe() string { return "file " + f.Path }

// ObjectGetter is the subset of the S3 client used to fetch recipient files.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Object reads recipients from an object in S3.
type S3Object struct {
	Client   ObjectGetter
	Bucket   string
	Key      string
	MaxBytes int64
}

func (o S3Object) Read(ctx context.Context) ([]byte, error) {
	resp, err := o.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.Bucket),
		Key:    aws.String(o.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("S3 GetObject %s/%s: %w", o.Bucket, o.Key, err)
	}
	defer resp.Body.Close()
	return readCapped(resp.Body, o.MaxBytes)
}

func (o S3Object) Describe() string { return "s3://" + o.Bucket + "/" + o.Key }

func readCapped(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxFileBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, limit)
	}
	return data, nil
}
