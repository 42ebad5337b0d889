// Package s3fs stores roots as key prefixes in an S3 compatible bucket.
//
// A root lives under "<prefix>/<root>/". Directories are zero byte marker
// objects whose key ends with "/", files are plain objects.
package s3fs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/internal/util"
)

const Type = "s3"

// maxDeleteBatch is the DeleteObjects limit
const maxDeleteBatch = 1000

// Config is the raw JSON configuration of the s3 backend
type Config struct {
	Type         string `json:"type"`
	Endpoint     string `json:"endpoint,omitempty"`
	Bucket       string `json:"bucket"`
	Region       string `json:"region,omitempty"`
	Prefix       string `json:"prefix,omitempty"`
	AccessKey    string `json:"access_key,omitempty"`
	SecretKey    string `json:"secret_key,omitempty"`
	UsePathStyle bool   `json:"use_path_style,omitempty"`
}

// Client is the subset of the S3 API the backend uses
type Client interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Provider creates s3 backends
type Provider struct{}

func (Provider) NewBackend(raw []byte) (opfs.Backend, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return Connect(context.Background(), cfg)
}

// Connect builds an S3 client from cfg. Static credentials are used when
// both keys are set, otherwise the default AWS credential chain.
func Connect(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 backend requires bucket")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return New(client, cfg.Bucket, cfg.Prefix), nil
}

// Backend implements [opfs.Backend] on top of one S3 bucket
type Backend struct {
	client Client
	bucket string
	prefix string
}

// New wraps an existing client. prefix may be empty.
func New(client Client, bucket, prefix string) *Backend {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Backend{client: client, bucket: bucket, prefix: prefix}
}

func (b *Backend) Root(ctx context.Context, name string, opts opfs.OpenOptions) (opfs.DirectoryHandle, error) {
	if err := opfs.ValidateName(name); err != nil {
		return nil, err
	}
	d := &Dir{b: b, name: name, key: b.prefix + name + "/"}
	exists, err := b.prefixExists(ctx, d.key)
	if err != nil {
		return nil, err
	}
	if !exists {
		if !opts.Create {
			return nil, fmt.Errorf("root %q: %w", name, opfs.ErrNotFound)
		}
		if err := b.put(ctx, d.key, nil); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// RemoveRoot deletes every object under the root prefix
func (b *Backend) RemoveRoot(ctx context.Context, name string) error {
	if err := opfs.ValidateName(name); err != nil {
		return err
	}
	return b.deletePrefix(ctx, b.prefix+name+"/")
}

func (b *Backend) Type() string {
	return Type
}

func (b *Backend) Close() error {
	return nil
}

func (b *Backend) objectExists(ctx context.Context, key string) (int64, bool, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("head %s: %w", key, err)
	}
	return aws.ToInt64(out.ContentLength), true, nil
}

// prefixExists reports whether a marker or any object lives under prefix
func (b *Backend) prefixExists(ctx context.Context, prefix string) (bool, error) {
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("list %s: %w", prefix, err)
	}
	return len(out.Contents) > 0, nil
}

func (b *Backend) put(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (b *Backend) deletePrefix(ctx context.Context, prefix string) error {
	logger := util.GetLogger("S3FS.DeletePrefix")
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	var batch []types.ObjectIdentifier
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		out, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.bucket),
			Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete under %s: %w", prefix, err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
		}
		logger.Debug().Str("prefix", prefix).Int("count", len(batch)).Msg("Deleted objects")
		batch = batch[:0]
		return nil
	}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			batch = append(batch, types.ObjectIdentifier{Key: obj.Key})
			if len(batch) == maxDeleteBatch {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

// Dir implements [opfs.DirectoryHandle]. key ends with "/".
type Dir struct {
	b    *Backend
	name string
	key  string
}

func (d *Dir) Name() string    { return d.name }
func (d *Dir) Kind() opfs.Kind { return opfs.KindDirectory }

func (d *Dir) GetDirectoryHandle(ctx context.Context, name string, create bool) (opfs.DirectoryHandle, error) {
	if err := opfs.ValidateName(name); err != nil {
		return nil, err
	}
	sub := &Dir{b: d.b, name: name, key: d.key + name + "/"}
	exists, err := d.b.prefixExists(ctx, sub.key)
	if err != nil {
		return nil, err
	}
	if exists {
		return sub, nil
	}
	if _, isFile, err := d.b.objectExists(ctx, d.key+name); err != nil {
		return nil, err
	} else if isFile {
		return nil, fmt.Errorf("%q is a file: %w", name, opfs.ErrTypeMismatch)
	}
	if !create {
		return nil, fmt.Errorf("directory %q: %w", name, opfs.ErrNotFound)
	}
	if err := d.b.put(ctx, sub.key, nil); err != nil {
		return nil, err
	}
	return sub, nil
}

func (d *Dir) GetFileHandle(ctx context.Context, name string, create bool) (opfs.FileHandle, error) {
	if err := opfs.ValidateName(name); err != nil {
		return nil, err
	}
	f := &File{b: d.b, name: name, key: d.key + name}
	if _, exists, err := d.b.objectExists(ctx, f.key); err != nil {
		return nil, err
	} else if exists {
		return f, nil
	}
	if isDir, err := d.b.prefixExists(ctx, f.key+"/"); err != nil {
		return nil, err
	} else if isDir {
		return nil, fmt.Errorf("%q is a directory: %w", name, opfs.ErrTypeMismatch)
	}
	if !create {
		return nil, fmt.Errorf("file %q: %w", name, opfs.ErrNotFound)
	}
	if err := d.b.put(ctx, f.key, nil); err != nil {
		return nil, err
	}
	return f, nil
}

func (d *Dir) RemoveEntry(ctx context.Context, name string, recursive bool) error {
	if err := opfs.ValidateName(name); err != nil {
		return err
	}
	key := d.key + name
	if _, isFile, err := d.b.objectExists(ctx, key); err != nil {
		return err
	} else if isFile {
		_, err := d.b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(d.b.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	}

	out, err := d.b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(d.b.bucket),
		Prefix:  aws.String(key + "/"),
		MaxKeys: aws.Int32(2),
	})
	if err != nil {
		return fmt.Errorf("list %s: %w", key, err)
	}
	if len(out.Contents) == 0 {
		return fmt.Errorf("entry %q: %w", name, opfs.ErrNotFound)
	}
	if !recursive {
		for _, obj := range out.Contents {
			if aws.ToString(obj.Key) != key+"/" {
				return fmt.Errorf("%q: %w", name, opfs.ErrNotEmpty)
			}
		}
	}
	return d.b.deletePrefix(ctx, key+"/")
}

func (d *Dir) Entries(ctx context.Context) iter.Seq2[opfs.Handle, error] {
	return func(yield func(opfs.Handle, error) bool) {
		p := s3.NewListObjectsV2Paginator(d.b.client, &s3.ListObjectsV2Input{
			Bucket:    aws.String(d.b.bucket),
			Prefix:    aws.String(d.key),
			Delimiter: aws.String("/"),
		})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				yield(nil, fmt.Errorf("list %s: %w", d.key, err))
				return
			}
			for _, cp := range page.CommonPrefixes {
				name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), d.key), "/")
				if opfs.ValidateName(name) != nil {
					continue
				}
				if !yield(&Dir{b: d.b, name: name, key: aws.ToString(cp.Prefix)}, nil) {
					return
				}
			}
			for _, obj := range page.Contents {
				key := aws.ToString(obj.Key)
				name := strings.TrimPrefix(key, d.key)
				if key == d.key || opfs.ValidateName(name) != nil {
					continue
				}
				f := &File{b: d.b, name: name, key: key}
				if !yield(f, nil) {
					return
				}
			}
		}
	}
}

// File implements [opfs.FileHandle]
type File struct {
	b    *Backend
	name string
	key  string
}

func (f *File) Name() string    { return f.name }
func (f *File) Kind() opfs.Kind { return opfs.KindFile }

func (f *File) Text(ctx context.Context) (string, error) {
	out, err := f.b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.b.bucket),
		Key:    aws.String(f.key),
	})
	if isNotFound(err) {
		return "", fmt.Errorf("file %q: %w", f.name, opfs.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", f.key, err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", f.key, err)
	}
	return string(b), nil
}

func (f *File) Size(ctx context.Context) (int64, error) {
	size, ok, err := f.b.objectExists(ctx, f.key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("file %q: %w", f.name, opfs.ErrNotFound)
	}
	return size, nil
}

// CreateWritable buffers in memory and uploads with a single PutObject on Close
func (f *File) CreateWritable(ctx context.Context) (opfs.WritableStream, error) {
	return &writable{ctx: ctx, file: f}, nil
}

type writable struct {
	ctx  context.Context
	file *File
	buf  bytes.Buffer
	done bool
}

func (w *writable) Write(p []byte) (int, error) {
	if w.done {
		return 0, fmt.Errorf("write to closed stream of %q", w.file.name)
	}
	return w.buf.Write(p)
}

func (w *writable) Close() error {
	if w.done {
		return fmt.Errorf("stream of %q already closed", w.file.name)
	}
	w.done = true
	return w.file.b.put(w.ctx, w.file.key, w.buf.Bytes())
}

func (w *writable) Abort() error {
	w.done = true
	w.buf.Reset()
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return false
}

var (
	_ opfs.Backend         = (*Backend)(nil)
	_ opfs.DirectoryHandle = (*Dir)(nil)
	_ opfs.FileHandle      = (*File)(nil)
)
