package prefs

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// S3Config locates the bucket used to mirror preferences.
type S3Config struct {
	Endpoint      string `yaml:"endpoint"`
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	Region        string `yaml:"region"`
	AccessKeyFile string `yaml:"access_key_file"`
	SecretKeyFile string `yaml:"secret_key_file"`
}

// Enabled reports whether an S3 mirror is configured.
func (c S3Config) Enabled() bool { return strings.TrimSpace(c.Endpoint) != "" }

// S3Store stores one object per key.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Store builds a client from cfg. Credentials are read from files.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	bucket := strings.TrimSpace(cfg.Bucket)
	if endpoint == "" || bucket == "" || cfg.AccessKeyFile == "" || cfg.SecretKeyFile == "" {
		return nil, errors.New("prefs: incomplete s3 configuration")
	}
	accessKey, err := readSecretFile(cfg.AccessKeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "prefs: read s3 access key")
	}
	secretKey, err := readSecretFile(cfg.SecretKeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "prefs: read s3 secret key")
	}
	host, secure, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, errors.Wrap(err, "prefs: init s3 client")
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "sen6x/prefs"
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *S3Store) Load(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrapError(err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		return nil, s.wrapError(err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, errors.Wrap(err, "prefs: read object")
	}
	return data, nil
}

func (s *S3Store) Save(ctx context.Context, key string, data []byte) error {
	r := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, s.key(key), r, int64(r.Len()), minio.PutObjectOptions{
		ContentType: "application/cbor",
	})
	if err != nil {
		return s.wrapError(err)
	}
	return nil
}

func (s *S3Store) key(k string) string { return path.Join(s.prefix, k+".cbor") }

func (s *S3Store) wrapError(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return errors.Wrap(err, "prefs: s3")
}

func parseEndpoint(raw string) (string, bool, error) {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, errors.Wrap(err, "prefs: parse endpoint")
		}
		if u.Host == "" {
			return "", false, errors.Errorf("prefs: invalid endpoint %q", raw)
		}
		return u.Host, u.Scheme == "https", nil
	}
	return raw, true, nil
}

func readSecretFile(p string) (string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
