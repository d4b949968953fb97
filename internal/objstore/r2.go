package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"
)

// ErrNoCredentials is returned when the object store is configured without a
// complete credential set. Callers degrade to "no files available" rather
// than failing the process.
var ErrNoCredentials = errors.New("missing object store credentials")

type Option func(*Repository)

func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) {
		r.logger = l
	}
}

func WithEndpoint(endpoint string) Option {
	return func(r *Repository) {
		r.Endpoint = endpoint
	}
}

// WithAccount derives the Cloudflare R2 endpoint from an account ID.
func WithAccount(accountID string) Option {
	return func(r *Repository) {
		if accountID != "" {
			r.Endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
		}
	}
}

func WithCredentials(accessKeyID, secretAccessKey string) Option {
	return func(r *Repository) {
		r.AccessKeyID = accessKeyID
		r.SecretAccessKey = secretAccessKey
	}
}

func WithBucket(bucket string) Option {
	return func(r *Repository) {
		r.Bucket = bucket
	}
}

func WithPrefix(prefix string) Option {
	return func(r *Repository) {
		r.Prefix = prefix
	}
}

func WithRegion(region string) Option {
	return func(r *Repository) {
		r.Region = region
	}
}

func WithForcePathStyle(forcePathStyle bool) Option {
	return func(r *Repository) {
		r.ForcePathStyle = forcePathStyle
	}
}

// Repository lists and downloads report objects from an S3-compatible
// bucket (Cloudflare R2 in production).
type Repository struct {
	logger *zap.Logger
	client *s3.S3

	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

func New(opts ...Option) (*Repository, error) {
	r := &Repository{
		logger: zap.NewNop(),
		Region: "auto",
	}

	for _, o := range opts {
		o(r)
	}

	if r.Endpoint == "" || r.AccessKeyID == "" || r.SecretAccessKey == "" {
		return nil, ErrNoCredentials
	}

	awsConfig := &aws.Config{
		Region:           aws.String(r.Region),
		Endpoint:         aws.String(r.Endpoint),
		S3ForcePathStyle: aws.Bool(r.ForcePathStyle),
		Credentials:      credentials.NewStaticCredentials(r.AccessKeyID, r.SecretAccessKey, ""),
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, err
	}
	r.client = s3.New(sess)

	return r, nil
}

// List enumerates report object keys under the configured prefix, paginating
// transparently. Directory placeholders and unrecognized extensions are
// filtered out.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	var keys []string

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(r.Bucket),
		Prefix: aws.String(r.Prefix),
	}

	err := r.client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				key := aws.StringValue(obj.Key)
				if eligibleKey(key) {
					keys = append(keys, key)
				}
			}
			return true
		})
	if err != nil {
		return nil, fmt.Errorf("listing bucket %s: %w", r.Bucket, err)
	}

	r.logger.Debug("listed report objects",
		zap.String("bucket", r.Bucket),
		zap.String("prefix", r.Prefix),
		zap.Int("keys", len(keys)),
	)

	return keys, nil
}

// Get downloads one object's bytes.
func (r *Repository) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := r.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

func eligibleKey(key string) bool {
	if strings.HasSuffix(key, "/") {
		return false
	}
	lower := strings.ToLower(key)
	return strings.HasSuffix(lower, ".csv") || strings.HasSuffix(lower, ".xlsx")
}
