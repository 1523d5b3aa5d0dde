package s3

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"golang.org/x/time/rate"

	"github.com/3leaps/bucketscan/pkg/inventory"
	"github.com/3leaps/bucketscan/pkg/provider"
)

// api is the subset of *s3.Client used by Provider.
type api interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	ListObjectVersions(ctx context.Context, params *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetBucketLifecycleConfiguration(ctx context.Context, params *s3.GetBucketLifecycleConfigurationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLifecycleConfigurationOutput, error)
	GetBucketReplication(ctx context.Context, params *s3.GetBucketReplicationInput, optFns ...func(*s3.Options)) (*s3.GetBucketReplicationOutput, error)
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
}

// Provider implements provider.Provider for AWS S3 and S3-compatible storage.
//
// Provider is safe for concurrent use. Bucket regions and per-region clients
// are cached for the provider's lifetime.
type Provider struct {
	base     api
	regional func(region string) api
	pinned   bool // custom endpoint: every bucket uses base
	maxKeys  int
	limiter  *rate.Limiter

	mu      sync.Mutex
	regions map[string]string
	clients map[string]api
}

// Ensure Provider implements the interface.
var _ provider.Provider = (*Provider)(nil)

// New creates a new S3 provider with the given configuration.
//
// The provider uses AWS SDK v2's default credential chain unless explicit
// credentials are provided in the config.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &provider.ProviderError{
			Op:       "New",
			Provider: provider.ProviderS3,
			Err:      err,
		}
	}

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	// Build S3 client options
	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.RetryMaxAttempts = attempts
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}

	// Custom endpoint for S3-compatible stores
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	base := s3.NewFromConfig(awsCfg, s3Opts...)
	regional := func(region string) api {
		opts := append([]func(*s3.Options){}, s3Opts...)
		opts = append(opts, func(o *s3.Options) { o.Region = region })
		return s3.NewFromConfig(awsCfg, opts...)
	}

	return newProvider(base, regional, cfg), nil
}

// newProvider assembles a Provider around an already-built client.
func newProvider(base api, regional func(string) api, cfg Config) *Provider {
	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	p := &Provider{
		base:     base,
		regional: regional,
		pinned:   cfg.Endpoint != "" || regional == nil,
		maxKeys:  maxKeys,
		regions:  make(map[string]string),
		clients:  make(map[string]api),
	}

	// Set up rate limiter if configured
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return p
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	// Only apply explicit region if user set one in config.
	// Let SDK resolve from env/profile first.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	// Set profile if specified
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	// Use explicit credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token (empty for long-term credentials)
		)
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	// Apply region defaulting logic
	awsCfg.Region = resolveRegion(cfg.Region, cfg.Endpoint, awsCfg.Region)

	return awsCfg, nil
}

// ListBuckets returns every bucket visible to the active credentials.
func (p *Provider) ListBuckets(ctx context.Context) ([]inventory.Bucket, error) {
	var buckets []inventory.Bucket
	var token *string

	for {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}

		out, err := p.base.ListBuckets(ctx, &s3.ListBucketsInput{ContinuationToken: token})
		if err != nil {
			return nil, p.wrapError("ListBuckets", "", "", err)
		}

		for _, b := range out.Buckets {
			name := aws.ToString(b.Name)
			buckets = append(buckets, inventory.Bucket{
				Name:         name,
				CreationDate: aws.ToTime(b.CreationDate),
			})
		}

		if aws.ToString(out.ContinuationToken) == "" {
			break
		}
		token = out.ContinuationToken
	}

	return buckets, nil
}

// ListObjectVersions returns one page of versions and delete markers.
func (p *Provider) ListObjectVersions(ctx context.Context, bucket string, opts provider.ListOptions) (*provider.VersionPage, error) {
	client, err := p.clientFor(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	input := &s3.ListObjectVersionsInput{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(int32(clampMaxKeys(opts.MaxKeys, p.maxKeys))),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.KeyMarker != "" {
		input.KeyMarker = aws.String(opts.KeyMarker)
	}
	if opts.VersionIDMarker != "" {
		input.VersionIdMarker = aws.String(opts.VersionIDMarker)
	}

	out, err := client.ListObjectVersions(ctx, input)
	if err != nil {
		return nil, p.wrapError("ListObjectVersions", bucket, "", err)
	}

	page := &provider.VersionPage{
		Versions:            make([]provider.ObjectVersion, 0, len(out.Versions)),
		DeleteMarkers:       make([]provider.DeleteMarker, 0, len(out.DeleteMarkers)),
		NextKeyMarker:       aws.ToString(out.NextKeyMarker),
		NextVersionIDMarker: aws.ToString(out.NextVersionIdMarker),
		IsTruncated:         aws.ToBool(out.IsTruncated),
	}

	for _, v := range out.Versions {
		page.Versions = append(page.Versions, provider.ObjectVersion{
			Key:          aws.ToString(v.Key),
			VersionID:    aws.ToString(v.VersionId),
			Size:         aws.ToInt64(v.Size),
			StorageClass: string(v.StorageClass),
			LastModified: aws.ToTime(v.LastModified),
			IsLatest:     aws.ToBool(v.IsLatest),
		})
	}

	for _, m := range out.DeleteMarkers {
		page.DeleteMarkers = append(page.DeleteMarkers, provider.DeleteMarker{
			Key:          aws.ToString(m.Key),
			VersionID:    aws.ToString(m.VersionId),
			LastModified: aws.ToTime(m.LastModified),
			IsLatest:     aws.ToBool(m.IsLatest),
		})
	}

	return page, nil
}

// ObjectEncryption returns the server-side encryption algorithm of one version.
func (p *Provider) ObjectEncryption(ctx context.Context, bucket, key, versionID string) (string, error) {
	client, err := p.clientFor(ctx, bucket)
	if err != nil {
		return "", err
	}
	if err := p.wait(ctx); err != nil {
		return "", err
	}

	input := &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if versionID != "" {
		input.VersionId = aws.String(versionID)
	}

	out, err := client.HeadObject(ctx, input)
	if err != nil {
		return "", p.wrapError("HeadObject", bucket, key, err)
	}
	return string(out.ServerSideEncryption), nil
}

// LifecycleConfigured reports whether the bucket has a lifecycle configuration.
func (p *Provider) LifecycleConfigured(ctx context.Context, bucket string) (bool, error) {
	client, err := p.clientFor(ctx, bucket)
	if err != nil {
		return false, err
	}
	if err := p.wait(ctx); err != nil {
		return false, err
	}

	out, err := client.GetBucketLifecycleConfiguration(ctx, &s3.GetBucketLifecycleConfigurationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return false, p.wrapError("GetBucketLifecycleConfiguration", bucket, "", err)
	}
	return len(out.Rules) > 0, nil
}

// ReplicationConfigured reports whether the bucket has a replication configuration.
func (p *Provider) ReplicationConfigured(ctx context.Context, bucket string) (bool, error) {
	client, err := p.clientFor(ctx, bucket)
	if err != nil {
		return false, err
	}
	if err := p.wait(ctx); err != nil {
		return false, err
	}

	out, err := client.GetBucketReplication(ctx, &s3.GetBucketReplicationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return false, p.wrapError("GetBucketReplication", bucket, "", err)
	}
	return out.ReplicationConfiguration != nil && len(out.ReplicationConfiguration.Rules) > 0, nil
}

// BucketRegion returns the bucket's region code.
//
// An empty location constraint means us-east-1; the legacy "EU" constraint
// means eu-west-1. The result is cached.
func (p *Provider) BucketRegion(ctx context.Context, bucket string) (string, error) {
	p.mu.Lock()
	region, ok := p.regions[bucket]
	p.mu.Unlock()
	if ok {
		return region, nil
	}

	if err := p.wait(ctx); err != nil {
		return "", err
	}

	out, err := p.base.GetBucketLocation(ctx, &s3.GetBucketLocationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return "", p.wrapError("GetBucketLocation", bucket, "", err)
	}

	region = normalizeLocation(out.LocationConstraint)

	p.mu.Lock()
	p.regions[bucket] = region
	p.mu.Unlock()

	return region, nil
}

// Close releases any resources held by the provider.
// The S3 client doesn't require explicit cleanup, but this satisfies the interface.
func (p *Provider) Close() error {
	return nil
}

// clientFor returns a client able to address bucket.
//
// AWS answers requests sent to the wrong regional endpoint with a redirect,
// so every bucket-level call goes through a client pinned to its region.
func (p *Provider) clientFor(ctx context.Context, bucket string) (api, error) {
	if p.pinned {
		return p.base, nil
	}

	region, err := p.BucketRegion(ctx, bucket)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	client, ok := p.clients[region]
	if !ok {
		client = p.regional(region)
		p.clients[region] = client
	}
	return client, nil
}

// wait blocks until the rate limiter allows a request.
// Returns immediately if rate limiting is disabled.
func (p *Provider) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// wrapError converts S3 errors to provider errors with appropriate sentinel errors.
func (p *Provider) wrapError(op, bucket, key string, err error) error {
	wrapped := &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderS3,
		Bucket:   bucket,
		Key:      key,
		Err:      err,
	}

	// Check for specific S3 error types first
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket

	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		wrapped.Err = provider.ErrNotFound
		return wrapped
	case errors.As(err, &noSuchBucket):
		wrapped.Err = provider.ErrBucketNotFound
		return wrapped
	}

	// Check smithy API errors for error codes
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch code {
		case "NoSuchLifecycleConfiguration", "ReplicationConfigurationNotFoundError":
			wrapped.Err = provider.ErrNotConfigured
		case "NoSuchKey", "NotFound", "NoSuchVersion":
			wrapped.Err = provider.ErrNotFound
		case "NoSuchBucket":
			wrapped.Err = provider.ErrBucketNotFound
		case "AccessDenied", "Forbidden":
			wrapped.Err = provider.ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Err = provider.ErrInvalidCredentials
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			wrapped.Err = provider.ErrThrottled
		case "ServiceUnavailable", "InternalError":
			wrapped.Err = provider.ErrProviderUnavailable
		}
		return wrapped
	}

	// Fallback: check error message for common cases.
	// Configuration absence also answers 404, so it is checked first.
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "NoSuchLifecycleConfiguration") || strings.Contains(errMsg, "ReplicationConfigurationNotFoundError"):
		wrapped.Err = provider.ErrNotConfigured
	case strings.Contains(errMsg, "NoSuchBucket"):
		wrapped.Err = provider.ErrBucketNotFound
	case strings.Contains(errMsg, "NoSuchKey") || strings.Contains(errMsg, "NotFound") || strings.Contains(errMsg, "404"):
		wrapped.Err = provider.ErrNotFound
	case strings.Contains(errMsg, "AccessDenied") || strings.Contains(errMsg, "Forbidden") || strings.Contains(errMsg, "403"):
		wrapped.Err = provider.ErrAccessDenied
	case strings.Contains(errMsg, "InvalidAccessKeyId") || strings.Contains(errMsg, "SignatureDoesNotMatch"):
		wrapped.Err = provider.ErrInvalidCredentials
	case strings.Contains(errMsg, "SlowDown") || strings.Contains(errMsg, "Throttling") || strings.Contains(errMsg, "429"):
		wrapped.Err = provider.ErrThrottled
	case strings.Contains(errMsg, "ServiceUnavailable") || strings.Contains(errMsg, "503"):
		wrapped.Err = provider.ErrProviderUnavailable
	}

	return wrapped
}

// normalizeLocation maps a GetBucketLocation constraint to a region code.
func normalizeLocation(c types.BucketLocationConstraint) string {
	switch c {
	case "":
		return DefaultAWSRegion
	case types.BucketLocationConstraintEu:
		return "eu-west-1"
	default:
		return string(c)
	}
}

// clampMaxKeys applies defaults and limits to maxKeys values.
// If requested is <= 0, uses providerDefault. Result is clamped to MaxAllowedKeys.
func clampMaxKeys(requested, providerDefault int) int {
	if requested <= 0 {
		requested = providerDefault
	}
	if requested > MaxAllowedKeys {
		return MaxAllowedKeys
	}
	return requested
}

// resolveRegion determines the home region after SDK config loading.
//
// The SDK has already applied an explicit region, environment variables and
// the shared profile. This only applies the fallback default:
//   - If sdkRegion is still empty AND no custom endpoint, default to us-east-1
//   - For S3-compatible stores (endpoint set), no defaulting occurs
func resolveRegion(cfgRegion, endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if cfgRegion != "" {
		return cfgRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}
