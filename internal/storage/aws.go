// Package storage builds the AWS clients the newsletter service talks to.
package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/ignite/newsletter-ai/internal/config"
)

// AWSClients holds the SDK clients for every AWS-backed adapter. Clients
// for adapters the config does not select are left nil.
type AWSClients struct {
	Bedrock  *bedrockruntime.Client
	SES      *sesv2.Client
	S3       *s3.Client
	DynamoDB *dynamodb.Client
	Region   string
}

// LoadAWSConfig loads the default credential chain for region, using the
// shared profile when one is named.
func LoadAWSConfig(ctx context.Context, region, profile string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// sesConfig uses the dedicated SES keys when both are set, otherwise the
// default chain in the SES region.
func sesConfig(ctx context.Context, base aws.Config, c config.SESConfig, profile string) (aws.Config, error) {
	region := c.Region
	if region == "" {
		region = base.Region
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		if region == base.Region {
			return base, nil
		}
		return LoadAWSConfig(ctx, region, profile)
	}
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
	)
}

// NewAWSClients creates the clients cfg needs: Bedrock for the bedrock
// generator, SES for direct dispatch, DynamoDB for the dynamodb archive and
// S3 when recipient lists are read from a bucket.
func NewAWSClients(ctx context.Context, cfg *config.Config) (*AWSClients, error) {
	needBedrock := cfg.Generation.Provider == config.ProviderBedrock
	needSES := cfg.Dispatch.Mode == config.ModeSES
	needDynamo := cfg.Persistence.Mode == config.ModeDynamoDB
	needS3 := cfg.Recipients.S3Bucket != ""

	clients := &AWSClients{Region: cfg.AWS.Region}
	if !needBedrock && !needSES && !needDynamo && !needS3 {
		return clients, nil
	}

	base, err := LoadAWSConfig(ctx, cfg.AWS.Region, cfg.AWS.Profile)
	if err != nil {
		return nil, err
	}

	if needBedrock {
		bcfg := base
		if cfg.Generation.Region != "" && cfg.Generation.Region != base.Region {
			if bcfg, err = LoadAWSConfig(ctx, cfg.Generation.Region, cfg.AWS.Profile); err != nil {
				return nil, err
			}
		}
		clients.Bedrock = bedrockruntime.NewFromConfig(bcfg)
	}
	if needSES {
		scfg, err := sesConfig(ctx, base, cfg.SES, cfg.AWS.Profile)
		if err != nil {
			return nil, fmt.Errorf("SES config: %w", err)
		}
		clients.SES = sesv2.NewFromConfig(scfg)
	}
	if needDynamo {
		clients.DynamoDB = dynamodb.NewFromConfig(base)
	}
	if needS3 {
		clients.S3 = s3.NewFromConfig(base)
	}
	return clients, nil
}

// BucketChecker is the subset of the S3 client used for health checks.
type BucketChecker interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// CheckBucket reports whether bucket is reachable with the current credentials.
func CheckBucket(ctx context.Context, client BucketChecker, bucket string) error {
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("S3 HeadBucket %s: %w", bucket, err)
	}
	return nil
}
