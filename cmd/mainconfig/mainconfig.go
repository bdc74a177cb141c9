package mainconfig

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	appconfig "github.com/wolfman30/dealership-platform/internal/config"
)

// LoadAWSConfig builds the SDK configuration shared by the SES sender and the
// SQS notification queue. Static keys are used only when both halves are set;
// otherwise the default credential chain applies. AWS_ENDPOINT_OVERRIDE points
// every client at LocalStack.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	region := strings.TrimSpace(cfg.AWSRegion)
	if region == "" {
		return aws.Config{}, errors.New("mainconfig: AWS_REGION is required")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}

	keyID := strings.TrimSpace(cfg.AWSAccessKeyID)
	secret := strings.TrimSpace(cfg.AWSSecretAccessKey)
	switch {
	case keyID != "" && secret != "":
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(keyID, secret, "")))
	case keyID != "" || secret != "":
		return aws.Config{}, errors.New("mainconfig: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
	}

	endpoint, err := endpointOverride(cfg.AWSEndpointOverride)
	if err != nil {
		return aws.Config{}, err
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("mainconfig: load aws config: %w", err)
	}
	if endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(endpoint)
	}
	return awsCfg, nil
}

func endpointOverride(raw string) (string, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("mainconfig: AWS_ENDPOINT_OVERRIDE %q is not an http(s) URL", raw)
	}
	return raw, nil
}
