package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ParameterGetter is the subset of the SSM client used to read keys.
type ParameterGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// NewSSMClient creates an SSM client from the default AWS credential
// chain. region and profile are optional.
func NewSSMClient(ctx context.Context, region, profile string) (*ssm.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return ssm.NewFromConfig(awsCfg), nil
}

// LoadSSMKeys reads one API key per parameter name, decrypting
// SecureString values. Keys keep the order of names.
func LoadSSMKeys(ctx context.Context, getter ParameterGetter, names []string) ([]string, error) {
	keys := make([]string, 0, len(names))
	for _, name := range names {
		resp, err := getter.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(name),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get API key %s from SSM: %w", name, err)
		}
		if resp.Parameter == nil {
			return nil, fmt.Errorf("SSM parameter %s has no value", name)
		}
		key := strings.TrimSpace(aws.ToString(resp.Parameter.Value))
		if key == "" {
			return nil, fmt.Errorf("SSM parameter %s is empty", name)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
