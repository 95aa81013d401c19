// Package aws provides an SQS transport. Each results topic maps to a queue
// of the same name.
package aws

import (
	"context"
	"fmt"
	"net/url"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	smithyendpoints "github.com/aws/smithy-go/endpoints"

	"github.com/drblury/querysub/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "aws"

// DefaultConfigLoader allows overriding the AWS config loader for testing.
var DefaultConfigLoader = awsconfig.LoadDefaultConfig

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg sqs.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return sqs.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return sqs.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the SQS transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.AWSCapabilities)
}

// Build creates a new SQS transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	awsCfg, err := loadConfig(ctx, cfg)
	if err != nil {
		logger.Error("Failed to load AWS config", err, watermill.LogFields{"region": cfg.GetAWSRegion()})
		return transport.Transport{}, err
	}

	optFns, err := endpointOptions(cfg.GetAWSEndpoint())
	if err != nil {
		return transport.Transport{}, err
	}
	logger.Info("Created AWS config", watermill.LogFields{
		"region":          awsCfg.Region,
		"custom_endpoint": len(optFns) > 0,
	})

	publisher, err := PublisherFactory(sqs.PublisherConfig{
		AWSConfig:                   awsCfg,
		OptFns:                      optFns,
		DoNotCreateQueueIfNotExists: false,
		Marshaler:                   sqs.DefaultMarshalerUnmarshaler{},
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(sqs.SubscriberConfig{
		AWSConfig:   awsCfg,
		OptFns:      optFns,
		Unmarshaler: sqs.DefaultMarshalerUnmarshaler{},
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.AWSCapabilities
}

func loadConfig(ctx context.Context, cfg transport.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	region := cfg.GetAWSRegion()
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if key, secret := cfg.GetAWSAccessKeyID(), cfg.GetAWSSecretAccessKey(); key != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(staticCredentials(key, secret)))
	}

	awsCfg, err := DefaultConfigLoader(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if region != "" {
		awsCfg.Region = region
	}
	return awsCfg, nil
}

// endpointOptions points the SQS client at a custom endpoint such as
// LocalStack. An empty endpoint keeps the AWS default resolver.
func endpointOptions(endpoint string) ([]func(*amazonsqs.Options), error) {
	if endpoint == "" {
		return nil, nil
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AWS endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("AWS endpoint %q must be an absolute URL", endpoint)
	}
	return []func(*amazonsqs.Options){
		amazonsqs.WithEndpointResolverV2(sqs.OverrideEndpointResolver{
			Endpoint: smithyendpoints.Endpoint{URI: *parsed},
		}),
	}, nil
}

func staticCredentials(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
			Source:          "querysub",
		}, nil
	})
}
