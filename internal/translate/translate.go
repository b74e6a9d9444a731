// Package translate implements the multi-language workflow: language
// preference selection and round-trip translation between the user's
// language and the English used with the agent backend.
package translate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/translate"
)

// Translator converts text between languages. source may be "auto" to
// let the backend detect it.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// awsTranslator implements Translator with AWS Translate.
type awsTranslator struct {
	client *translate.Client
	logger *slog.Logger
}

// NewAWSTranslator creates a Translator backed by AWS Translate. The
// static credentials are optional; when absent the default AWS credential
// chain applies.
func NewAWSTranslator(ctx context.Context, region, accessKey, secretKey string, logger *slog.Logger) (Translator, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for translate: %w", err)
	}

	return &awsTranslator{
		client: translate.NewFromConfig(awsCfg),
		logger: logger.With("component", "translator"),
	}, nil
}

func (t *awsTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if source == "" {
		source = "auto"
	}

	out, err := t.client.TranslateText(ctx, &translate.TranslateTextInput{
		Text:               aws.String(text),
		SourceLanguageCode: aws.String(source),
		TargetLanguageCode: aws.String(target),
	})
	if err != nil {
		return "", fmt.Errorf("translation to %s failed: %w", target, err)
	}

	return aws.ToString(out.TranslatedText), nil
}
