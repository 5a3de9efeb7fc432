package worker

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
	"github.com/ignite/delivery-engine/internal/config"
	"github.com/ignite/delivery-engine/internal/domain"
	"github.com/ignite/delivery-engine/internal/pkg/logger"
	"github.com/ignite/delivery-engine/internal/service/sending"
)

// sesAPI is the subset of the SES v2 client used for sending.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends messages through AWS SES v2.
type SESSender struct {
	client           sesAPI
	configurationSet string
	timeout          time.Duration
	log              *logger.Logger
}

// NewSESSender builds the SES client. Static credentials are used when
// both keys are configured, otherwise the default AWS credential chain.
func NewSESSender(ctx context.Context, cfg config.SESConfig) (*SESSender, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSESSender(sesv2.NewFromConfig(awsCfg), cfg.ConfigurationSet, cfg.Timeout()), nil
}

func newSESSender(client sesAPI, configurationSet string, timeout time.Duration) *SESSender {
	return &SESSender{
		client:           client,
		configurationSet: configurationSet,
		timeout:          timeout,
		log:              logger.With("component", "ses_sender"),
	}
}

func (s *SESSender) Name() string { return "ses" }

func (s *SESSender) Send(ctx context.Context, msg *domain.Message) (*sending.Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	from := (&mail.Address{Name: msg.FromName, Address: msg.FromAddress}).String()
	body := &types.Body{}
	content := &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")}
	if looksLikeHTML(msg.Body) {
		body.Html = content
	} else {
		body.Text = content
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.Recipient}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("message_id"), Value: aws.String(msg.ID)},
			{Name: aws.String("category"), Value: aws.String(string(msg.Category))},
		},
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return nil, classifySESError(err)
	}

	id := aws.ToString(out.MessageId)
	s.log.Debug("sent", "message_id", msg.ID, "recipient", msg.Recipient, "provider_message_id", id)
	return &sending.Result{ProviderMessageID: id, Provider: s.Name()}, nil
}

func looksLikeHTML(body string) bool {
	return strings.HasPrefix(strings.TrimSpace(body), "<")
}

// classifySESError separates rejections that no retry will fix from
// throttling and service errors.
func classifySESError(err error) error {
	var (
		rejected     *types.MessageRejected
		mailFrom     *types.MailFromDomainNotVerifiedException
		badRequest   *types.BadRequestException
		notFound     *types.NotFoundException
		apiErr       smithy.APIError
		isPermanent  bool
		code, detail string
	)
	switch {
	case errors.As(err, &rejected):
		isPermanent, code, detail = true, "MessageRejected", rejected.ErrorMessage()
	case errors.As(err, &mailFrom):
		isPermanent, code, detail = true, "MailFromDomainNotVerified", mailFrom.ErrorMessage()
	case errors.As(err, &badRequest):
		isPermanent, code, detail = true, "BadRequest", badRequest.ErrorMessage()
	case errors.As(err, &notFound):
		isPermanent, code, detail = true, "NotFound", notFound.ErrorMessage()
	case errors.As(err, &apiErr):
		code, detail = apiErr.ErrorCode(), apiErr.ErrorMessage()
	default:
		code, detail = "ses_unavailable", err.Error()
	}
	if isPermanent {
		return sending.Permanent(code, detail, err)
	}
	return sending.Transient(code, detail, err)
}
