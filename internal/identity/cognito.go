// Package identity adapts the hosted identity provider used when account
// registration is delegated to an AWS Cognito user pool.
package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	cognitotypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/takemehome/accounts/config"
)

// cognitoAPI is the part of the Cognito client the provider calls.
type cognitoAPI interface {
	SignUp(ctx context.Context, params *cognitoidentityprovider.SignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, params *cognitoidentityprovider.ConfirmSignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ConfirmSignUpOutput, error)
	ResendConfirmationCode(ctx context.Context, params *cognitoidentityprovider.ResendConfirmationCodeInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ResendConfirmationCodeOutput, error)
	AdminDeleteUser(ctx context.Context, params *cognitoidentityprovider.AdminDeleteUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminDeleteUserOutput, error)
}

// Cognito registers, confirms and removes users in a Cognito user pool.
type Cognito struct {
	client       cognitoAPI
	userPoolID   string
	clientID     string
	clientSecret string
}

// NewCognito builds a provider from configuration. Static credentials are used
// when both keys are set, the default AWS credential chain otherwise.
func NewCognito(ctx context.Context, cfg config.CognitoConfig) (*Cognito, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newCognito(cognitoidentityprovider.NewFromConfig(awsCfg), cfg), nil
}

func newCognito(client cognitoAPI, cfg config.CognitoConfig) *Cognito {
	return &Cognito{
		client:       client,
		userPoolID:   cfg.UserPoolID,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
	}
}

// SignUp registers email in the user pool and returns the provider subject.
// Cognito mails the confirmation code itself.
func (c *Cognito) SignUp(ctx context.Context, email, password string) (string, error) {
	out, err := c.client.SignUp(ctx, &cognitoidentityprovider.SignUpInput{
		ClientId:   aws.String(c.clientID),
		Username:   aws.String(email),
		Password:   aws.String(password),
		SecretHash: c.secretHash(email),
		UserAttributes: []cognitotypes.AttributeType{
			{Name: aws.String("email"), Value: aws.String(email)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("cognito sign up: %w", err)
	}
	if out.UserSub == nil || *out.UserSub == "" {
		return "", errors.New("cognito sign up: empty user sub")
	}
	return *out.UserSub, nil
}

// Verify confirms the registration of email with the code Cognito sent.
func (c *Cognito) Verify(ctx context.Context, email, code string) error {
	_, err := c.client.ConfirmSignUp(ctx, &cognitoidentityprovider.ConfirmSignUpInput{
		ClientId:         aws.String(c.clientID),
		Username:         aws.String(email),
		ConfirmationCode: aws.String(code),
		SecretHash:       c.secretHash(email),
	})
	if err != nil {
		return fmt.Errorf("cognito confirm sign up: %w", err)
	}
	return nil
}

// Issue asks Cognito to send a new confirmation code. The code is delivered by
// Cognito, so the returned code is always empty.
func (c *Cognito) Issue(ctx context.Context, email string) (string, error) {
	_, err := c.client.ResendConfirmationCode(ctx, &cognitoidentityprovider.ResendConfirmationCodeInput{
		ClientId:   aws.String(c.clientID),
		Username:   aws.String(email),
		SecretHash: c.secretHash(email),
	})
	if err != nil {
		return "", fmt.Errorf("cognito resend confirmation code: %w", err)
	}
	return "", nil
}

// DeleteUser removes the pool user identified by its subject.
func (c *Cognito) DeleteUser(ctx context.Context, providerUserID string) error {
	_, err := c.client.AdminDeleteUser(ctx, &cognitoidentityprovider.AdminDeleteUserInput{
		UserPoolId: aws.String(c.userPoolID),
		Username:   aws.String(providerUserID),
	})
	if err != nil {
		return fmt.Errorf("cognito admin delete user: %w", err)
	}
	return nil
}

// secretHash is required by app clients that have a client secret:
// base64(HMAC-SHA256(clientSecret, username + clientID)).
func (c *Cognito) secretHash(username string) *string {
	if c.clientSecret == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(c.clientSecret))
	mac.Write([]byte(username + c.clientID))
	return aws.String(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}
