// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/smithy-go"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/authcore/pkg/authcore/metrics"
	"github.com/stacklok/authcore/pkg/logger"
)

// KMSClient defines the subset of the KMS API used by KMSSigner, enabling mock
// injection for testing.
type KMSClient interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	GetPublicKey(
		ctx context.Context,
		params *kms.GetPublicKeyInput,
		optFns ...func(*kms.Options),
	) (*kms.GetPublicKeyOutput, error)
}

// KMSSigner signs tokens with an asymmetric AWS KMS key. Only a reference to
// the key is held; the private half never leaves KMS.
type KMSSigner struct {
	client KMSClient
	keyRef string
	keyID  string
	ttl    time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	cached    *KeyMaterial
	fetchedAt time.Time

	group singleflight.Group
}

// NewKMSSigner creates a KMS signer with a client built from the default AWS
// credential chain.
func NewKMSSigner(ctx context.Context, cfg Config) (*KMSSigner, error) {
	if cfg.KeyARN == "" {
		return nil, ErrMissingKeyReference
	}
	client, err := newKMSClient(ctx, cfg.Region, cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	return NewKMSSignerWithClient(client, cfg)
}

// NewKMSSignerWithClient creates a KMS signer around an existing client.
func NewKMSSignerWithClient(client KMSClient, cfg Config) (*KMSSigner, error) {
	if cfg.KeyARN == "" {
		return nil, ErrMissingKeyReference
	}
	keyID := cfg.KeyID
	if keyID == "" {
		keyID = cfg.KeyARN
	}
	ttl := cfg.PublicKeyTTL
	if ttl <= 0 {
		ttl = DefaultPublicKeyTTL
	}
	return &KMSSigner{
		client: client,
		keyRef: cfg.KeyARN,
		keyID:  keyID,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

func newKMSClient(ctx context.Context, region, endpoint string) (KMSClient, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return kms.NewFromConfig(awsCfg, func(o *kms.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// Backend implements Signer.
func (*KMSSigner) Backend() string {
	return BackendKMS
}

// KeyID implements Signer. The key id is fixed by configuration.
func (s *KMSSigner) KeyID(_ context.Context) (string, error) {
	return s.keyID, nil
}

// Sign implements Signer. Remote failures are returned; the signer never
// falls back to another key.
func (s *KMSSigner) Sign(ctx context.Context, claims map[string]any) (token string, err error) {
	defer func() { metrics.SignTotal.WithLabelValues(BackendKMS, metrics.Outcome(err)).Inc() }()

	tk := newToken(claims, s.keyID)
	input, err := signingInput(tk)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	if len(input) > MaxKMSMessageSize {
		return "", fmt.Errorf("%w: %w: %d bytes", ErrSigningFailed, ErrMessageTooLarge, len(input))
	}

	out, err := s.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyRef),
		Message:          []byte(input),
		MessageType:      types.MessageTypeRaw,
		SigningAlgorithm: types.SigningAlgorithmSpecRsassaPkcs1V15Sha256,
	})
	if err != nil {
		logger.Debugf("KMS Sign failed for key %s: %v", s.keyRef, err)
		return "", classifyKMSError(ErrSigningFailed, err)
	}
	if out == nil || len(out.Signature) == 0 {
		return "", fmt.Errorf("%w: empty signature from KMS", ErrSigningFailed)
	}
	return assemble(tk, input, out.Signature), nil
}

// PublicKey implements Signer. The key is fetched from KMS and reused for the
// configured TTL. When a refresh fails and a previous key is held, that key
// is served for another TTL window before KMS is asked again.
func (s *KMSSigner) PublicKey(ctx context.Context) (*KeyMaterial, error) {
	s.mu.RLock()
	km, ok := s.fresh()
	s.mu.RUnlock()
	if ok {
		return km, nil
	}

	v, err, _ := s.group.Do("public-key", func() (any, error) {
		return s.refreshPublicKey(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*KeyMaterial), nil
}

// fresh returns the cached key if it is within its TTL. Caller holds mu.
func (s *KMSSigner) fresh() (*KeyMaterial, bool) {
	if s.cached == nil || s.now().Sub(s.fetchedAt) >= s.ttl {
		return nil, false
	}
	return s.cached, true
}

func (s *KMSSigner) refreshPublicKey(ctx context.Context) (*KeyMaterial, error) {
	s.mu.RLock()
	km, ok := s.fresh()
	s.mu.RUnlock()
	if ok {
		return km, nil
	}

	km, err := s.fetchPublicKey(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if s.cached != nil {
			metrics.PublicKeyFetchTotal.WithLabelValues(BackendKMS, metrics.ResultStale).Inc()
			logger.Warnw("failed to refresh KMS public key, serving cached key",
				"key_id", s.keyID,
				"fetched_at", s.fetchedAt,
				"error", err,
			)
			s.fetchedAt = s.now()
			return s.cached, nil
		}
		metrics.PublicKeyFetchTotal.WithLabelValues(BackendKMS, metrics.ResultError).Inc()
		return nil, err
	}

	metrics.PublicKeyFetchTotal.WithLabelValues(BackendKMS, metrics.ResultSuccess).Inc()
	s.cached = km
	s.fetchedAt = s.now()
	return km, nil
}

func (s *KMSSigner) fetchPublicKey(ctx context.Context) (*KeyMaterial, error) {
	out, err := s.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(s.keyRef)})
	if err != nil {
		return nil, classifyKMSError(ErrPublicKeyFetch, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: empty response from KMS", ErrPublicKeyFetch)
	}
	if out.KeyUsage != "" && out.KeyUsage != types.KeyUsageTypeSignVerify {
		return nil, fmt.Errorf("%w: key usage is %s", ErrPublicKeyFetch, out.KeyUsage)
	}

	pub, err := PublicKeyFromDER(out.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPublicKeyFetch, err)
	}
	return &KeyMaterial{KeyID: s.keyID, Algorithm: Algorithm, PublicKey: pub}, nil
}

// classifyKMSError wraps err with base and, for known KMS error codes, a
// more specific sentinel.
func classifyKMSError(base, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException":
			return fmt.Errorf("%w: %w: %w", base, ErrAccessDenied, err)
		case "NotFoundException", "DisabledException", "KMSInvalidStateException":
			return fmt.Errorf("%w: %w: %w", base, ErrKeyUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %w", base, err)
}

var _ Signer = (*KMSSigner)(nil)
