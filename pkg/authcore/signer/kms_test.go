// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/authcore/pkg/authcore/signer/mocks"
)

const testKeyARN = "arn:aws:kms:eu-west-1:111122223333:key/1234abcd-12ab-34cd-56ef-1234567890ab"

// kmsSignWith returns a Sign implementation that signs with priv the way KMS does.
func kmsSignWith(t *testing.T, priv *rsa.PrivateKey) func(context.Context, *kms.SignInput, ...func(*kms.Options)) (*kms.SignOutput, error) {
	t.Helper()
	return func(_ context.Context, in *kms.SignInput, _ ...func(*kms.Options)) (*kms.SignOutput, error) {
		assert.Equal(t, testKeyARN, aws.ToString(in.KeyId))
		assert.Equal(t, types.MessageTypeRaw, in.MessageType)
		assert.Equal(t, types.SigningAlgorithmSpecRsassaPkcs1V15Sha256, in.SigningAlgorithm)

		digest := sha256.Sum256(in.Message)
		sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
		if err != nil {
			return nil, err
		}
		return &kms.SignOutput{Signature: sig, KeyId: in.KeyId}, nil
	}
}

func publicKeyOutput(t *testing.T, priv *rsa.PrivateKey) *kms.GetPublicKeyOutput {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	return &kms.GetPublicKeyOutput{
		KeyId:     aws.String(testKeyARN),
		PublicKey: der,
		KeyUsage:  types.KeyUsageTypeSignVerify,
	}
}

func TestNewKMSSignerWithClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       Config
		wantKeyID string
		wantErr   error
	}{
		{
			name:    "missing key reference",
			cfg:     Config{},
			wantErr: ErrMissingKeyReference,
		},
		{
			name:      "key id defaults to key reference",
			cfg:       Config{KeyARN: testKeyARN},
			wantKeyID: testKeyARN,
		},
		{
			name:      "explicit key id",
			cfg:       Config{KeyARN: "alias/authcore", KeyID: "authcore-2025-01"},
			wantKeyID: "authcore-2025-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			s, err := NewKMSSignerWithClient(mocks.NewMockKMSClient(ctrl), tt.cfg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			kid, err := s.KeyID(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantKeyID, kid)
			assert.Equal(t, BackendKMS, s.Backend())
		})
	}
}

func TestKMSSigner_SignRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	priv, err := testKey()
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	client := mocks.NewMockKMSClient(ctrl)
	client.EXPECT().Sign(gomock.Any(), gomock.Any()).DoAndReturn(kmsSignWith(t, priv))
	client.EXPECT().GetPublicKey(gomock.Any(), gomock.Any()).Return(publicKeyOutput(t, priv), nil)

	s, err := NewKMSSignerWithClient(client, Config{KeyARN: testKeyARN, KeyID: "kms-1"})
	require.NoError(t, err)

	token, err := s.Sign(ctx, map[string]any{"sub": "7", "aud": "dashboard"})
	require.NoError(t, err)

	km, err := s.PublicKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kms-1", km.KeyID)

	parsed, err := parseWith(t, token, km.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, "RS256", parsed.Header["alg"])
	assert.Equal(t, "kms-1", parsed.Header["kid"])
}

func TestKMSSigner_OversizedInputRejectedLocally(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	// No EXPECT: any remote call fails the test.
	client := mocks.NewMockKMSClient(ctrl)

	s, err := NewKMSSignerWithClient(client, Config{KeyARN: testKeyARN})
	require.NoError(t, err)

	_, err = s.Sign(context.Background(), map[string]any{"blob": strings.Repeat("x", MaxKMSMessageSize)})
	require.ErrorIs(t, err, ErrMessageTooLarge)
	assert.ErrorIs(t, err, ErrSigningFailed)
}

func TestKMSSigner_SignErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		remoteErr error
		output    *kms.SignOutput
		wantErrs  []error
	}{
		{
			name:      "access denied",
			remoteErr: &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "not authorized"},
			wantErrs:  []error{ErrSigningFailed, ErrAccessDenied},
		},
		{
			name:      "disabled key",
			remoteErr: &smithy.GenericAPIError{Code: "DisabledException", Message: "key is disabled"},
			wantErrs:  []error{ErrSigningFailed, ErrKeyUnavailable},
		},
		{
			name:      "network failure",
			remoteErr: errors.New("dial tcp: i/o timeout"),
			wantErrs:  []error{ErrSigningFailed},
		},
		{
			name:     "empty signature",
			output:   &kms.SignOutput{},
			wantErrs: []error{ErrSigningFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			client := mocks.NewMockKMSClient(ctrl)
			client.EXPECT().Sign(gomock.Any(), gomock.Any()).Return(tt.output, tt.remoteErr)

			s, err := NewKMSSignerWithClient(client, Config{KeyARN: testKeyARN})
			require.NoError(t, err)

			token, err := s.Sign(context.Background(), map[string]any{"sub": "1"})
			assert.Empty(t, token)
			for _, want := range tt.wantErrs {
				assert.ErrorIs(t, err, want)
			}
		})
	}
}

func TestKMSSigner_PublicKeyCaching(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	priv, err := testKey()
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	client := mocks.NewMockKMSClient(ctrl)

	s, err := NewKMSSignerWithClient(client, Config{KeyARN: testKeyARN})
	require.NoError(t, err)

	var mu sync.Mutex
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	// Within the TTL the key is fetched once.
	client.EXPECT().GetPublicKey(gomock.Any(), gomock.Any()).Return(publicKeyOutput(t, priv), nil).Times(1)
	first, err := s.PublicKey(ctx)
	require.NoError(t, err)
	advance(4 * time.Minute)
	second, err := s.PublicKey(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)

	// After the TTL a failed refresh serves the previous key.
	advance(2 * time.Minute)
	client.EXPECT().GetPublicKey(gomock.Any(), gomock.Any()).Return(nil, errors.New("throttled")).Times(1)
	stale, err := s.PublicKey(ctx)
	require.NoError(t, err)
	assert.Same(t, first, stale)

	// Once the stale key's TTL elapses KMS is asked again.
	advance(DefaultPublicKeyTTL)
	client.EXPECT().GetPublicKey(gomock.Any(), gomock.Any()).Return(publicKeyOutput(t, priv), nil).Times(1)
	fresh, err := s.PublicKey(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
	assert.True(t, first.PublicKey.Equal(fresh.PublicKey))
}

func TestKMSSigner_StaleKeyHeldForTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	priv, err := testKey()
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	client := mocks.NewMockKMSClient(ctrl)

	s, err := NewKMSSignerWithClient(client, Config{KeyARN: testKeyARN})
	require.NoError(t, err)

	var mu sync.Mutex
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	var calls atomic.Int32
	served := false
	client.EXPECT().GetPublicKey(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, *kms.GetPublicKeyInput, ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
			calls.Add(1)
			mu.Lock()
			defer mu.Unlock()
			if !served {
				served = true
				return publicKeyOutput(t, priv), nil
			}
			return nil, &smithy.GenericAPIError{Code: "ThrottlingException"}
		}).AnyTimes()

	first, err := s.PublicKey(ctx)
	require.NoError(t, err)
	advance(DefaultPublicKeyTTL)

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			km, err := s.PublicKey(ctx)
			assert.NoError(t, err)
			assert.Same(t, first, km)
		}()
	}
	wg.Wait()
	for range n {
		km, err := s.PublicKey(ctx)
		require.NoError(t, err)
		assert.Same(t, first, km)
	}
	assert.Equal(t, int32(2), calls.Load())

	advance(DefaultPublicKeyTTL)
	km, err := s.PublicKey(ctx)
	require.NoError(t, err)
	assert.Same(t, first, km)
	assert.Equal(t, int32(3), calls.Load())
}

func TestKMSSigner_PublicKeyErrors(t *testing.T) {
	t.Parallel()

	priv, err := testKey()
	require.NoError(t, err)

	encryptOnly := publicKeyOutput(t, priv)
	encryptOnly.KeyUsage = types.KeyUsageTypeEncryptDecrypt

	tests := []struct {
		name      string
		output    *kms.GetPublicKeyOutput
		remoteErr error
		wantErrs  []error
	}{
		{
			name:      "no cached key",
			remoteErr: &smithy.GenericAPIError{Code: "AccessDeniedException"},
			wantErrs:  []error{ErrPublicKeyFetch, ErrAccessDenied},
		},
		{
			name:     "wrong key usage",
			output:   encryptOnly,
			wantErrs: []error{ErrPublicKeyFetch},
		},
		{
			name:     "undecodable key",
			output:   &kms.GetPublicKeyOutput{PublicKey: []byte("junk")},
			wantErrs: []error{ErrPublicKeyFetch, ErrInvalidPublicKey},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			client := mocks.NewMockKMSClient(ctrl)
			client.EXPECT().GetPublicKey(gomock.Any(), gomock.Any()).Return(tt.output, tt.remoteErr)

			s, err := NewKMSSignerWithClient(client, Config{KeyARN: testKeyARN})
			require.NoError(t, err)

			km, err := s.PublicKey(context.Background())
			assert.Nil(t, km)
			for _, want := range tt.wantErrs {
				assert.ErrorIs(t, err, want)
			}
		})
	}
}
