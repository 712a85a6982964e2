package submit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shredcopy/internal/solana"
	"shredcopy/internal/txdecode"
)

type fakeRPC struct {
	solana.RPCClient
	sendErr    error
	sendDelay  time.Duration
	confirmErr error
	sent       chan []byte
}

func (f *fakeRPC) SendTransaction(ctx context.Context, signedTx []byte) (string, error) {
	if f.sendDelay > 0 {
		select {
		case <-time.After(f.sendDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.sent != nil {
		f.sent <- signedTx
	}
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return "node-echoed-sig", nil
}

func (f *fakeRPC) ConfirmTransaction(context.Context, string) error {
	return f.confirmErr
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// signedTx returns minimal bytes with a recognizable leading signature.
func signedTx() ([]byte, string) {
	sig := make([]byte, 64)
	sig[0] = 0x42
	var tx []byte
	tx = txdecode.AppendCompactU16(tx, 1)
	tx = append(tx, sig...)
	tx = append(tx, 0x01) // message placeholder
	return tx, base58.Encode(sig)
}

func TestSubmit_ReturnsOwnSignature(t *testing.T) {
	tx, wantSig := signedTx()
	rpc := &fakeRPC{}

	s := NewSubmitter(rpc, nil, nil, quietLogger())
	got, err := s.Submit(context.Background(), tx, "")
	require.NoError(t, err)

	// The transaction's own signature is returned, not the node echo.
	assert.Equal(t, wantSig, got)
}

func TestSubmit_RPCFailurePropagates(t *testing.T) {
	tx, _ := signedTx()
	rpc := &fakeRPC{sendErr: errors.New("blockhash not found")}

	s := NewSubmitter(rpc, nil, nil, quietLogger())
	_, err := s.Submit(context.Background(), tx, "")
	require.Error(t, err)

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Contains(t, err.Error(), "blockhash not found")
}

func TestSubmit_GarbageTransaction(t *testing.T) {
	s := NewSubmitter(&fakeRPC{}, nil, nil, quietLogger())
	_, err := s.Submit(context.Background(), []byte{}, "")
	assert.Error(t, err)
}

func TestSubmit_DoesNotWaitForConfirmation(t *testing.T) {
	tx, _ := signedTx()
	rpc := &fakeRPC{confirmErr: errors.New("never confirmed")}

	s := NewSubmitter(rpc, nil, nil, quietLogger())
	start := time.Now()
	_, err := s.Submit(context.Background(), tx, "")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second,
		"confirmation tracking must not block the caller")
}
