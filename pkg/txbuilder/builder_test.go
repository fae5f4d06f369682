package txbuilder

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals int32
		want     string
		wantErr  bool
	}{
		{
			name:     "whole amount",
			amount:   "100",
			decimals: 6,
			want:     "100000000",
		},
		{
			name:     "fractional amount",
			amount:   "100.50",
			decimals: 6,
			want:     "100500000",
		},
		{
			name:     "full precision",
			amount:   "0.000001",
			decimals: 6,
			want:     "1",
		},
		{
			name:     "18 decimals",
			amount:   "1.5",
			decimals: 18,
			want:     "1500000000000000000",
		},
		{
			name:     "excess precision rejected",
			amount:   "0.0000001",
			decimals: 6,
			wantErr:  true,
		},
		{
			name:     "zero rejected",
			amount:   "0",
			decimals: 6,
			wantErr:  true,
		},
		{
			name:     "negative rejected",
			amount:   "-5",
			decimals: 6,
			wantErr:  true,
		},
		{
			name:     "non-numeric rejected",
			amount:   "ten",
			decimals: 6,
			wantErr:  true,
		},
		{
			name:     "empty rejected",
			amount:   "",
			decimals: 6,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.amount, tt.decimals)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestBuildTransfer(t *testing.T) {
	recipient := common.HexToAddress("0x1111111111111111111111111111111111111111")

	call, err := BuildTransfer(Transfer{
		ChainID:   1,
		Token:     "USDC",
		Recipient: recipient,
		Amount:    "100.50",
	})
	require.NoError(t, err)

	assert.Equal(t, "0", call.Value)
	assert.Equal(t, OperationCall, call.Operation)
	require.Len(t, call.Data, 4+32+32)

	// transfer(address,uint256) selector
	assert.Equal(t, "a9059cbb", hex.EncodeToString(call.Data[:4]))
	// recipient, left-padded to a word
	assert.Equal(t, common.LeftPadBytes(recipient.Bytes(), 32), []byte(call.Data[4:36]))
	// 100.50 at 6 decimals = 100500000 base units
	assert.Equal(t, "0000000000000000000000000000000000000000000000000000000005fd8220", hex.EncodeToString(call.Data[36:68]))
}

func TestBuildTransferUnknownToken(t *testing.T) {
	_, err := BuildTransfer(Transfer{
		ChainID:   1,
		Token:     "DOGE",
		Recipient: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Amount:    "1",
	})
	assert.Error(t, err)
}

func TestBuildTransferUnknownChain(t *testing.T) {
	_, err := BuildTransfer(Transfer{
		ChainID:   999999,
		Token:     "USDC",
		Recipient: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Amount:    "1",
	})
	assert.Error(t, err)
}

func TestBuildBatchPreservesOrder(t *testing.T) {
	transfers := []Transfer{
		{ChainID: 1, Token: "USDC", Recipient: common.HexToAddress("0x0000000000000000000000000000000000000001"), Amount: "1"},
		{ChainID: 1, Token: "USDC", Recipient: common.HexToAddress("0x0000000000000000000000000000000000000002"), Amount: "2"},
		{ChainID: 1, Token: "USDC", Recipient: common.HexToAddress("0x0000000000000000000000000000000000000003"), Amount: "3"},
	}

	calls, err := BuildBatch(transfers)
	require.NoError(t, err)
	require.Len(t, calls, 3)

	for i, call := range calls {
		assert.Equal(t, common.LeftPadBytes(transfers[i].Recipient.Bytes(), 32), []byte(call.Data[4:36]), "call %d recipient", i)
	}
}

func TestBuildBatchEmpty(t *testing.T) {
	_, err := BuildBatch(nil)
	assert.Error(t, err)
}

func TestBuildBatchBadLine(t *testing.T) {
	_, err := BuildBatch([]Transfer{
		{ChainID: 1, Token: "USDC", Recipient: common.HexToAddress("0x0000000000000000000000000000000000000001"), Amount: "1"},
		{ChainID: 1, Token: "USDC", Recipient: common.HexToAddress("0x0000000000000000000000000000000000000002"), Amount: "-2"},
	})
	assert.ErrorContains(t, err, "transfer 1")
}
