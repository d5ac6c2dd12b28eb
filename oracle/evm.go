package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	fungibleABI     = `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`
	semiFungibleABI = `[{"inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`
)

var (
	fungible     = mustParseABI(fungibleABI)
	semiFungible = mustParseABI(semiFungibleABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// EVMClient defines the subset of the Ethereum RPC used by the oracle.
type EVMClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// DialEVMClient initialises an EVM RPC client for the provided endpoint.
func DialEVMClient(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("evm endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// EVM reads gating balances with eth_call against token contracts and native
// balances with eth_getBalance, always at the latest block.
type EVM struct {
	client  EVMClient
	timeout time.Duration
}

// NewEVM constructs an oracle from an Ethereum client. A zero timeout leaves
// the caller's context deadline in charge.
func NewEVM(client EVMClient, timeout time.Duration) *EVM {
	return &EVM{client: client, timeout: timeout}
}

func (o *EVM) FungibleBalance(ctx context.Context, token, holder [20]byte) (*big.Int, error) {
	input, err := fungible.Pack("balanceOf", common.Address(holder))
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	return o.call(ctx, fungible, token, input)
}

func (o *EVM) SemiFungibleBalance(ctx context.Context, token, holder [20]byte, subID *big.Int) (*big.Int, error) {
	if subID == nil {
		subID = big.NewInt(0)
	}
	input, err := semiFungible.Pack("balanceOf", common.Address(holder), subID)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	return o.call(ctx, semiFungible, token, input)
}

func (o *EVM) NativeBalance(ctx context.Context, holder [20]byte) (*big.Int, error) {
	if o == nil || o.client == nil {
		return nil, fmt.Errorf("evm oracle not initialised")
	}
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	balance, err := o.client.BalanceAt(ctx, common.Address(holder), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}
	return balance, nil
}

func (o *EVM) call(ctx context.Context, contract abi.ABI, token [20]byte, input []byte) (*big.Int, error) {
	if o == nil || o.client == nil {
		return nil, fmt.Errorf("evm oracle not initialised")
	}
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	to := common.Address(token)
	out, err := o.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", to.Hex(), err)
	}
	values, err := contract.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf from %s: %w", to.Hex(), err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected balanceOf output from %s", to.Hex())
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf type %T from %s", values[0], to.Hex())
	}
	return balance, nil
}

func (o *EVM) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}
