package ledger

import (
	"context"
	"crypto/ecdsa"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"crop-claims/internal/models"
)

//go:embed abi/crop_insurance.json
var cropInsuranceABI string

var (
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrReadOnly            = errors.New("ledger client has no signing key")
)

type Config struct {
	RPCURL          string
	PrivateKey      string
	ContractAddress string
	PollInterval    time.Duration
}

// Receipt is the confirmed result of a payout transaction.
type Receipt struct {
	TransactionHash string
	BlockNumber     uint64
	PayoutAmountWei *big.Int
}

// policyTuple mirrors the getPolicy return struct.
type policyTuple struct {
	Farmer            common.Address
	FarmName          string
	Lat               *big.Int
	Lng               *big.Int
	Acreage           *big.Int
	RiskType          string
	RainfallThreshold *big.Int
	StartDate         *big.Int
	EndDate           *big.Int
	PremiumPaid       *big.Int
	Claimed           bool
	Active            bool
}

type payoutIssuedEvent struct {
	PolicyId     *big.Int
	Farmer       common.Address
	PayoutAmount *big.Int
}

// ContractClient talks to the crop insurance contract over JSON-RPC.
type ContractClient struct {
	eth          *ethclient.Client
	contract     *bind.BoundContract
	address      common.Address
	auth         *bind.TransactOpts
	pollInterval time.Duration
}

func parsedABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(cropInsuranceABI))
}

// Dial connects to the RPC endpoint. Without a private key the client can
// only read.
func Dial(ctx context.Context, cfg Config) (*ContractClient, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	var key *ecdsa.PrivateKey
	if cfg.PrivateKey != "" {
		k, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse signing key: %w", err)
		}
		key = k
	}

	parsed, err := parsedABI()
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	client := &ContractClient{
		eth:          eth,
		address:      common.HexToAddress(cfg.ContractAddress),
		pollInterval: cfg.PollInterval,
	}
	if client.pollInterval <= 0 {
		client.pollInterval = time.Second
	}
	client.contract = bind.NewBoundContract(client.address, parsed, eth, eth, eth)

	if key != nil {
		chainID, err := eth.ChainID(ctx)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("query chain id: %w", err)
		}
		auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("build transactor: %w", err)
		}
		client.auth = auth
	}

	return client, nil
}

func (c *ContractClient) Close() {
	c.eth.Close()
}

// GetPolicy reads a policy record.
func (c *ContractClient) GetPolicy(ctx context.Context, policyID int64) (*models.Policy, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPolicy", big.NewInt(policyID)); err != nil {
		return nil, fmt.Errorf("getPolicy(%d): %w", policyID, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("getPolicy(%d): empty result", policyID)
	}

	t := *abi.ConvertType(out[0], new(policyTuple)).(*policyTuple)
	return &models.Policy{
		ID:                policyID,
		Farmer:            t.Farmer.Hex(),
		FarmName:          t.FarmName,
		Lat:               t.Lat,
		Lng:               t.Lng,
		Acreage:           t.Acreage,
		RiskType:          t.RiskType,
		RainfallThreshold: t.RainfallThreshold,
		StartDate:         t.StartDate,
		EndDate:           t.EndDate,
		PremiumPaid:       t.PremiumPaid,
		Claimed:           t.Claimed,
		Active:            t.Active,
	}, nil
}

// FarmerPolicies lists the policy ids owned by a farmer address.
func (c *ContractClient) FarmerPolicies(ctx context.Context, farmer string) ([]int64, error) {
	if !common.IsHexAddress(farmer) {
		return nil, fmt.Errorf("invalid farmer address %q", farmer)
	}
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getFarmerPolicies", common.HexToAddress(farmer)); err != nil {
		return nil, fmt.Errorf("getFarmerPolicies(%s): %w", farmer, err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	ids := *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		result = append(result, id.Int64())
	}
	return result, nil
}

// SubmitPayout signs and sends issuePayout and returns the transaction hash
// without waiting for it to be mined.
func (c *ContractClient) SubmitPayout(ctx context.Context, policyID int64, percent int) (string, error) {
	if c.auth == nil {
		return "", ErrReadOnly
	}
	opts := *c.auth
	opts.Context = ctx

	tx, err := c.contract.Transact(&opts, "issuePayout", big.NewInt(policyID), big.NewInt(int64(percent)))
	if err != nil {
		return "", fmt.Errorf("issuePayout(%d, %d): %w", policyID, percent, err)
	}
	return tx.Hash().Hex(), nil
}

// WaitMined polls for the receipt until ctx is done. A mined but failed
// transaction returns ErrTransactionReverted.
func (c *ContractClient) WaitMined(ctx context.Context, txHash string) (*Receipt, error) {
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return c.toReceipt(receipt)
		}
		// RPC errors other than NotFound are remembered but not fatal.
		if !errors.Is(err, ethereum.NotFound) {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("%w (last rpc error: %v)", ctx.Err(), lastErr)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *ContractClient) toReceipt(receipt *types.Receipt) (*Receipt, error) {
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s", ErrTransactionReverted, receipt.TxHash.Hex())
	}

	out := &Receipt{TransactionHash: receipt.TxHash.Hex()}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	for _, l := range receipt.Logs {
		if l == nil || l.Address != c.address {
			continue
		}
		var ev payoutIssuedEvent
		if err := c.contract.UnpackLog(&ev, "PayoutIssued", *l); err == nil {
			out.PayoutAmountWei = ev.PayoutAmount
			break
		}
	}
	return out, nil
}
