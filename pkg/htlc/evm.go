package htlc

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/swapsage/resolver/internal/metrics"
	apperrors "github.com/swapsage/resolver/pkg/app/errors"
	"github.com/swapsage/resolver/pkg/config"
	"github.com/swapsage/resolver/pkg/htlc/contracts"
)

// EVMAdapter implements Adapter against one EVM chain's deployed
// HashedTimelockERC20 contract.
type EVMAdapter struct {
	name       string
	cfg        *config.ChainConfig
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
	htlc       *contracts.HTLC
	logger     *zap.Logger
}

// NewEVMAdapter connects to the chain's RPC endpoint and binds the HTLC
// contract configured for it.
func NewEVMAdapter(name string, cfg *config.ChainConfig, logger *zap.Logger) (*EVMAdapter, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", name, err)
	}

	privateKey, err := crypto.HexToECDSA(cfg.RelayerPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key for %s: %w", name, err)
	}
	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	htlcAddress := common.HexToAddress(cfg.HTLCContract)
	htlcContract, err := contracts.NewHTLC(htlcAddress, client)
	if err != nil {
		return nil, fmt.Errorf("failed to bind HTLC contract on %s: %w", name, err)
	}

	logger.Info("Connected to chain",
		zap.String("chain", name),
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("htlc_contract", htlcAddress.Hex()),
		zap.String("signer_address", address.Hex()))

	return &EVMAdapter{
		name:       name,
		cfg:        cfg,
		client:     client,
		privateKey: privateKey,
		address:    address,
		htlc:       htlcContract,
		logger:     logger,
	}, nil
}

// Name returns the configured chain name.
func (a *EVMAdapter) Name() string {
	return a.name
}

// ChainID returns the chain's numeric ID.
func (a *EVMAdapter) ChainID() int64 {
	return a.cfg.ChainID
}

// SignerAddress returns the address the adapter transacts from.
func (a *EVMAdapter) SignerAddress() string {
	return a.address.Hex()
}

// Close releases the underlying RPC connection.
func (a *EVMAdapter) Close() {
	a.client.Close()
}

// Fund locks tokens into a new HTLC. Balance and allowance are checked
// before the transaction is sent so predictable failures surface without
// spending gas. Fund never approves on its own: a short allowance fails
// with an insufficient-allowance error and the caller runs Approve first.
func (a *EVMAdapter) Fund(ctx context.Context, params FundParams) (string, string, error) {
	if !common.IsHexAddress(params.Token) {
		return "", "", apperrors.ValidationError(nil, fmt.Sprintf("malformed token address %q", params.Token))
	}
	if !common.IsHexAddress(params.Beneficiary) {
		return "", "", apperrors.ValidationError(nil, fmt.Sprintf("malformed beneficiary address %q", params.Beneficiary))
	}
	hashLock, err := ParseHash(params.HashLock)
	if err != nil {
		return "", "", apperrors.ValidationError(err, "malformed hash lock")
	}
	amount, ok := new(big.Int).SetString(params.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return "", "", apperrors.AmountError(nil, fmt.Sprintf("malformed amount %q", params.Amount))
	}

	token := common.HexToAddress(params.Token)
	erc20, err := contracts.NewERC20(token, a.client)
	if err != nil {
		return "", "", apperrors.GeneralError(err)
	}

	callOpts := &bind.CallOpts{Context: ctx}
	balance, err := erc20.BalanceOf(callOpts, a.address)
	if err != nil {
		return "", "", a.classify(err, "failed to read token balance")
	}
	if balance.Cmp(amount) < 0 {
		return "", "", apperrors.InsufficientBalanceError(nil,
			fmt.Sprintf("wallet holds %s of token %s, need %s", balance, params.Token, amount))
	}

	allowance, err := erc20.Allowance(callOpts, a.address, a.htlc.Address())
	if err != nil {
		return "", "", a.classify(err, "failed to read token allowance")
	}
	if allowance.Cmp(amount) < 0 {
		return "", "", apperrors.InsufficientAllowanceError(nil,
			fmt.Sprintf("allowance %s for token %s, need %s; run approval first", allowance, params.Token, amount))
	}

	auth, err := a.transactor(ctx)
	if err != nil {
		return "", "", err
	}

	tx, err := a.htlc.NewContract(auth,
		common.HexToAddress(params.Beneficiary),
		hashLock,
		big.NewInt(params.Timelock.Unix()),
		token,
		amount,
	)
	if err != nil {
		return "", "", a.classify(err, "failed to submit funding transaction")
	}

	receipt, err := a.waitMined(ctx, tx)
	if err != nil {
		return "", "", err
	}

	contractID, err := a.htlc.ParseNewContractID(receipt)
	if err != nil {
		return "", "", apperrors.GeneralError(err)
	}

	a.logger.Info("HTLC funded",
		zap.String("chain", a.name),
		zap.String("contract_id", hexHash(contractID)),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.String("amount", amount.String()))

	return hexHash(contractID), tx.Hash().Hex(), nil
}

// GetContractState reads the HTLC's current state. An unknown contract ID
// yields StateInvalid, not an error.
func (a *EVMAdapter) GetContractState(ctx context.Context, contractID string) (*ContractState, error) {
	id, err := ParseHash(contractID)
	if err != nil {
		return nil, apperrors.ValidationError(err, "malformed contract ID")
	}

	details, err := a.htlc.GetContract(&bind.CallOpts{Context: ctx}, id)
	if err != nil {
		return nil, a.classify(err, "failed to read contract state")
	}

	state := &ContractState{ContractID: contractID, State: StateInvalid}
	if details.Sender == (common.Address{}) {
		return state, nil
	}

	state.Originator = details.Sender.Hex()
	state.Beneficiary = details.Receiver.Hex()
	state.Token = details.TokenContract.Hex()
	state.Amount = details.Amount.String()
	state.HashLock = hexHash(details.Hashlock)
	state.Timelock = time.Unix(details.Timelock.Int64(), 0).UTC()
	switch {
	case details.Withdrawn:
		state.State = StateClaimed
		state.Preimage = hexHash(details.Preimage)
	case details.Refunded:
		state.State = StateRefunded
	default:
		state.State = StateActive
	}
	return state, nil
}

// Claim withdraws an active HTLC with the preimage. The contract state and
// the preimage hash are checked first so definitive failures are reported
// without an on-chain attempt.
func (a *EVMAdapter) Claim(ctx context.Context, contractID, preimage string) (string, error) {
	id, err := ParseHash(contractID)
	if err != nil {
		return "", apperrors.ValidationError(err, "malformed contract ID")
	}
	preimageBytes, err := ParseHash(preimage)
	if err != nil {
		return "", apperrors.ValidationError(err, "malformed preimage")
	}

	state, err := a.GetContractState(ctx, contractID)
	if err != nil {
		return "", err
	}
	switch state.State {
	case StateInvalid:
		return "", apperrors.NotFoundError(nil, fmt.Sprintf("no HTLC %s on %s", contractID, a.name))
	case StateClaimed:
		return "", apperrors.AlreadyClaimedError(nil, fmt.Sprintf("HTLC %s already claimed", contractID))
	case StateRefunded:
		return "", apperrors.WrongStateError(nil, fmt.Sprintf("HTLC %s already refunded", contractID))
	}
	if !time.Now().Before(state.Timelock) {
		return "", apperrors.ExpiredError(nil, fmt.Sprintf("HTLC %s timelock passed at %s", contractID, state.Timelock))
	}
	if err := VerifyPreimage(preimage, state.HashLock); err != nil {
		return "", err
	}

	auth, err := a.transactor(ctx)
	if err != nil {
		return "", err
	}

	tx, err := a.htlc.Withdraw(auth, id, preimageBytes)
	if err != nil {
		return "", a.classify(err, "failed to submit claim transaction")
	}
	if _, err := a.waitMined(ctx, tx); err != nil {
		return "", err
	}

	a.logger.Info("HTLC claimed",
		zap.String("chain", a.name),
		zap.String("contract_id", contractID),
		zap.String("tx_hash", tx.Hash().Hex()))

	return tx.Hash().Hex(), nil
}

// Refund reclaims an expired HTLC for the originator.
func (a *EVMAdapter) Refund(ctx context.Context, contractID string) (string, error) {
	id, err := ParseHash(contractID)
	if err != nil {
		return "", apperrors.ValidationError(err, "malformed contract ID")
	}

	state, err := a.GetContractState(ctx, contractID)
	if err != nil {
		return "", err
	}
	switch state.State {
	case StateInvalid:
		return "", apperrors.NotFoundError(nil, fmt.Sprintf("no HTLC %s on %s", contractID, a.name))
	case StateClaimed:
		return "", apperrors.AlreadyClaimedError(nil, fmt.Sprintf("HTLC %s already claimed", contractID))
	case StateRefunded:
		return "", apperrors.WrongStateError(nil, fmt.Sprintf("HTLC %s already refunded", contractID))
	}
	if time.Now().Before(state.Timelock) {
		return "", apperrors.WrongStateError(nil,
			fmt.Sprintf("HTLC %s timelock has not passed, expires %s", contractID, state.Timelock))
	}

	auth, err := a.transactor(ctx)
	if err != nil {
		return "", err
	}

	tx, err := a.htlc.Refund(auth, id)
	if err != nil {
		return "", a.classify(err, "failed to submit refund transaction")
	}
	if _, err := a.waitMined(ctx, tx); err != nil {
		return "", err
	}

	a.logger.Info("HTLC refunded",
		zap.String("chain", a.name),
		zap.String("contract_id", contractID),
		zap.String("tx_hash", tx.Hash().Hex()))

	return tx.Hash().Hex(), nil
}

// Approve raises the HTLC contract's token allowance to cover amount. It is
// the explicit pre-step before Fund; when the current allowance already
// covers the amount no transaction is sent and the returned txRef is empty.
func (a *EVMAdapter) Approve(ctx context.Context, tokenAddr, amountStr string) (string, error) {
	if !common.IsHexAddress(tokenAddr) {
		return "", apperrors.ValidationError(nil, fmt.Sprintf("malformed token address %q", tokenAddr))
	}
	amount, ok := new(big.Int).SetString(amountStr, 10)
	if !ok || amount.Sign() <= 0 {
		return "", apperrors.AmountError(nil, fmt.Sprintf("malformed amount %q", amountStr))
	}

	erc20, err := contracts.NewERC20(common.HexToAddress(tokenAddr), a.client)
	if err != nil {
		return "", apperrors.GeneralError(err)
	}
	allowance, err := erc20.Allowance(&bind.CallOpts{Context: ctx}, a.address, a.htlc.Address())
	if err != nil {
		return "", a.classify(err, "failed to read token allowance")
	}
	if allowance.Cmp(amount) >= 0 {
		return "", nil
	}

	auth, err := a.transactor(ctx)
	if err != nil {
		return "", err
	}
	tx, err := erc20.Approve(auth, a.htlc.Address(), amount)
	if err != nil {
		return "", a.classify(err, "failed to submit approval transaction")
	}
	if _, err := a.waitMined(ctx, tx); err != nil {
		return "", err
	}

	a.logger.Info("Token approval confirmed",
		zap.String("chain", a.name),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.String("amount", amount.String()))
	return tx.Hash().Hex(), nil
}

func (a *EVMAdapter) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(a.privateKey, big.NewInt(a.cfg.ChainID))
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}

	nonce, err := a.client.PendingNonceAt(ctx, a.address)
	if err != nil {
		return nil, a.classify(err, "failed to get nonce")
	}
	auth.Nonce = big.NewInt(int64(nonce))
	auth.GasLimit = a.cfg.GasLimit
	auth.Context = ctx

	if a.cfg.MaxGasPrice != "" {
		maxGasPrice := new(big.Int)
		maxGasPrice.SetString(a.cfg.MaxGasPrice, 10)

		gasPrice, err := a.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, a.classify(err, "failed to suggest gas price")
		}
		if gasPrice.Cmp(maxGasPrice) > 0 {
			a.logger.Warn("Suggested gas price exceeds maximum",
				zap.String("suggested", gasPrice.String()),
				zap.String("max", maxGasPrice.String()))
			gasPrice = maxGasPrice
		}
		auth.GasPrice = gasPrice
	}

	return auth, nil
}

// waitMined polls for the transaction receipt until the configured
// confirmation timeout, then waits out the confirmation depth.
func (a *EVMAdapter) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	timeout := a.cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := a.cfg.PollingInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var receipt *types.Receipt
	for receipt == nil {
		var err error
		receipt, err = a.client.TransactionReceipt(waitCtx, tx.Hash())
		if err != nil && !errorIsNotFound(err) {
			return nil, a.classify(err, "failed to poll transaction receipt")
		}
		if receipt != nil {
			break
		}
		select {
		case <-waitCtx.Done():
			return nil, apperrors.NetworkError(waitCtx.Err(),
				fmt.Sprintf("transaction %s not mined within %s", tx.Hash().Hex(), timeout))
		case <-ticker.C:
		}
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return nil, apperrors.RevertError(nil, fmt.Sprintf("transaction %s reverted", tx.Hash().Hex()))
	}
	metrics.GasUsed.WithLabelValues(a.name).Observe(float64(receipt.GasUsed))

	if a.cfg.ConfirmationBlocks > 1 {
		target := receipt.BlockNumber.Uint64() + uint64(a.cfg.ConfirmationBlocks) - 1
		for {
			header, err := a.client.HeaderByNumber(waitCtx, nil)
			if err != nil {
				return nil, a.classify(err, "failed to get latest block")
			}
			if header.Number.Uint64() >= target {
				break
			}
			select {
			case <-waitCtx.Done():
				return nil, apperrors.NetworkError(waitCtx.Err(),
					fmt.Sprintf("transaction %s not confirmed within %s", tx.Hash().Hex(), timeout))
			case <-ticker.C:
			}
		}
	}

	return receipt, nil
}

// classify maps a go-ethereum error onto the service error taxonomy: revert
// reasons are definitive, everything else at this level is transport.
func (a *EVMAdapter) classify(err error, message string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "execution reverted") {
		return apperrors.RevertError(err, message)
	}
	return apperrors.NetworkError(err, message)
}

func errorIsNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound) || strings.Contains(err.Error(), "not found")
}

func hexHash(h [32]byte) string {
	return "0x" + hex.EncodeToString(h[:])
}
