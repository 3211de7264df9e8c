package rpc

import (
	"errors"
	"net/http"
	"strings"

	"giftchain/core"
	"giftchain/core/types"
	"giftchain/crypto"
	"giftchain/native/bank"
)

const (
	codeBankInvalidParams = -32066
	codeBankUnknownAsset  = -32067
	codeFaucetRefused     = -32068
)

type balanceParams struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
}

type balanceResult struct {
	Address   string `json:"address"`
	Asset     string `json:"asset"`
	Balance   string `json:"balance"`
	Formatted string `json:"formatted,omitempty"`
}

type assetResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

type faucetResult struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Amount  uint64 `json:"amount"`
}

func (s *Server) handleBankGetBalance(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params balanceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	// Escrow (giftx) addresses are accepted so escrow balances can be audited.
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(params.Address))
	if err != nil {
		return nil, newError(http.StatusBadRequest, codeBankInvalidParams, "invalid_params", err.Error())
	}
	addr := decoded.Array()
	asset := types.NormalizeAsset(params.Asset)
	if asset == "" {
		asset = s.node.NativeAsset()
	}
	balance, err := s.node.Balance(addr, asset)
	if err != nil {
		if errors.Is(err, bank.ErrUnknownAsset) {
			return nil, newError(http.StatusNotFound, codeBankUnknownAsset, "unknown_asset", err.Error())
		}
		return nil, newError(http.StatusInternalServerError, codeServerError, "internal_error", err.Error())
	}
	result := balanceResult{
		Address: decoded.String(),
		Asset:   asset,
		Balance: balance.Dec(),
	}
	if balance.IsUint64() {
		if meta, err := s.assetDecimals(asset); err == nil {
			result.Formatted = bank.FormatAmount(balance.Uint64(), meta)
		}
	}
	return result, nil
}

func (s *Server) assetDecimals(symbol string) (uint8, error) {
	assets, err := s.node.Assets()
	if err != nil {
		return 0, err
	}
	for _, meta := range assets {
		if meta.Symbol == symbol {
			return meta.Decimals, nil
		}
	}
	return 0, bank.ErrUnknownAsset
}

func (s *Server) handleBankListAssets(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	if len(req.Params) != 0 {
		return nil, newError(http.StatusBadRequest, codeBankInvalidParams, "invalid_params", "bank_listAssets takes no parameters")
	}
	assets, err := s.node.Assets()
	if err != nil {
		return nil, newError(http.StatusInternalServerError, codeServerError, "internal_error", err.Error())
	}
	out := make([]assetResult, 0, len(assets))
	for _, meta := range assets {
		out = append(out, assetResult{Symbol: meta.Symbol, Name: meta.Name, Decimals: meta.Decimals})
	}
	return out, nil
}

func (s *Server) handleFaucetRequest(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params balanceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, err := core.ParseAddress(params.Address)
	if err != nil {
		return nil, newError(http.StatusBadRequest, codeBankInvalidParams, "invalid_params", err.Error())
	}
	asset := strings.TrimSpace(params.Asset)
	if asset == "" {
		asset = s.node.NativeAsset()
	}
	amount, err := s.node.FaucetDrip(addr, asset)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrFaucetCooldown):
			return nil, newError(http.StatusTooManyRequests, codeFaucetRefused, "faucet_cooldown", err.Error())
		case errors.Is(err, core.ErrFaucetDisabled), errors.Is(err, core.ErrFaucetAsset):
			return nil, newError(http.StatusForbidden, codeFaucetRefused, "faucet_unavailable", err.Error())
		case errors.Is(err, bank.ErrKeylessDestination):
			return nil, newError(http.StatusBadRequest, codeBankInvalidParams, "keyless_destination", err.Error())
		default:
			return nil, newError(http.StatusInternalServerError, codeServerError, "internal_error", err.Error())
		}
	}
	return faucetResult{Address: crypto.FormatAddress(addr), Asset: types.NormalizeAsset(asset), Amount: amount}, nil
}
