package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MJE43/digiwin/internal/chain"
	"github.com/MJE43/digiwin/internal/clarity"
	"github.com/MJE43/digiwin/internal/contract/digiwin"
)

const maxBodyBytes = 1 << 20

// decodeCall reads an optional JSON call body. An empty body is an empty
// request.
func decodeCall(r *http.Request) (CallRequest, error) {
	var req CallRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return CallRequest{}, err
	}
	return req, nil
}

// handleCallPublic executes a public function. Contract (err ...) results
// are reported with status 200 and committed=false.
func (s *Server) handleCallPublic(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	contract := chi.URLParam(r, "contract")
	function := chi.URLParam(r, "function")

	req, err := decodeCall(r)
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "Invalid JSON: "+err.Error())
		return
	}
	if err := ValidateCallRequest(&req, true); err != nil {
		s.errorHandler.HandleValidationError(w, r, "request", err.Error())
		return
	}
	args, err := clarity.ParseArgs(req.Args)
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "args", err.Error())
		return
	}

	sender := s.resolveSender(req.Sender)
	res, err := s.host.CallPublic(r.Context(), contract, function, args, sender)
	if err != nil {
		s.errorHandler.HandleChainError(w, r, contract, function, err)
		return
	}

	rc := res.Receipt
	s.securityLogger.LogCallOperation(requestID, rc.Contract, rc.Function, rc.Sender, rc.Args, rc.TxID.String(), rc.Result, rc.Committed)

	s.writeJSON(w, http.StatusOK, CallResponse{
		TxID:          rc.TxID.String(),
		Height:        rc.Height,
		Contract:      rc.Contract,
		Function:      rc.Function,
		Sender:        rc.Sender,
		Result:        rc.Result,
		Value:         clarity.ToJSON(res.Value),
		Committed:     rc.Committed,
		ErrorName:     s.errorName(contract, res.Value),
		Events:        rc.Events,
		EngineVersion: EngineVersion,
	})
}

// errorName labels an (err uN) result of the game contract with the
// constant name of its code.
func (s *Server) errorName(contract string, v clarity.Value) string {
	if contract != s.gameContract {
		return ""
	}
	resp, ok := v.(clarity.Response)
	if !ok || resp.IsOk() {
		return ""
	}
	code, ok := clarity.AsUInt(resp.Inner())
	if !ok {
		return ""
	}
	return digiwin.CodeName(code)
}

// handleCallReadOnly evaluates a read-only function
func (s *Server) handleCallReadOnly(w http.ResponseWriter, r *http.Request) {
	contract := chi.URLParam(r, "contract")
	function := chi.URLParam(r, "function")

	req, err := decodeCall(r)
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "Invalid JSON: "+err.Error())
		return
	}
	if err := ValidateCallRequest(&req, false); err != nil {
		s.errorHandler.HandleValidationError(w, r, "request", err.Error())
		return
	}
	args, err := clarity.ParseArgs(req.Args)
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "args", err.Error())
		return
	}

	value, err := s.host.CallReadOnly(r.Context(), contract, function, args, s.resolveSender(req.Sender))
	if err != nil {
		s.errorHandler.HandleChainError(w, r, contract, function, err)
		return
	}

	s.writeJSON(w, http.StatusOK, ReadOnlyResponse{
		Contract:      contract,
		Function:      function,
		Result:        value.String(),
		Value:         clarity.ToJSON(value),
		EngineVersion: EngineVersion,
	})
}

// handleListContracts lists deployed contracts and their functions
func (s *Server) handleListContracts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, ContractsResponse{
		Contracts:     s.host.Contracts(),
		EngineVersion: EngineVersion,
	})
}

func (s *Server) account(r *http.Request, address string) (AccountResponse, error) {
	bal, err := s.host.Balance(r.Context(), address)
	if err != nil {
		return AccountResponse{}, err
	}
	return AccountResponse{
		Address:    address,
		Name:       s.accountName(address),
		Balance:    strconv.FormatUint(bal, 10),
		BalanceSTX: chain.FormatSTX(bal),
	}, nil
}

// handleGetAccount reports one balance. The path accepts an address or a
// devnet account name.
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	address := s.resolveSender(chi.URLParam(r, "address"))
	if err := ValidatePrincipal(address); err != nil {
		s.errorHandler.HandleValidationError(w, r, "address", err.Error())
		return
	}

	acct, err := s.account(r, address)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, acct)
}

// handleListAccounts reports the balance of every named account
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	out := make([]AccountResponse, 0, len(s.accounts))
	for _, a := range s.accounts {
		acct, err := s.account(r, a.Address)
		if err != nil {
			s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
			return
		}
		out = append(out, acct)
	}
	s.writeJSON(w, http.StatusOK, AccountsResponse{Accounts: out, EngineVersion: EngineVersion})
}

// handleListTransactions pages through receipts, newest first
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset, field, err := parsePage(r)
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, field, err.Error())
		return
	}

	receipts, total, err := s.host.Receipts(r.Context(), limit, offset)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, TransactionsResponse{
		Transactions:  receipts,
		Total:         total,
		Limit:         limit,
		Offset:        offset,
		EngineVersion: EngineVersion,
	})
}

// handleGetTransaction returns one receipt
func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "txid")
	txID, err := uuid.Parse(raw)
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "txid", "must be a UUID")
		return
	}

	receipt, err := s.host.Receipt(r.Context(), txID)
	if err != nil {
		s.errorHandler.HandleChainError(w, r, "", "", err)
		return
	}
	s.writeJSON(w, http.StatusOK, receipt)
}

// handleGetGame is a shortcut for get-game-info on the game contract
func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	id, err := parseUintParam(chi.URLParam(r, "id"))
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "id", err.Error())
		return
	}

	value, err := s.host.CallReadOnly(r.Context(), s.gameContract, "get-game-info", []clarity.Value{clarity.UInt(id)}, "")
	if err != nil {
		s.errorHandler.HandleChainError(w, r, s.gameContract, "get-game-info", err)
		return
	}

	opt, ok := value.(clarity.Optional)
	if !ok {
		s.errorHandler.HandleError(w, r, errors.New("get-game-info returned "+value.Type().String()), http.StatusInternalServerError)
		return
	}
	info, found := opt.Unwrap()
	if !found {
		s.errorHandler.HandleNotFound(w, r, "Game", id)
		return
	}

	s.writeJSON(w, http.StatusOK, GameResponse{
		ID:            id,
		Result:        info.String(),
		Game:          clarity.ToJSON(info),
		EngineVersion: EngineVersion,
	})
}

// handleChainInfo reports height, deployer and build metadata
func (s *Server) handleChainInfo(w http.ResponseWriter, r *http.Request) {
	height, err := s.host.BlockHeight(r.Context())
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, ChainInfoResponse{
		BlockHeight:    height,
		Deployer:       s.host.Deployer(),
		ServerSeedHash: s.host.ServerSeedHash(),
		Version:        GetVersionInfo(),
	})
}
