package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/tbv-labs/vault-depositor/internal/btc"
	"github.com/tbv-labs/vault-depositor/internal/config"
	"github.com/tbv-labs/vault-depositor/internal/db"
	"github.com/tbv-labs/vault-depositor/internal/deposit"
	"github.com/tbv-labs/vault-depositor/internal/pegin"
	"github.com/tbv-labs/vault-depositor/internal/plan"
	"github.com/tbv-labs/vault-depositor/internal/state"
)

type HTTPServer interface {
	StartHTTPServer()
}

// DepositRunner is the orchestrator surface the HTTP layer needs.
type DepositRunner interface {
	Execute(ctx context.Context, params deposit.ExecuteParams) (*deposit.BatchResult, error)
}

type HTTPServerImpl struct {
	st         *state.State
	runner     DepositRunner
	utxoLister btc.UtxoLister
	feeFetcher btc.NetworkFeeFetcher
}

func NewHTTPServer(st *state.State, runner DepositRunner, utxoLister btc.UtxoLister, feeFetcher btc.NetworkFeeFetcher) *HTTPServerImpl {
	return &HTTPServerImpl{st: st, runner: runner, utxoLister: utxoLister, feeFetcher: feeFetcher}
}

func (hs *HTTPServerImpl) StartHTTPServer() {
	r := gin.Default()

	r.GET("/api/v1/health", handleHealth)
	r.GET("/api/v1/progress", hs.handleProgress)
	r.GET("/api/v1/pegins", hs.handlePegins)
	r.POST("/api/v1/deposits", hs.handleDeposit)

	// Use configuration port
	addr := ":" + config.AppConfig.HTTPPort
	log.Infof("HTTP server is running on port %s", config.AppConfig.HTTPPort)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start HTTP server: %v", err)
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleProgress exposes the deposit batch progress snapshot.
func (hs *HTTPServerImpl) handleProgress(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": hs.st.GetProgress()})
}

type peginView struct {
	Record *db.PendingPegin `json:"record"`
	State  pegin.State      `json:"state"`
}

// handlePegins lists the depositor's pending peg-ins with their derived
// lifecycle states.
func (hs *HTTPServerImpl) handlePegins(c *gin.Context) {
	ethAddress := c.Query("address")
	if ethAddress == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "address query parameter required"})
		return
	}

	records, err := hs.st.Store().GetPendingPegins(ethAddress)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}

	snapshots := make(map[string]*db.VaultSnapshot)
	for _, snapshot := range hs.st.GetVaultSnapshots() {
		snapshots[snapshot.PeginTxid] = snapshot
	}

	views := make([]peginView, 0, len(records))
	for _, record := range records {
		contractStatus := pegin.ContractPending
		opts := pegin.StateOptions{LocalStatus: pegin.LocalStatus(record.Status)}
		if snapshot, ok := snapshots[record.PeginTxid]; ok {
			contractStatus = pegin.ContractStatus(snapshot.ContractStatus)
			opts.IsInUse = snapshot.IsInUse
		}
		views = append(views, peginView{
			Record: record,
			State:  pegin.GetState(contractStatus, opts),
		})
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": views})
}

type depositReq struct {
	VaultAmounts []uint64 `json:"vault_amounts" binding:"required"`
	FeeRate      uint64   `json:"fee_rate"`
}

// handleDeposit runs one deposit batch synchronously and returns its result.
// A fee rate of zero means "use the current half-hour network estimate".
func (hs *HTTPServerImpl) handleDeposit(c *gin.Context) {
	var req depositReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	feeRate := req.FeeRate
	if feeRate == 0 {
		networkFee, err := hs.feeFetcher.GetNetworkFee()
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"status": "error", "error": "cannot determine network fee rate: " + err.Error()})
			return
		}
		feeRate = networkFee.HalfHourFee
	}

	utxos, err := hs.utxoLister.ListSpendable()
	result, err2 := hs.runner.Execute(c.Request.Context(), deposit.ExecuteParams{
		EthAddress:    config.AppConfig.DepositorEthAddress,
		VaultAmounts:  req.VaultAmounts,
		FeeRate:       feeRate,
		ChangeAddress: config.AppConfig.ChangeAddress,
		Utxos:         deposit.UtxoSet{Utxos: utxos, LoadErr: err},
	})
	if err2 != nil {
		status := http.StatusInternalServerError
		var validationErr *deposit.ValidationError
		var fundsErr *plan.InsufficientFundsError
		if errors.As(err2, &validationErr) || errors.As(err2, &fundsErr) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"status": "error", "error": err2.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": result})
}
