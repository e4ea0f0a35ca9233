package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stakehub/crypto"
	"stakehub/native/staking"
	"stakehub/native/votes"
	"stakehub/observability/metrics"
)

// Server exposes the read-only ledger query surface over HTTP. Mutations are
// not exposed here; the ledger is embedded and callers drive the engine
// directly.
type Server struct {
	engine  *staking.Engine
	log     *slog.Logger
	limiter *RateLimiter
}

// NewServer wraps the engine with the HTTP query surface.
func NewServer(engine *staking.Engine, log *slog.Logger, limiter *RateLimiter) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: engine, log: log, limiter: limiter}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/pools", s.handlePools)
		r.Get("/pools/{id}", s.handlePool)
		r.Get("/pools/{id}/positions/{account}", s.handlePosition)
		r.Get("/votes/total", s.handleTotalVotes)
		r.Get("/votes/{delegate}", s.handleVotes)
		r.Get("/votes/{delegate}/prior", s.handlePriorVotes)
		r.Get("/nonces/{account}", s.handleNonce)
	})
	return r
}

type poolResponse struct {
	PoolID           uint64 `json:"poolId"`
	Token            string `json:"token"`
	DepositedAmount  string `json:"depositedAmount"`
	RewardRate       string `json:"rewardRate"`
	RewardsDuration  uint64 `json:"rewardsDuration"`
	PeriodFinish     uint64 `json:"periodFinish"`
	LockPeriod       uint64 `json:"lockPeriod"`
	WithdrawDelay    uint64 `json:"withdrawDelay"`
	VestingPeriod    uint64 `json:"vestingPeriod"`
	VotingMultiplier uint64 `json:"votingMultiplier"`
}

func poolToResponse(id uint64, pool *staking.Pool) poolResponse {
	return poolResponse{
		PoolID:           id,
		Token:            pool.Token,
		DepositedAmount:  pool.DepositedAmount.String(),
		RewardRate:       pool.RewardRate.String(),
		RewardsDuration:  pool.RewardsDuration,
		PeriodFinish:     pool.PeriodFinish,
		LockPeriod:       pool.LockPeriod,
		WithdrawDelay:    pool.WithdrawDelay,
		VestingPeriod:    pool.VestingPeriod,
		VotingMultiplier: pool.VotingMultiplier,
	}
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	count, err := s.engine.PoolCount()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	metrics.Staking().SetPoolCount(count)
	pools := make([]poolResponse, 0, count)
	for id := uint64(0); id < count; id++ {
		pool, err := s.engine.PoolInfo(id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		pools = append(pools, poolToResponse(id, pool))
	}
	s.writeJSON(w, http.StatusOK, pools)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	pool, err := s.engine.PoolInfo(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, poolToResponse(id, pool))
}

type positionResponse struct {
	PoolID            uint64 `json:"poolId"`
	Account           string `json:"account"`
	Amount            string `json:"amount"`
	Earned            string `json:"earned"`
	Locked            bool   `json:"locked"`
	NeedUnstake       bool   `json:"needUnstake"`
	Unstaking         bool   `json:"unstaking"`
	Withdrawable      bool   `json:"withdrawable"`
	AvailableWithdraw string `json:"availableWithdraw"`
	Delegate          string `json:"delegate,omitempty"`
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	account, ok := s.address(w, r, "account")
	if !ok {
		return
	}
	info, err := s.engine.AccountInfo(id, account)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, positionResponse{
		PoolID:            id,
		Account:           account.String(),
		Amount:            info.Amount.String(),
		Earned:            info.Earned.String(),
		Locked:            info.Status.Locked,
		NeedUnstake:       info.Status.NeedUnstake,
		Unstaking:         info.Status.Unstaking,
		Withdrawable:      info.Status.Withdrawable,
		AvailableWithdraw: info.Status.AvailableWithdraw.String(),
		Delegate:          info.Delegate,
	})
}

func (s *Server) handleVotes(w http.ResponseWriter, r *http.Request) {
	delegate, ok := s.address(w, r, "delegate")
	if !ok {
		return
	}
	current := s.engine.Votes().CurrentVotes(delegate)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"delegate": delegate.String(),
		"votes":    current.String(),
	})
}

func (s *Server) handlePriorVotes(w http.ResponseWriter, r *http.Request) {
	delegate, ok := s.address(w, r, "delegate")
	if !ok {
		return
	}
	height, err := strconv.ParseUint(r.URL.Query().Get("height"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("rpc: height query parameter required"))
		return
	}
	prior, err := s.engine.Votes().PriorVotes(delegate, height)
	if err != nil {
		if errors.Is(err, votes.ErrHeightNotFinal) {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"delegate": delegate.String(),
		"height":   strconv.FormatUint(height, 10),
		"votes":    prior.String(),
	})
}

func (s *Server) handleTotalVotes(w http.ResponseWriter, r *http.Request) {
	total := s.engine.Votes().TotalVotes()
	s.writeJSON(w, http.StatusOK, map[string]string{"totalVotes": total.String()})
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	account, ok := s.address(w, r, "account")
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"account": account.String(),
		"nonce":   strconv.FormatUint(s.engine.DelegationNonce(account), 10),
	})
}

func (s *Server) poolID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("rpc: invalid pool id"))
		return 0, false
	}
	return id, true
}

func (s *Server) address(w http.ResponseWriter, r *http.Request, param string) (crypto.Address, bool) {
	addr, err := crypto.DecodeAddress(chi.URLParam(r, param))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("rpc: invalid address"))
		return crypto.Address{}, false
	}
	return addr, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, staking.ErrPoolNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeError(w, http.StatusInternalServerError, err)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	metrics.Staking().RecordRejection("rpc")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
