package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"

	apperrors "github.com/kol-dashboard/internal/errors"
	"github.com/kol-dashboard/internal/logging"
	"github.com/kol-dashboard/internal/storage"
	"github.com/kol-dashboard/internal/worker"
)

// fetchUsersFailedMessage is the body the dashboard client expects when the
// wallet list cannot be read
const fetchUsersFailedMessage = "Fetch Users Data Failed"

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// handleListUsers handles GET /api/users
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.wallets.ListWallets(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("Failed to list wallets")
		respondJSON(w, http.StatusInternalServerError, MessageResponse{Message: fetchUsersFailedMessage})
		return
	}

	respondJSON(w, http.StatusOK, wallets)
}

// handleGetUser handles GET /api/users/{address}?days=N
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		respondServiceError(w, apperrors.NewInvalidAddressError(address))
		return
	}

	days, ok := queryInt(w, r, "days")
	if !ok {
		return
	}

	detail, err := s.wallets.WalletDetail(r.Context(), address, days)
	if err != nil {
		s.logFailure(r, err, "Failed to load wallet detail")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

// handleUserHistory handles GET /api/users/{address}/history?limit=
func (s *Server) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondServiceError(w, apperrors.NewServiceUnavailableError("trade archive"))
		return
	}

	address := mux.Vars(r)["address"]
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		respondServiceError(w, apperrors.NewInvalidAddressError(address))
		return
	}

	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	trades, err := s.history.RecentTrades(r.Context(), address, limit)
	if err != nil {
		s.logFailure(r, err, "Failed to read trade archive")
		respondServiceError(w, err)
		return
	}
	if trades == nil {
		trades = []storage.ArchivedTrade{}
	}

	respondJSON(w, http.StatusOK, trades)
}

// handleLeaderboard handles GET /api/leaderboard?range=&sort=
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	entries, err := s.wallets.Leaderboard(r.Context(), query.Get("range"), query.Get("sort"))
	if err != nil {
		s.logFailure(r, err, "Failed to build leaderboard")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, entries)
}

// handleTradeFeed handles GET /api/trades?wallet=&limit=
func (s *Server) handleTradeFeed(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	feed, err := s.wallets.TradeFeed(r.Context(), r.URL.Query().Get("wallet"), limit)
	if err != nil {
		s.logFailure(r, err, "Failed to build trade feed")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, feed)
}

// handleTrending handles GET /api/trending?range=
func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.wallets.Trending(r.Context(), r.URL.Query().Get("range"))
	if err != nil {
		s.logFailure(r, err, "Failed to build trending tokens")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, tokens)
}

// handleTriggerRefresh handles POST /api/refresh
func (s *Server) handleTriggerRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		respondServiceError(w, apperrors.NewServiceUnavailableError("refresh scheduler"))
		return
	}

	err := s.refresher.TriggerNow(r.Context())
	switch {
	case err == nil:
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	case errors.Is(err, worker.ErrCycleInProgress):
		respondServiceError(w, apperrors.NewConflictError("A refresh cycle is already in progress"))
	case errors.Is(err, worker.ErrNotRunning):
		respondServiceError(w, apperrors.NewServiceUnavailableError("refresh scheduler"))
	default:
		s.logFailure(r, err, "Failed to trigger refresh")
		respondServiceError(w, err)
	}
}

// handleRefreshStatus handles GET /api/refresh
func (s *Server) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		respondServiceError(w, apperrors.NewServiceUnavailableError("refresh scheduler"))
		return
	}

	respondJSON(w, http.StatusOK, s.refresher.GetStatus())
}

// queryInt parses an optional non-negative integer query parameter. Missing
// values yield 0. On failure the error response is already written.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondServiceError(w, apperrors.NewInvalidParameterError(name, "must be a non-negative integer"))
		return 0, false
	}
	return n, true
}

func (s *Server) logFailure(r *http.Request, err error, message string) {
	logger := logging.FromContext(r.Context()).WithError(err)
	if apperrors.IsUserError(err) {
		logger.Debug(message)
		return
	}
	logger.Error(message)
}
