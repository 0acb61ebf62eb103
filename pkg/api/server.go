package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/papertrade/params"
	"github.com/uhyunpark/papertrade/pkg/app/core/market"
	"github.com/uhyunpark/papertrade/pkg/app/core/order"
	"github.com/uhyunpark/papertrade/pkg/app/core/risk"
	"github.com/uhyunpark/papertrade/pkg/app/paper"
	"github.com/uhyunpark/papertrade/pkg/app/trading"
)

// Server handles REST API and WebSocket connections
type Server struct {
	orch    *trading.Orchestrator
	markets *market.MarketRegistry
	router  *mux.Router
	hub     *Hub
	cfg     params.API
	log     *zap.SugaredLogger
}

// NewServer creates a new API server
func NewServer(orch *trading.Orchestrator, markets *market.MarketRegistry, cfg params.API, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		orch:    orch,
		markets: markets,
		router:  mux.NewRouter(),
		hub:     NewHub(log),
		cfg:     cfg,
		log:     log,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market endpoints
	api.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	api.HandleFunc("/markets/{symbol}", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/prices/{symbol}", s.handleGetPrice).Methods("GET")

	// Account endpoints
	acct := api.PathPrefix("/accounts/{address}").Subrouter()
	acct.HandleFunc("/portfolio", s.handleGetPortfolio).Methods("GET")
	acct.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	acct.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	acct.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	acct.HandleFunc("/orders/{id}", s.handleCancelOrder).Methods("DELETE")
	acct.HandleFunc("/positions", s.handleGetPositions).Methods("GET")
	acct.HandleFunc("/positions/{id}", s.handleGetPosition).Methods("GET")
	acct.HandleFunc("/positions/{id}/close", s.handleClosePosition).Methods("POST")
	acct.HandleFunc("/deposit", s.handleDeposit).Methods("POST")
	acct.HandleFunc("/fingerprint", s.handleGetFingerprint).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Run serves on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Infow("api_listening", "addr", s.cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ==============================
// REST Handlers
// ==============================

func toMarketInfo(m market.Market) MarketInfo {
	return MarketInfo{
		Symbol:     m.Symbol,
		BaseAsset:  m.BaseAsset,
		QuoteAsset: m.QuoteAsset,
		Status:     m.Status.String(),
	}
}

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.markets.ListMarkets()
	response := make([]MarketInfo, len(markets))
	for i, m := range markets {
		response[i] = toMarketInfo(m)
	}
	respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.markets.GetMarket(mux.Vars(r)["symbol"])
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, toMarketInfo(m))
}

func (s *Server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.paperEngine(w)
	if !ok {
		return
	}
	t, err := eng.LatestPrice(mux.Vars(r)["symbol"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PriceInfo{Symbol: t.Symbol, Price: t.Price, Timestamp: t.Timestamp})
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	snap, err := s.orch.PortfolioSnapshot(r.Context(), addr)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	var req order.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	o, err := s.orch.PlaceOrder(r.Context(), addr, req)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	eng, ok := s.paperEngine(w)
	if !ok {
		return
	}
	activeOnly := r.URL.Query().Get("status") == "active"
	orders, err := eng.Orders(r.Context(), addr, activeOnly)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	eng, ok := s.paperEngine(w)
	if !ok {
		return
	}
	o, err := eng.Order(r.Context(), addr, mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	o, err := s.orch.CancelOrder(r.Context(), addr, mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	eng, ok := s.paperEngine(w)
	if !ok {
		return
	}
	list := eng.Positions
	if r.URL.Query().Get("status") == "closed" {
		list = eng.ClosedPositions
	}
	positions, err := list(r.Context(), addr)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, positions)
}

// handleGetPosition finds open and closed positions alike.
func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	eng, ok := s.paperEngine(w)
	if !ok {
		return
	}
	p, err := eng.Position(r.Context(), addr, mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	p, err := s.orch.ClosePosition(r.Context(), addr, mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	eng, ok := s.paperEngine(w)
	if !ok {
		return
	}
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	snap, err := eng.Deposit(r.Context(), addr, req.Amount)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetFingerprint(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	eng, ok := s.paperEngine(w)
	if !ok {
		return
	}
	h, err := eng.Fingerprint(r.Context(), addr)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, FingerprintResponse{Address: addr.Hex(), Fingerprint: h.Hex()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Mode: s.orch.Mode()})
}

// ==============================
// Broadcast Methods (called from the engine and feed)
// ==============================

// PublishEvent pushes an engine event to the account's websocket channels.
// Order and execution events go to fills:<address>, position and breaker
// events to positions:<address>.
func (s *Server) PublishEvent(ev paper.Event) {
	channel := "positions:"
	switch ev.Type {
	case paper.EventOrderAccepted, paper.EventOrderTriggered, paper.EventOrderFilled,
		paper.EventOrderCancelled, paper.EventOrderExpired, paper.EventExecution:
		channel = "fills:"
	}
	s.hub.BroadcastToChannel(channel+ev.Account.Hex(), WSMessage{Type: string(ev.Type), Data: ev})
}

// PublishTick pushes a price update to ticks:<symbol>.
func (s *Server) PublishTick(t market.Tick) {
	s.hub.BroadcastToChannel("ticks:"+t.Symbol, WSMessage{
		Type: "tick",
		Data: PriceInfo{Symbol: t.Symbol, Price: t.Price, Timestamp: t.Timestamp},
	})
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) paperEngine(w http.ResponseWriter) (*paper.Engine, bool) {
	eng, err := s.orch.Paper()
	if err != nil {
		s.respondErr(w, err)
		return nil, false
	}
	return eng, true
}

func parseAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	addressStr := mux.Vars(r)["address"]
	if !common.IsHexAddress(addressStr) {
		respondError(w, http.StatusBadRequest, "invalid address", addressStr)
		return common.Address{}, false
	}
	return common.HexToAddress(addressStr), true
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, paper.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, paper.ErrRiskRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, paper.ErrOrderNotFound), errors.Is(err, paper.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, paper.ErrInvalidStateTransition):
		return http.StatusConflict
	case errors.Is(err, trading.ErrPaperOnly):
		return http.StatusNotImplemented
	case errors.Is(err, paper.ErrStalePriceData), errors.Is(err, paper.ErrPersistenceFailure),
		errors.Is(err, paper.ErrEngineClosed), errors.Is(err, trading.ErrLiveTradingDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: http.StatusText(status), Message: err.Error()}
	if reason, ok := risk.ReasonOf(err); ok {
		resp.Reason = string(reason)
	}
	if status >= http.StatusInternalServerError {
		s.log.Warnw("request_failed", "status", status, "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
