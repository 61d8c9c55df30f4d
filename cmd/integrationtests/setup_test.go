package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"bidding-engine/internal/actor"
	bidding "bidding-engine/internal/biddingService"
	"bidding-engine/internal/broadcast"
	"bidding-engine/internal/clock"
	"bidding-engine/internal/registry"
	"bidding-engine/internal/repository"
	"bidding-engine/internal/server"
	"bidding-engine/services/bidding/helpers"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// SetupTestRouter wires the full in-memory stack behind the router
func SetupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryRepo()
	broadcaster := broadcast.New(256, 64)
	reg := registry.New(store, clock.Real{}, actor.DefaultRules(), registry.DefaultConfig(), broadcaster, broadcaster)
	t.Cleanup(func() {
		reg.Stop()
		broadcaster.Close()
	})

	service := bidding.NewBiddingService(reg, store, broadcaster, clock.Real{})
	return server.SetupRouter(service)
}

// SetupTestRouterWithAuctions creates the given auctions through the API
func SetupTestRouterWithAuctions(t *testing.T, auctions ...helpers.CreateAuctionRequest) *gin.Engine {
	t.Helper()
	router := SetupTestRouter(t)
	for _, a := range auctions {
		_, w := ExecuteRequestAndParse(t, router, "POST", "/v1/auctions", a)
		if w.Code != 201 {
			t.Fatalf("failed to create auction %s: %d %s", a.AuctionID, w.Code, w.Body.String())
		}
	}
	return router
}

// NewAuction returns a create request for an auction that is open for the next hour
func NewAuction(id string, reserve int64) helpers.CreateAuctionRequest {
	return helpers.CreateAuctionRequest{
		AuctionID:    id,
		Title:        "title " + id,
		ReservePrice: decimal.NewFromInt(reserve),
		EndsAt:       time.Now().Add(time.Hour).UTC(),
	}
}

// ExecuteRequest executes an HTTP request and returns the response recorder.
func ExecuteRequest(t *testing.T, router *gin.Engine, method, url string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response envelope
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := ExecuteRequest(t, router, method, url, reqBody)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}
