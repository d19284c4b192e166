package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gin "github.com/gin-gonic/gin"

	chatservice "campusmarket/internal/app/services/chat"
	domainchat "campusmarket/internal/domain/chat"
	domainidentity "campusmarket/internal/domain/identity"
	domainlistings "campusmarket/internal/domain/listings"
	infraidentity "campusmarket/internal/infra/identity"
	"campusmarket/internal/infra/storage/memory"
)

func newTestRouter(t *testing.T) (*gin.Engine, *chatservice.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	listings := memory.NewListingRepository()
	directory := memory.NewProfileDirectory()
	if err := listings.Save(ctx, &domainlistings.Listing{ID: "lst-1", Seller: "u-seller", Title: "Commuter bike", PriceCents: 9500}); err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	for _, p := range []domainidentity.Profile{
		{ID: "u-buyer", Name: "Ana", Email: "ana@example.edu"},
		{ID: "u-seller", Name: "Bo", Email: "bo@example.edu"},
	} {
		profile := p
		if err := directory.Save(ctx, &profile); err != nil {
			t.Fatalf("seed profile: %v", err)
		}
	}
	svc := &chatservice.Service{
		Store:     memory.NewChatStore(nil),
		Reports:   memory.NewReportStore(),
		Listings:  listings,
		Directory: directory,
	}

	router := gin.New()
	// Stand-in for the token middleware: trust identity headers.
	router.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			var roles []string
			if raw := c.GetHeader("X-Test-Roles"); raw != "" {
				roles = strings.Split(raw, ",")
			}
			setPrincipal(c, infraidentity.Principal{
				Profile: domainidentity.Profile{ID: id, Name: c.GetHeader("X-Test-Name"), Email: id + "@example.edu"},
				Roles:   roles,
			})
		}
		c.Next()
	})
	handler := ChatHandler{Chat: svc}
	api := router.Group("/api")
	api.POST("/listings/:id/conversations", handler.CreateListingConversation)
	api.GET("/conversations", handler.ListMyConversations)
	api.GET("/conversations/unread-count", handler.UnreadTotal)
	api.GET("/conversations/:id/messages", handler.ListMessages)
	api.POST("/conversations/:id/messages", handler.SendMessage)
	api.POST("/conversations/:id/seen", handler.MarkSeen)
	api.POST("/conversations/:id/block", handler.Block)
	api.POST("/conversations/:id/reports", handler.Report)
	api.DELETE("/conversations/:id", handler.Delete)
	api.GET("/reports", handler.ListReports)
	return router, svc
}

type testUser struct {
	id    string
	name  string
	roles []string
}

func asUser(id, name string, roles ...string) *testUser {
	return &testUser{id: id, name: name, roles: roles}
}

func doJSON(t *testing.T, router *gin.Engine, user *testUser, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("X-Test-User", user.id)
		req.Header.Set("X-Test-Name", user.name)
		if len(user.roles) > 0 {
			req.Header.Set("X-Test-Roles", strings.Join(user.roles, ","))
		}
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateConversationEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, asUser("u-buyer", "Ana"), http.MethodPost, "/api/listings/lst-1/conversations", gin.H{
		"text": "is this available?",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Conversation struct {
			ID     string `json:"id"`
			Unread int    `json:"unread"`
		} `json:"conversation"`
		Message struct {
			Text string `json:"text"`
		} `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Conversation.ID != domainchat.ThreadID("u-buyer", "u-seller", "lst-1") {
		t.Fatalf("conversation id = %q", resp.Conversation.ID)
	}
	if resp.Conversation.Unread != 0 {
		t.Fatalf("buyer-relative unread = %d, want 0", resp.Conversation.Unread)
	}
	if resp.Message.Text != "is this available?" {
		t.Fatalf("message text = %q", resp.Message.Text)
	}
}

func TestEndpointsRequireAuth(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, nil, http.MethodGet, "/api/conversations", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestSendMessageErrorMapping(t *testing.T) {
	router, svc := newTestRouter(t)
	conv, _, err := svc.OpenListingConversation(context.Background(), chatservice.OpenParams{
		ListingID: "lst-1",
		BuyerID:   "u-buyer",
		Buyer:     domainidentity.Profile{ID: "u-buyer", Name: "Ana"},
		Text:      "hello",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	rec := doJSON(t, router, asUser("u-buyer", "Ana"), http.MethodPost, "/api/conversations/"+conv.ID+"/messages", gin.H{"text": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty text status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, asUser("u-stranger", "Sam"), http.MethodPost, "/api/conversations/"+conv.ID+"/messages", gin.H{"text": "let me in"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("outsider status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, router, asUser("u-buyer", "Ana"), http.MethodPost, "/api/conversations/missing/messages", gin.H{"text": "hi"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing thread status = %d, want 404", rec.Code)
	}

	if err := svc.Block(context.Background(), conv.ID, "u-buyer"); err != nil {
		t.Fatalf("block: %v", err)
	}
	rec = doJSON(t, router, asUser("u-buyer", "Ana"), http.MethodPost, "/api/conversations/"+conv.ID+"/messages", gin.H{"text": "still there?"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("blocked status = %d, want 403", rec.Code)
	}
}

func TestReportEndpointValidation(t *testing.T) {
	router, svc := newTestRouter(t)
	conv, _, err := svc.OpenListingConversation(context.Background(), chatservice.OpenParams{
		ListingID: "lst-1",
		BuyerID:   "u-buyer",
		Buyer:     domainidentity.Profile{ID: "u-buyer", Name: "Ana"},
		Text:      "hello",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	rec := doJSON(t, router, asUser("u-buyer", "Ana"), http.MethodPost, "/api/conversations/"+conv.ID+"/reports", gin.H{
		"reported_id": "u-seller",
		"reason":      "rude",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid reason status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, asUser("u-buyer", "Ana"), http.MethodPost, "/api/conversations/"+conv.ID+"/reports", gin.H{
		"reported_id": "u-seller",
		"reason":      "spam",
		"description": "link farm",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("valid report status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestReportsEndpointRequiresModerator(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, asUser("u-buyer", "Ana"), http.MethodGet, "/api/reports", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("student status = %d, want 403", rec.Code)
	}
	rec = doJSON(t, router, asUser("u-mod", "Mo", "moderator"), http.MethodGet, "/api/reports", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("moderator status = %d, want 200", rec.Code)
	}
}

func TestUnreadCountEndpoint(t *testing.T) {
	router, svc := newTestRouter(t)
	if _, _, err := svc.OpenListingConversation(context.Background(), chatservice.OpenParams{
		ListingID: "lst-1",
		BuyerID:   "u-buyer",
		Buyer:     domainidentity.Profile{ID: "u-buyer", Name: "Ana"},
		Text:      "hello",
	}); err != nil {
		t.Fatalf("open: %v", err)
	}
	rec := doJSON(t, router, asUser("u-seller", "Bo"), http.MethodGet, "/api/conversations/unread-count", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 {
		t.Fatalf("total = %d, want 1", resp.Total)
	}
}
