package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/config"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
)

func newTestDriveClient(baseURL string) *DriveClient {
	return NewDriveClient(&config.DriveOAuthConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost/callback",
		AuthURL:      baseURL + "/auth",
		TokenURL:     baseURL + "/token",
		APIBaseURL:   baseURL,
	}, zap.NewNop())
}

func TestCreateTreeContinuesAfterNodeFailure(t *testing.T) {
	var created []string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `{"files":[]}`)
			return
		}
		var body struct {
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Name == "Contratos" {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":"insufficient permissions"}`)
			return
		}
		created = append(created, body.Name)
		fmt.Fprintf(w, `{"id":"id-%s","name":"%s"}`, body.Name, body.Name)
	}))
	defer api.Close()

	integ := &fakeIntegrationsRepo{}
	svc := NewDriveService(integ, nil, nil, nil, nil,
		newTestDriveClient(api.URL), newTestCaller(integ), nil,
		NewEventPublisher(nil, zap.NewNop()), zap.NewNop())

	nodes := []domain.FolderNode{
		{Name: "Contratos", Children: []domain.FolderNode{{Name: "Assinados"}}},
		{Name: "Documentos"},
	}
	err := svc.CreateTree(context.Background(), "t1", "tok", "root", nodes)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Contratos")
	// The sibling is still created; the failed node's children are skipped.
	assert.Equal(t, []string{"Documentos"}, created)
}
