package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/mamadbah2/balsam/internal/config"
)

type sheetCall struct {
	Method string
	Path   string
	Body   map[string]any
}

func newTestRepository(t *testing.T) (*GoogleSheetRepository, func() []sheetCall) {
	t.Helper()

	var (
		mu    sync.Mutex
		calls []sheetCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		call := sheetCall{Method: r.Method, Path: r.URL.Path}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &call.Body)
		}
		mu.Lock()
		calls = append(calls, call)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{}`)
	}))
	t.Cleanup(srv.Close)

	repo, err := NewGoogleSheetRepository(context.Background(),
		config.SheetsConfig{SpreadsheetID: "sheet-1"},
		nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)

	return repo, func() []sheetCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]sheetCall(nil), calls...)
	}
}

func TestWriteRows(t *testing.T) {
	repo, calls := newTestRepository(t)

	rows := [][]interface{}{{"ID", "Brand"}, {"d1", "Panadol"}}
	require.NoError(t, repo.WriteRows(context.Background(), "Inventory!A1", rows))

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPut, got[0].Method)
	assert.True(t, strings.Contains(got[0].Path, "spreadsheets/sheet-1/values/"), got[0].Path)
	assert.Equal(t, []any{[]any{"ID", "Brand"}, []any{"d1", "Panadol"}}, got[0].Body["values"])
}

func TestClearRange(t *testing.T) {
	repo, calls := newTestRepository(t)

	require.NoError(t, repo.ClearRange(context.Background(), "Inventory!A:K"))

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPost, got[0].Method)
	assert.True(t, strings.HasSuffix(got[0].Path, ":clear"), got[0].Path)
}

func TestEmptyRangeRejected(t *testing.T) {
	repo, calls := newTestRepository(t)

	assert.Error(t, repo.ClearRange(context.Background(), ""))
	assert.Error(t, repo.WriteRows(context.Background(), "", nil))
	assert.Empty(t, calls())
}

func TestMissingSpreadsheetID(t *testing.T) {
	_, err := NewGoogleSheetRepository(context.Background(), config.SheetsConfig{}, nil, option.WithoutAuthentication())
	assert.Error(t, err)
}
