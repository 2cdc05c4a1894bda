package catalog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperation(t *testing.T) {
	tests := []struct {
		in      string
		want    Operation
		wantErr bool
	}{
		{in: "view", want: OpView},
		{in: " Edit ", want: OpEdit},
		{in: "read", want: OpView},
		{in: "add", want: OpCreate},
		{in: "update", want: OpEdit},
		{in: "remove", want: OpDelete},
		{in: "publish", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOperation(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOperationSet(t *testing.T) {
	var empty OperationSet
	assert.True(t, empty.Empty())
	for _, op := range Operations {
		assert.False(t, empty.Has(op))
	}

	set := NewOperationSet(OpEdit, OpView, OpView)
	assert.Equal(t, []Operation{OpView, OpEdit}, set.Slice())
	assert.False(t, set.Has(Operation("publish")))

	withDelete := set.With(OpDelete)
	assert.True(t, withDelete.Has(OpDelete))
	assert.False(t, set.Has(OpDelete), "With must not mutate the receiver")
	assert.Equal(t, withDelete, withDelete.With(OpDelete))

	assert.Equal(t, []Operation{OpEdit, OpDelete}, withDelete.Without(OpView).Slice())
	assert.True(t, set.Without(OpView).Without(OpEdit).Empty())
	assert.Equal(t, "[view,edit]", set.String())
}

func TestOperationSet_JSON(t *testing.T) {
	data, err := json.Marshal(NewOperationSet(OpDelete, OpView))
	require.NoError(t, err)
	assert.JSONEq(t, `["view","delete"]`, string(data))

	var set OperationSet
	require.NoError(t, json.Unmarshal([]byte(`["read","update"]`), &set))
	assert.Equal(t, NewOperationSet(OpView, OpEdit), set)

	assert.Error(t, json.Unmarshal([]byte(`["fly"]`), &set))
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	assert.Len(t, c.Modules(), 15)
	assert.Equal(t, []string{"Core", "Customer Feedback", "Inventory", "System & Admin"}, c.Categories())

	m, ok := c.Lookup(ModuleActivityLogs)
	require.True(t, ok)
	assert.Equal(t, "Activity Logs", m.Name)
	assert.Equal(t, "System & Admin", m.Category)

	assert.True(t, c.Has(ModuleRoles))
	assert.False(t, c.Has("billing"))

	grouped := c.ByCategory()
	assert.Len(t, grouped["Inventory"], 4)
	assert.Equal(t, "products", grouped["Inventory"][0].ID)
}

func TestLoad_Rejects(t *testing.T) {
	tests := map[string]string{
		"duplicate id": `
categories:
  - name: A
    modules:
      - {id: x, name: X}
      - {id: x, name: Y}
`,
		"missing id": `
categories:
  - name: A
    modules:
      - {name: X}
`,
		"unknown field": `
categories:
  - name: A
    colour: red
    modules: [{id: x}]
`,
		"empty": `categories: []`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestHandlers_ListModules(t *testing.T) {
	router := mux.NewRouter()
	NewHandlers(Default()).RegisterRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/roles/modules", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp ModulesResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, Operations, resp.PermissionTypes)
	assert.Len(t, resp.Modules, 4)
	assert.Equal(t, "dashboard", resp.Modules["Core"][0].ID)
}
