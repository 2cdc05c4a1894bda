package catalog

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/httputil"
)

// ModulesResponse is the payload role-editing UIs are built from
type ModulesResponse struct {
	Modules         map[string][]Module `json:"modules"`
	PermissionTypes []Operation         `json:"permission_types"`
}

// Handlers serves the catalog over HTTP
type Handlers struct {
	catalog *Catalog
}

// NewHandlers creates catalog handlers
func NewHandlers(c *Catalog) *Handlers {
	return &Handlers{catalog: c}
}

// RegisterRoutes registers the catalog routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/roles/modules", h.listModules).Methods(http.MethodGet)
}

func (h *Handlers) listModules(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, ModulesResponse{
		Modules:         h.catalog.ByCategory(),
		PermissionTypes: Operations,
	})
}
