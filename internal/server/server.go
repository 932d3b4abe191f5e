package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coverplan/internal/app"
	"coverplan/internal/coverage"
	"coverplan/internal/csvio"
	"coverplan/internal/domain"
	"coverplan/internal/metrics"
	"coverplan/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Planner  app.Planner
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"report window is empty"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the coverage API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	hcfg := huma.DefaultConfig("Coverplan API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerEmployees(group, cfg.Planner)
	registerCustomers(group, cfg.Planner)
	registerRegions(group, cfg.Planner)
	registerLeaves(group, cfg.Planner)
	registerRoster(group, cfg.Planner)
	registerReport(group, cfg.Planner)
	registerEvents(group, cfg.Planner)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var pe *csvio.ParseError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusBadRequest, "invalid_roster", err.Error(), map[string]any{"line": pe.Line})
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "empty"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Coverplan API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerEmployees(api huma.API, p app.Planner) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-employee",
		Method:        http.MethodPost,
		Path:          "/employees",
		Summary:       "Add employee",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateEmployeeRequest `json:"body"`
	}) (*struct {
		Body EmployeeResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		if input.Body.Team == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "team is required", nil)
		}
		e, err := p.AddEmployee(ctx, domain.Employee{
			Name:    input.Body.Name,
			Country: strings.ToLower(input.Body.Country),
			Team:    input.Body.Team,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EmployeeResponse `json:"body"`
		}{Body: employeeResponse(e)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-employees",
		Method:      http.MethodGet,
		Path:        "/employees",
		Summary:     "List employees",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []EmployeeResponse `json:"body"`
	}, error) {
		items, err := p.Repo.ListEmployees(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := []EmployeeResponse{}
		for _, e := range items {
			res = append(res, employeeResponse(e))
		}
		return &struct {
			Body []EmployeeResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-employee",
		Method:      http.MethodDelete,
		Path:        "/employees/{id}",
		Summary:     "Delete employee",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := p.Repo.DeleteEmployee(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerCustomers(api huma.API, p app.Planner) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-customer",
		Method:        http.MethodPost,
		Path:          "/customers",
		Summary:       "Add customer",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateCustomerRequest `json:"body"`
	}) (*struct {
		Body CustomerResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		reqs, err := mapRequirements(input.Body.Requirements)
		if err != nil {
			return nil, handleError(err)
		}
		c, err := p.AddCustomer(ctx, domain.Customer{
			Name:         input.Body.Name,
			Country:      strings.ToLower(input.Body.Country),
			Requirements: reqs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CustomerResponse `json:"body"`
		}{Body: customerResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-customers",
		Method:      http.MethodGet,
		Path:        "/customers",
		Summary:     "List customers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []CustomerResponse `json:"body"`
	}, error) {
		items, err := p.Repo.ListCustomers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := []CustomerResponse{}
		for _, c := range items {
			res = append(res, customerResponse(c))
		}
		return &struct {
			Body []CustomerResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerRegions(api huma.API, p app.Planner) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-region",
		Method:        http.MethodPost,
		Path:          "/regions",
		Summary:       "Add region",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateRegionRequest `json:"body"`
	}) (*struct {
		Body RegionResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		reqs, err := mapRequirements(input.Body.Requirements)
		if err != nil {
			return nil, handleError(err)
		}
		reg, err := p.AddRegion(ctx, domain.Region{
			Name:         input.Body.Name,
			Countries:    lowerAll(input.Body.Countries),
			Requirements: reqs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RegionResponse `json:"body"`
		}{Body: regionResponse(reg)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-regions",
		Method:      http.MethodGet,
		Path:        "/regions",
		Summary:     "List regions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []RegionResponse `json:"body"`
	}, error) {
		items, err := p.Repo.ListRegions(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := []RegionResponse{}
		for _, reg := range items {
			res = append(res, regionResponse(reg))
		}
		return &struct {
			Body []RegionResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerLeaves(api huma.API, p app.Planner) {
	huma.Register(api, huma.Operation{
		OperationID:   "import-leaves",
		Method:        http.MethodPost,
		Path:          "/leaves",
		Summary:       "Import leave intervals",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Replace bool                `query:"replace"`
		Body    ImportLeavesRequest `json:"body"`
	}) (*struct {
		Body ImportLeavesResponse `json:"body"`
	}, error) {
		if len(input.Body.Intervals) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "intervals are required", nil)
		}
		leaves, err := mapLeaves(input.Body.Intervals)
		if err != nil {
			return nil, handleError(err)
		}
		if err := p.ImportLeave(ctx, leaves, input.Replace); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ImportLeavesResponse `json:"body"`
		}{Body: ImportLeavesResponse{Imported: len(leaves), Replaced: input.Replace}}, nil
	})
}

func registerRoster(api huma.API, p app.Planner) {
	huma.Register(api, huma.Operation{
		OperationID: "import-roster",
		Method:      http.MethodPost,
		Path:        "/roster/import",
		Summary:     "Import roster CSV",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		RawBody []byte `contentType:"text/csv"`
	}) (*struct {
		Body RosterImportResponse `json:"body"`
	}, error) {
		if len(input.RawBody) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		snap, err := p.ImportRoster(ctx, strings.NewReader(string(input.RawBody)))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RosterImportResponse `json:"body"`
		}{Body: RosterImportResponse{
			Employees: len(snap.Employees),
			Customers: len(snap.Customers),
			Regions:   len(snap.Regions),
		}}, nil
	})
}

func registerReport(api huma.API, p app.Planner) {
	huma.Register(api, huma.Operation{
		OperationID: "coverage-report",
		Method:      http.MethodGet,
		Path:        "/report",
		Summary:     "Coverage report",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		From           string `query:"from" doc:"Window start day, YYYY-MM-DD. Defaults to today."`
		To             string `query:"to" doc:"Window end day (exclusive), YYYY-MM-DD."`
		IncludeCovered bool   `query:"include_covered"`
		Order          string `query:"order" enum:"regions-first,customers-first" doc:"Tie-break order between entity kinds."`
	}) (*struct {
		Body ReportResponse `json:"body"`
	}, error) {
		opts := coverage.RunOptions{
			IncludeCovered: p.Config.Report.IncludeCovered || input.IncludeCovered,
			RegionsFirst:   p.Config.Report.RegionsFirst,
		}
		switch input.Order {
		case "regions-first":
			opts.RegionsFirst = true
		case "customers-first":
			opts.RegionsFirst = false
		}
		opts.From, opts.To = p.DefaultWindow()
		var err error
		if input.From != "" {
			if opts.From, err = time.Parse("2006-01-02", input.From); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid from date", map[string]any{"from": input.From})
			}
			opts.To = opts.From.AddDate(0, 0, p.Config.Window.Days)
		}
		if input.To != "" {
			if opts.To, err = time.Parse("2006-01-02", input.To); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid to date", map[string]any{"to": input.To})
			}
		}
		reports, stats, err := p.Report(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReportResponse `json:"body"`
		}{Body: reportResponse(reports, stats)}, nil
	})
}

func registerEvents(api huma.API, p app.Planner) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest audit events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Limit int    `query:"limit" default:"50"`
		Type  string `query:"type"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := p.Repo.LatestEvents(ctx, input.Limit, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		res := []EventResponse{}
		for _, e := range items {
			res = append(res, eventResponse(e))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: res}, nil
	})
}
