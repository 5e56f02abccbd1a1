package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"spendlog/internal/core"
	"spendlog/internal/derive"
	"spendlog/internal/log"
	"spendlog/internal/view"
)

// recordJSON is a record as shown in a table row.
type recordJSON struct {
	core.Record
	FormattedAmount string `json:"formatted_amount"`
	Highlight       bool   `json:"highlight"`
}

// viewJSON is the grouped output shared by the list and stats endpoints.
type viewJSON struct {
	Mode            core.GroupingMode          `json:"mode"`
	Query           *string                    `json:"query,omitempty"`
	Category        string                     `json:"category,omitempty"`
	Records         int                        `json:"records"`
	Keys            []string                   `json:"keys"`
	Groups          map[string][]recordJSON    `json:"groups"`
	Totals          map[string]decimal.Decimal `json:"totals"`
	FormattedTotals map[string]string          `json:"formatted_totals"`
	GrandTotal      decimal.Decimal            `json:"grand_total"`
	Categories      []categoryJSON             `json:"categories,omitempty"`
}

type categoryJSON struct {
	Name      core.Category `json:"name"`
	Highlight bool          `json:"highlight"`
}

func (s *Server) renderRecord(r core.Record) recordJSON {
	return recordJSON{
		Record:          r,
		FormattedAmount: core.FormatAmount(r.Amount, s.currency),
		Highlight:       r.ExceedsLimit(s.highlightLimit),
	}
}

func (s *Server) renderResult(res view.Result) viewJSON {
	out := viewJSON{
		Mode:            res.Mode,
		Records:         res.Records,
		Keys:            make([]string, 0, len(res.Keys)),
		Groups:          make(map[string][]recordJSON, len(res.Buckets)),
		Totals:          make(map[string]decimal.Decimal, len(res.Totals)),
		FormattedTotals: make(map[string]string, len(res.Totals)),
		GrandTotal:      res.GrandTotal,
	}
	out.Keys = append(out.Keys, res.Keys...)
	for key, rows := range res.Buckets {
		rendered := make([]recordJSON, 0, len(rows))
		for _, r := range rows {
			rendered = append(rendered, s.renderRecord(r))
		}
		out.Groups[key] = rendered
	}
	for key, total := range res.Totals {
		out.Totals[key] = total
		out.FormattedTotals[key] = core.FormatAmount(total, s.currency)
	}
	return out
}

// handleListExpenses serves the record table: free-text filter plus the
// annual toggle. The query is passed through untouched.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	s.listMu.Lock()
	s.list.SetQuery(q.Get("q"))
	s.list.SetAnnual(parseToggle(q.Get("annual")))
	res := s.list.Current()
	query := s.list.Query()
	s.listMu.Unlock()

	log.FromContext(r.Context()).DebugContext(r.Context(), "List view served",
		log.FieldOperation, log.OpList,
		log.FieldQuery, query,
		log.FieldMode, res.Mode,
		log.FieldRecords, res.Records)

	out := s.renderResult(res)
	out.Query = &query
	NewJSONResponse().Data(out).Write(w)
}

// handleStats serves per-bucket totals for one category or all of them.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := strings.ToLower(strings.TrimSpace(q.Get("category")))

	s.statsMu.Lock()
	s.stats.SetCategory(category)
	s.stats.SetAnnual(parseToggle(q.Get("annual")))
	res := s.stats.Current()
	selected := s.stats.Category()
	s.statsMu.Unlock()

	log.FromContext(r.Context()).DebugContext(r.Context(), "Stats view served",
		log.FieldOperation, log.OpStats,
		log.FieldCategory, selected,
		log.FieldMode, res.Mode,
		log.FieldRecords, res.Records)

	out := s.renderResult(res)
	out.Category = selected
	for _, c := range s.svc.Categories() {
		out.Categories = append(out.Categories, categoryJSON{
			Name:      c,
			Highlight: selected != derive.AllCategories && string(c) == selected,
		})
	}
	NewJSONResponse().Data(out).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse().Data(map[string][]core.Category{
		"categories": s.svc.Categories(),
	}).Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok := s.svc.GetRecord(id)
	log.FromContext(r.Context()).DebugContext(r.Context(), "Expense lookup",
		log.FieldOperation, log.OpRead,
		log.FieldRecordID, id,
		"found", ok)
	if !ok {
		NotFoundError("expense not found").Write(w)
		return
	}
	NewJSONResponse().Data(s.renderRecord(rec)).Write(w)
}

// handleCreateExpense accepts JSON or form bodies. A client-supplied id is
// kept; otherwise a new one is generated.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}

	id := p.Get("id")
	if id == "" {
		id = newRecordID()
	}
	rec, err := parseRecordInput(p, id, s.now())
	if err != nil {
		s.writeValidationError(w, r, err)
		return
	}

	if err := s.svc.CreateRecord(r.Context(), rec); err != nil {
		s.writeValidationError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+rec.ID).
		Data(s.renderRecord(rec)).
		Write(w)
}

// handleUpdateExpense replaces the record at {id}. An unknown id is not an
// error; the response reports whether anything was replaced.
func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}

	rec, err := parseRecordInput(p, r.PathValue("id"), s.now())
	if err != nil {
		s.writeValidationError(w, r, err)
		return
	}

	updated, err := s.svc.UpdateRecord(r.Context(), rec)
	if err != nil {
		s.writeValidationError(w, r, err)
		return
	}
	NewJSONResponse().Data(struct {
		Updated bool       `json:"updated"`
		Record  recordJSON `json:"record"`
	}{updated, s.renderRecord(rec)}).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	deleted := s.svc.DeleteRecord(r.Context(), r.PathValue("id"))
	NewJSONResponse().Data(map[string]bool{"deleted": deleted}).Write(w)
}

// writeValidationError maps record errors to status codes: duplicate IDs
// conflict, other validation failures are unprocessable.
func (s *Server) writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *core.ValidationError
	switch {
	case errors.Is(err, core.ErrDuplicateID):
		ErrorResponse(http.StatusConflict, err.Error(), "id").Write(w)
	case errors.As(err, &verr):
		ErrorResponse(http.StatusUnprocessableEntity, verr.Error(), verr.Field).Write(w)
	default:
		log.FromContext(r.Context()).Failure(r.Context(), "Failed to save expense", err)
		InternalServerError("failed to save expense").Write(w)
	}
}
