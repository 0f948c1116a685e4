package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"finance/internal/core"
	"finance/internal/log"
)

type indexView struct {
	Period       string
	Year         int
	Month        int
	Today        string
	Incomes      []core.Record
	Expenses     []core.Record
	TotalIncome  core.Money
	TotalExpense core.Money
	Balance      core.Money
}

// handleIndex renders the records of a month. An invalid month selector
// falls back to the current month.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.templates == nil {
		log.FromContext(ctx).ErrorContext(ctx, "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	now := s.now()
	period := ParseMonthParams(r.URL.Query(), now)

	view, err := s.monthView(ctx, period)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Month listing failed",
			log.NewFields().WithOperation(log.OpList).WithError(err).ToSlice()...)
		http.Error(w, msgInternal, http.StatusInternalServerError)
		return
	}
	view.Today = now.Format("2006-01-02")

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "index.html", view); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Index template execution failed",
			log.FieldOperation, log.OpRender, log.FieldError, err.Error())
		http.Error(w, msgInternal, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) monthView(ctx context.Context, period core.Period) (indexView, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	view := indexView{Period: period.String(), Year: period.Year, Month: period.Month}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := s.deps.Records.List(gctx, core.KindIncome, period)
		view.Incomes = recs
		return err
	})
	g.Go(func() error {
		recs, err := s.deps.Records.List(gctx, core.KindExpense, period)
		view.Expenses = recs
		return err
	})
	if err := g.Wait(); err != nil {
		return indexView{}, err
	}

	for _, rec := range view.Incomes {
		view.TotalIncome = view.TotalIncome.Add(rec.Amount)
	}
	for _, rec := range view.Expenses {
		view.TotalExpense = view.TotalExpense.Add(rec.Amount)
	}
	view.Balance = view.TotalIncome.Sub(view.TotalExpense)
	return view, nil
}

// handleIndexForm creates a record from the page form and redirects to its
// month.
func (s *Server) handleIndexForm(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		http.Error(w, bodyError(err).Error(), http.StatusBadRequest)
		return
	}

	in := readRecordInput(p, "form_type")
	rec, err := s.createRecord(r.Context(), in)
	if err != nil {
		if msg, ok := validationMessage(err); ok {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Form create failed",
			log.NewFields().WithOperation(log.OpCreate).WithError(err).ToSlice()...)
		http.Error(w, msgInternal, http.StatusInternalServerError)
		return
	}

	target := fmt.Sprintf("/?year=%d&month=%02d", rec.Date.Year(), rec.Date.Month())
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// handleAddRecord creates a record from a JSON body.
func (s *Server) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.writeError(w, r, log.OpCreate, bodyError(err))
		return
	}

	rec, err := s.createRecord(r.Context(), readRecordInput(p, "type"))
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Data(toRecordJSON(rec)).Write(w)
}

func (s *Server) createRecord(ctx context.Context, in recordInput) (core.Record, error) {
	if err := in.require("date", "type", "amount"); err != nil {
		return core.Record{}, err
	}
	rec, err := in.toRecord()
	if err != nil {
		return core.Record{}, err
	}
	created, err := s.deps.Records.Create(ctx, rec)
	if err != nil {
		return core.Record{}, err
	}
	s.chartCache.Invalidate()
	return created, nil
}

// handleEditRecord replaces every mutable field of a record. Editing an id
// that does not exist succeeds without effect.
func (s *Server) handleEditRecord(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.writeError(w, r, log.OpUpdate, bodyError(err))
		return
	}

	in := readRecordInput(p, "type")
	if err := in.require("id", "type", "date", "amount"); err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	kind, id, err := in.kindAndID()
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	rec, err := in.toRecord()
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	rec.Kind, rec.ID = kind, id

	err = s.deps.Records.Update(r.Context(), rec)
	switch {
	case errors.Is(err, core.ErrNotFound):
		log.FromContext(r.Context()).InfoContext(r.Context(), "Edit of missing record ignored",
			log.FieldKind, kind, log.FieldRecordID, id)
	case err != nil:
		s.writeError(w, r, log.OpUpdate, err)
		return
	default:
		s.chartCache.Invalidate()
	}
	NewJSONResponse().Write(w)
}

// handleDeleteRecord removes a record; deleting a missing id succeeds.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.writeError(w, r, log.OpDelete, bodyError(err))
		return
	}

	in := readRecordInput(p, "type")
	if err := in.require("id", "type"); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	kind, id, err := in.kindAndID()
	if err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}

	if err := s.deps.Records.Delete(r.Context(), kind, id); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	s.chartCache.Invalidate()
	NewJSONResponse().Write(w)
}
