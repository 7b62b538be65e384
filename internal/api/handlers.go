package api

import (
	"net/http"
	"time"

	"github.com/pgcompose/pgcompose/compose"
	"github.com/pgcompose/pgcompose/internal/deploy"
	"github.com/pgcompose/pgcompose/internal/merge"
	"github.com/pgcompose/pgcompose/internal/plan"
	"github.com/pgcompose/pgcompose/internal/sorter"
	"github.com/pgcompose/pgcompose/internal/source"
	"github.com/pgcompose/pgcompose/internal/version"
)

// orderingFields are accepted by every endpoint that emits SQL.
type orderingFields struct {
	Order    string `json:"order,omitempty"`
	Grants   string `json:"grants,omitempty"`
	NoGrants bool   `json:"no_grants,omitempty"`
	Format   string `json:"format,omitempty"`
}

func (f orderingFields) options(cfg Config) (compose.Options, error) {
	order, err := sorter.ParseOrder(f.Order)
	if err != nil {
		return compose.Options{}, badRequest(err.Error())
	}
	grants, err := sorter.ParseGrantPlacement(f.Grants)
	if err != nil {
		return compose.Options{}, badRequest(err.Error())
	}
	switch f.Format {
	case "", "sql", "json":
	default:
		return compose.Options{}, badRequest("format must be sql or json")
	}
	return compose.Options{Source: cfg.Source, Order: order, Grants: grants, NoGrants: f.NoGrants}, nil
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Version: version.App()})
}

type compareRequest struct {
	SourceA string `json:"source_a"`
	SourceB string `json:"source_b"`
	DryRun  bool   `json:"dry_run,omitempty"`
	orderingFields
}

func (s *server) compare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	opts, err := req.options(s.cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, spec := range []string{req.SourceA, req.SourceB} {
		if err := s.checkSource(spec); err != nil {
			writeError(w, err)
			return
		}
	}
	opts.DryRun = req.DryRun

	res, err := compose.Compare(r.Context(), req.SourceA, req.SourceB, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writePlan(w, res.Plan, req.Format)
}

func writePlan(w http.ResponseWriter, p *plan.Plan, format string) {
	if format == "json" {
		writeJSON(w, http.StatusOK, p)
		return
	}
	writeText(w, p.SQL())
}

type sortRequest struct {
	SQL string `json:"sql"`
	orderingFields
}

type scriptResponse struct {
	Statements []string `json:"statements"`
	Warnings   []string `json:"warnings,omitempty"`
}

func writeScript(w http.ResponseWriter, res *merge.Result, format string) {
	if format != "json" {
		writeText(w, res.SQL())
		return
	}
	out := scriptResponse{Statements: res.Statements}
	if out.Statements == nil {
		out.Statements = []string{}
	}
	for _, warn := range res.Warnings {
		out.Warnings = append(out.Warnings, warn.Error())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) sort(w http.ResponseWriter, r *http.Request) {
	var req sortRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	opts, err := req.options(s.cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.checkSource(req.SQL); err != nil {
		writeError(w, err)
		return
	}
	res, err := compose.Sort(r.Context(), req.SQL, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeScript(w, res, req.Format)
}

type mergeRequest struct {
	Sources []string `json:"sources"`
	orderingFields
}

func (s *server) merge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	opts, err := req.options(s.cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(req.Sources) == 0 {
		writeError(w, badRequest("sources must not be empty"))
		return
	}
	for _, spec := range req.Sources {
		if err := s.checkSource(spec); err != nil {
			writeError(w, err)
			return
		}
	}
	res, err := compose.Merge(r.Context(), req.Sources, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeScript(w, res, req.Format)
}

type deployRequest struct {
	Target            string `json:"target"`
	Source            string `json:"source"`
	DryRun            *bool  `json:"dry_run,omitempty"`
	LockTimeout       string `json:"lock_timeout,omitempty"`
	VerifyFingerprint bool   `json:"verify_fingerprint,omitempty"`
	orderingFields
}

type deployResponse struct {
	Plan   *plan.Plan     `json:"plan"`
	Result *deploy.Result `json:"result,omitempty"`
}

func (s *server) deploy(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	opts, err := req.options(s.cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, spec := range []string{req.Target, req.Source} {
		if err := s.checkSource(spec); err != nil {
			writeError(w, err)
			return
		}
	}
	if source.Detect(req.Target) != source.KindDatabase {
		writeError(w, badRequest("target must be a postgres:// URL"))
		return
	}
	// Deploys are previews unless the caller opts out explicitly.
	opts.DryRun = req.DryRun == nil || *req.DryRun

	var lockTimeout time.Duration
	if req.LockTimeout != "" {
		if lockTimeout, err = time.ParseDuration(req.LockTimeout); err != nil {
			writeError(w, badRequest("invalid lock_timeout: "+err.Error()))
			return
		}
	}

	res, err := compose.Deploy(r.Context(), req.Target, req.Source, compose.DeployOptions{
		Options:           opts,
		LockTimeout:       lockTimeout,
		VerifyFingerprint: req.VerifyFingerprint,
		ApplicationName:   "pgcompose",
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deployResponse{Plan: res.Plan, Result: res.Result})
}
